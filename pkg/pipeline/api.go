package pipeline

import (
	"fmt"
	"time"
)

// SubjectResponse is the API form of a subject.
type SubjectResponse struct {
	ID                     uint        `json:"id"`
	Kind                   SubjectKind `json:"kind"`
	Name                   string      `json:"name"`
	CurrentStateID         *uint       `json:"currentStateId"`
	CommittedTargetStateID *uint       `json:"committedTargetStateId"`
	CommittedTargetDate    string      `json:"committedTargetDate,omitempty"`
	PendingReasonText      string      `json:"pendingReasonText,omitempty"`
	LostReasonText         string      `json:"lostReasonText,omitempty"`
	PendingResponseDueDate string      `json:"pendingResponseDueDate,omitempty"`
	Version                int64       `json:"version"`
	UpdatedAt              string      `json:"updatedAt"`
}

// HistoryEntry is the API form of a history row.
type HistoryEntry struct {
	ID               uint      `json:"id"`
	CorrelationID    string    `json:"correlationId"`
	SubjectID        uint      `json:"subjectId"`
	EventType        EventType `json:"eventType"`
	FromStateID      *uint     `json:"fromStateId,omitempty"`
	ToStateID        *uint     `json:"toStateId,omitempty"`
	TargetDate       string    `json:"targetDate,omitempty"`
	RecordedAt       string    `json:"recordedAt"`
	ChangedBy        string    `json:"changedBy,omitempty"`
	Note             string    `json:"note,omitempty"`
	NoteAcknowledged bool      `json:"noteAcknowledged"`
	OutcomeReason    string    `json:"outcomeReason,omitempty"`
	SubType          string    `json:"subType,omitempty"`
	IsVoided         bool      `json:"isVoided"`
	VoidedAt         string    `json:"voidedAt,omitempty"`
	VoidedBy         string    `json:"voidedBy,omitempty"`
}

// HistoryList is a subject's history, newest first.
type HistoryList struct {
	Entries []HistoryEntry `json:"entries"`
	Size    int            `json:"size"`
}

// StateList is a catalog in display order.
type StateList struct {
	States []StateDefinition `json:"states"`
}

// TransitionRequest is the body of the transition and preview endpoints.
// Dates are YYYY-MM-DD or RFC 3339.
type TransitionRequest struct {
	StateID                uint   `json:"stateId"`
	TargetStateID          *uint  `json:"targetStateId,omitempty"`
	TargetDate             string `json:"targetDate,omitempty"`
	Note                   string `json:"note,omitempty"`
	OutcomeReason          string `json:"outcomeReason,omitempty"`
	PendingResponseDueDate string `json:"pendingResponseDueDate,omitempty"`
	AlertAcknowledged      bool   `json:"alertAcknowledged,omitempty"`
}

// CreateSubjectBody is the body of the create endpoint.
type CreateSubjectBody struct {
	Name string `json:"name"`
	TransitionRequest
}

// ReasonsRequest is the body of the reason update endpoint. An omitted field
// keeps its current value; an empty string clears it.
type ReasonsRequest struct {
	PendingReasonText      *string `json:"pendingReasonText,omitempty"`
	LostReasonText         *string `json:"lostReasonText,omitempty"`
	PendingResponseDueDate *string `json:"pendingResponseDueDate,omitempty"`
}

// Patch converts the body to a ReasonPatch.
func (r ReasonsRequest) Patch() (ReasonPatch, error) {
	p := ReasonPatch{
		PendingReasonText: r.PendingReasonText,
		LostReasonText:    r.LostReasonText,
	}
	if r.PendingResponseDueDate != nil {
		due, err := ParseDate(*r.PendingResponseDueDate)
		if err != nil {
			return ReasonPatch{}, fmt.Errorf("pendingResponseDueDate: %w", err)
		}
		p.SetPendingResponseDueDate = true
		p.PendingResponseDueDate = due
	}
	return p, nil
}

// TransitionResponse is returned by every write endpoint.
type TransitionResponse struct {
	Success bool             `json:"success"`
	Outcome Outcome          `json:"outcome"`
	Events  []DetectedEvent  `json:"events"`
	Alerts  []Alert          `json:"alerts"`
	Error   string           `json:"error,omitempty"`
	Subject *SubjectResponse `json:"subject,omitempty"`
	History []HistoryEntry   `json:"history,omitempty"`
}

// StaleEntry is one subject flagged in a list view.
type StaleEntry struct {
	Subject SubjectResponse `json:"subject"`
	Alert   Alert           `json:"alert"`
}

// StaleList lists stale subjects.
type StaleList struct {
	Subjects []StaleEntry `json:"subjects"`
}

// Proposal converts the request into an engine proposal.
func (r TransitionRequest) Proposal() (Proposal, error) {
	targetDate, err := ParseDate(r.TargetDate)
	if err != nil {
		return Proposal{}, fmt.Errorf("targetDate: %w", err)
	}
	dueDate, err := ParseDate(r.PendingResponseDueDate)
	if err != nil {
		return Proposal{}, fmt.Errorf("pendingResponseDueDate: %w", err)
	}
	return Proposal{
		StateID:                r.StateID,
		TargetStateID:          r.TargetStateID,
		TargetDate:             targetDate,
		Note:                   r.Note,
		OutcomeReason:          r.OutcomeReason,
		PendingResponseDueDate: dueDate,
	}, nil
}

// ParseDate parses an optional business date. Empty is nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, ErrInvalidRequest)
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func subjectToResponse(s *SubjectRecord) SubjectResponse {
	return SubjectResponse{
		ID:                     s.ID,
		Kind:                   s.Kind,
		Name:                   s.Name,
		CurrentStateID:         s.CurrentStateID,
		CommittedTargetStateID: s.CommittedTargetStateID,
		CommittedTargetDate:    formatDate(s.CommittedTargetDate),
		PendingReasonText:      s.PendingReasonText,
		LostReasonText:         s.LostReasonText,
		PendingResponseDueDate: formatDate(s.PendingResponseDueDate),
		Version:                s.Version,
		UpdatedAt:              formatTimestamp(&s.UpdatedAt),
	}
}

func historyToEntry(h HistoryRecord) HistoryEntry {
	return HistoryEntry{
		ID:               h.ID,
		CorrelationID:    h.CorrelationID,
		SubjectID:        h.SubjectID,
		EventType:        h.EventType,
		FromStateID:      h.FromStateID,
		ToStateID:        h.ToStateID,
		TargetDate:       formatDate(h.TargetDate),
		RecordedAt:       formatTimestamp(&h.RecordedAt),
		ChangedBy:        deref(h.ChangedBy),
		Note:             deref(h.Note),
		NoteAcknowledged: h.NoteAcknowledged,
		OutcomeReason:    deref(h.OutcomeReason),
		SubType:          deref(h.SubType),
		IsVoided:         h.IsVoided,
		VoidedAt:         formatTimestamp(h.VoidedAt),
		VoidedBy:         deref(h.VoidedBy),
	}
}

func historyToEntries(rows []HistoryRecord) []HistoryEntry {
	out := make([]HistoryEntry, len(rows))
	for i, h := range rows {
		out[i] = historyToEntry(h)
	}
	return out
}

// NewTransitionResponse converts an engine result to its API form.
func NewTransitionResponse(res *ApplyResult) TransitionResponse {
	resp := TransitionResponse{
		Success: res.Success,
		Outcome: res.Outcome,
		Events:  res.Events,
		Alerts:  res.Alerts,
		Error:   res.Error,
	}
	if resp.Events == nil {
		resp.Events = []DetectedEvent{}
	}
	if resp.Alerts == nil {
		resp.Alerts = []Alert{}
	}
	if res.Subject != nil {
		s := subjectToResponse(res.Subject)
		resp.Subject = &s
	}
	if len(res.History) > 0 {
		resp.History = historyToEntries(res.History)
	}
	return resp
}

// NewHistoryList converts history rows to their API form.
func NewHistoryList(rows []HistoryRecord) HistoryList {
	return HistoryList{Entries: historyToEntries(rows), Size: len(rows)}
}
