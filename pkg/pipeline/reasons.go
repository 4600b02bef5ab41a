package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReasonUpdateRequest carries the full new values of the reason fields.
type ReasonUpdateRequest struct {
	Namespace              string
	Kind                   SubjectKind
	SubjectID              uint
	PendingReasonText      string
	LostReasonText         string
	PendingResponseDueDate *time.Time
	Actor                  *string
}

// ReasonPatch changes only the reason fields it sets. A nil text field keeps
// the current value. PendingResponseDueDate is applied when
// SetPendingResponseDueDate is true; a nil date then clears it.
type ReasonPatch struct {
	Namespace                 string
	Kind                      SubjectKind
	SubjectID                 uint
	PendingReasonText         *string
	LostReasonText            *string
	SetPendingResponseDueDate bool
	PendingResponseDueDate    *time.Time
	Actor                     *string
}

// resolve fills the fields the patch leaves out from subject.
func (p ReasonPatch) resolve(subject *SubjectRecord) ReasonUpdateRequest {
	req := ReasonUpdateRequest{
		Namespace:              p.Namespace,
		Kind:                   p.Kind,
		SubjectID:              p.SubjectID,
		PendingReasonText:      subject.PendingReasonText,
		LostReasonText:         subject.LostReasonText,
		PendingResponseDueDate: subject.PendingResponseDueDate,
		Actor:                  p.Actor,
	}
	if p.PendingReasonText != nil {
		req.PendingReasonText = *p.PendingReasonText
	}
	if p.LostReasonText != nil {
		req.LostReasonText = *p.LostReasonText
	}
	if p.SetPendingResponseDueDate {
		req.PendingResponseDueDate = p.PendingResponseDueDate
	}
	return req
}

// reasonChange is one differing field and its new value as written to the note.
type reasonChange struct {
	field string
	value string
}

func diffReasons(subject *SubjectRecord, req ReasonUpdateRequest) []reasonChange {
	var changes []reasonChange
	if subject.PendingReasonText != req.PendingReasonText {
		changes = append(changes, reasonChange{field: SubTypePendingReason, value: req.PendingReasonText})
	}
	if subject.LostReasonText != req.LostReasonText {
		changes = append(changes, reasonChange{field: SubTypeLostReason, value: req.LostReasonText})
	}
	if !dateEqual(subject.PendingResponseDueDate, req.PendingResponseDueDate) {
		var v string
		if req.PendingResponseDueDate != nil {
			v = req.PendingResponseDueDate.Format(time.DateOnly)
		}
		changes = append(changes, reasonChange{field: SubTypePendingResponseDueDate, value: v})
	}
	return changes
}

// UpdateReasons edits the reason fields without touching the current state.
// Each differing field gets its own reason_updated row.
func (e *Engine) UpdateReasons(ctx context.Context, req ReasonUpdateRequest) (*ApplyResult, error) {
	return e.updateReasons(ctx, req.Namespace, req.Kind, req.SubjectID, func(*SubjectRecord) ReasonUpdateRequest {
		return req
	})
}

// PatchReasons is UpdateReasons for the fields set in p. Omitted fields are
// read from the subject inside the same transaction.
func (e *Engine) PatchReasons(ctx context.Context, p ReasonPatch) (*ApplyResult, error) {
	return e.updateReasons(ctx, p.Namespace, p.Kind, p.SubjectID, p.resolve)
}

func (e *Engine) updateReasons(ctx context.Context, namespace string, kind SubjectKind, subjectID uint, build func(*SubjectRecord) ReasonUpdateRequest) (*ApplyResult, error) {
	var result *ApplyResult
	err := e.repo.Transaction(ctx, func(repo Repository) error {
		subject, err := repo.GetSubject(ctx, namespace, kind, subjectID)
		if err != nil {
			return err
		}
		req := build(subject)
		changes := diffReasons(subject, req)
		if len(changes) == 0 {
			result = &ApplyResult{
				Outcome: OutcomeNoChange,
				Events:  []DetectedEvent{},
				Alerts:  []Alert{},
				Error:   noChangeMessage,
			}
			return nil
		}

		now := e.now()
		correlationID := uuid.New().String()
		changedBy := e.actor(req.Actor)
		rows := make([]HistoryRecord, 0, len(changes))
		events := make([]DetectedEvent, 0, len(changes))
		for _, c := range changes {
			rows = append(rows, HistoryRecord{
				CorrelationID: correlationID,
				Namespace:     req.Namespace,
				SubjectID:     subject.ID,
				EventType:     EventReasonUpdated,
				FromStateID:   subject.CurrentStateID,
				ToStateID:     subject.CurrentStateID,
				RecordedAt:    now,
				ChangedBy:     &changedBy,
				Note:          optionalText(c.value),
				SubType:       optionalText(c.field),
			})
			events = append(events, DetectedEvent{
				Type:        EventReasonUpdated,
				FromStateID: subject.CurrentStateID,
				ToStateID:   subject.CurrentStateID,
				SubType:     c.field,
			})
		}
		if err := repo.AppendHistory(ctx, rows); err != nil {
			return err
		}

		version := subject.Version
		subject.PendingReasonText = req.PendingReasonText
		subject.LostReasonText = req.LostReasonText
		subject.PendingResponseDueDate = cloneTime(req.PendingResponseDueDate)
		if err := repo.UpdateSubject(ctx, subject, version); err != nil {
			return err
		}
		result = &ApplyResult{
			Success: true,
			Outcome: OutcomeApplied,
			Events:  events,
			Alerts:  []Alert{},
			Subject: subject,
			History: rows,
		}
		return nil
	})
	if err != nil {
		return nil, e.failed("reasons", kind, subjectID, err)
	}
	e.record("reasons", kind, subjectID, result)
	return result, nil
}
