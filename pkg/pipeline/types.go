package pipeline

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// SubjectKind identifies which state machine a subject and its catalog belong to.
type SubjectKind string

const (
	KindPipeline SubjectKind = "pipeline"
	KindContract SubjectKind = "contract"
)

// Valid reports whether k is a known subject kind.
func (k SubjectKind) Valid() bool {
	switch k {
	case KindPipeline, KindContract:
		return true
	}
	return false
}

// StateCategory classifies a state for event detection and side-effect rules.
type StateCategory string

const (
	CategoryNormal  StateCategory = "normal"
	CategoryPending StateCategory = "pending"
	CategoryWon     StateCategory = "won"
	CategoryLost    StateCategory = "lost"
)

// Valid reports whether c is a known category.
func (c StateCategory) Valid() bool {
	switch c {
	case CategoryNormal, CategoryPending, CategoryWon, CategoryLost:
		return true
	}
	return false
}

// IsTerminal reports whether the category closes the subject.
func (c StateCategory) IsTerminal() bool {
	return c == CategoryWon || c == CategoryLost
}

// EventType is the semantic meaning of one history row.
type EventType string

const (
	EventCreated       EventType = "created"
	EventProgress      EventType = "progress"
	EventBack          EventType = "back"
	EventAchieved      EventType = "achieved"
	EventWon           EventType = "won"
	EventLost          EventType = "lost"
	EventSuspended     EventType = "suspended"
	EventResumed       EventType = "resumed"
	EventRevived       EventType = "revived"
	EventReopened      EventType = "reopened"
	EventCommitted     EventType = "committed"
	EventRecommitted   EventType = "recommitted"
	EventCancelled     EventType = "cancelled"
	EventReasonUpdated EventType = "reason_updated"
)

// AllEventTypes lists every event type in declaration order.
var AllEventTypes = []EventType{
	EventCreated, EventProgress, EventBack, EventAchieved, EventWon, EventLost,
	EventSuspended, EventResumed, EventRevived, EventReopened,
	EventCommitted, EventRecommitted, EventCancelled, EventReasonUpdated,
}

var (
	stateOccupyingEvents = mapset.NewThreadUnsafeSet(
		EventCreated, EventProgress, EventBack, EventAchieved, EventWon, EventLost,
		EventSuspended, EventResumed, EventRevived, EventReopened,
	)
	commitmentEvents = mapset.NewThreadUnsafeSet(EventCommitted, EventRecommitted, EventCancelled)
	// outcomeEvents close any open commitment unless the same call opens a new one.
	outcomeEvents = mapset.NewThreadUnsafeSet(EventAchieved, EventWon, EventLost, EventSuspended)
)

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventCreated, EventProgress, EventBack, EventAchieved, EventWon, EventLost,
		EventSuspended, EventResumed, EventRevived, EventReopened,
		EventCommitted, EventRecommitted, EventCancelled, EventReasonUpdated:
		return true
	}
	return false
}

// OccupiesState reports whether a row of this type places the subject in its ToStateID.
func (e EventType) OccupiesState() bool { return stateOccupyingEvents.Contains(e) }

// IsCommitment reports whether the event opens, replaces or withdraws a commitment.
func (e EventType) IsCommitment() bool { return commitmentEvents.Contains(e) }

// IsOutcome reports whether the event implicitly closes an open commitment.
func (e EventType) IsOutcome() bool { return outcomeEvents.Contains(e) }

// ParseEventType converts a raw string into an EventType.
func ParseEventType(s string) (EventType, bool) {
	e := EventType(s)
	return e, e.Valid()
}

// Commitment sub-types.
const (
	SubTypeInitial = "initial"
	SubTypeMissed  = "missed"
	SubTypeRevised = "revised"
)

// Reason-update sub-types name the single field a reason_updated row carries.
const (
	SubTypePendingReason          = "pending_reason"
	SubTypeLostReason             = "lost_reason"
	SubTypePendingResponseDueDate = "pending_response_due_date"
)

// StateDefinition is one node of a tenant's ordered state catalog.
type StateDefinition struct {
	ID             uint          `json:"id"`
	Name           string        `json:"name"`
	DisplayOrder   *int          `json:"displayOrder,omitempty"`
	Category       StateCategory `json:"category"`
	IsActive       bool          `json:"isActive"`
	Checkpoint     bool          `json:"checkpoint,omitempty"`
	StaleAfterDays *int          `json:"staleAfterDays,omitempty"`
}

// Snapshot is the stored position of a subject before a transition.
type Snapshot struct {
	StateID       *uint
	TargetStateID *uint
	TargetDate    *time.Time
}

// Proposal is the fully-specified state a caller wants the subject to be in.
type Proposal struct {
	StateID                uint       `json:"stateId"`
	TargetStateID          *uint      `json:"targetStateId,omitempty"`
	TargetDate             *time.Time `json:"targetDate,omitempty"`
	Note                   string     `json:"note,omitempty"`
	OutcomeReason          string     `json:"outcomeReason,omitempty"`
	PendingResponseDueDate *time.Time `json:"pendingResponseDueDate,omitempty"`
}

// DetectedEvent is one semantic event found by the detector. Each becomes one history row.
type DetectedEvent struct {
	Type          EventType  `json:"eventType"`
	FromStateID   *uint      `json:"fromStateId,omitempty"`
	ToStateID     *uint      `json:"toStateId,omitempty"`
	TargetDate    *time.Time `json:"targetDate,omitempty"`
	OutcomeReason string     `json:"outcomeReason,omitempty"`
	SubType       string     `json:"subType,omitempty"`
}

// DetectionResult is the output of DetectEvents.
type DetectionResult struct {
	Events     []DetectedEvent `json:"events"`
	HasChanges bool            `json:"hasChanges"`
}

// Has reports whether an event of the given type was detected.
func (r DetectionResult) Has(t EventType) bool {
	for _, e := range r.Events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// Severity ranks alerts. Lower values sort first.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	}
	return "UNKNOWN"
}

// MarshalText renders the severity by name in JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ERROR":
		*s = SeverityError
	case "WARNING":
		*s = SeverityWarning
	case "INFO":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Alert is one finding of the validator.
type Alert struct {
	Code         string   `json:"code"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	RequiresNote bool     `json:"requiresNote"`
}

// ValidationResult is the output of ValidateTransition.
type ValidationResult struct {
	IsValid     bool    `json:"isValid"`
	Alerts      []Alert `json:"alerts"`
	HasErrors   bool    `json:"hasErrors"`
	HasWarnings bool    `json:"hasWarnings"`
}
