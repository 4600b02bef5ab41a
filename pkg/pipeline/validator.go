package pipeline

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Alert codes.
const (
	AlertReopenRequiresNote   = "REOPEN_REQUIRES_NOTE"
	AlertTargetIncomplete     = "TARGET_INCOMPLETE"
	AlertTargetNotAhead       = "TARGET_NOT_AHEAD"
	AlertTargetDateInPast     = "TARGET_DATE_IN_PAST"
	AlertLostReasonMissing    = "LOST_REASON_MISSING"
	AlertMovedBack            = "MOVED_BACK"
	AlertCommitmentMissed     = "COMMITMENT_MISSED"
	AlertResponseDueDateUnset = "RESPONSE_DUE_DATE_UNSET"
	AlertStale                = "STALE"
)

// ValidateInput carries the detector inputs, its result and the subject's
// non-voided history.
type ValidateInput struct {
	Previous          Snapshot
	Proposed          Proposal
	Catalog           *StateCatalog
	Detection         DetectionResult
	History           []HistoryRecord
	Now               time.Time
	RequireLostReason bool
}

// ValidateTransition produces the alerts for a detected transition and the
// overall verdict. A WARNING that requires a note blocks until a non-blank
// note is supplied; any ERROR blocks unconditionally.
func ValidateTransition(in ValidateInput) ValidationResult {
	if !in.Detection.HasChanges {
		return ValidationResult{IsValid: true, Alerts: []Alert{}}
	}

	var alerts []Alert
	for _, ev := range in.Detection.Events {
		switch ev.Type {
		case EventRevived, EventReopened:
			alerts = append(alerts, Alert{
				Code:         AlertReopenRequiresNote,
				Severity:     SeverityWarning,
				Message:      fmt.Sprintf("re-opening a closed subject from %s requires a note", stateName(in.Catalog, ev.FromStateID)),
				RequiresNote: true,
			})
		case EventLost:
			if in.RequireLostReason && strings.TrimSpace(ev.OutcomeReason) == "" {
				alerts = append(alerts, Alert{
					Code:     AlertLostReasonMissing,
					Severity: SeverityError,
					Message:  "a lost reason is required",
				})
			}
		case EventBack:
			alerts = append(alerts, Alert{
				Code:     AlertMovedBack,
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("moving back from %s to %s", stateName(in.Catalog, ev.FromStateID), stateName(in.Catalog, ev.ToStateID)),
			})
		case EventSuspended:
			if in.Proposed.PendingResponseDueDate == nil {
				alerts = append(alerts, Alert{
					Code:     AlertResponseDueDateUnset,
					Severity: SeverityInfo,
					Message:  "no response due date set for the pending state",
				})
			}
		case EventRecommitted:
			if ev.SubType == SubTypeMissed {
				alerts = append(alerts, Alert{
					Code:     AlertCommitmentMissed,
					Severity: SeverityInfo,
					Message:  fmt.Sprintf("previous commitment was missed (%d missed before)", countMissed(in.History)),
				})
			}
		case EventCreated, EventProgress, EventAchieved, EventWon, EventResumed,
			EventCommitted, EventCancelled, EventReasonUpdated:
		}
	}

	alerts = append(alerts, targetAlerts(in)...)

	slices.SortStableFunc(alerts, func(a, b Alert) int { return int(a.Severity) - int(b.Severity) })

	res := ValidationResult{Alerts: alerts}
	needsNote := false
	for _, a := range alerts {
		switch a.Severity {
		case SeverityError:
			res.HasErrors = true
		case SeverityWarning:
			res.HasWarnings = true
		}
		if a.RequiresNote {
			needsNote = true
		}
	}
	res.IsValid = !res.HasErrors && (!needsNote || strings.TrimSpace(in.Proposed.Note) != "")
	if res.Alerts == nil {
		res.Alerts = []Alert{}
	}
	return res
}

func targetAlerts(in ValidateInput) []Alert {
	prop := in.Proposed
	if prop.TargetStateID == nil && prop.TargetDate == nil {
		return nil
	}
	if prop.TargetStateID == nil || prop.TargetDate == nil {
		return []Alert{{
			Code:     AlertTargetIncomplete,
			Severity: SeverityError,
			Message:  "a commitment needs both a target state and a target date",
		}}
	}
	// Only a changed commitment is re-checked; an untouched one was accepted before.
	if uintPtrEqual(in.Previous.TargetStateID, prop.TargetStateID) && dateEqual(in.Previous.TargetDate, prop.TargetDate) {
		return nil
	}

	var alerts []Alert
	if in.Catalog.Compare(*prop.TargetStateID, prop.StateID) <= 0 {
		alerts = append(alerts, Alert{
			Code:     AlertTargetNotAhead,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("target %s is not ahead of %s", stateName(in.Catalog, prop.TargetStateID), stateName(in.Catalog, &prop.StateID)),
		})
	}
	if dateOnly(*prop.TargetDate).Before(dateOnly(in.Now)) {
		alerts = append(alerts, Alert{
			Code:     AlertTargetDateInPast,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("target date %s is in the past", prop.TargetDate.Format(time.DateOnly)),
		})
	}
	return alerts
}

func countMissed(history []HistoryRecord) int {
	n := 0
	for _, h := range history {
		if !h.IsVoided && h.EventType == EventRecommitted && h.SubType != nil && *h.SubType == SubTypeMissed {
			n++
		}
	}
	return n
}

// BlockingMessage joins the messages of all ERROR alerts. When the only
// blocker is a missing note, it names the alerts that demanded one.
func (r ValidationResult) BlockingMessage() string {
	var msgs []string
	for _, a := range r.Alerts {
		if a.Severity == SeverityError {
			msgs = append(msgs, a.Message)
		}
	}
	if len(msgs) == 0 {
		for _, a := range r.Alerts {
			if a.RequiresNote {
				msgs = append(msgs, a.Message)
			}
		}
	}
	return strings.Join(msgs, "; ")
}

// StalenessInput describes a subject as shown in a list view.
type StalenessInput struct {
	CurrentStateID *uint
	Catalog        *StateCatalog
	History        []HistoryRecord
	Now            time.Time
}

// StalenessAlert flags a subject that has sat in an awaiting-response state for
// at least the state's StaleAfterDays. It never blocks a write.
func StalenessAlert(in StalenessInput) (Alert, bool) {
	if in.CurrentStateID == nil {
		return Alert{}, false
	}
	def, ok := in.Catalog.Get(*in.CurrentStateID)
	if !ok || def.StaleAfterDays == nil {
		return Alert{}, false
	}
	start := CurrentStateStartDate(in.History, *in.CurrentStateID)
	if start == nil {
		return Alert{}, false
	}
	days := elapsedDays(*start, in.Now)
	if days < *def.StaleAfterDays {
		return Alert{}, false
	}
	return Alert{
		Code:     AlertStale,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("%s for %d days without a response", def.Name, days),
	}, true
}

func stateName(c *StateCatalog, id *uint) string {
	if id == nil {
		return "(none)"
	}
	if s, ok := c.Get(*id); ok {
		return s.Name
	}
	return fmt.Sprintf("#%d", *id)
}
