package pipeline

import "time"

// DetectInput is everything the detector needs. Now anchors date comparisons.
type DetectInput struct {
	Previous Snapshot
	Proposed Proposal
	Catalog  *StateCatalog
	Now      time.Time
}

// DetectEvents classifies the difference between the stored and the proposed
// position of a subject into an ordered list of semantic events: at most one
// state-change event followed by at most one commitment event.
func DetectEvents(in DetectInput) DetectionResult {
	prev, prop := in.Previous, in.Proposed

	stateChanged := prev.StateID == nil || *prev.StateID != prop.StateID
	targetChanged := !uintPtrEqual(prev.TargetStateID, prop.TargetStateID) ||
		!dateEqual(prev.TargetDate, prop.TargetDate)

	if !stateChanged && !targetChanged {
		return DetectionResult{Events: []DetectedEvent{}, HasChanges: false}
	}

	events := make([]DetectedEvent, 0, 2)
	to := prop.StateID

	if stateChanged {
		if prev.StateID == nil {
			events = append(events, DetectedEvent{Type: EventCreated, ToStateID: &to})
		} else {
			from := *prev.StateID
			ev := DetectedEvent{
				Type:        classifyStateChange(in.Catalog, from, to, prev.TargetStateID),
				FromStateID: &from,
				ToStateID:   &to,
			}
			switch ev.Type {
			case EventLost, EventSuspended:
				ev.OutcomeReason = prop.OutcomeReason
			}
			events = append(events, ev)
		}
	}

	if targetChanged {
		// A commitment fulfilled by this very call is closed, not replaced.
		achievedPrior := stateChanged && prev.TargetStateID != nil && *prev.TargetStateID == prop.StateID
		priorOpen := (prev.TargetStateID != nil || prev.TargetDate != nil) && !achievedPrior
		proposedOpen := prop.TargetStateID != nil || prop.TargetDate != nil

		switch {
		case proposedOpen && priorOpen:
			events = append(events, DetectedEvent{
				Type:        EventRecommitted,
				FromStateID: prev.TargetStateID,
				ToStateID:   prop.TargetStateID,
				TargetDate:  prop.TargetDate,
				SubType:     recommitSubType(prev.TargetDate, in.Now),
			})
		case proposedOpen:
			events = append(events, DetectedEvent{
				Type:       EventCommitted,
				ToStateID:  prop.TargetStateID,
				TargetDate: prop.TargetDate,
				SubType:    SubTypeInitial,
			})
		case priorOpen:
			events = append(events, DetectedEvent{
				Type:        EventCancelled,
				FromStateID: prev.TargetStateID,
				TargetDate:  prev.TargetDate,
			})
		}
	}

	return DetectionResult{Events: events, HasChanges: len(events) > 0}
}

// classifyStateChange maps an (origin, destination) pair to its event type.
// Terminal destinations win over everything; leaving a terminal state is
// always a re-open; catalog order is the fallback for plain moves.
func classifyStateChange(catalog *StateCatalog, from, to uint, priorTarget *uint) EventType {
	fromCat, toCat := catalog.Category(from), catalog.Category(to)

	switch toCat {
	case CategoryWon:
		return EventWon
	case CategoryLost:
		return EventLost
	}
	switch fromCat {
	case CategoryLost:
		return EventRevived
	case CategoryWon:
		return EventReopened
	}
	if toCat == CategoryPending && fromCat != CategoryPending {
		return EventSuspended
	}
	if fromCat == CategoryPending && toCat == CategoryNormal {
		return EventResumed
	}
	if def, ok := catalog.Get(to); ok && def.Checkpoint {
		return EventAchieved
	}
	if priorTarget != nil && *priorTarget == to {
		return EventAchieved
	}
	if catalog.Compare(to, from) < 0 {
		return EventBack
	}
	return EventProgress
}

func recommitSubType(priorDate *time.Time, now time.Time) string {
	if priorDate != nil && dateOnly(*priorDate).Before(dateOnly(now)) {
		return SubTypeMissed
	}
	return SubTypeRevised
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// dateEqual compares two optional business dates by calendar day.
func dateEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return dateOnly(*a).Equal(dateOnly(*b))
}

// dateOnly truncates t to its UTC calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
