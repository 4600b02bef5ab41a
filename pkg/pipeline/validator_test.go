package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validate(prev Snapshot, prop Proposal, history []HistoryRecord, requireLostReason bool) ValidationResult {
	catalog := testCatalog()
	det := DetectEvents(DetectInput{Previous: prev, Proposed: prop, Catalog: catalog, Now: testNow})
	return ValidateTransition(ValidateInput{
		Previous:          prev,
		Proposed:          prop,
		Catalog:           catalog,
		Detection:         det,
		History:           history,
		Now:               testNow,
		RequireLostReason: requireLostReason,
	})
}

func TestValidateTransition_ReopenNeedsNote(t *testing.T) {
	prev := Snapshot{StateID: uintPtr(stLost)}

	for _, note := range []string{"", "   \t"} {
		res := validate(prev, Proposal{StateID: stHearing, Note: note}, nil, true)
		assert.False(t, res.IsValid, "note %q", note)
		assert.False(t, res.HasErrors)
		assert.True(t, res.HasWarnings)
		require.Len(t, res.Alerts, 1)
		assert.Equal(t, AlertReopenRequiresNote, res.Alerts[0].Code)
		assert.True(t, res.Alerts[0].RequiresNote)
	}

	res := validate(prev, Proposal{StateID: stHearing, Note: "customer came back after the merger"}, nil, true)
	assert.True(t, res.IsValid)
	assert.True(t, res.HasWarnings)
}

func TestValidateTransition_ReopenFromWon(t *testing.T) {
	res := validate(Snapshot{StateID: uintPtr(stWon)}, Proposal{StateID: stContract}, nil, true)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{AlertReopenRequiresNote}, alertCodes(res.Alerts))
	assert.Contains(t, res.Alerts[0].Message, "Won")
}

func TestValidateTransition_LostReason(t *testing.T) {
	prev := Snapshot{StateID: uintPtr(stHearing)}

	res := validate(prev, Proposal{StateID: stLost}, nil, true)
	assert.False(t, res.IsValid)
	assert.True(t, res.HasErrors)
	assert.Equal(t, []string{AlertLostReasonMissing}, alertCodes(res.Alerts))

	res = validate(prev, Proposal{StateID: stLost, OutcomeReason: "budget frozen"}, nil, true)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Alerts)

	res = validate(prev, Proposal{StateID: stLost}, nil, false)
	assert.True(t, res.IsValid)
}

func TestValidateTransition_Commitments(t *testing.T) {
	tests := []struct {
		name      string
		prev      Snapshot
		prop      Proposal
		wantCodes []string
		wantValid bool
	}{
		{
			name:      "target state without a date",
			prev:      Snapshot{StateID: uintPtr(stLead)},
			prop:      Proposal{StateID: stLead, TargetStateID: uintPtr(stProposal)},
			wantCodes: []string{AlertTargetIncomplete},
		},
		{
			name:      "date without a target state",
			prev:      Snapshot{StateID: uintPtr(stLead)},
			prop:      Proposal{StateID: stLead, TargetDate: day(2026, 4, 1)},
			wantCodes: []string{AlertTargetIncomplete},
		},
		{
			name:      "target behind the current state",
			prev:      Snapshot{StateID: uintPtr(stProposal)},
			prop:      Proposal{StateID: stProposal, TargetStateID: uintPtr(stHearing), TargetDate: day(2026, 4, 1)},
			wantCodes: []string{AlertTargetNotAhead},
			wantValid: true,
		},
		{
			name:      "target date in the past",
			prev:      Snapshot{StateID: uintPtr(stLead)},
			prop:      Proposal{StateID: stLead, TargetStateID: uintPtr(stProposal), TargetDate: day(2026, 3, 9)},
			wantCodes: []string{AlertTargetDateInPast},
			wantValid: true,
		},
		{
			name:      "an unchanged overdue commitment is not rechecked",
			prev:      Snapshot{StateID: uintPtr(stLead), TargetStateID: uintPtr(stProposal), TargetDate: day(2026, 3, 1)},
			prop:      Proposal{StateID: stHearing, TargetStateID: uintPtr(stProposal), TargetDate: day(2026, 3, 1)},
			wantCodes: []string{},
			wantValid: true,
		},
		{
			name:      "valid commitment",
			prev:      Snapshot{StateID: uintPtr(stLead)},
			prop:      Proposal{StateID: stHearing, TargetStateID: uintPtr(stProposal), TargetDate: day(2026, 4, 1)},
			wantCodes: []string{},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validate(tt.prev, tt.prop, nil, true)
			assert.Equal(t, tt.wantCodes, alertCodes(res.Alerts))
			assert.Equal(t, tt.wantValid, res.IsValid)
		})
	}
}

func TestValidateTransition_InformationalAlerts(t *testing.T) {
	t.Run("moving back", func(t *testing.T) {
		res := validate(Snapshot{StateID: uintPtr(stProposal)}, Proposal{StateID: stLead}, nil, true)
		assert.True(t, res.IsValid)
		require.Len(t, res.Alerts, 1)
		assert.Equal(t, AlertMovedBack, res.Alerts[0].Code)
		assert.Equal(t, SeverityInfo, res.Alerts[0].Severity)
	})

	t.Run("suspended without a response date", func(t *testing.T) {
		res := validate(Snapshot{StateID: uintPtr(stHearing)}, Proposal{StateID: stOnHold}, nil, true)
		assert.Equal(t, []string{AlertResponseDueDateUnset}, alertCodes(res.Alerts))

		res = validate(Snapshot{StateID: uintPtr(stHearing)}, Proposal{StateID: stOnHold, PendingResponseDueDate: day(2026, 3, 31)}, nil, true)
		assert.Empty(t, res.Alerts)
	})

	t.Run("missed commitment counts earlier misses", func(t *testing.T) {
		history := []HistoryRecord{
			{ID: 1, EventType: EventRecommitted, SubType: strPtr(SubTypeMissed)},
			{ID: 2, EventType: EventRecommitted, SubType: strPtr(SubTypeMissed), IsVoided: true},
			{ID: 3, EventType: EventRecommitted, SubType: strPtr(SubTypeRevised)},
		}
		res := validate(
			Snapshot{StateID: uintPtr(stHearing), TargetStateID: uintPtr(stProposal), TargetDate: day(2026, 3, 1)},
			Proposal{StateID: stHearing, TargetStateID: uintPtr(stProposal), TargetDate: day(2026, 3, 20)},
			history, true)
		require.Equal(t, []string{AlertCommitmentMissed}, alertCodes(res.Alerts))
		assert.Contains(t, res.Alerts[0].Message, "1 missed before")
	})
}

func TestValidateTransition_SortsBySeverity(t *testing.T) {
	// back (INFO) + incomplete commitment (ERROR)
	res := validate(Snapshot{StateID: uintPtr(stProposal)}, Proposal{StateID: stLead, TargetStateID: uintPtr(stContract)}, nil, true)
	assert.Equal(t, []string{AlertTargetIncomplete, AlertMovedBack}, alertCodes(res.Alerts))
	assert.False(t, res.IsValid)
}

func TestValidateTransition_NoChanges(t *testing.T) {
	res := validate(Snapshot{StateID: uintPtr(stLead)}, Proposal{StateID: stLead}, nil, true)
	assert.True(t, res.IsValid)
	assert.NotNil(t, res.Alerts)
	assert.Empty(t, res.Alerts)
}

func TestValidationResult_BlockingMessage(t *testing.T) {
	res := ValidationResult{Alerts: []Alert{
		{Code: "A", Severity: SeverityError, Message: "first"},
		{Code: "B", Severity: SeverityError, Message: "second"},
		{Code: "C", Severity: SeverityWarning, Message: "needs note", RequiresNote: true},
	}}
	assert.Equal(t, "first; second", res.BlockingMessage())

	res = ValidationResult{Alerts: []Alert{
		{Code: "C", Severity: SeverityWarning, Message: "needs note", RequiresNote: true},
		{Code: "D", Severity: SeverityInfo, Message: "fyi"},
	}}
	assert.Equal(t, "needs note", res.BlockingMessage())
}

func TestStalenessAlert(t *testing.T) {
	catalog := testCatalog()
	entered := func(daysAgo int) []HistoryRecord {
		return []HistoryRecord{{
			ID:         1,
			EventType:  EventSuspended,
			ToStateID:  uintPtr(stOnHold),
			RecordedAt: testNow.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		}}
	}

	alert, ok := StalenessAlert(StalenessInput{CurrentStateID: uintPtr(stOnHold), Catalog: catalog, History: entered(20), Now: testNow})
	require.True(t, ok)
	assert.Equal(t, AlertStale, alert.Code)
	assert.Equal(t, SeverityWarning, alert.Severity)
	assert.Contains(t, alert.Message, "20 days")

	_, ok = StalenessAlert(StalenessInput{CurrentStateID: uintPtr(stOnHold), Catalog: catalog, History: entered(14), Now: testNow})
	assert.True(t, ok)

	_, ok = StalenessAlert(StalenessInput{CurrentStateID: uintPtr(stOnHold), Catalog: catalog, History: entered(13), Now: testNow})
	assert.False(t, ok)

	_, ok = StalenessAlert(StalenessInput{CurrentStateID: uintPtr(stHearing), Catalog: catalog, History: entered(40), Now: testNow})
	assert.False(t, ok, "state without a threshold")

	_, ok = StalenessAlert(StalenessInput{Catalog: catalog, Now: testNow})
	assert.False(t, ok)
}
