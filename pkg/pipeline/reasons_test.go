package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_UpdateReasons(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubject(t, "Acme", Proposal{StateID: stHearing})
	require.True(t, env.apply(t, id, Proposal{StateID: stOnHold, OutcomeReason: "waiting for budget", PendingResponseDueDate: day(2026, 3, 31)}, false).Success)
	before := env.history(t, id, true)

	res, err := env.engine.UpdateReasons(t.Context(), ReasonUpdateRequest{
		Namespace:              "default",
		Kind:                   KindPipeline,
		SubjectID:              id,
		PendingReasonText:      "waiting for budget approval in April",
		PendingResponseDueDate: day(2026, 4, 15),
		Actor:                  strPtr("kato"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Events, 2)

	rows := env.history(t, id, true)
	require.Len(t, rows, len(before)+2)
	added := rows[:2]
	for _, r := range added {
		assert.Equal(t, EventReasonUpdated, r.EventType)
		assert.Equal(t, stOnHold, *r.ToStateID)
		assert.Equal(t, "kato", *r.ChangedBy)
	}
	// Newest first: the due date row was inserted last.
	assert.Equal(t, SubTypePendingResponseDueDate, *added[0].SubType)
	assert.Equal(t, "2026-04-15", *added[0].Note)
	assert.Equal(t, SubTypePendingReason, *added[1].SubType)
	assert.Equal(t, "waiting for budget approval in April", *added[1].Note)
	assert.Equal(t, added[0].CorrelationID, added[1].CorrelationID)

	subj := env.subject(t, id)
	assert.Equal(t, stOnHold, *subj.CurrentStateID)
	assert.Equal(t, "waiting for budget approval in April", subj.PendingReasonText)
	assert.Equal(t, "2026-04-15", subj.PendingResponseDueDate.Format(time.DateOnly))
}

func TestEngine_UpdateReasons_NoChange(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubject(t, "Acme", Proposal{StateID: stHearing})
	require.True(t, env.apply(t, id, Proposal{StateID: stLost, OutcomeReason: "price"}, false).Success)
	before := env.history(t, id, true)

	res, err := env.engine.UpdateReasons(t.Context(), ReasonUpdateRequest{
		Namespace:      "default",
		Kind:           KindPipeline,
		SubjectID:      id,
		LostReasonText: "price",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
	assert.Equal(t, before, env.history(t, id, true))
}

func TestEngine_UpdateReasons_ClearingIsAChange(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubject(t, "Acme", Proposal{StateID: stHearing})
	require.True(t, env.apply(t, id, Proposal{StateID: stLost, OutcomeReason: "price"}, false).Success)

	res, err := env.engine.UpdateReasons(t.Context(), ReasonUpdateRequest{Namespace: "default", Kind: KindPipeline, SubjectID: id})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.History, 1)
	assert.Equal(t, SubTypeLostReason, *res.History[0].SubType)
	assert.Nil(t, res.History[0].Note)
	assert.Equal(t, DefaultSystemActor, *res.History[0].ChangedBy)
	assert.Empty(t, env.subject(t, id).LostReasonText)
}

func TestEngine_PatchReasons(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubject(t, "Acme", Proposal{StateID: stHearing})
	require.True(t, env.apply(t, id, Proposal{StateID: stOnHold, OutcomeReason: "waiting for budget", PendingResponseDueDate: day(2026, 3, 31)}, false).Success)

	res, err := env.engine.PatchReasons(t.Context(), ReasonPatch{
		Namespace:      "default",
		Kind:           KindPipeline,
		SubjectID:      id,
		LostReasonText: strPtr("competitor pricing"),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.History, 1)
	assert.Equal(t, SubTypeLostReason, *res.History[0].SubType)

	subj := env.subject(t, id)
	assert.Equal(t, "waiting for budget", subj.PendingReasonText)
	assert.Equal(t, "competitor pricing", subj.LostReasonText)
	assert.Equal(t, "2026-03-31", subj.PendingResponseDueDate.Format(time.DateOnly))

	res, err = env.engine.PatchReasons(t.Context(), ReasonPatch{
		Namespace:                 "default",
		Kind:                      KindPipeline,
		SubjectID:                 id,
		SetPendingResponseDueDate: true,
	})
	require.NoError(t, err)
	require.Len(t, res.History, 1)
	assert.Equal(t, SubTypePendingResponseDueDate, *res.History[0].SubType)
	assert.Nil(t, env.subject(t, id).PendingResponseDueDate)
	assert.Equal(t, "waiting for budget", env.subject(t, id).PendingReasonText)

	res, err = env.engine.PatchReasons(t.Context(), ReasonPatch{Namespace: "default", Kind: KindPipeline, SubjectID: id})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)
}

func TestEngine_UpdateReasons_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.UpdateReasons(t.Context(), ReasonUpdateRequest{Namespace: "default", Kind: KindPipeline, SubjectID: 42, LostReasonText: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ReasonRowsAreExcludedFromStatistics(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSubject(t, "Acme", Proposal{StateID: stHearing})
	_, err := env.engine.UpdateReasons(t.Context(), ReasonUpdateRequest{Namespace: "default", Kind: KindPipeline, SubjectID: id, PendingReasonText: "note"})
	require.NoError(t, err)

	st, err := env.engine.Statistics(t.Context(), "default", KindPipeline, id)
	require.NoError(t, err)
	assert.Equal(t, Statistics{
		CurrentStateStartDate: st.CurrentStateStartDate,
	}, *st)
	require.NotNil(t, st.CurrentStateStartDate)
	assert.True(t, st.CurrentStateStartDate.Equal(testNow))
}
