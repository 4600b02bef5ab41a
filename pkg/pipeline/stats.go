package pipeline

import (
	"math"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Statistics is derived from a subject's non-voided history.
type Statistics struct {
	AchievedCount         int        `json:"achievedCount"`
	CancelledCount        int        `json:"cancelledCount"`
	AchievementRate       int        `json:"achievementRate"`
	BackCount             int        `json:"backCount"`
	CurrentStateDwellDays int        `json:"currentStateDwellDays"`
	CurrentStateStartDate *time.Time `json:"currentStateStartDate,omitempty"`
	LastCommitmentDate    *time.Time `json:"lastCommitmentDate,omitempty"`
}

// StatisticsInput is the history of one subject plus what it is measured against.
type StatisticsInput struct {
	History        []HistoryRecord
	CurrentStateID *uint
	Excluded       mapset.Set[EventType]
	Now            time.Time
}

// ComputeStatistics reconstructs funnel counts and dwell time. Excluded event
// types are dropped from the counts only; the current-state start date is
// taken from every non-voided state-occupying row.
func ComputeStatistics(in StatisticsInput) Statistics {
	var st Statistics
	for _, h := range in.History {
		if h.IsVoided {
			continue
		}
		if in.Excluded != nil && in.Excluded.Contains(h.EventType) {
			continue
		}
		switch h.EventType {
		case EventAchieved:
			st.AchievedCount++
		case EventCancelled, EventRecommitted:
			st.CancelledCount++
		case EventBack:
			st.BackCount++
		case EventCreated, EventProgress, EventWon, EventLost, EventSuspended,
			EventResumed, EventRevived, EventReopened, EventCommitted, EventReasonUpdated:
		}
	}
	st.AchievementRate = AchievementRate(st.AchievedCount, st.CancelledCount)

	if in.CurrentStateID != nil {
		st.CurrentStateStartDate = CurrentStateStartDate(in.History, *in.CurrentStateID)
		if st.CurrentStateStartDate != nil {
			st.CurrentStateDwellDays = elapsedDays(*st.CurrentStateStartDate, in.Now)
		}
	}
	st.LastCommitmentDate = LastCommitmentDate(in.History)
	return st
}

// AchievementRate is achieved / (achieved + cancelled) as a rounded percentage,
// 0 when nothing has been decided yet.
func AchievementRate(achieved, cancelled int) int {
	total := achieved + cancelled
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(achieved) / float64(total) * 100))
}

// CurrentStateStartDate returns when the subject most recently entered stateID.
func CurrentStateStartDate(history []HistoryRecord, stateID uint) *time.Time {
	var latest *HistoryRecord
	for i := range history {
		h := &history[i]
		if h.IsVoided || !h.EventType.OccupiesState() || h.ToStateID == nil || *h.ToStateID != stateID {
			continue
		}
		if latest == nil || newerThan(h, latest) {
			latest = h
		}
	}
	if latest == nil {
		return nil
	}
	t := latest.RecordedAt
	return &t
}

// LastCommitmentDate returns when a target was last promised.
func LastCommitmentDate(history []HistoryRecord) *time.Time {
	var latest *HistoryRecord
	for i := range history {
		h := &history[i]
		if h.IsVoided || (h.EventType != EventCommitted && h.EventType != EventRecommitted) {
			continue
		}
		if latest == nil || newerThan(h, latest) {
			latest = h
		}
	}
	if latest == nil {
		return nil
	}
	t := latest.RecordedAt
	return &t
}

func newerThan(a, b *HistoryRecord) bool {
	if a.RecordedAt.Equal(b.RecordedAt) {
		return a.ID > b.ID
	}
	return a.RecordedAt.After(b.RecordedAt)
}

func elapsedDays(since, now time.Time) int {
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Hours() / 24))
}
