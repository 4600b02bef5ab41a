package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func appendEvent(t *testing.T, store *Store, ns, actor, action, outcome string, at time.Time) *EventRecord {
	t.Helper()
	rec := &EventRecord{
		ID:         fmt.Sprintf("evt-%s-%d", ns, at.Unix()),
		Namespace:  ns,
		Actor:      actor,
		Method:     "POST",
		Path:       "/api/crm/v1/pipeline/subjects",
		Action:     action,
		Outcome:    outcome,
		StatusCode: 201,
		CreatedAt:  at,
	}
	require.NoError(t, store.Append(t.Context(), rec))
	return rec
}

func TestStore_ListPagesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	for i := range 5 {
		appendEvent(t, store, "default", "sato", "transition", OutcomeSuccess, baseTime.Add(time.Duration(i)*time.Minute))
	}
	appendEvent(t, store, "other", "sato", "transition", OutcomeSuccess, baseTime)

	page, next, total, err := store.List(t.Context(), ListFilter{Namespace: "default"}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, baseTime.Add(4*time.Minute), page[0].CreatedAt.UTC())
	require.NotEmpty(t, next)

	ids := map[string]bool{page[0].ID: true, page[1].ID: true}
	for token := next; token != ""; {
		var rest []EventRecord
		rest, token, _, err = store.List(t.Context(), ListFilter{Namespace: "default"}, 2, token)
		require.NoError(t, err)
		for _, rec := range rest {
			ids[rec.ID] = true
		}
	}
	assert.Len(t, ids, 5)
}

func TestStore_ListPagesThroughEqualTimestamps(t *testing.T) {
	store := newTestStore(t)
	for i := range 5 {
		require.NoError(t, store.Append(t.Context(), &EventRecord{
			ID:        fmt.Sprintf("evt-%d", i),
			Namespace: "default",
			Actor:     "sato",
			Action:    "transition",
			Outcome:   OutcomeSuccess,
			CreatedAt: baseTime,
		}))
	}

	var ids []string
	token := ""
	for {
		page, next, _, err := store.List(t.Context(), ListFilter{Namespace: "default"}, 2, token)
		require.NoError(t, err)
		for _, rec := range page {
			ids = append(ids, rec.ID)
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.Equal(t, []string{"evt-4", "evt-3", "evt-2", "evt-1", "evt-0"}, ids)
}

func TestParsePageToken(t *testing.T) {
	cursor := PageCursor{CreatedAt: baseTime, ID: "evt-1"}
	got, err := ParsePageToken(cursor.String())
	require.NoError(t, err)
	assert.True(t, baseTime.Equal(got.CreatedAt))
	assert.Equal(t, "evt-1", got.ID)

	for _, token := range []string{"yesterday", "bm9waXBl", baseTime.Format(time.RFC3339Nano)} {
		_, err := ParsePageToken(token)
		assert.Error(t, err, token)
	}
}

func TestStore_ListFilters(t *testing.T) {
	store := newTestStore(t)
	appendEvent(t, store, "default", "sato", "transition", OutcomeSuccess, baseTime)
	appendEvent(t, store, "default", "sato", "transition", OutcomeBlocked, baseTime.Add(time.Minute))
	appendEvent(t, store, "default", "tanaka", "create-subject", OutcomeSuccess, baseTime.Add(2*time.Minute))

	recs, _, total, err := store.List(t.Context(), ListFilter{Namespace: "default", Actor: "sato"}, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, recs, 2)

	recs, _, _, err = store.List(t.Context(), ListFilter{Namespace: "default", Outcome: OutcomeBlocked}, 0, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sato", recs[0].Actor)

	recs, _, _, err = store.List(t.Context(), ListFilter{Namespace: "default", Action: "create-subject"}, 0, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tanaka", recs[0].Actor)

	_, _, _, err = store.List(t.Context(), ListFilter{Namespace: "default"}, 0, "yesterday")
	assert.ErrorContains(t, err, "invalid page token")
}

func TestStore_GetScopedToNamespace(t *testing.T) {
	store := newTestStore(t)
	rec := appendEvent(t, store, "default", "sato", "transition", OutcomeSuccess, baseTime)

	got, err := store.Get(t.Context(), "default", rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "transition", got.Action)

	got, err = store.Get(t.Context(), "other", rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_DeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	appendEvent(t, store, "default", "sato", "transition", OutcomeSuccess, baseTime.Add(-48*time.Hour))
	appendEvent(t, store, "default", "sato", "transition", OutcomeSuccess, baseTime)

	deleted, err := store.DeleteOlderThan(t.Context(), baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = store.DeleteOlderThan(t.Context(), baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
