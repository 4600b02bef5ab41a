package pipeline

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// State ids of testCatalog.
const (
	stLead     uint = 1
	stHearing  uint = 2
	stProposal uint = 3
	stContract uint = 4
	stOnHold   uint = 5
	stWon      uint = 6
	stLost     uint = 7
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func uintPtr(v uint) *uint { return &v }

func strPtr(v string) *string { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func testDefinitions() []StateDefinition {
	return []StateDefinition{
		{ID: stLead, Name: "Lead", DisplayOrder: intPtr(1), Category: CategoryNormal, IsActive: true},
		{ID: stHearing, Name: "Hearing", DisplayOrder: intPtr(2), Category: CategoryNormal, IsActive: true},
		{ID: stProposal, Name: "Proposal", DisplayOrder: intPtr(3), Category: CategoryNormal, IsActive: true},
		{ID: stContract, Name: "Contract review", DisplayOrder: intPtr(4), Category: CategoryNormal, IsActive: true, Checkpoint: true},
		{ID: stOnHold, Name: "On hold", DisplayOrder: intPtr(5), Category: CategoryPending, IsActive: true, StaleAfterDays: intPtr(14)},
		{ID: stWon, Name: "Won", DisplayOrder: intPtr(6), Category: CategoryWon, IsActive: true},
		{ID: stLost, Name: "Lost", DisplayOrder: intPtr(7), Category: CategoryLost, IsActive: true},
	}
}

func testCatalog() *StateCatalog {
	return NewStateCatalog(testDefinitions())
}

// newTestDB creates an in-memory SQLite DB with the engine tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, NewGormStore(db).AutoMigrate())
	return db
}

// seedTestCatalog inserts testDefinitions for kind in ns, in id order.
func seedTestCatalog(t *testing.T, store *GormStore, ns string, kind SubjectKind) {
	t.Helper()
	for _, def := range testDefinitions() {
		rec := &StateDefinitionRecord{
			Namespace:      ns,
			Kind:           kind,
			Name:           def.Name,
			DisplayOrder:   def.DisplayOrder,
			Category:       def.Category,
			IsActive:       true,
			Checkpoint:     def.Checkpoint,
			StaleAfterDays: def.StaleAfterDays,
		}
		require.NoError(t, store.CreateState(t.Context(), rec))
		require.Equal(t, def.ID, rec.ID)
	}
}

type testEnv struct {
	db     *gorm.DB
	store  *GormStore
	engine *Engine
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	db := newTestDB(t)
	store := NewGormStore(db)
	seedTestCatalog(t, store, "default", KindPipeline)
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return &testEnv{
		db:     db,
		store:  store,
		engine: NewEngine(store, nil, opts...),
	}
}

// createSubject creates a pipeline subject at stateID and returns its id.
func (e *testEnv) createSubject(t *testing.T, name string, prop Proposal) uint {
	t.Helper()
	res, err := e.engine.CreateSubject(t.Context(), CreateSubjectRequest{
		Namespace: "default",
		Kind:      KindPipeline,
		Name:      name,
		Proposal:  prop,
		Actor:     strPtr("tester"),
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	return res.Subject.ID
}

func (e *testEnv) subject(t *testing.T, id uint) *SubjectRecord {
	t.Helper()
	s, err := e.store.GetSubject(t.Context(), "default", KindPipeline, id)
	require.NoError(t, err)
	return s
}

func (e *testEnv) history(t *testing.T, id uint, includeVoided bool) []HistoryRecord {
	t.Helper()
	rows, err := e.store.ListHistory(t.Context(), "default", id, includeVoided)
	require.NoError(t, err)
	return rows
}

func eventTypes(events []DetectedEvent) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func rowTypes(rows []HistoryRecord) []EventType {
	out := make([]EventType, len(rows))
	for i, r := range rows {
		out[i] = r.EventType
	}
	return out
}

func alertCodes(alerts []Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Code
	}
	return out
}
