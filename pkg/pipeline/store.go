package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the persistence collaborator of the engine. Every method is
// scoped to a tenant namespace.
type Repository interface {
	GetSubject(ctx context.Context, namespace string, kind SubjectKind, id uint) (*SubjectRecord, error)
	CreateSubject(ctx context.Context, subject *SubjectRecord) error
	// UpdateSubject writes every mutable field and bumps the version. It fails
	// with ErrConflict when the stored version is not expectedVersion.
	UpdateSubject(ctx context.Context, subject *SubjectRecord, expectedVersion int64) error
	ListSubjectsInStates(ctx context.Context, namespace string, kind SubjectKind, stateIDs []uint) ([]SubjectRecord, error)

	// ListHistory returns a subject's rows ordered by recorded_at DESC, id DESC.
	ListHistory(ctx context.Context, namespace string, subjectID uint, includeVoided bool) ([]HistoryRecord, error)
	GetHistory(ctx context.Context, namespace string, id uint) (*HistoryRecord, error)
	AppendHistory(ctx context.Context, rows []HistoryRecord) error
	VoidHistory(ctx context.Context, namespace string, id uint, by string, at time.Time) error

	// ListStates returns the catalog ordered by (display_order ASC NULLS LAST, id ASC).
	ListStates(ctx context.Context, namespace string, kind SubjectKind, includeInactive bool) ([]StateDefinitionRecord, error)
	CreateState(ctx context.Context, rec *StateDefinitionRecord) error

	// Transaction runs fn inside one atomic unit of work. Any error rolls back
	// every write made through the Repository passed to fn.
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

// GormStore implements Repository on GORM.
type GormStore struct {
	db *gorm.DB
}

var _ Repository = (*GormStore)(nil)

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the engine tables.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&StateDefinitionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate crm_state_definitions: %w", err)
	}
	if err := s.db.AutoMigrate(&SubjectRecord{}); err != nil {
		return fmt.Errorf("auto-migrate crm_subjects: %w", err)
	}
	if err := s.db.AutoMigrate(&HistoryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate crm_history_records: %w", err)
	}
	return nil
}

func normalizeNamespace(ns string) string {
	if ns == "" {
		return "default"
	}
	return ns
}

// GetSubject loads one subject.
func (s *GormStore) GetSubject(ctx context.Context, namespace string, kind SubjectKind, id uint) (*SubjectRecord, error) {
	var rec SubjectRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND kind = ? AND id = ?", normalizeNamespace(namespace), kind, id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("subject", id)
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &rec, nil
}

// CreateSubject inserts a new subject row.
func (s *GormStore) CreateSubject(ctx context.Context, subject *SubjectRecord) error {
	subject.Namespace = normalizeNamespace(subject.Namespace)
	if err := s.db.WithContext(ctx).Create(subject).Error; err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// UpdateSubject writes the subject projection guarded by its version.
func (s *GormStore) UpdateSubject(ctx context.Context, subject *SubjectRecord, expectedVersion int64) error {
	result := s.db.WithContext(ctx).Model(&SubjectRecord{}).
		Where("namespace = ? AND id = ? AND version = ?", normalizeNamespace(subject.Namespace), subject.ID, expectedVersion).
		Updates(map[string]any{
			"current_state_id":          subject.CurrentStateID,
			"committed_target_state_id": subject.CommittedTargetStateID,
			"committed_target_date":     subject.CommittedTargetDate,
			"pending_reason_text":       subject.PendingReasonText,
			"lost_reason_text":          subject.LostReasonText,
			"pending_response_due_date": subject.PendingResponseDueDate,
			"version":                   expectedVersion + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("update subject: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update subject %d at version %d: %w", subject.ID, expectedVersion, ErrConflict)
	}
	subject.Version = expectedVersion + 1
	return nil
}

// ListSubjectsInStates returns the subjects currently in any of the given states.
func (s *GormStore) ListSubjectsInStates(ctx context.Context, namespace string, kind SubjectKind, stateIDs []uint) ([]SubjectRecord, error) {
	if len(stateIDs) == 0 {
		return []SubjectRecord{}, nil
	}
	var recs []SubjectRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND kind = ? AND current_state_id IN ?", normalizeNamespace(namespace), kind, stateIDs).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list subjects in states: %w", err)
	}
	return recs, nil
}

// ListHistory returns a subject's history, newest first.
func (s *GormStore) ListHistory(ctx context.Context, namespace string, subjectID uint, includeVoided bool) ([]HistoryRecord, error) {
	query := s.db.WithContext(ctx).
		Where("namespace = ? AND subject_id = ?", normalizeNamespace(namespace), subjectID)
	if !includeVoided {
		query = query.Where("is_voided = ?", false)
	}
	var rows []HistoryRecord
	if err := query.Order("recorded_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return rows, nil
}

// GetHistory loads one history row.
func (s *GormStore) GetHistory(ctx context.Context, namespace string, id uint) (*HistoryRecord, error) {
	var row HistoryRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND id = ?", normalizeNamespace(namespace), id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("history record", id)
		}
		return nil, fmt.Errorf("get history: %w", err)
	}
	return &row, nil
}

// AppendHistory inserts immutable history rows.
func (s *GormStore) AppendHistory(ctx context.Context, rows []HistoryRecord) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].Namespace = normalizeNamespace(rows[i].Namespace)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// VoidHistory marks a row as retracted. It never touches any other row.
func (s *GormStore) VoidHistory(ctx context.Context, namespace string, id uint, by string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&HistoryRecord{}).
		Where("namespace = ? AND id = ? AND is_voided = ?", normalizeNamespace(namespace), id, false).
		Updates(map[string]any{
			"is_voided": true,
			"voided_at": at,
			"voided_by": by,
		})
	if result.Error != nil {
		return fmt.Errorf("void history: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("active history record", id)
	}
	return nil
}

// ListStates returns a catalog in display order.
func (s *GormStore) ListStates(ctx context.Context, namespace string, kind SubjectKind, includeInactive bool) ([]StateDefinitionRecord, error) {
	query := s.db.WithContext(ctx).
		Where("namespace = ? AND kind = ?", normalizeNamespace(namespace), kind)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var recs []StateDefinitionRecord
	err := query.
		Order("display_order IS NULL").
		Order("display_order ASC").
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	return recs, nil
}

// CreateState adds a state to a catalog.
func (s *GormStore) CreateState(ctx context.Context, rec *StateDefinitionRecord) error {
	rec.Namespace = normalizeNamespace(rec.Namespace)
	if !rec.Category.Valid() {
		return fmt.Errorf("create state: unknown category %q: %w", rec.Category, ErrInvalidRequest)
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create state: %w", err)
	}
	return nil
}

// UpsertStates creates or updates states matched by (namespace, kind, name).
// States are never removed; an entry marked inactive is deactivated.
func (s *GormStore) UpsertStates(ctx context.Context, namespace string, kind SubjectKind, seeds []StateSeed) error {
	if len(seeds) == 0 {
		return nil
	}
	ns := normalizeNamespace(namespace)
	seen := make(map[string]bool, len(seeds))
	recs := make([]StateDefinitionRecord, 0, len(seeds))
	for _, seed := range seeds {
		if seen[seed.Name] {
			return fmt.Errorf("state %q listed twice: %w", seed.Name, ErrInvalidRequest)
		}
		seen[seed.Name] = true
		category := seed.Category
		if category == "" {
			category = CategoryNormal
		}
		recs = append(recs, StateDefinitionRecord{
			Namespace:      ns,
			Kind:           kind,
			Name:           seed.Name,
			DisplayOrder:   seed.DisplayOrder,
			Category:       category,
			IsActive:       !seed.Inactive,
			Checkpoint:     seed.Checkpoint,
			StaleAfterDays: seed.StaleAfterDays,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "namespace"}, {Name: "kind"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_order", "category", "is_active", "checkpoint", "stale_after_days", "updated_at",
		}),
	}).Create(&recs).Error
	if err != nil {
		return fmt.Errorf("upsert states: %w", err)
	}
	return nil
}

// Transaction runs fn in a GORM transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
