package audit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is the append-only audit event table.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the audit table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&EventRecord{})
}

// Append creates a new immutable audit event record.
func (s *Store) Append(ctx context.Context, event *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListFilter narrows List. Namespace is required; empty fields match all.
type ListFilter struct {
	Namespace string
	Actor     string
	Action    string
	Outcome   string
}

func (f ListFilter) apply(q *gorm.DB) *gorm.DB {
	q = q.Where("namespace = ?", f.Namespace)
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Outcome != "" {
		q = q.Where("outcome = ?", f.Outcome)
	}
	return q
}

// PageCursor is the position after the last event of a page. Events are
// ordered by creation time and then id, both descending.
type PageCursor struct {
	CreatedAt time.Time
	ID        string
}

// String encodes the cursor as an opaque page token.
func (c PageCursor) String() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParsePageToken decodes a token produced by PageCursor.String.
func ParsePageToken(token string) (PageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return PageCursor{}, fmt.Errorf("invalid page token: %w", err)
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return PageCursor{}, errors.New("invalid page token: missing event id")
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return PageCursor{}, fmt.Errorf("invalid page token: %w", err)
	}
	return PageCursor{CreatedAt: t, ID: id}, nil
}

// List returns a page of events, newest first. pageToken is the token
// returned with the previous page.
func (s *Store) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var total int64
	if err := filter.apply(s.db.WithContext(ctx).Model(&EventRecord{})).Count(&total).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := filter.apply(s.db.WithContext(ctx)).Order("created_at DESC, id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		cursor, err := ParsePageToken(pageToken)
		if err != nil {
			return nil, "", 0, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var next string
	if len(records) > pageSize {
		last := records[pageSize-1]
		next = PageCursor{CreatedAt: last.CreatedAt, ID: last.ID}.String()
		records = records[:pageSize]
	}
	return records, next, int(total), nil
}

// Get returns the event with id in namespace, or nil when there is none.
func (s *Store) Get(ctx context.Context, namespace, id string) (*EventRecord, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Where("namespace = ? AND id = ?", namespace, id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &rec, nil
}

// DeleteOlderThan deletes events created before cutoff and returns how many.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
