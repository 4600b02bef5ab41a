package pipeline

import (
	"time"
)

// StateDefinitionRecord is the GORM model for one catalog state.
type StateDefinitionRecord struct {
	ID             uint          `gorm:"primaryKey;column:id;autoIncrement"`
	Namespace      string        `gorm:"column:namespace;uniqueIndex:idx_state_ns_kind_name,priority:1;default:default;not null"`
	Kind           SubjectKind   `gorm:"column:kind;uniqueIndex:idx_state_ns_kind_name,priority:2;type:varchar(32);not null"`
	Name           string        `gorm:"column:name;uniqueIndex:idx_state_ns_kind_name,priority:3;type:varchar(255);not null"`
	DisplayOrder   *int          `gorm:"column:display_order"`
	Category       StateCategory `gorm:"column:category;type:varchar(16);default:normal;not null"`
	IsActive       bool          `gorm:"column:is_active;not null"`
	Checkpoint     bool          `gorm:"column:checkpoint;default:false;not null"`
	StaleAfterDays *int          `gorm:"column:stale_after_days"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (StateDefinitionRecord) TableName() string { return "crm_state_definitions" }

// Definition converts the record to its catalog form.
func (r StateDefinitionRecord) Definition() StateDefinition {
	return StateDefinition{
		ID:             r.ID,
		Name:           r.Name,
		DisplayOrder:   r.DisplayOrder,
		Category:       r.Category,
		IsActive:       r.IsActive,
		Checkpoint:     r.Checkpoint,
		StaleAfterDays: r.StaleAfterDays,
	}
}

// SubjectRecord stores the current projection of a subject's history.
// It is written only by the engine.
type SubjectRecord struct {
	ID                     uint        `gorm:"primaryKey;column:id;autoIncrement"`
	Namespace              string      `gorm:"column:namespace;index:idx_subject_ns_kind_state,priority:1;default:default;not null"`
	Kind                   SubjectKind `gorm:"column:kind;index:idx_subject_ns_kind_state,priority:2;type:varchar(32);not null"`
	Name                   string      `gorm:"column:name;not null"`
	CurrentStateID         *uint       `gorm:"column:current_state_id;index:idx_subject_ns_kind_state,priority:3"`
	CommittedTargetStateID *uint       `gorm:"column:committed_target_state_id"`
	CommittedTargetDate    *time.Time  `gorm:"column:committed_target_date"`
	PendingReasonText      string      `gorm:"column:pending_reason_text;type:text"`
	LostReasonText         string      `gorm:"column:lost_reason_text;type:text"`
	PendingResponseDueDate *time.Time  `gorm:"column:pending_response_due_date"`
	Version                int64       `gorm:"column:version;default:0;not null"`
	CreatedAt              time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (SubjectRecord) TableName() string { return "crm_subjects" }

// Snapshot returns the subject's position as the detector sees it.
func (r SubjectRecord) Snapshot() Snapshot {
	return Snapshot{
		StateID:       r.CurrentStateID,
		TargetStateID: r.CommittedTargetStateID,
		TargetDate:    r.CommittedTargetDate,
	}
}

// HistoryRecord is an append-only audit row. Rows are never deleted; undo
// sets IsVoided.
type HistoryRecord struct {
	ID               uint       `gorm:"primaryKey;column:id;autoIncrement"`
	CorrelationID    string     `gorm:"column:correlation_id;type:varchar(36);index"`
	Namespace        string     `gorm:"column:namespace;default:default;not null"`
	SubjectID        uint       `gorm:"column:subject_id;index:idx_history_subject_time,priority:1;not null"`
	EventType        EventType  `gorm:"column:event_type;type:varchar(32);not null"`
	FromStateID      *uint      `gorm:"column:from_state_id"`
	ToStateID        *uint      `gorm:"column:to_state_id"`
	TargetDate       *time.Time `gorm:"column:target_date"`
	RecordedAt       time.Time  `gorm:"column:recorded_at;index:idx_history_subject_time,priority:2;not null"`
	ChangedBy        *string    `gorm:"column:changed_by"`
	Note             *string    `gorm:"column:note;type:text"`
	NoteAcknowledged bool       `gorm:"column:note_acknowledged;default:false;not null"`
	OutcomeReason    *string    `gorm:"column:outcome_reason;type:text"`
	SubType          *string    `gorm:"column:sub_type;type:varchar(32)"`
	IsVoided         bool       `gorm:"column:is_voided;default:false;not null"`
	VoidedAt         *time.Time `gorm:"column:voided_at"`
	VoidedBy         *string    `gorm:"column:voided_by"`
}

// TableName returns the GORM table name.
func (HistoryRecord) TableName() string { return "crm_history_records" }
