package audit

import "time"

// Outcomes of an audited request.
const (
	OutcomeSuccess  = "success"
	OutcomeBlocked  = "blocked"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeFailure  = "failure"
)

// EventRecord is one audited mutating API call.
type EventRecord struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Namespace  string    `gorm:"column:namespace;type:varchar(63);index:idx_crm_audit_ns_time,priority:1;not null"`
	Actor      string    `gorm:"column:actor;type:varchar(255);index:idx_crm_audit_actor_time,priority:1;not null"`
	RequestID  string    `gorm:"column:request_id;index"`
	Method     string    `gorm:"column:method;type:varchar(10);not null"`
	Path       string    `gorm:"column:path;not null"`
	Kind       string    `gorm:"column:kind;type:varchar(20)"`
	ResourceID string    `gorm:"column:resource_id"`
	Action     string    `gorm:"column:action;type:varchar(40);not null"`
	Outcome    string    `gorm:"column:outcome;type:varchar(20);not null"`
	StatusCode int       `gorm:"column:status_code"`
	DurationMs int64     `gorm:"column:duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_crm_audit_ns_time,priority:2;index:idx_crm_audit_actor_time,priority:2"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "crm_api_audit_events" }
