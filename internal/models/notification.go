package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType enumerates the kinds of notifications the engine issues.
type NotificationType string

const (
	NotificationReminderUpload     NotificationType = "REMINDER_UPLOAD"
	NotificationReminderEvaluation NotificationType = "REMINDER_EVALUATION"
	NotificationWindowOpening      NotificationType = "WINDOW_OPENING"
	NotificationWindowClosing      NotificationType = "WINDOW_CLOSING"
	NotificationOverdueEscalation  NotificationType = "OVERDUE_ESCALATION"
	NotificationSystemAlert        NotificationType = "SYSTEM_ALERT"
)

// NotificationMetadata is persisted as JSONB. AcademicYearID is always set;
// EscalationLevel only on OVERDUE_ESCALATION records, where it carries the
// dedup state for the ladder.
type NotificationMetadata struct {
	AcademicYearID  string            `json:"academicYearId,omitempty"`
	EscalationLevel int               `json:"escalationLevel,omitempty"`
	PendingCount    int               `json:"pendingCount,omitempty"`
	ReviewerID      string            `json:"reviewerId,omitempty"`
	ReportPath      string            `json:"reportPath,omitempty"`
	ActionURL       string            `json:"actionUrl,omitempty"`
	Digest          bool              `json:"digest,omitempty"`
	Extras          map[string]string `json:"extras,omitempty"`
}

// Value marshals metadata to JSON for persistence.
func (m NotificationMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal notification metadata: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the metadata struct.
func (m *NotificationMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = NotificationMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
}

// Notification is the unit of idempotence: one record per (user, type,
// academic year, escalation level) within the dedup window. SentAt is
// append-only; it is never cleared once set.
type Notification struct {
	ID           string               `db:"id" json:"id"`
	UserID       string               `db:"user_id" json:"user_id"`
	Type         NotificationType     `db:"type" json:"type"`
	Title        string               `db:"title" json:"title"`
	Message      string               `db:"message" json:"message"`
	Metadata     NotificationMetadata `db:"metadata" json:"metadata"`
	ScheduledFor *time.Time           `db:"scheduled_for" json:"scheduled_for,omitempty"`
	SentAt       *time.Time           `db:"sent_at" json:"sent_at,omitempty"`
	IsRead       bool                 `db:"is_read" json:"is_read"`
	CreatedAt    time.Time            `db:"created_at" json:"created_at"`
}
