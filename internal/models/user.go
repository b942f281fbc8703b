package models

import "time"

// UserRole represents the available roles in the QA workflow.
type UserRole string

const (
	RoleUploader         UserRole = "UPLOADER"
	RoleInternalAssessor UserRole = "INTERNAL_ASSESSOR"
	RoleExternalAssessor UserRole = "EXTERNAL_ASSESSOR"
	RoleExecutive        UserRole = "EXECUTIVE"
	RoleAdmin            UserRole = "ADMIN"
)

// SupervisoryRoles are the roles alerted when overdue escalation reaches the
// supervisor level.
var SupervisoryRoles = []UserRole{RoleExecutive, RoleAdmin}

// User represents an application user. The engine only reads users; accounts
// are managed by the entity subsystem.
type User struct {
	ID                   string    `db:"id" json:"id"`
	Email                string    `db:"email" json:"email"`
	FullName             string    `db:"full_name" json:"full_name"`
	Role                 UserRole  `db:"role" json:"role"`
	Active               bool      `db:"active" json:"active"`
	EmailEnabled         bool      `db:"email_enabled" json:"email_enabled"`
	PushEnabled          bool      `db:"push_enabled" json:"push_enabled"`
	DeadlineReminderDays int       `db:"deadline_reminder_days" json:"deadline_reminder_days"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
