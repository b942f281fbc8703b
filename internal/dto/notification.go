package dto

import "time"

// CreateNotificationRequest is an administratively submitted notification,
// typically a system alert or a scheduled announcement.
type CreateNotificationRequest struct {
	UserID         string     `json:"userId" validate:"required,uuid4"`
	Type           string     `json:"type" validate:"required,oneof=REMINDER_UPLOAD REMINDER_EVALUATION WINDOW_OPENING WINDOW_CLOSING OVERDUE_ESCALATION SYSTEM_ALERT"`
	Title          string     `json:"title" validate:"required,max=200"`
	Message        string     `json:"message" validate:"max=2000"`
	ScheduledFor   *time.Time `json:"scheduledFor" validate:"omitempty"`
	AcademicYearID string     `json:"academicYearId" validate:"omitempty,uuid4"`
	ActionURL      string     `json:"actionUrl" validate:"omitempty,url"`
}
