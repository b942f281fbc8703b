package models

import "time"

// AcademicYear is a bounded submission/evaluation cycle. Records are owned by
// the entity subsystem; the engine reads them and only mutates the two window
// flags when it detects a transition.
type AcademicYear struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	StartDate            time.Time `db:"start_date" json:"start_date"`
	EndDate              time.Time `db:"end_date" json:"end_date"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	UploadWindowOpen     bool      `db:"upload_window_open" json:"upload_window_open"`
	EvaluationWindowOpen bool      `db:"evaluation_window_open" json:"evaluation_window_open"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
