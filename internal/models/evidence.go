package models

import "time"

// PendingEvidence is the denormalised row used for escalation grouping and the
// per-item overdue breakdown: evidence joined with its sub-indicator owner and
// the display names of the surrounding hierarchy.
type PendingEvidence struct {
	EvidenceID       string    `db:"evidence_id" json:"evidence_id"`
	FileName         string    `db:"file_name" json:"file_name"`
	UploaderName     string    `db:"uploader_name" json:"uploader_name"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploaded_at"`
	SubIndicatorID   string    `db:"sub_indicator_id" json:"sub_indicator_id"`
	SubIndicatorName string    `db:"sub_indicator_name" json:"sub_indicator_name"`
	IndicatorName    string    `db:"indicator_name" json:"indicator_name"`
	StandardName     string    `db:"standard_name" json:"standard_name"`
	LevelName        string    `db:"level_name" json:"level_name"`
	OwnerID          string    `db:"owner_id" json:"owner_id"`
}
