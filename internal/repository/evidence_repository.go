package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

// EvidenceRepository exposes the pending-evaluation queries used for reminders
// and escalation. Evidence with no evaluation rows counts as unevaluated.
type EvidenceRepository struct {
	db *sqlx.DB
}

// NewEvidenceRepository creates the repository.
func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// ListUnevaluatedByYear returns every unevaluated evidence row of the year,
// joined with the responsible sub-indicator owner and the display names used
// in the overdue breakdown.
func (r *EvidenceRepository) ListUnevaluatedByYear(ctx context.Context, academicYearID string) ([]models.PendingEvidence, error) {
	const query = `SELECT
	e.id AS evidence_id,
	e.file_name,
	u.full_name AS uploader_name,
	e.uploaded_at,
	si.id AS sub_indicator_id,
	si.name AS sub_indicator_name,
	i.name AS indicator_name,
	st.name AS standard_name,
	lv.name AS level_name,
	si.owner_id
FROM evidence e
JOIN sub_indicators si ON si.id = e.sub_indicator_id
JOIN indicators i ON i.id = si.indicator_id
JOIN standards st ON st.id = i.standard_id
JOIN levels lv ON lv.id = st.level_id
JOIN users u ON u.id = e.uploader_id
WHERE e.academic_year_id = $1
  AND NOT EXISTS (SELECT 1 FROM evaluations ev WHERE ev.evidence_id = e.id)
ORDER BY si.owner_id, e.uploaded_at`
	var rows []models.PendingEvidence
	if err := r.db.SelectContext(ctx, &rows, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list unevaluated evidence for year %s: %w", academicYearID, err)
	}
	return rows, nil
}

// CountPendingForInternalAssessor counts unevaluated evidence under
// sub-indicators the assessor owns, within the year.
func (r *EvidenceRepository) CountPendingForInternalAssessor(ctx context.Context, assessorID, academicYearID string) (int, error) {
	const query = `SELECT COUNT(*)
FROM evidence e
JOIN sub_indicators si ON si.id = e.sub_indicator_id
WHERE e.academic_year_id = $1
  AND si.owner_id = $2
  AND NOT EXISTS (SELECT 1 FROM evaluations ev WHERE ev.evidence_id = e.id)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, academicYearID, assessorID); err != nil {
		return 0, fmt.Errorf("count pending for internal assessor %s: %w", assessorID, err)
	}
	return count, nil
}

// CountPendingForExternalAssessor counts evidence in the year that lacks an
// evaluation authored by this assessor specifically. Evaluations by other
// reviewers do not satisfy the obligation.
func (r *EvidenceRepository) CountPendingForExternalAssessor(ctx context.Context, assessorID, academicYearID string) (int, error) {
	const query = `SELECT COUNT(*)
FROM evidence e
WHERE e.academic_year_id = $1
  AND NOT EXISTS (
	SELECT 1 FROM evaluations ev
	WHERE ev.evidence_id = e.id AND ev.evaluator_id = $2
  )`
	var count int
	if err := r.db.GetContext(ctx, &count, query, academicYearID, assessorID); err != nil {
		return 0, fmt.Errorf("count pending for external assessor %s: %w", assessorID, err)
	}
	return count, nil
}
