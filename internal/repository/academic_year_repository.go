package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

// AcademicYearRepository reads academic-year records and flips their window
// flags. All other writes belong to the entity subsystem.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository creates the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// ListActive returns every academic year with is_active = true. Multiple years
// may be active simultaneously.
func (r *AcademicYearRepository) ListActive(ctx context.Context) ([]models.AcademicYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, upload_window_open, evaluation_window_open, created_at, updated_at
FROM academic_years WHERE is_active = true ORDER BY start_date`
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list active academic years: %w", err)
	}
	return years, nil
}

// GetByID returns a single academic year.
func (r *AcademicYearRepository) GetByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, upload_window_open, evaluation_window_open, created_at, updated_at
FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// SetUploadWindowOpen persists an upload window transition.
func (r *AcademicYearRepository) SetUploadWindowOpen(ctx context.Context, id string, open bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE academic_years SET upload_window_open = $1, updated_at = $2 WHERE id = $3`,
		open, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set upload window for year %s: %w", id, err)
	}
	return nil
}

// SetEvaluationWindowOpen persists an evaluation window transition.
func (r *AcademicYearRepository) SetEvaluationWindowOpen(ctx context.Context, id string, open bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE academic_years SET evaluation_window_open = $1, updated_at = $2 WHERE id = $3`,
		open, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set evaluation window for year %s: %w", id, err)
	}
	return nil
}
