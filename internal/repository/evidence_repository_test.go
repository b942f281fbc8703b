package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvidenceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestEvidenceRepositoryListUnevaluatedByYear(t *testing.T) {
	db, mock, cleanup := newEvidenceRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	rows := sqlmock.NewRows([]string{"evidence_id", "file_name", "uploader_name", "uploaded_at",
		"sub_indicator_id", "sub_indicator_name", "indicator_name", "standard_name", "level_name", "owner_id"}).
		AddRow("ev-1", "report.pdf", "Dewi", time.Now(), "si-1", "1.1.1", "1.1", "Standard 1", "Institutional", "rev-1").
		AddRow("ev-2", "audit.xlsx", "Budi", time.Now(), "si-2", "1.1.2", "1.1", "Standard 1", "Institutional", "rev-2")

	mock.ExpectQuery(regexp.QuoteMeta("NOT EXISTS (SELECT 1 FROM evaluations ev WHERE ev.evidence_id = e.id)")).
		WithArgs("year-1").
		WillReturnRows(rows)

	items, err := repo.ListUnevaluatedByYear(context.Background(), "year-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "rev-1", items[0].OwnerID)
	assert.Equal(t, "report.pdf", items[0].FileName)
	assert.Equal(t, "Standard 1", items[0].StandardName)
}

func TestEvidenceRepositoryCountPendingForInternalAssessor(t *testing.T) {
	db, mock, cleanup := newEvidenceRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("si.owner_id = $2")).
		WithArgs("year-1", "rev-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountPendingForInternalAssessor(context.Background(), "rev-1", "year-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestEvidenceRepositoryCountPendingForExternalAssessor(t *testing.T) {
	db, mock, cleanup := newEvidenceRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ev.evaluator_id = $2")).
		WithArgs("year-1", "ext-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	count, err := repo.CountPendingForExternalAssessor(context.Background(), "ext-1", "year-1")
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}
