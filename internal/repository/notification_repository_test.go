package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestNotificationRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &models.Notification{
		UserID:  "user-1",
		Type:    models.NotificationReminderUpload,
		Title:   "Upload deadline approaching",
		Message: "3 days left",
		Metadata: models.NotificationMetadata{
			AcademicYearID: "year-1",
		},
	}
	require.NoError(t, repo.Create(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryFindLatestSince(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	since := time.Now().Add(-24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "metadata", "scheduled_for", "sent_at", "is_read", "created_at"}).
		AddRow("notif-1", "rev-1", "OVERDUE_ESCALATION", "Overdue", "msg",
			[]byte(`{"academicYearId":"year-1","escalationLevel":2}`), nil, nil, false, time.Now())

	// Digest records must be invisible to the dedup lookup.
	mock.ExpectQuery(regexp.QuoteMeta("metadata->>'digest' IS NULL")).
		WithArgs("rev-1", string(models.NotificationOverdueEscalation), "year-1", since).
		WillReturnRows(rows)

	found, err := repo.FindLatestSince(context.Background(), "rev-1", models.NotificationOverdueEscalation, "year-1", since)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 2, found.Metadata.EscalationLevel)
	assert.Equal(t, "year-1", found.Metadata.AcademicYearID)
}

func TestNotificationRepositoryFindLatestSinceNone(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("rev-1", string(models.NotificationOverdueEscalation), "year-1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	found, err := repo.FindLatestSince(context.Background(), "rev-1", models.NotificationOverdueEscalation, "year-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestNotificationRepositoryListPendingFiltersScheduled(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "metadata", "scheduled_for", "sent_at", "is_read", "created_at"}).
		AddRow("notif-1", "user-1", "REMINDER_UPLOAD", "t", "m", []byte(`{}`), nil, nil, false, now.Add(-2*time.Hour)).
		AddRow("notif-2", "user-2", "SYSTEM_ALERT", "t", "m", []byte(`{}`), now.Add(-time.Minute), nil, false, now.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("sent_at IS NULL AND (scheduled_for IS NULL OR scheduled_for <= $1)")).
		WithArgs(now, 100).
		WillReturnRows(rows)

	pending, err := repo.ListPending(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "notif-1", pending[0].ID, "FIFO order by creation time")
}

func TestNotificationRepositoryMarkReadOwnership(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2")).
		WithArgs("notif-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "notif-1", "intruder")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestNotificationRepositoryMarkSentOnlyOnce(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	sentAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL")).
		WithArgs(sentAt, "notif-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "notif-1", sentAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryDeleteSentBefore(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notifications WHERE sent_at IS NOT NULL AND created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.DeleteSentBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
}
