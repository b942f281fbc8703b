package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

// NotificationRepository persists notification records. Writers treat the
// table as append-mostly: records are created and later updated to set
// sent_at/is_read; only the retention cleanup deletes. Concurrent sweeps rely
// on query-before-write dedup plus a partial unique index on
// (user_id, type, (metadata->>'academicYearId'), day bucket) owned by the
// schema migrations.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, title, message, metadata, scheduled_for, sent_at, is_read, created_at`

// Create inserts a notification record. It does not send anything.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, type, title, message, metadata, scheduled_for, sent_at, is_read, created_at)
VALUES (:id, :user_id, :type, :title, :message, :metadata, :scheduled_for, :sent_at, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID returns a single notification.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// FindLatestSince returns the most recent notification matching (user, type,
// academicYearId metadata) created at or after the cutoff, or nil when none
// exists. This lookup is the dedup primitive: callers query before creating
// and read the stored escalationLevel off the returned record. Digest records
// share a type with deadline reminders but never count as dedup state.
func (r *NotificationRepository) FindLatestSince(ctx context.Context, userID string, typ models.NotificationType, academicYearID string, since time.Time) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications
WHERE user_id = $1 AND type = $2 AND metadata->>'academicYearId' = $3 AND created_at >= $4
AND metadata->>'digest' IS NULL
ORDER BY created_at DESC LIMIT 1`, notificationColumns)
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, userID, typ, academicYearID, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest notification: %w", err)
	}
	return &n, nil
}

// ListPending returns undispatched notifications whose scheduled time is
// absent or due, oldest first (FIFO delivery).
func (r *NotificationRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications
WHERE sent_at IS NULL AND (scheduled_for IS NULL OR scheduled_for <= $1)
ORDER BY created_at ASC LIMIT $2`, notificationColumns)
	var pending []models.Notification
	if err := r.db.SelectContext(ctx, &pending, query, now, limit); err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return pending, nil
}

// MarkSent stamps sent_at. The stamp is append-only: an already-sent record is
// left untouched.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL`,
		sentAt, id); err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	return nil
}

// MarkRead sets is_read for a notification owned by the given user. Ownership
// is enforced in the statement; a foreign notification is reported as not
// found.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUnread returns the user's unread notification count.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// ListForUser returns the user's notifications newest first with a total count.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1
ORDER BY created_at DESC LIMIT %d OFFSET %d`, notificationColumns, pageSize, offset)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// DeleteSentBefore removes dispatched notifications created before the cutoff
// and returns the number deleted. Undispatched records are never removed.
func (r *NotificationRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE sent_at IS NOT NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return deleted, nil
}
