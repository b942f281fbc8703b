package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/internal/channel"
	"github.com/campus-iqa/iqa-notify-api/internal/dto"
	"github.com/campus-iqa/iqa-notify-api/internal/models"
	"github.com/campus-iqa/iqa-notify-api/pkg/config"
	appErrors "github.com/campus-iqa/iqa-notify-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkRead(ctx context.Context, id, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error)
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type recipientStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type reportCleaner interface {
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// NotificationServiceConfig tunes dispatch and retention behaviour.
type NotificationServiceConfig struct {
	BaseURL         string
	DeliveryTimeout time.Duration
	RetentionMaxAge time.Duration
	FlushBatchSize  int
}

// NotificationService persists notification records and dispatches them over
// the configured channels. Creation and delivery are separate steps: Create
// only writes the record; Dispatch delivers and stamps sent_at exactly once.
type NotificationService struct {
	repo     notificationStore
	users    recipientStore
	email    channel.EmailSender
	push     channel.PushSender
	reports  reportCleaner
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	cfg      NotificationServiceConfig
}

// NewNotificationService constructs the dispatcher. Either channel sender may
// be nil; missing channel configuration degrades to a logged skip.
func NewNotificationService(repo notificationStore, users recipientStore, email channel.EmailSender, push channel.PushSender, reports reportCleaner, metrics *MetricsService, logger *zap.Logger, cfg NotificationServiceConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	if cfg.FlushBatchSize <= 0 {
		cfg.FlushBatchSize = 100
	}
	return &NotificationService{
		repo:     repo,
		users:    users,
		email:    email,
		push:     push,
		reports:  reports,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger,
		cfg:      cfg,
	}
}

// Create persists a notification record without sending anything.
func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if n.UserID == "" || n.Type == "" || n.Title == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification requires user, type and title")
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	s.metrics.RecordNotificationCreated(string(n.Type))
	s.logger.Sugar().Debugw("notification created",
		"id", n.ID, "user", n.UserID, "type", n.Type)
	return nil
}

// CreateFromRequest validates and persists an administratively submitted
// notification (system alerts, scheduled announcements).
func (s *NotificationService) CreateFromRequest(ctx context.Context, req dto.CreateNotificationRequest) (*models.Notification, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}
	n := &models.Notification{
		UserID:       req.UserID,
		Type:         models.NotificationType(req.Type),
		Title:        req.Title,
		Message:      req.Message,
		ScheduledFor: req.ScheduledFor,
		Metadata: models.NotificationMetadata{
			AcademicYearID: req.AcademicYearID,
			ActionURL:      req.ActionURL,
		},
	}
	if err := s.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// channelResult captures an individual delivery attempt so partial failure is
// data, not control flow.
type channelResult struct {
	channel string
	skipped bool
	err     error
}

// Dispatch loads the notification and its recipient, attempts every enabled
// channel, and stamps sent_at once all attempts are made. A failing channel
// never blocks the other channel nor the sent_at stamp.
func (s *NotificationService) Dispatch(ctx context.Context, id string) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if n.SentAt != nil {
		return appErrors.ErrAlreadySent
	}

	recipient, err := s.users.GetByID(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrMissingRecipient, fmt.Sprintf("recipient %s not found", n.UserID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
	}

	results := []channelResult{
		s.attemptEmail(ctx, n, recipient),
		s.attemptPush(ctx, n, recipient),
	}
	for _, r := range results {
		if r.err != nil {
			s.metrics.RecordChannelFailure(r.channel)
			s.logger.Sugar().Warnw("channel delivery failed",
				"notification", n.ID, "channel", r.channel, "error", r.err)
		}
	}

	now := time.Now().UTC()
	if err := s.repo.MarkSent(ctx, n.ID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification sent")
	}
	s.metrics.RecordNotificationDispatched(string(n.Type))
	return nil
}

func (s *NotificationService) attemptEmail(ctx context.Context, n *models.Notification, recipient *models.User) channelResult {
	result := channelResult{channel: "email"}
	if !recipient.EmailEnabled {
		result.skipped = true
		return result
	}
	if s.email == nil {
		result.skipped = true
		s.logger.Sugar().Debugw("email channel not configured", "notification", n.ID)
		return result
	}

	subject, html := renderEmail(n, s.cfg.BaseURL)
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()
	_, result.err = s.email.Send(sendCtx, recipient.Email, subject, html)
	return result
}

func (s *NotificationService) attemptPush(ctx context.Context, n *models.Notification, recipient *models.User) channelResult {
	result := channelResult{channel: "push"}
	if !recipient.PushEnabled {
		result.skipped = true
		return result
	}
	if s.push == nil {
		result.skipped = true
		s.logger.Sugar().Debugw("push channel not configured", "notification", n.ID)
		return result
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()
	_, result.err = s.push.Send(sendCtx, recipient.ID, renderPush(n))
	return result
}

// renderEmail builds the email-channel payload: subject, HTML body and an
// optional call-to-action link.
func renderEmail(n *models.Notification, baseURL string) (string, string) {
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(n.Title)
	b.WriteString("</h2><p>")
	b.WriteString(n.Message)
	b.WriteString("</p>")

	action := n.Metadata.ActionURL
	if action == "" && baseURL != "" && n.Metadata.AcademicYearID != "" {
		action = fmt.Sprintf("%s/academic-years/%s", strings.TrimRight(baseURL, "/"), n.Metadata.AcademicYearID)
	}
	if action != "" {
		b.WriteString(fmt.Sprintf(`<p><a href="%s">Open in IQA portal</a></p>`, action))
	}
	return n.Title, b.String()
}

// renderPush flattens the notification into the single-text push payload.
func renderPush(n *models.Notification) string {
	return n.Title + ": " + n.Message
}

// FlushPending dispatches every due undelivered notification in creation
// order. Individual dispatch failures are logged and skipped; the flush keeps
// going.
func (s *NotificationService) FlushPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPending(ctx, time.Now().UTC(), s.cfg.FlushBatchSize)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending notifications")
	}

	dispatched := 0
	for _, n := range pending {
		if err := s.Dispatch(ctx, n.ID); err != nil {
			// ErrAlreadySent means a concurrent flush got there first.
			if errors.Is(err, appErrors.ErrAlreadySent) {
				continue
			}
			s.logger.Sugar().Errorw("failed to dispatch pending notification",
				"notification", n.ID, "error", err)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// MarkRead flags a notification as read on behalf of its owner.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// ListForUser returns the user's notifications with pagination metadata.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.ListForUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// CountUnread returns the user's unread count.
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	return count, nil
}

// CleanupExpired removes dispatched notifications past the retention window
// and prunes old report files. The retention window never undercuts the
// longest escalation cool-down: the ladder's dedup state lives in this
// history, and deleting it early would regress level computation.
func (s *NotificationService) CleanupExpired(ctx context.Context) (int64, error) {
	maxAge := s.cfg.RetentionMaxAge
	if maxAge < config.MinRetention {
		s.logger.Sugar().Warnw("retention below escalation cool-down, clamping",
			"configured", maxAge.String())
		maxAge = config.MinRetention
	}

	deleted, err := s.repo.DeleteSentBefore(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up notifications")
	}

	if s.reports != nil {
		if removed, err := s.reports.CleanupOlderThan(maxAge); err != nil {
			s.logger.Sugar().Warnw("report cleanup failed", "error", err)
		} else if len(removed) > 0 {
			s.logger.Sugar().Infow("report files cleaned up", "count", len(removed))
		}
	}

	if deleted > 0 {
		s.logger.Sugar().Infow("notifications cleaned up", "count", deleted)
	}
	return deleted, nil
}
