package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

type sweepYearStore interface {
	ListActive(ctx context.Context) ([]models.AcademicYear, error)
}

type sweepUserStore interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type pendingCounter interface {
	CountPendingForInternalAssessor(ctx context.Context, assessorID, academicYearID string) (int, error)
	CountPendingForExternalAssessor(ctx context.Context, assessorID, academicYearID string) (int, error)
}

type sweepNotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	FindLatestSince(ctx context.Context, userID string, typ models.NotificationType, academicYearID string, since time.Time) (*models.Notification, error)
}

// MonitorServiceConfig tunes reminder behaviour.
type MonitorServiceConfig struct {
	DedupWindow         time.Duration
	DefaultLeadDays     int
	DigestLookaheadDays int
}

// MonitorService runs the periodic deadline sweep: window transitions,
// proximity reminders and overdue escalation across every active academic
// year. Each run recomputes everything from the current clock, so a missed
// tick is caught up by the next one.
type MonitorService struct {
	years      sweepYearStore
	users      sweepUserStore
	evidence   pendingCounter
	notifs     sweepNotificationStore
	deadline   *DeadlineService
	escalation *EscalationService
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        MonitorServiceConfig

	nowFn func() time.Time
}

// NewMonitorService constructs the service.
func NewMonitorService(years sweepYearStore, users sweepUserStore, evidence pendingCounter, notifs sweepNotificationStore, deadline *DeadlineService, escalation *EscalationService, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg MonitorServiceConfig) *MonitorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	if cfg.DefaultLeadDays <= 0 {
		cfg.DefaultLeadDays = 3
	}
	if cfg.DigestLookaheadDays <= 0 {
		cfg.DigestLookaheadDays = 7
	}
	return &MonitorService{
		years:      years,
		users:      users,
		evidence:   evidence,
		notifs:     notifs,
		deadline:   deadline,
		escalation: escalation,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		nowFn:      time.Now,
	}
}

// RunDeadlineSweep processes every active academic year. A failure in one
// year is logged and never blocks the others.
func (s *MonitorService) RunDeadlineSweep(ctx context.Context) error {
	start := time.Now()
	now := s.nowFn()

	// Drop cached role membership so each sweep sees fresh recipients.
	// Within the sweep the refilled cache is still shared across years.
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, "users:role:*")
	}

	years, err := s.years.ListActive(ctx)
	if err != nil {
		s.metrics.ObserveSweep(time.Since(start), true)
		return fmt.Errorf("deadline sweep: %w", err)
	}

	failed := false
	for i := range years {
		if err := s.sweepYear(ctx, &years[i], now); err != nil {
			failed = true
			s.logger.Sugar().Errorw("year sweep failed",
				"year", years[i].ID, "error", err)
		}
	}

	s.metrics.ObserveSweep(time.Since(start), failed)
	s.logger.Sugar().Infow("deadline sweep finished",
		"years", len(years), "failed", failed, "took", time.Since(start))
	return nil
}

func (s *MonitorService) sweepYear(ctx context.Context, year *models.AcademicYear, now time.Time) error {
	if err := s.deadline.CheckWindowTransitions(ctx, year, now); err != nil {
		return err
	}

	if year.UploadWindowOpen {
		s.remindUploaders(ctx, year, now)
	}
	if year.EvaluationWindowOpen {
		s.remindAssessors(ctx, year, now)
	}
	if !year.EvaluationWindowOpen && now.After(year.EndDate) {
		return s.escalation.EscalateYear(ctx, year, now)
	}
	return nil
}

// leadDays reads a user's reminder lead preference. Zero is a real choice
// (remind on deadline day only); only a negative value means unset.
func leadDays(u models.User, fallback int) int {
	if u.DeadlineReminderDays < 0 {
		return fallback
	}
	return u.DeadlineReminderDays
}

// remindUploaders notifies uploaders whose personal lead preference covers
// the remaining days before the window closes.
func (s *MonitorService) remindUploaders(ctx context.Context, year *models.AcademicYear, now time.Time) {
	daysLeft := s.deadline.DaysUntilClose(year, now)
	if daysLeft < 0 {
		return
	}

	uploaders, err := s.usersByRole(ctx, models.RoleUploader)
	if err != nil {
		s.logger.Sugar().Errorw("failed to list uploaders",
			"year", year.ID, "error", err)
		return
	}

	for _, u := range uploaders {
		lead := leadDays(u, s.cfg.DefaultLeadDays)
		if daysLeft > lead {
			continue
		}
		s.createReminder(ctx, year, u.ID, models.NotificationReminderUpload,
			"Upload deadline approaching",
			fmt.Sprintf("The upload window for %s closes in %d day(s).", year.Name, daysLeft), 0, now)
	}
}

// remindAssessors notifies internal and external assessors who still have
// pending evaluations while the deadline approaches.
func (s *MonitorService) remindAssessors(ctx context.Context, year *models.AcademicYear, now time.Time) {
	daysLeft := s.deadline.DaysUntilClose(year, now)
	if daysLeft < 0 {
		return
	}

	for _, role := range []models.UserRole{models.RoleInternalAssessor, models.RoleExternalAssessor} {
		assessors, err := s.usersByRole(ctx, role)
		if err != nil {
			s.logger.Sugar().Errorw("failed to list assessors",
				"year", year.ID, "role", role, "error", err)
			continue
		}
		for _, u := range assessors {
			lead := leadDays(u, s.cfg.DefaultLeadDays)
			if daysLeft > lead {
				continue
			}
			pending, err := s.pendingFor(ctx, u, year.ID)
			if err != nil {
				s.logger.Sugar().Errorw("failed to count pending evaluations",
					"year", year.ID, "assessor", u.ID, "error", err)
				continue
			}
			if pending == 0 {
				continue
			}
			s.createReminder(ctx, year, u.ID, models.NotificationReminderEvaluation,
				"Evaluation deadline approaching",
				fmt.Sprintf("You have %d pending evaluation(s) for %s. The window closes in %d day(s).", pending, year.Name, daysLeft),
				pending, now)
		}
	}
}

// createReminder persists a reminder unless one of the same type for the same
// user and year already exists inside the dedup window.
func (s *MonitorService) createReminder(ctx context.Context, year *models.AcademicYear, userID string, typ models.NotificationType, title, message string, pending int, now time.Time) {
	latest, err := s.notifs.FindLatestSince(ctx, userID, typ, year.ID, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		s.logger.Sugar().Errorw("reminder dedup lookup failed",
			"year", year.ID, "user", userID, "type", typ, "error", err)
		return
	}
	if latest != nil {
		return
	}

	n := &models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Metadata: models.NotificationMetadata{
			AcademicYearID: year.ID,
			PendingCount:   pending,
		},
	}
	if err := s.notifs.Create(ctx, n); err != nil {
		s.logger.Sugar().Errorw("failed to create reminder",
			"year", year.ID, "user", userID, "type", typ, "error", err)
	}
}

// RunWeeklyDigest sends every assessor a summary of outstanding work across
// active years whose deadline falls within the lookahead horizon or has
// already passed.
func (s *MonitorService) RunWeeklyDigest(ctx context.Context) error {
	now := s.nowFn()

	years, err := s.years.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("weekly digest: %w", err)
	}

	created := 0
	for i := range years {
		year := &years[i]
		daysLeft := s.deadline.DaysUntilClose(year, now)
		if daysLeft > s.cfg.DigestLookaheadDays {
			continue
		}

		for _, role := range []models.UserRole{models.RoleInternalAssessor, models.RoleExternalAssessor} {
			assessors, err := s.usersByRole(ctx, role)
			if err != nil {
				s.logger.Sugar().Errorw("digest role listing failed",
					"year", year.ID, "role", role, "error", err)
				continue
			}
			for _, u := range assessors {
				pending, err := s.pendingFor(ctx, u, year.ID)
				if err != nil || pending == 0 {
					continue
				}
				message := fmt.Sprintf("Weekly summary: %d pending evaluation(s) for %s.", pending, year.Name)
				if daysLeft >= 0 {
					message += fmt.Sprintf(" The window closes in %d day(s).", daysLeft)
				} else {
					message += fmt.Sprintf(" The deadline passed %d day(s) ago.", -daysLeft)
				}
				// Digest records share the reminder type but are marked so
				// they never suppress a genuine deadline reminder via the
				// dedup lookup.
				n := &models.Notification{
					UserID:  u.ID,
					Type:    models.NotificationReminderEvaluation,
					Title:   "Weekly evaluation digest",
					Message: message,
					Metadata: models.NotificationMetadata{
						AcademicYearID: year.ID,
						PendingCount:   pending,
						Digest:         true,
					},
				}
				if err := s.notifs.Create(ctx, n); err != nil {
					s.logger.Sugar().Errorw("failed to create digest entry",
						"year", year.ID, "user", u.ID, "error", err)
					continue
				}
				created++
			}
		}
	}

	s.logger.Sugar().Infow("weekly digest finished", "entries", created)
	return nil
}

func (s *MonitorService) pendingFor(ctx context.Context, u models.User, yearID string) (int, error) {
	switch u.Role {
	case models.RoleInternalAssessor:
		return s.evidence.CountPendingForInternalAssessor(ctx, u.ID, yearID)
	case models.RoleExternalAssessor:
		return s.evidence.CountPendingForExternalAssessor(ctx, u.ID, yearID)
	default:
		return 0, nil
	}
}

// usersByRole serves role membership from cache when available. Sweeps hit
// the same role lists for every active year, so a short TTL saves repeated
// full-table scans.
func (s *MonitorService) usersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	key := fmt.Sprintf("users:role:%s", role)

	if s.cache != nil && s.cache.Enabled() {
		var cached []models.User
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, users, 10*time.Minute); err != nil {
			s.logger.Sugar().Debugw("role cache set failed", "role", role, "error", err)
		}
	}
	return users, nil
}
