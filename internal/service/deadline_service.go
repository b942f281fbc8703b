package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
)

type windowYearStore interface {
	SetUploadWindowOpen(ctx context.Context, id string, open bool) error
	SetEvaluationWindowOpen(ctx context.Context, id string, open bool) error
}

type windowAudienceStore interface {
	ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
}

type notificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

// DeadlineService computes deadline proximity and overdue duration for an
// academic year, and detects window transitions. The math is calendar-day
// based: partial days do not count.
type DeadlineService struct {
	years  windowYearStore
	users  windowAudienceStore
	notifs notificationWriter
	logger *zap.Logger
}

// NewDeadlineService constructs the service.
func NewDeadlineService(years windowYearStore, users windowAudienceStore, notifs notificationWriter, logger *zap.Logger) *DeadlineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineService{years: years, users: users, notifs: notifs, logger: logger}
}

// daysBetween returns whole calendar days from a to b, negative when b
// precedes a.
func daysBetween(a, b time.Time) int {
	a = a.UTC()
	b = b.UTC()
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bDay.Sub(aDay).Hours() / 24)
}

// DaysUntilClose returns whole days until the year's end date; negative once
// the end date has passed.
func (s *DeadlineService) DaysUntilClose(year *models.AcademicYear, now time.Time) int {
	return daysBetween(now, year.EndDate)
}

// DaysSinceClose returns whole days elapsed since the year's end date. Only
// meaningful once now is past the end date.
func (s *DeadlineService) DaysSinceClose(year *models.AcademicYear, now time.Time) int {
	return daysBetween(year.EndDate, now)
}

// WindowShouldBeOpen reports whether now falls inside the year's bounds.
func (s *DeadlineService) WindowShouldBeOpen(year *models.AcademicYear, now time.Time) bool {
	return !now.Before(year.StartDate) && !now.After(year.EndDate)
}

// CheckWindowTransitions compares both persisted window flags against the
// computed state, and on disagreement notifies the affected roles and flips
// the flag. This is the only place the engine mutates academic-year state.
// The passed year is updated in place so callers observe the new flags.
func (s *DeadlineService) CheckWindowTransitions(ctx context.Context, year *models.AcademicYear, now time.Time) error {
	shouldBeOpen := s.WindowShouldBeOpen(year, now)

	if year.UploadWindowOpen != shouldBeOpen {
		if err := s.years.SetUploadWindowOpen(ctx, year.ID, shouldBeOpen); err != nil {
			return err
		}
		year.UploadWindowOpen = shouldBeOpen
		s.logger.Sugar().Infow("upload window transition",
			"year", year.ID, "open", shouldBeOpen)
		s.notifyWindowChange(ctx, year, shouldBeOpen, "upload",
			[]models.UserRole{models.RoleUploader})
	}

	if year.EvaluationWindowOpen != shouldBeOpen {
		if err := s.years.SetEvaluationWindowOpen(ctx, year.ID, shouldBeOpen); err != nil {
			return err
		}
		year.EvaluationWindowOpen = shouldBeOpen
		s.logger.Sugar().Infow("evaluation window transition",
			"year", year.ID, "open", shouldBeOpen)
		s.notifyWindowChange(ctx, year, shouldBeOpen, "evaluation",
			[]models.UserRole{models.RoleInternalAssessor, models.RoleExternalAssessor})
	}

	return nil
}

// notifyWindowChange fans a window opening/closing notification out to every
// active user of the affected roles. Failures are logged; a transition is
// never rolled back because a notification could not be created.
func (s *DeadlineService) notifyWindowChange(ctx context.Context, year *models.AcademicYear, opened bool, window string, roles []models.UserRole) {
	users, err := s.users.ListByRoles(ctx, roles)
	if err != nil {
		s.logger.Sugar().Errorw("failed to list window audience",
			"year", year.ID, "window", window, "error", err)
		return
	}

	typ := models.NotificationWindowClosing
	verb := "closed"
	if opened {
		typ = models.NotificationWindowOpening
		verb = "opened"
	}

	for _, u := range users {
		n := &models.Notification{
			UserID:  u.ID,
			Type:    typ,
			Title:   fmt.Sprintf("%s window %s", titleCase(window), verb),
			Message: fmt.Sprintf("The %s window for %s has %s.", window, year.Name, verb),
			Metadata: models.NotificationMetadata{
				AcademicYearID: year.ID,
			},
		}
		if err := s.notifs.Create(ctx, n); err != nil {
			s.logger.Sugar().Errorw("failed to create window notification",
				"year", year.ID, "user", u.ID, "error", err)
		}
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
