package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
	"github.com/campus-iqa/iqa-notify-api/pkg/export"
)

type escalationEvidenceStore interface {
	ListUnevaluatedByYear(ctx context.Context, academicYearID string) ([]models.PendingEvidence, error)
}

type escalationUserStore interface {
	ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error)
}

type escalationNotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	FindLatestSince(ctx context.Context, userID string, typ models.NotificationType, academicYearID string, since time.Time) (*models.Notification, error)
}

type reportWriter interface {
	Save(filename string, data []byte) (string, error)
}

// Escalation ladder: elapsed days since window close mapped to a level. The
// highest satisfied threshold wins; lower levels are never re-fired.
var escalationThresholds = []struct {
	days  int
	level int
}{
	{30, 5},
	{14, 4},
	{7, 3},
	{3, 2},
	{1, 1},
}

// LevelForElapsed returns the escalation level for the given overdue days,
// or 0 when no threshold is reached. Thresholds are inclusive.
func LevelForElapsed(elapsedDays int) int {
	for _, t := range escalationThresholds {
		if elapsedDays >= t.days {
			return t.level
		}
	}
	return 0
}

// EscalationServiceConfig tunes dedup behaviour.
type EscalationServiceConfig struct {
	DedupWindow time.Duration
}

// EscalationService applies the overdue ladder to a closed academic year.
// Escalation level is recomputed from elapsed time on every run; the only
// persisted state is the notification history used for dedup.
type EscalationService struct {
	evidence escalationEvidenceStore
	users    escalationUserStore
	notifs   escalationNotificationStore
	exporter *export.PDFExporter
	reports  reportWriter
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      EscalationServiceConfig
}

// NewEscalationService constructs the service.
func NewEscalationService(evidence escalationEvidenceStore, users escalationUserStore, notifs escalationNotificationStore, exporter *export.PDFExporter, reports reportWriter, metrics *MetricsService, logger *zap.Logger, cfg EscalationServiceConfig) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	return &EscalationService{
		evidence: evidence,
		users:    users,
		notifs:   notifs,
		exporter: exporter,
		reports:  reports,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// EscalateYear groups the year's unevaluated evidence by responsible reviewer
// (sub-indicator owner) and applies the ladder per reviewer. A failure for
// one reviewer never blocks the others.
func (s *EscalationService) EscalateYear(ctx context.Context, year *models.AcademicYear, now time.Time) error {
	elapsed := daysBetween(year.EndDate, now)
	level := LevelForElapsed(elapsed)
	if level == 0 {
		return nil
	}

	pending, err := s.evidence.ListUnevaluatedByYear(ctx, year.ID)
	if err != nil {
		return fmt.Errorf("escalate year %s: %w", year.ID, err)
	}
	if len(pending) == 0 {
		return nil
	}

	byReviewer := make(map[string][]models.PendingEvidence)
	for _, item := range pending {
		byReviewer[item.OwnerID] = append(byReviewer[item.OwnerID], item)
	}

	for reviewerID, items := range byReviewer {
		if err := s.escalateReviewer(ctx, year, reviewerID, items, level, elapsed, now); err != nil {
			s.logger.Sugar().Errorw("reviewer escalation failed",
				"year", year.ID, "reviewer", reviewerID, "level", level, "error", err)
		}
	}
	return nil
}

// escalateReviewer issues the level's notification set for one reviewer,
// unless a notification at the same level already exists inside the dedup
// window. The dedup compares the stored escalationLevel metadata of the most
// recent record: an equal level is a duplicate, a lower one means the ladder
// advanced and the new level goes out.
func (s *EscalationService) escalateReviewer(ctx context.Context, year *models.AcademicYear, reviewerID string, items []models.PendingEvidence, level, elapsed int, now time.Time) error {
	since := now.Add(-s.cfg.DedupWindow)
	latest, err := s.notifs.FindLatestSince(ctx, reviewerID, models.NotificationOverdueEscalation, year.ID, since)
	if err != nil {
		return err
	}
	if latest != nil && latest.Metadata.EscalationLevel == level {
		return nil
	}

	notification := &models.Notification{
		UserID: reviewerID,
		Type:   models.NotificationOverdueEscalation,
		Metadata: models.NotificationMetadata{
			AcademicYearID:  year.ID,
			EscalationLevel: level,
			PendingCount:    len(items),
			ReviewerID:      reviewerID,
		},
	}

	switch level {
	case 1:
		notification.Title = "Evaluation overdue"
		notification.Message = fmt.Sprintf("You have %d unevaluated item(s) for %s. The evaluation window closed %d day(s) ago.", len(items), year.Name, elapsed)
	case 2:
		notification.Title = "Evaluation overdue: action required"
		notification.Message = fmt.Sprintf("Reminder: %d item(s) for %s remain unevaluated %d days after the window closed. Please complete your evaluations.", len(items), year.Name, elapsed)
	case 3:
		notification.Title = "Evaluation overdue: supervisors notified"
		notification.Message = fmt.Sprintf("%d item(s) for %s are %d days overdue. Your supervisors have been informed.", len(items), year.Name, elapsed)
	case 4:
		notification.Title = "Evaluation overdue: detailed report attached"
		notification.Message = fmt.Sprintf("%d item(s) for %s are %d days overdue. A per-item breakdown report has been generated.", len(items), year.Name, elapsed)
		if path, err := s.writeBreakdownReport(year, reviewerID, items); err != nil {
			s.logger.Sugar().Warnw("breakdown report generation failed",
				"year", year.ID, "reviewer", reviewerID, "error", err)
		} else {
			notification.Metadata.ReportPath = path
		}
	case 5:
		notification.Title = "Evaluation overdue: administration alerted"
		notification.Message = fmt.Sprintf("%d item(s) for %s are %d days overdue. The administration has been alerted and may reassign your workload.", len(items), year.Name, elapsed)
	}

	if err := s.notifs.Create(ctx, notification); err != nil {
		return err
	}
	s.metrics.RecordEscalation(level)
	s.logger.Sugar().Infow("escalation issued",
		"year", year.ID, "reviewer", reviewerID, "level", level, "pending", len(items))

	switch level {
	case 3:
		s.alertRoles(ctx, year, reviewerID, len(items), elapsed, models.SupervisoryRoles,
			"Reviewer evaluations overdue")
	case 5:
		s.alertRoles(ctx, year, reviewerID, len(items), elapsed, []models.UserRole{models.RoleAdmin},
			"Administrative alert: evaluations severely overdue")
	}
	return nil
}

// alertRoles fans a system alert out to every active user of the given roles,
// naming the overdue reviewer and count.
func (s *EscalationService) alertRoles(ctx context.Context, year *models.AcademicYear, reviewerID string, count, elapsed int, roles []models.UserRole, title string) {
	recipients, err := s.users.ListByRoles(ctx, roles)
	if err != nil {
		s.logger.Sugar().Errorw("failed to list alert recipients",
			"year", year.ID, "reviewer", reviewerID, "error", err)
		return
	}
	for _, u := range recipients {
		alert := &models.Notification{
			UserID:  u.ID,
			Type:    models.NotificationSystemAlert,
			Title:   title,
			Message: fmt.Sprintf("Reviewer %s has %d unevaluated item(s) for %s, %d day(s) past the evaluation deadline.", reviewerID, count, year.Name, elapsed),
			Metadata: models.NotificationMetadata{
				AcademicYearID: year.ID,
				ReviewerID:     reviewerID,
				PendingCount:   count,
			},
		}
		if err := s.notifs.Create(ctx, alert); err != nil {
			s.logger.Sugar().Errorw("failed to create alert",
				"year", year.ID, "recipient", u.ID, "error", err)
		}
	}
}

// writeBreakdownReport renders the per-item overdue breakdown as a PDF and
// stores it under the reports directory.
func (s *EscalationService) writeBreakdownReport(year *models.AcademicYear, reviewerID string, items []models.PendingEvidence) (string, error) {
	if s.exporter == nil || s.reports == nil {
		return "", fmt.Errorf("report generation not configured")
	}

	dataset := export.Dataset{
		Headers: []string{"Evidence", "File", "Uploader", "Sub-indicator", "Indicator", "Standard", "Level"},
	}
	for _, item := range items {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Evidence":      item.EvidenceID,
			"File":          item.FileName,
			"Uploader":      item.UploaderName,
			"Sub-indicator": item.SubIndicatorName,
			"Indicator":     item.IndicatorName,
			"Standard":      item.StandardName,
			"Level":         item.LevelName,
		})
	}

	pdf, err := s.exporter.Render(dataset, fmt.Sprintf("Overdue evaluations - %s", year.Name))
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("overdue/%s/%s.pdf", year.ID, reviewerID)
	return s.reports.Save(filename, pdf)
}
