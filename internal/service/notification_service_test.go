package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-iqa/iqa-notify-api/internal/models"
	appErrors "github.com/campus-iqa/iqa-notify-api/pkg/errors"
)

type fakeDispatchStore struct {
	records     map[string]*models.Notification
	pending     []models.Notification
	sent        map[string]time.Time
	read        map[string]string
	markReadErr error
	deletedCut  time.Time
	deleted     int64
}

func newFakeDispatchStore(records ...*models.Notification) *fakeDispatchStore {
	f := &fakeDispatchStore{
		records: map[string]*models.Notification{},
		sent:    map[string]time.Time{},
		read:    map[string]string{},
	}
	for _, n := range records {
		f.records[n.ID] = n
	}
	return f
}

func (f *fakeDispatchStore) Create(_ context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = fmt.Sprintf("n-%d", len(f.records)+1)
	}
	f.records[n.ID] = n
	return nil
}

func (f *fakeDispatchStore) GetByID(_ context.Context, id string) (*models.Notification, error) {
	n, ok := f.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return n, nil
}

func (f *fakeDispatchStore) ListPending(context.Context, time.Time, int) ([]models.Notification, error) {
	return f.pending, nil
}

func (f *fakeDispatchStore) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	f.sent[id] = sentAt
	if n, ok := f.records[id]; ok {
		n.SentAt = &sentAt
	}
	return nil
}

func (f *fakeDispatchStore) MarkRead(_ context.Context, id, userID string) error {
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.read[id] = userID
	return nil
}

func (f *fakeDispatchStore) CountUnread(context.Context, string) (int, error) {
	return len(f.records), nil
}

func (f *fakeDispatchStore) ListForUser(context.Context, string, int, int) ([]models.Notification, int, error) {
	return nil, len(f.records), nil
}

func (f *fakeDispatchStore) DeleteSentBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deletedCut = cutoff
	return f.deleted, nil
}

type fakeRecipients struct {
	users map[string]*models.User
}

func (f *fakeRecipients) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

type fakeEmailChannel struct {
	sent []string
	err  error
}

func (f *fakeEmailChannel) Send(_ context.Context, to, _ string, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to)
	return "email-id", nil
}

type fakePushChannel struct {
	sent []string
	err  error
}

func (f *fakePushChannel) Send(_ context.Context, userID, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, userID)
	return "push-id", nil
}

func dispatchRecipient() *models.User {
	return &models.User{
		ID:           "user-1",
		Email:        "reviewer@example.edu",
		EmailEnabled: true,
		PushEnabled:  true,
	}
}

func pendingNotification() *models.Notification {
	return &models.Notification{
		ID:      "n-1",
		UserID:  "user-1",
		Type:    models.NotificationReminderUpload,
		Title:   "Upload deadline approaching",
		Message: "The upload window closes in 2 day(s).",
		Metadata: models.NotificationMetadata{
			AcademicYearID: "year-1",
		},
	}
}

func TestDispatchSendsBothChannels(t *testing.T) {
	store := newFakeDispatchStore(pendingNotification())
	email := &fakeEmailChannel{}
	push := &fakePushChannel{}
	svc := NewNotificationService(store, &fakeRecipients{users: map[string]*models.User{"user-1": dispatchRecipient()}}, email, push, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	require.NoError(t, svc.Dispatch(context.Background(), "n-1"))

	assert.Equal(t, []string{"reviewer@example.edu"}, email.sent)
	assert.Equal(t, []string{"user-1"}, push.sent)
	assert.Contains(t, store.sent, "n-1")
}

func TestDispatchEmailFailureStillMarksSentAndPushes(t *testing.T) {
	store := newFakeDispatchStore(pendingNotification())
	email := &fakeEmailChannel{err: errors.New("smtp down")}
	push := &fakePushChannel{}
	svc := NewNotificationService(store, &fakeRecipients{users: map[string]*models.User{"user-1": dispatchRecipient()}}, email, push, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	require.NoError(t, svc.Dispatch(context.Background(), "n-1"))

	assert.Equal(t, []string{"user-1"}, push.sent)
	assert.Contains(t, store.sent, "n-1")
}

func TestDispatchNilChannelsSoftSkip(t *testing.T) {
	store := newFakeDispatchStore(pendingNotification())
	svc := NewNotificationService(store, &fakeRecipients{users: map[string]*models.User{"user-1": dispatchRecipient()}}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	require.NoError(t, svc.Dispatch(context.Background(), "n-1"))
	assert.Contains(t, store.sent, "n-1")
}

func TestDispatchHonoursChannelPreferences(t *testing.T) {
	recipient := dispatchRecipient()
	recipient.EmailEnabled = false

	store := newFakeDispatchStore(pendingNotification())
	email := &fakeEmailChannel{}
	push := &fakePushChannel{}
	svc := NewNotificationService(store, &fakeRecipients{users: map[string]*models.User{"user-1": recipient}}, email, push, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	require.NoError(t, svc.Dispatch(context.Background(), "n-1"))

	assert.Empty(t, email.sent)
	assert.Equal(t, []string{"user-1"}, push.sent)
}

func TestDispatchAlreadySent(t *testing.T) {
	n := pendingNotification()
	sentAt := time.Now().UTC()
	n.SentAt = &sentAt

	store := newFakeDispatchStore(n)
	svc := NewNotificationService(store, &fakeRecipients{}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	err := svc.Dispatch(context.Background(), "n-1")
	assert.ErrorIs(t, err, appErrors.ErrAlreadySent)
	assert.Empty(t, store.sent)
}

func TestDispatchMissingRecipient(t *testing.T) {
	store := newFakeDispatchStore(pendingNotification())
	svc := NewNotificationService(store, &fakeRecipients{}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	err := svc.Dispatch(context.Background(), "n-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMissingRecipient.Code, appErr.Code)
	assert.Empty(t, store.sent)
}

func TestFlushPendingSkipsFailuresAndCounts(t *testing.T) {
	ok := pendingNotification()
	orphan := pendingNotification()
	orphan.ID = "n-2"
	orphan.UserID = "ghost"

	store := newFakeDispatchStore(ok, orphan)
	store.pending = []models.Notification{*ok, *orphan}
	svc := NewNotificationService(store, &fakeRecipients{users: map[string]*models.User{"user-1": dispatchRecipient()}}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	count, err := svc.FlushPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Contains(t, store.sent, "n-1")
	assert.NotContains(t, store.sent, "n-2")
}

func TestMarkReadOwnershipMiss(t *testing.T) {
	store := newFakeDispatchStore()
	store.markReadErr = sql.ErrNoRows
	svc := NewNotificationService(store, &fakeRecipients{}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	err := svc.MarkRead(context.Background(), "n-1", "someone-else")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCreateRejectsIncompleteRecords(t *testing.T) {
	svc := NewNotificationService(newFakeDispatchStore(), &fakeRecipients{}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{})

	err := svc.Create(context.Background(), &models.Notification{UserID: "user-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCleanupExpiredClampsRetention(t *testing.T) {
	store := newFakeDispatchStore()
	store.deleted = 7
	svc := NewNotificationService(store, &fakeRecipients{}, nil, nil, nil, nil, zap.NewNop(), NotificationServiceConfig{
		RetentionMaxAge: 24 * time.Hour,
	})

	deleted, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	// A 1-day retention would erase the dedup history the ladder depends
	// on; the cutoff must sit at least 31 days back.
	minCutoff := time.Now().UTC().Add(-32 * 24 * time.Hour)
	maxCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.True(t, store.deletedCut.After(minCutoff))
	assert.True(t, store.deletedCut.Before(maxCutoff))
}

func TestRenderEmailBuildsActionLink(t *testing.T) {
	n := pendingNotification()
	subject, html := renderEmail(n, "https://iqa.example.edu/")

	assert.Equal(t, n.Title, subject)
	assert.Contains(t, html, n.Message)
	assert.Contains(t, html, "https://iqa.example.edu/academic-years/year-1")
	assert.False(t, strings.Contains(html, "//academic-years"), "base url must be trimmed")
}

func TestRenderEmailPrefersExplicitActionURL(t *testing.T) {
	n := pendingNotification()
	n.Metadata.ActionURL = "https://iqa.example.edu/evidence/42"

	_, html := renderEmail(n, "https://iqa.example.edu")
	assert.Contains(t, html, "https://iqa.example.edu/evidence/42")
	assert.NotContains(t, html, "/academic-years/")
}
