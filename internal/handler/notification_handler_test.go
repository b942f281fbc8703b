package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-iqa/iqa-notify-api/internal/dto"
	"github.com/campus-iqa/iqa-notify-api/internal/middleware"
	"github.com/campus-iqa/iqa-notify-api/internal/models"
	appErrors "github.com/campus-iqa/iqa-notify-api/pkg/errors"
)

type notificationFeedMock struct {
	items       []models.Notification
	unread      int
	markReadErr error

	markedID   string
	markedUser string
}

func (m *notificationFeedMock) ListForUser(_ context.Context, _ string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	return m.items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: len(m.items)}, nil
}

func (m *notificationFeedMock) CountUnread(context.Context, string) (int, error) {
	return m.unread, nil
}

func (m *notificationFeedMock) MarkRead(_ context.Context, id, userID string) error {
	if m.markReadErr != nil {
		return m.markReadErr
	}
	m.markedID = id
	m.markedUser = userID
	return nil
}

func (m *notificationFeedMock) CreateFromRequest(_ context.Context, req dto.CreateNotificationRequest) (*models.Notification, error) {
	return &models.Notification{ID: "n-1", UserID: req.UserID, Title: req.Title}, nil
}

func testClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleInternalAssessor}
}

func TestNotificationHandlerListRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(&notificationFeedMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/notifications", nil)

	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotificationHandlerListOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(&notificationFeedMock{items: []models.Notification{{ID: "n-1"}}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/notifications?page=2&pageSize=5", nil)
	c.Set(middleware.ContextUserKey, testClaims())

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"n-1"`)
	assert.Contains(t, w.Body.String(), `"page":2`)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(&notificationFeedMock{unread: 3})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/notifications/unread-count", nil)
	c.Set(middleware.ContextUserKey, testClaims())

	h.UnreadCount(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":3`)
}

func TestNotificationHandlerMarkReadScopedToOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &notificationFeedMock{}
	h := NewNotificationHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPatch, "/notifications/n-9/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "n-9"}}
	c.Set(middleware.ContextUserKey, testClaims())

	h.MarkRead(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "n-9", mock.markedID)
	assert.Equal(t, "user-1", mock.markedUser)
}

func TestNotificationHandlerMarkReadNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(&notificationFeedMock{markReadErr: appErrors.ErrNotFound})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPatch, "/notifications/n-9/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "n-9"}}
	c.Set(middleware.ContextUserKey, testClaims())

	h.MarkRead(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(&notificationFeedMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/notifications", bytes.NewReader([]byte(`invalid`)))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandlerCreateOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewNotificationHandler(&notificationFeedMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateNotificationRequest{
		UserID: "3a2d5f60-8a1c-4f7a-9a55-1f2f3c4d5e6f",
		Type:   string(models.NotificationSystemAlert),
		Title:  "Maintenance window",
	})
	c.Request, _ = http.NewRequest(http.MethodPost, "/notifications", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Maintenance window")
}
