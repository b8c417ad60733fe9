package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/examslot-api/internal/dto"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
)

type calendarFeedsMock struct{}

func (calendarFeedsMock) CalendarLink(ctx context.Context, studentID string) (*dto.CalendarLinkResponse, error) {
	return &dto.CalendarLinkResponse{URL: "https://exams.test/calendar/students/tok/exams.ics", ExpiresAt: 1700000000}, nil
}

func (calendarFeedsMock) StudentCalendar(ctx context.Context, token string) ([]byte, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid calendar link")
	}
	return []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), nil
}

func newCalendarRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := &CalendarHandler{service: calendarFeedsMock{}}
	router := gin.New()
	router.GET("/students/:studentId/calendar-link", handler.Link)
	router.GET("/calendar/students/:token/exams.ics", handler.Feed)
	return router
}

func TestCalendarHandlerLink(t *testing.T) {
	w := perform(newCalendarRouter(), http.MethodGet, "/students/stu-1/calendar-link", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exams.ics")
}

func TestCalendarHandlerFeed(t *testing.T) {
	router := newCalendarRouter()

	w := perform(router, http.MethodGet, "/calendar/students/good/exams.ics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, icsContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")

	w = perform(router, http.MethodGet, "/calendar/students/bad/exams.ics", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
