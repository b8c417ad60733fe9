package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/examslot-api/internal/dto"
	"github.com/noah-isme/examslot-api/internal/service"
	"github.com/noah-isme/examslot-api/pkg/response"
)

const icsContentType = "text/calendar; charset=utf-8"

type calendarFeeds interface {
	CalendarLink(ctx context.Context, studentID string) (*dto.CalendarLinkResponse, error)
	StudentCalendar(ctx context.Context, token string) ([]byte, error)
}

// CalendarHandler serves signed student calendar feeds.
type CalendarHandler struct {
	service calendarFeeds
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(svc *service.ExportService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

// Link godoc
// @Summary Issue a signed calendar feed URL for a student
// @Tags Calendar
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/calendar-link [get]
func (h *CalendarHandler) Link(c *gin.Context) {
	link, err := h.service.CalendarLink(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Feed godoc
// @Summary Public iCalendar feed of a student's scheduled exams
// @Tags Calendar
// @Produce text/calendar
// @Param token path string true "Signed link token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /calendar/students/{token}/exams.ics [get]
func (h *CalendarHandler) Feed(c *gin.Context) {
	payload, err := h.service.StudentCalendar(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, icsContentType, payload)
}
