package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/examslot-api/internal/dto"
	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/internal/service"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
	"github.com/noah-isme/examslot-api/pkg/response"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType  = "text/csv; charset=utf-8"
)

type examScheduler interface {
	Generate(ctx context.Context, courseID string, req dto.GenerateScheduleRequest, actor string) (*dto.GenerateScheduleResponse, error)
	GenerateAsync(ctx context.Context, courseID string, req dto.GenerateScheduleRequest, actor string) (*dto.ScheduleRunAccepted, error)
	Run(ctx context.Context, runID string) (*models.ScheduleRun, error)
	RegenerateStudent(ctx context.Context, studentID string, req dto.RegenerateStudentRequest, actor string) (*dto.RegenerateStudentResponse, error)
}

type courseExporter interface {
	CourseWorkbook(ctx context.Context, courseID string) ([]byte, string, error)
	CourseCSV(ctx context.Context, courseID string) ([]byte, string, error)
}

// ExamScheduleHandler exposes generation, run status and workbook export endpoints.
type ExamScheduleHandler struct {
	service examScheduler
	export  courseExporter
}

// NewExamScheduleHandler constructs the handler.
func NewExamScheduleHandler(svc *service.ExamScheduleService, export *service.ExportService) *ExamScheduleHandler {
	return &ExamScheduleHandler{service: svc, export: export}
}

// Generate godoc
// @Summary Generate exam slots for a course
// @Description Plans every student for exams startingExam..totalExams. Locked slots are kept. With async=true the run is queued and its id returned.
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param async query bool false "Queue the run instead of waiting"
// @Param payload body dto.GenerateScheduleRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{courseId}/schedule/generate [post]
func (h *ExamScheduleHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
			return
		}
	}
	courseID := c.Param("courseId")
	actor := actorFromContext(c)

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		accepted, err := h.service.GenerateAsync(c.Request.Context(), courseID, req, actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, accepted)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), courseID, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Run godoc
// @Summary Get an asynchronous generation run
// @Tags Scheduling
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule-runs/{runId} [get]
func (h *ExamScheduleHandler) Run(c *gin.Context) {
	run, err := h.service.Run(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// RegenerateStudent godoc
// @Summary Re-place one student from an exam onwards
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body dto.RegenerateStudentRequest true "Regenerate payload"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/schedule/regenerate [post]
func (h *ExamScheduleHandler) RegenerateStudent(c *gin.Context) {
	var req dto.RegenerateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid regenerate payload"))
		return
	}
	result, err := h.service.RegenerateStudent(c.Request.Context(), c.Param("studentId"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ExportWorkbook godoc
// @Summary Download the course schedule as an Excel workbook
// @Tags Scheduling
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param courseId path string true "Course ID"
// @Success 200 {file} file
// @Router /courses/{courseId}/schedule/export.xlsx [get]
func (h *ExamScheduleHandler) ExportWorkbook(c *gin.Context) {
	payload, filename, err := h.export.CourseWorkbook(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, xlsxContentType, filename, payload)
}

// ExportCSV godoc
// @Summary Download the course schedule as CSV
// @Tags Scheduling
// @Produce text/csv
// @Param courseId path string true "Course ID"
// @Success 200 {file} file
// @Router /courses/{courseId}/schedule/export.csv [get]
func (h *ExamScheduleHandler) ExportCSV(c *gin.Context) {
	payload, filename, err := h.export.CourseCSV(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, csvContentType, filename, payload)
}
