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

type examSlotEditor interface {
	List(ctx context.Context, courseID string, query dto.ExamSlotQuery) ([]models.ExamSlot, error)
	Lock(ctx context.Context, slotID, actor string) (*models.ExamSlot, error)
	Unlock(ctx context.Context, slotID, actor string) (*models.ExamSlot, error)
	Swap(ctx context.Context, req dto.SwapSlotsRequest, actor string) ([]models.ExamSlot, error)
	ManualSchedule(ctx context.Context, slotID string, req dto.ManualScheduleRequest, actor string) (*models.ExamSlot, error)
	History(ctx context.Context, studentID string, examNumber int) ([]models.ExamSlotHistory, error)
	Revert(ctx context.Context, historyID, actor string) (*models.ExamSlot, error)
	BulkUnlock(ctx context.Context, courseID string, req dto.BulkUnlockRequest, actor string) (*dto.BulkSlotResponse, error)
	AutoLock(ctx context.Context, courseID string, req dto.AutoLockRequest, actor string) (*dto.BulkSlotResponse, error)
}

// ExamSlotHandler exposes audited slot edits.
type ExamSlotHandler struct {
	service examSlotEditor
}

// NewExamSlotHandler constructs the handler.
func NewExamSlotHandler(svc *service.ExamSlotService) *ExamSlotHandler {
	return &ExamSlotHandler{service: svc}
}

// List godoc
// @Summary List live exam slots of a course
// @Tags Exam Slots
// @Produce json
// @Param courseId path string true "Course ID"
// @Param examNumber query int false "Exam number"
// @Param sectionId query string false "Section ID"
// @Param scheduled query bool false "Only scheduled or unscheduled slots"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/exam-slots [get]
func (h *ExamSlotHandler) List(c *gin.Context) {
	var query dto.ExamSlotQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	slots, err := h.service.List(c.Request.Context(), c.Param("courseId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithMeta(c, http.StatusOK, slots, map[string]interface{}{"count": len(slots)})
}

// Lock godoc
// @Summary Lock an exam slot
// @Tags Exam Slots
// @Produce json
// @Param id path string true "Exam slot ID"
// @Success 200 {object} response.Envelope
// @Router /exam-slots/{id}/lock [post]
func (h *ExamSlotHandler) Lock(c *gin.Context) {
	slot, err := h.service.Lock(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot)
}

// Unlock godoc
// @Summary Unlock an exam slot
// @Tags Exam Slots
// @Produce json
// @Param id path string true "Exam slot ID"
// @Success 200 {object} response.Envelope
// @Router /exam-slots/{id}/unlock [post]
func (h *ExamSlotHandler) Unlock(c *gin.Context) {
	slot, err := h.service.Unlock(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot)
}

// Swap godoc
// @Summary Swap the timing of two slots of the same exam
// @Tags Exam Slots
// @Accept json
// @Produce json
// @Param payload body dto.SwapSlotsRequest true "Swap payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /exam-slots/swap [post]
func (h *ExamSlotHandler) Swap(c *gin.Context) {
	var req dto.SwapSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid swap payload"))
		return
	}
	slots, err := h.service.Swap(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots)
}

// ManualSchedule godoc
// @Summary Pin a slot to an explicit date and interval
// @Tags Exam Slots
// @Accept json
// @Produce json
// @Param id path string true "Exam slot ID"
// @Param payload body dto.ManualScheduleRequest true "Manual schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exam-slots/{id}/schedule [post]
func (h *ExamSlotHandler) ManualSchedule(c *gin.Context) {
	var req dto.ManualScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid manual schedule payload"))
		return
	}
	slot, err := h.service.ManualSchedule(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot)
}

// History godoc
// @Summary List a student's slot history for an exam
// @Tags Exam Slots
// @Produce json
// @Param studentId path string true "Student ID"
// @Param examNumber path int true "Exam number"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/exams/{examNumber}/history [get]
func (h *ExamSlotHandler) History(c *gin.Context) {
	examNumber, err := strconv.Atoi(c.Param("examNumber"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "examNumber must be an integer"))
		return
	}
	entries, err := h.service.History(c.Request.Context(), c.Param("studentId"), examNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}

// Revert godoc
// @Summary Restore a slot to a history snapshot
// @Tags Exam Slots
// @Produce json
// @Param id path string true "History entry ID"
// @Success 200 {object} response.Envelope
// @Router /exam-slot-histories/{id}/revert [post]
func (h *ExamSlotHandler) Revert(c *gin.Context) {
	slot, err := h.service.Revert(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot)
}

// BulkUnlock godoc
// @Summary Unlock an exam's slots in a course
// @Tags Exam Slots
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.BulkUnlockRequest true "Bulk unlock payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/exam-slots/bulk-unlock [post]
func (h *ExamSlotHandler) BulkUnlock(c *gin.Context) {
	var req dto.BulkUnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk unlock payload"))
		return
	}
	result, err := h.service.BulkUnlock(c.Request.Context(), c.Param("courseId"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// AutoLock godoc
// @Summary Lock every scheduled slot of a course on a date
// @Tags Exam Slots
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.AutoLockRequest false "Auto lock payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/exam-slots/auto-lock [post]
func (h *ExamSlotHandler) AutoLock(c *gin.Context) {
	var req dto.AutoLockRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid auto lock payload"))
			return
		}
	}
	result, err := h.service.AutoLock(c.Request.Context(), c.Param("courseId"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
