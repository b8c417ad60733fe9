package dto

import "github.com/noah-isme/examslot-api/internal/models"

// GenerateScheduleRequest starts a generation run for a course.
type GenerateScheduleRequest struct {
	StartDate    string                 `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	StartingExam int                    `json:"startingExam" validate:"omitempty,min=1"`
	SectionIDs   []string               `json:"sectionIds" validate:"omitempty,dive,required"`
	Config       *models.ScheduleConfig `json:"config"`
}

// GenerateScheduleResponse wraps the run summary.
type GenerateScheduleResponse struct {
	CourseID     string                `json:"courseId"`
	StartingExam int                   `json:"startingExam"`
	Superseded   int64                 `json:"superseded"`
	Result       models.ScheduleResult `json:"result"`
}

// ScheduleRunAccepted is returned when a run is queued.
type ScheduleRunAccepted struct {
	RunID  string                   `json:"runId"`
	Status models.ScheduleRunStatus `json:"status"`
}

// RegenerateStudentRequest re-places one student from an exam onwards.
type RegenerateStudentRequest struct {
	FromExam int `json:"fromExam" validate:"required,min=1"`
}

// RegenerateStudentResponse lists the slots that were rewritten.
type RegenerateStudentResponse struct {
	StudentID string            `json:"studentId"`
	Updated   []models.ExamSlot `json:"updated"`
	Skipped   []int             `json:"skippedExams"`
	Errors    []string          `json:"errors"`
}

// SwapSlotsRequest exchanges the timing of two slots.
type SwapSlotsRequest struct {
	FirstSlotID  string `json:"firstSlotId" validate:"required"`
	SecondSlotID string `json:"secondSlotId" validate:"required,nefield=FirstSlotID"`
	Reason       string `json:"reason" validate:"omitempty,max=255"`
}

// ManualScheduleRequest pins a slot to an explicit date and interval.
type ManualScheduleRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,max=255"`
}

// BulkUnlockRequest unlocks an exam's slots, optionally for one week group.
type BulkUnlockRequest struct {
	ExamNumber int    `json:"examNumber" validate:"required,min=1"`
	WeekGroup  string `json:"weekGroup" validate:"omitempty,oneof=A B"`
}

// AutoLockRequest locks a day's scheduled slots. An empty date means today.
type AutoLockRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// BulkSlotResponse reports how many slots a bulk operation changed.
type BulkSlotResponse struct {
	Affected int `json:"affected"`
}

// ExamSlotQuery captures listing filters.
type ExamSlotQuery struct {
	ExamNumber int    `form:"examNumber" validate:"omitempty,min=1"`
	SectionID  string `form:"sectionId"`
	Scheduled  *bool  `form:"scheduled"`
}

// CalendarLinkResponse carries a signed public feed URL.
type CalendarLinkResponse struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expiresAt"`
}
