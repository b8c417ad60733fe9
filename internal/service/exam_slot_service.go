package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/examslot-api/internal/dto"
	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/internal/scheduler"
	"github.com/noah-isme/examslot-api/pkg/cache"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
)

const (
	historyReasonLocked     = "locked"
	historyReasonUnlocked   = "unlocked"
	historyReasonSwap       = "swap"
	historyReasonManual     = "manual schedule"
	historyReasonBulkUnlock = "bulk unlock"
	historyReasonAutoLock   = "auto lock"
)

// ExamSlotService applies audited manual edits to persisted slots.
type ExamSlotService struct {
	slots     examSlotStore
	history   historyStore
	tx        txProvider
	guard     courseGuard
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExamSlotService wires mutation dependencies.
func NewExamSlotService(
	slots examSlotStore,
	history historyStore,
	tx txProvider,
	locker cache.Locker,
	lockTTL time.Duration,
	cacheSvc *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExamSlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamSlotService{
		slots:     slots,
		history:   history,
		tx:        tx,
		guard:     newCourseGuard(locker, lockTTL),
		cache:     cacheSvc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns the live slots of a course, served from cache when possible.
func (s *ExamSlotService) List(ctx context.Context, courseID string, query dto.ExamSlotQuery) ([]models.ExamSlot, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot filter")
	}
	values := url.Values{}
	if query.ExamNumber > 0 {
		values.Set("exam", strconv.Itoa(query.ExamNumber))
	}
	if query.SectionID != "" {
		values.Set("section", query.SectionID)
	}
	if query.Scheduled != nil {
		values.Set("scheduled", strconv.FormatBool(*query.Scheduled))
	}
	key := SlotListKey(courseID, values)

	var cached []models.ExamSlot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	slots, err := s.slots.List(ctx, nil, models.ExamSlotFilter{
		CourseID:   courseID,
		SectionID:  query.SectionID,
		ExamNumber: query.ExamNumber,
		Scheduled:  query.Scheduled,
	})
	if err != nil {
		return nil, internalErr(err, "failed to list exam slots")
	}
	if slots == nil {
		slots = []models.ExamSlot{}
	}
	_ = s.cache.Set(ctx, key, slots, 0)
	return slots, nil
}

// Lock pins a slot so regeneration keeps it. Locking a locked slot is a no-op.
func (s *ExamSlotService) Lock(ctx context.Context, slotID, actor string) (*models.ExamSlot, error) {
	slot, err := s.setLocked(ctx, slotID, actor, true)
	s.metrics.RecordMutation("lock", err)
	return slot, err
}

// Unlock releases a slot. Unlocking an unlocked slot is a no-op.
func (s *ExamSlotService) Unlock(ctx context.Context, slotID, actor string) (*models.ExamSlot, error) {
	slot, err := s.setLocked(ctx, slotID, actor, false)
	s.metrics.RecordMutation("unlock", err)
	return slot, err
}

func (s *ExamSlotService) setLocked(ctx context.Context, slotID, actor string, locked bool) (*models.ExamSlot, error) {
	courseID, err := s.courseOf(ctx, slotID)
	if err != nil {
		return nil, err
	}
	reason := historyReasonUnlocked
	if locked {
		reason = historyReasonLocked
	}

	var result *models.ExamSlot
	err = s.guard.run(ctx, courseID, func() error {
		return withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			slot, txErr := s.slots.FindByID(ctx, tx, slotID, true)
			if txErr != nil {
				return notFoundOr(txErr, "exam slot not found", "failed to load exam slot")
			}
			if slot.IsLocked == locked {
				result = slot
				return nil
			}
			if txErr = s.history.Append(ctx, tx, models.SnapshotExamSlot(*slot, actor, reason, s.now().UTC())); txErr != nil {
				return internalErr(txErr, "failed to write exam slot history")
			}
			if txErr = s.slots.SetLocked(ctx, tx, []string{slot.ID}, locked); txErr != nil {
				return internalErr(txErr, "failed to update exam slot lock")
			}
			slot.IsLocked = locked
			result = slot
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return result, nil
}

// Swap exchanges the timing of two slots of the same exam. Nothing changes when either new interval overlaps.
func (s *ExamSlotService) Swap(ctx context.Context, req dto.SwapSlotsRequest, actor string) ([]models.ExamSlot, error) {
	result, err := s.swap(ctx, req, actor)
	s.metrics.RecordMutation("swap", err)
	return result, err
}

func (s *ExamSlotService) swap(ctx context.Context, req dto.SwapSlotsRequest, actor string) ([]models.ExamSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	courseID, err := s.courseOf(ctx, req.FirstSlotID)
	if err != nil {
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = historyReasonSwap
	}

	var result []models.ExamSlot
	err = s.guard.run(ctx, courseID, func() error {
		return withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			first, txErr := s.slots.FindByID(ctx, tx, req.FirstSlotID, true)
			if txErr != nil {
				return notFoundOr(txErr, "exam slot not found", "failed to load exam slot")
			}
			second, txErr := s.slots.FindByID(ctx, tx, req.SecondSlotID, true)
			if txErr != nil {
				return notFoundOr(txErr, "exam slot not found", "failed to load exam slot")
			}
			if first.CourseID != second.CourseID || first.ExamNumber != second.ExamNumber {
				return appErrors.Clone(appErrors.ErrValidation, "only slots of the same course exam can be swapped")
			}
			if first.IsLocked || second.IsLocked {
				return appErrors.Clone(appErrors.ErrSlotLocked, "locked slots cannot be swapped")
			}

			nextFirst, nextSecond := *first, *second
			copyTiming(&nextFirst, *second)
			copyTiming(&nextSecond, *first)

			ignore := []string{first.ID, second.ID}
			if txErr = s.ensureFree(ctx, tx, nextFirst, ignore...); txErr != nil {
				return txErr
			}
			if txErr = s.ensureFree(ctx, tx, nextSecond, ignore...); txErr != nil {
				return txErr
			}

			now := s.now().UTC()
			if txErr = s.history.Append(ctx, tx,
				models.SnapshotExamSlot(*first, actor, reason, now),
				models.SnapshotExamSlot(*second, actor, reason, now),
			); txErr != nil {
				return internalErr(txErr, "failed to write exam slot history")
			}
			if txErr = s.slots.UpdateTiming(ctx, tx, &nextFirst); txErr != nil {
				return internalErr(txErr, "failed to update exam slot")
			}
			if txErr = s.slots.UpdateTiming(ctx, tx, &nextSecond); txErr != nil {
				return internalErr(txErr, "failed to update exam slot")
			}
			result = []models.ExamSlot{nextFirst, nextSecond}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return result, nil
}

// ManualSchedule pins a slot to an explicit date and interval and marks it scheduled.
func (s *ExamSlotService) ManualSchedule(ctx context.Context, slotID string, req dto.ManualScheduleRequest, actor string) (*models.ExamSlot, error) {
	slot, err := s.manualSchedule(ctx, slotID, req, actor)
	s.metrics.RecordMutation("manual_schedule", err)
	return slot, err
}

func (s *ExamSlotService) manualSchedule(ctx context.Context, slotID string, req dto.ManualScheduleRequest, actor string) (*models.ExamSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual schedule payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid startTime")
	}
	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid endTime")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endTime must be after startTime")
	}
	courseID, err := s.courseOf(ctx, slotID)
	if err != nil {
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = historyReasonManual
	}

	var result *models.ExamSlot
	err = s.guard.run(ctx, courseID, func() error {
		return withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			slot, txErr := s.slots.FindByID(ctx, tx, slotID, true)
			if txErr != nil {
				return notFoundOr(txErr, "exam slot not found", "failed to load exam slot")
			}
			if slot.IsLocked {
				return appErrors.Clone(appErrors.ErrSlotLocked, "locked slots cannot be rescheduled")
			}
			next := *slot
			next.Date, next.StartTime, next.EndTime = &date, &start, &end
			next.IsScheduled = true
			if txErr = s.ensureFree(ctx, tx, next, slot.ID); txErr != nil {
				return txErr
			}
			if txErr = s.history.Append(ctx, tx, models.SnapshotExamSlot(*slot, actor, reason, s.now().UTC())); txErr != nil {
				return internalErr(txErr, "failed to write exam slot history")
			}
			if txErr = s.slots.UpdateTiming(ctx, tx, &next); txErr != nil {
				return internalErr(txErr, "failed to update exam slot")
			}
			result = &next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return result, nil
}

// History lists a student's snapshots for an exam, most recent first.
func (s *ExamSlotService) History(ctx context.Context, studentID string, examNumber int) ([]models.ExamSlotHistory, error) {
	if studentID == "" || examNumber <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId and a positive examNumber are required")
	}
	entries, err := s.history.ListByStudentExam(ctx, studentID, examNumber)
	if err != nil {
		return nil, internalErr(err, "failed to list exam slot history")
	}
	if entries == nil {
		entries = []models.ExamSlotHistory{}
	}
	return entries, nil
}

// Revert restores the live slot of the entry's (student, exam) to the snapshot and records its own history row.
func (s *ExamSlotService) Revert(ctx context.Context, historyID, actor string) (*models.ExamSlot, error) {
	slot, err := s.revert(ctx, historyID, actor)
	s.metrics.RecordMutation("revert", err)
	return slot, err
}

func (s *ExamSlotService) revert(ctx context.Context, historyID, actor string) (*models.ExamSlot, error) {
	entry, err := s.history.FindByID(ctx, historyID)
	if err != nil {
		return nil, notFoundOr(err, "history entry not found", "failed to load history entry")
	}
	reason := fmt.Sprintf("revert to %s", entry.ID)

	var (
		result   *models.ExamSlot
		courseID string
	)
	current, err := s.slots.FindByStudentExam(ctx, nil, entry.StudentID, entry.ExamNumber)
	if err != nil {
		return nil, notFoundOr(err, "no live slot to revert", "failed to load exam slot")
	}
	courseID = current.CourseID

	err = s.guard.run(ctx, courseID, func() error {
		return withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			slot, txErr := s.slots.FindByStudentExam(ctx, tx, entry.StudentID, entry.ExamNumber)
			if txErr != nil {
				return notFoundOr(txErr, "no live slot to revert", "failed to load exam slot")
			}
			if slot.IsLocked {
				return appErrors.Clone(appErrors.ErrSlotLocked, "locked slots cannot be reverted")
			}
			// The slot stays in the student's current section.
			next := *slot
			next.WeekNumber = entry.WeekNumber
			next.Date, next.StartTime, next.EndTime = entry.Date, entry.StartTime, entry.EndTime
			next.IsScheduled = entry.IsScheduled
			if txErr = s.ensureFree(ctx, tx, next, slot.ID); txErr != nil {
				return txErr
			}
			if txErr = s.history.Append(ctx, tx, models.SnapshotExamSlot(*slot, actor, reason, s.now().UTC())); txErr != nil {
				return internalErr(txErr, "failed to write exam slot history")
			}
			if txErr = s.slots.UpdateTiming(ctx, tx, &next); txErr != nil {
				return internalErr(txErr, "failed to update exam slot")
			}
			result = &next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateCourse(ctx, courseID)
	return result, nil
}

// BulkUnlock unlocks an exam's slots in a course, optionally for one week group.
func (s *ExamSlotService) BulkUnlock(ctx context.Context, courseID string, req dto.BulkUnlockRequest, actor string) (*dto.BulkSlotResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk unlock payload")
	}
	resp, err := s.bulkLock(ctx, courseID, actor, historyReasonBulkUnlock, false, func(tx *sqlx.Tx) ([]models.ExamSlot, error) {
		return s.slots.ListLocked(ctx, tx, courseID, req.ExamNumber, req.WeekGroup)
	})
	s.metrics.RecordMutation("bulk_unlock", err)
	return resp, err
}

// AutoLock locks every scheduled slot of a course on a date. An empty date means today.
func (s *ExamSlotService) AutoLock(ctx context.Context, courseID string, req dto.AutoLockRequest, actor string) (*dto.BulkSlotResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid auto lock payload")
	}
	date := models.DateOnly(s.now())
	if req.Date != "" {
		parsed, err := models.ParseDate(req.Date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
		}
		date = parsed
	}
	resp, err := s.bulkLock(ctx, courseID, actor, historyReasonAutoLock, true, func(tx *sqlx.Tx) ([]models.ExamSlot, error) {
		return s.slots.ListUnlockedOnDate(ctx, tx, courseID, date)
	})
	s.metrics.RecordMutation("auto_lock", err)
	return resp, err
}

func (s *ExamSlotService) bulkLock(ctx context.Context, courseID, actor, reason string, locked bool, load func(tx *sqlx.Tx) ([]models.ExamSlot, error)) (*dto.BulkSlotResponse, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}
	resp := &dto.BulkSlotResponse{}
	err := s.guard.run(ctx, courseID, func() error {
		return withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			targets, txErr := load(tx)
			if txErr != nil {
				return internalErr(txErr, "failed to load exam slots")
			}
			if len(targets) == 0 {
				return nil
			}
			now := s.now().UTC()
			ids := make([]string, 0, len(targets))
			entries := make([]models.ExamSlotHistory, 0, len(targets))
			for _, slot := range targets {
				ids = append(ids, slot.ID)
				entries = append(entries, models.SnapshotExamSlot(slot, actor, reason, now))
			}
			if txErr = s.history.Append(ctx, tx, entries...); txErr != nil {
				return internalErr(txErr, "failed to write exam slot history")
			}
			if txErr = s.slots.SetLocked(ctx, tx, ids, locked); txErr != nil {
				return internalErr(txErr, "failed to update exam slot locks")
			}
			resp.Affected = len(ids)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if resp.Affected > 0 {
		s.cache.InvalidateCourse(ctx, courseID)
	}
	s.logger.Info("bulk slot lock change",
		zap.String("course_id", courseID),
		zap.String("reason", reason),
		zap.Int("affected", resp.Affected),
	)
	return resp, nil
}

// ensureFree rejects a scheduled target that overlaps another live slot of its section and date.
func (s *ExamSlotService) ensureFree(ctx context.Context, tx sqlx.ExtContext, target models.ExamSlot, ignore ...string) error {
	if !target.IsScheduled || !target.HasTime() {
		return nil
	}
	if *target.EndTime <= *target.StartTime {
		return appErrors.Clone(appErrors.ErrValidation, "slot end must be after its start")
	}
	peers, err := s.slots.ListBySectionDate(ctx, tx, target.SectionID, *target.Date)
	if err != nil {
		return internalErr(err, "failed to load section slots")
	}
	if clash, ok := scheduler.FindConflict(peers, target.SectionID, *target.Date, *target.StartTime, *target.EndTime, ignore...); ok {
		return appErrors.Clone(appErrors.ErrSlotOverlap, fmt.Sprintf("slot overlaps exam slot %s (%s-%s)", clash.ID, clash.StartTime, clash.EndTime))
	}
	return nil
}

func (s *ExamSlotService) courseOf(ctx context.Context, slotID string) (string, error) {
	if slotID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "slot id is required")
	}
	slot, err := s.slots.FindByID(ctx, nil, slotID, false)
	if err != nil {
		return "", notFoundOr(err, "exam slot not found", "failed to load exam slot")
	}
	return slot.CourseID, nil
}

func copyTiming(dst *models.ExamSlot, src models.ExamSlot) {
	dst.WeekNumber = src.WeekNumber
	dst.Date = src.Date
	dst.StartTime = src.StartTime
	dst.EndTime = src.EndTime
	dst.IsScheduled = src.IsScheduled
}
