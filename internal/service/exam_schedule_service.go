package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/examslot-api/internal/dto"
	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/internal/scheduler"
	"github.com/noah-isme/examslot-api/pkg/cache"
	"github.com/noah-isme/examslot-api/pkg/config"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
	"github.com/noah-isme/examslot-api/pkg/jobs"
)

const (
	historyReasonRegenerated = "regenerated"
	scheduleJobType          = "schedule.generate"
)

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExamScheduleServiceConfig governs generation behaviour.
type ExamScheduleServiceConfig struct {
	Defaults models.ScheduleConfig
	LockTTL  time.Duration
}

// ExamScheduleService runs the recurrence driver against persisted rosters and writes the plan.
type ExamScheduleService struct {
	courses     courseStore
	sections    sectionReader
	students    studentStore
	constraints constraintReader
	slots       examSlotStore
	history     historyStore
	tx          txProvider
	guard       courseGuard
	cache       *CacheService
	metrics     *MetricsService
	runs        *ScheduleRunStore
	queue       jobDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
	defaults    models.ScheduleConfig
	newID       func() string
	now         func() time.Time
}

// NewExamScheduleService wires generation dependencies.
func NewExamScheduleService(
	courses courseStore,
	sections sectionReader,
	students studentStore,
	constraints constraintReader,
	slots examSlotStore,
	history historyStore,
	tx txProvider,
	locker cache.Locker,
	cacheSvc *CacheService,
	metrics *MetricsService,
	runs *ScheduleRunStore,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ExamScheduleServiceConfig,
) *ExamScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if runs == nil {
		runs = NewScheduleRunStore(time.Hour, cacheSvc)
	}
	return &ExamScheduleService{
		courses:     courses,
		sections:    sections,
		students:    students,
		constraints: constraints,
		slots:       slots,
		history:     history,
		tx:          tx,
		guard:       newCourseGuard(locker, cfg.LockTTL),
		cache:       cacheSvc,
		metrics:     metrics,
		runs:        runs,
		validator:   validate,
		logger:      logger,
		defaults:    cfg.Defaults,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// UseDispatcher enables asynchronous runs.
func (s *ExamScheduleService) UseDispatcher(queue jobDispatcher) {
	s.queue = queue
}

// DefaultScheduleConfig converts environment defaults into a course configuration.
func DefaultScheduleConfig(cfg config.SchedulerConfig) (models.ScheduleConfig, error) {
	start, err := models.ParseClock(cfg.StartTime)
	if err != nil {
		return models.ScheduleConfig{}, fmt.Errorf("parse SCHEDULE_START_TIME: %w", err)
	}
	end, err := models.ParseClock(cfg.EndTime)
	if err != nil {
		return models.ScheduleConfig{}, fmt.Errorf("parse SCHEDULE_END_TIME: %w", err)
	}
	excluded := make(models.WeekdayList, 0, len(cfg.ExcludedDays))
	for _, raw := range cfg.ExcludedDays {
		day, err := models.ParseWeekday(raw)
		if err != nil {
			return models.ScheduleConfig{}, fmt.Errorf("parse SCHEDULE_EXCLUDED_DAYS: %w", err)
		}
		excluded = append(excluded, day)
	}
	return models.ScheduleConfig{
		ExamDurationMinutes:    cfg.ExamDurationMinutes,
		BufferMinutes:          cfg.BufferMinutes,
		StartTime:              start,
		EndTime:                end,
		ExcludedDays:           excluded,
		ScheduleFrequencyWeeks: cfg.ScheduleFrequencyWeeks,
		TotalExams:             cfg.TotalExams,
	}, nil
}

// Generate plans every student of the course for exams startingExam..TotalExams and persists the plan.
func (s *ExamScheduleService) Generate(ctx context.Context, courseID string, req dto.GenerateScheduleRequest, actor string) (*dto.GenerateScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id is required")
	}

	var resp *dto.GenerateScheduleResponse
	started := s.now()
	err := s.guard.run(ctx, courseID, func() error {
		var runErr error
		resp, runErr = s.generateLocked(ctx, courseID, req, actor)
		return runErr
	})
	duration := s.now().Sub(started)
	if err != nil {
		if !errors.Is(err, appErrors.ErrGenerationInProgress) {
			s.metrics.ObserveGeneration(nil, duration)
		}
		return nil, err
	}

	s.metrics.ObserveGeneration(&resp.Result, duration)
	s.cache.InvalidateCourse(ctx, courseID)
	s.logger.Info("exam schedule generated",
		zap.String("course_id", courseID),
		zap.Int("starting_exam", resp.StartingExam),
		zap.Int("scheduled", resp.Result.ScheduledCount),
		zap.Int("unscheduled", resp.Result.UnscheduledCount),
		zap.Int("locked", resp.Result.LockedCount),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

func (s *ExamScheduleService) generateLocked(ctx context.Context, courseID string, req dto.GenerateScheduleRequest, actor string) (*dto.GenerateScheduleResponse, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}

	cfg, err := s.resolveConfig(course, req.Config)
	if err != nil {
		return nil, err
	}

	startDate := course.StartDate
	if req.StartDate != "" {
		if startDate, err = models.ParseDate(req.StartDate); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid startDate")
		}
	}
	startingExam := req.StartingExam
	if startingExam <= 0 {
		startingExam = 1
	}

	sections, err := s.sections.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, internalErr(err, "failed to load sections")
	}
	sections, err = selectSections(sections, req.SectionIDs)
	if err != nil {
		return nil, err
	}
	targetSections := make(map[string]bool, len(sections))
	for _, section := range sections {
		targetSections[section.ID] = true
	}

	allStudents, err := s.students.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, internalErr(err, "failed to load students")
	}
	students := make([]models.Student, 0, len(allStudents))
	targetStudents := make(map[string]bool, len(allStudents))
	for _, student := range allStudents {
		if targetSections[student.SectionID] {
			students = append(students, student)
			targetStudents[student.ID] = true
		}
	}

	constraints, err := s.constraints.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, internalErr(err, "failed to load student constraints")
	}

	live, err := s.slots.List(ctx, nil, models.ExamSlotFilter{CourseID: courseID})
	if err != nil {
		return nil, internalErr(err, "failed to load exam slots")
	}

	var (
		kept       []models.ExamSlot
		superseded []string
		prior      = make(map[string]models.ExamSlot)
	)
	for _, slot := range live {
		replace := !slot.IsLocked && slot.ExamNumber >= startingExam &&
			(targetSections[slot.SectionID] || targetStudents[slot.StudentID])
		if replace {
			superseded = append(superseded, slot.ID)
			prior[slotKey(slot.StudentID, slot.ExamNumber)] = slot
			continue
		}
		kept = append(kept, slot)
	}

	plan, err := scheduler.NewDriver(s.newID).Plan(scheduler.RunInput{
		CourseID:     courseID,
		Config:       cfg,
		StartDate:    startDate,
		StartingExam: startingExam,
		Sections:     sections,
		Students:     students,
		Constraints:  constraints,
		Existing:     kept,
	})
	if err != nil {
		return nil, mapSchedulerError(err)
	}

	now := s.now().UTC()
	var changed []models.ExamSlotHistory
	for _, slot := range plan.Slots {
		if before, ok := prior[slotKey(slot.StudentID, slot.ExamNumber)]; ok && !models.SameTiming(before, slot) {
			changed = append(changed, models.SnapshotExamSlot(before, actor, historyReasonRegenerated, now))
		}
	}

	stored := course.Config
	if req.Config != nil {
		stored = cfg
	}
	persistSchedule := req.Config != nil || !models.DateOnly(startDate).Equal(models.DateOnly(course.StartDate))

	var removed int64
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var txErr error
		if persistSchedule {
			if txErr = s.courses.UpdateSchedule(ctx, tx, courseID, stored, startDate); txErr != nil {
				return internalErr(txErr, "failed to store course schedule")
			}
		}
		if removed, txErr = s.slots.Supersede(ctx, tx, superseded); txErr != nil {
			return internalErr(txErr, "failed to supersede exam slots")
		}
		if txErr = s.slots.InsertBatch(ctx, tx, plan.Slots); txErr != nil {
			return internalErr(txErr, "failed to insert exam slots")
		}
		if txErr = s.history.Append(ctx, tx, changed...); txErr != nil {
			return internalErr(txErr, "failed to write exam slot history")
		}
		if txErr = s.students.UpdateWeekGroups(ctx, tx, plan.WeekGroups); txErr != nil {
			return internalErr(txErr, "failed to update week groups")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dto.GenerateScheduleResponse{
		CourseID:     courseID,
		StartingExam: startingExam,
		Superseded:   removed,
		Result:       plan.Result,
	}, nil
}

// resolveConfig picks the override, the stored course config or the defaults and validates it.
// Nothing is persisted here; generateLocked stores an override with the run's writes.
func (s *ExamScheduleService) resolveConfig(course *models.Course, override *models.ScheduleConfig) (models.ScheduleConfig, error) {
	cfg := course.Config
	if override != nil {
		cfg = *override
	} else if cfg.TotalExams == 0 && cfg.ExamDurationMinutes == 0 {
		cfg = s.defaults
	}
	if err := scheduler.ValidateConfig(cfg); err != nil {
		return models.ScheduleConfig{}, mapSchedulerError(err)
	}
	return cfg, nil
}

// RegenerateStudent re-places one student's unlocked slots from an exam onwards without moving anyone else.
func (s *ExamScheduleService) RegenerateStudent(ctx context.Context, studentID string, req dto.RegenerateStudentRequest, actor string) (*dto.RegenerateStudentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid regenerate payload")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}

	var resp *dto.RegenerateStudentResponse
	err = s.guard.run(ctx, student.CourseID, func() error {
		var runErr error
		resp, runErr = s.regenerateStudentLocked(ctx, student, req.FromExam, actor)
		return runErr
	})
	s.metrics.RecordMutation("regenerate_student", err)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateCourse(ctx, student.CourseID)
	return resp, nil
}

func (s *ExamScheduleService) regenerateStudentLocked(ctx context.Context, student *models.Student, fromExam int, actor string) (*dto.RegenerateStudentResponse, error) {
	course, err := s.courses.FindByID(ctx, student.CourseID)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	cfg, err := s.resolveConfig(course, nil)
	if err != nil {
		return nil, err
	}
	if fromExam > cfg.TotalExams {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("fromExam %d exceeds total exams %d", fromExam, cfg.TotalExams))
	}
	section, err := s.sections.FindByID(ctx, student.SectionID)
	if err != nil {
		return nil, notFoundOr(err, "section not found", "failed to load section")
	}
	constraints, err := s.constraints.ListActiveByStudent(ctx, student.ID)
	if err != nil {
		return nil, internalErr(err, "failed to load student constraints")
	}

	resp := &dto.RegenerateStudentResponse{StudentID: student.ID, Updated: []models.ExamSlot{}, Skipped: []int{}, Errors: []string{}}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		sectionSlots, txErr := s.slots.List(ctx, tx, models.ExamSlotFilter{CourseID: course.ID, SectionID: section.ID})
		if txErr != nil {
			return internalErr(txErr, "failed to load section slots")
		}
		own, txErr := s.slots.ListByStudent(ctx, tx, student.ID)
		if txErr != nil {
			return internalErr(txErr, "failed to load student slots")
		}
		current := make(map[int]models.ExamSlot, len(own))
		for _, slot := range own {
			current[slot.ExamNumber] = slot
		}

		occupied := make([]models.ExamSlot, 0, len(sectionSlots))
		for _, slot := range sectionSlots {
			if slot.StudentID == student.ID && !slot.IsLocked && slot.ExamNumber >= fromExam {
				continue
			}
			occupied = append(occupied, slot)
		}
		avail, txErr := scheduler.NewAvailability(cfg, occupied)
		if txErr != nil {
			return mapSchedulerError(txErr)
		}
		engine, txErr := scheduler.NewEngine(avail, constraints)
		if txErr != nil {
			return mapSchedulerError(txErr)
		}

		now := s.now().UTC()
		var (
			inserts []models.ExamSlot
			entries []models.ExamSlotHistory
		)
		for exam := fromExam; exam <= cfg.TotalExams; exam++ {
			existing, has := current[exam]
			if has && existing.IsLocked {
				resp.Skipped = append(resp.Skipped, exam)
				continue
			}
			week := scheduler.WeekNumber(cfg, exam, student.WeekGroup)
			placed, ok := engine.Place(scheduler.WeekPlan{
				CourseID:   course.ID,
				ExamNumber: exam,
				WeekNumber: week,
				Anchor:     scheduler.WeekAnchor(course.StartDate, week),
				Section:    *section,
			}, *student)
			if !ok {
				resp.Errors = append(resp.Errors, fmt.Sprintf("exam %d week %d: no available slot for student %s in section %s",
					exam, week, student.ID, section.Name))
			}
			if !has {
				inserts = append(inserts, placed)
				resp.Updated = append(resp.Updated, placed)
				continue
			}
			if models.SameTiming(existing, placed) {
				continue
			}
			entries = append(entries, models.SnapshotExamSlot(existing, actor, historyReasonRegenerated, now))
			next := existing
			next.WeekNumber = placed.WeekNumber
			next.SectionID = placed.SectionID
			next.Date, next.StartTime, next.EndTime = placed.Date, placed.StartTime, placed.EndTime
			next.IsScheduled = placed.IsScheduled
			if txErr = s.slots.UpdateTiming(ctx, tx, &next); txErr != nil {
				return internalErr(txErr, "failed to update exam slot")
			}
			resp.Updated = append(resp.Updated, next)
		}
		if txErr = s.slots.InsertBatch(ctx, tx, inserts); txErr != nil {
			return internalErr(txErr, "failed to insert exam slots")
		}
		if txErr = s.history.Append(ctx, tx, entries...); txErr != nil {
			return internalErr(txErr, "failed to write exam slot history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GenerateAsync queues a generation run and returns its id.
func (s *ExamScheduleService) GenerateAsync(ctx context.Context, courseID string, req dto.GenerateScheduleRequest, actor string) (*dto.ScheduleRunAccepted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "asynchronous generation is not enabled")
	}
	run := s.runs.Save(ctx, models.ScheduleRun{
		ID:        s.newID(),
		CourseID:  courseID,
		Status:    models.ScheduleRunQueued,
		CreatedBy: actor,
	})
	job := jobs.Job{ID: run.ID, Type: scheduleJobType, Payload: generateJobPayload{CourseID: courseID, Request: req, Actor: actor}}
	if err := s.queue.Enqueue(job); err != nil {
		run.Status = models.ScheduleRunFailed
		run.Error = "failed to enqueue run"
		s.runs.Save(ctx, run)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue schedule run")
	}
	return &dto.ScheduleRunAccepted{RunID: run.ID, Status: run.Status}, nil
}

// Run returns the state of an asynchronous run.
func (s *ExamScheduleService) Run(ctx context.Context, runID string) (*models.ScheduleRun, error) {
	run, ok := s.runs.Get(ctx, runID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run not found or expired")
	}
	return &run, nil
}

type generateJobPayload struct {
	CourseID string
	Request  dto.GenerateScheduleRequest
	Actor    string
}

type scheduleGenerator interface {
	Generate(ctx context.Context, courseID string, req dto.GenerateScheduleRequest, actor string) (*dto.GenerateScheduleResponse, error)
}

// ScheduleRunWorker executes queued generation runs.
type ScheduleRunWorker struct {
	generator scheduleGenerator
	runs      *ScheduleRunStore
	logger    *zap.Logger
}

// NewScheduleRunWorker constructs a worker.
func NewScheduleRunWorker(generator scheduleGenerator, runs *ScheduleRunStore, logger *zap.Logger) *ScheduleRunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleRunWorker{generator: generator, runs: runs, logger: logger}
}

// Handle processes a queue job. A busy course lock is returned so the queue retries it;
// every other failure is recorded on the run.
func (w *ScheduleRunWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(generateJobPayload)
	if !ok {
		w.logger.Sugar().Errorw("unexpected schedule job payload", "job_id", job.ID)
		return nil
	}
	run, _ := w.runs.Get(ctx, job.ID)
	run.ID = job.ID
	run.CourseID = payload.CourseID
	run.CreatedBy = payload.Actor
	run.Status = models.ScheduleRunRunning
	run = w.runs.Save(ctx, run)

	resp, err := w.generator.Generate(ctx, payload.CourseID, payload.Request, payload.Actor)
	if err != nil {
		if Retryable(err) {
			run.Status = models.ScheduleRunQueued
			w.runs.Save(ctx, run)
			return err
		}
		w.fail(ctx, run, err)
		return nil
	}
	result := resp.Result
	run.Status = models.ScheduleRunSucceeded
	run.Result = &result
	w.runs.Save(ctx, run)
	return nil
}

// GiveUp marks a run failed once the queue stops retrying it.
func (w *ScheduleRunWorker) GiveUp(job jobs.Job, err error) {
	ctx := context.Background()
	run, ok := w.runs.Get(ctx, job.ID)
	if !ok {
		run = models.ScheduleRun{ID: job.ID}
	}
	w.fail(ctx, run, err)
}

func (w *ScheduleRunWorker) fail(ctx context.Context, run models.ScheduleRun, err error) {
	run.Status = models.ScheduleRunFailed
	run.Error = appErrors.FromError(err).Message
	w.runs.Save(ctx, run)
	w.logger.Sugar().Warnw("schedule run failed", "run_id", run.ID, "course_id", run.CourseID, "error", err)
}

// Retryable reports whether a generation error is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, appErrors.ErrGenerationInProgress)
}

func selectSections(all []models.Section, ids []string) ([]models.Section, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]models.Section, len(all))
	for _, section := range all {
		byID[section.ID] = section
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %s does not belong to the course", id))
		}
		wanted[id] = true
	}
	selected := make([]models.Section, 0, len(ids))
	for _, section := range all {
		if wanted[section.ID] {
			selected = append(selected, section)
		}
	}
	return selected, nil
}

func mapSchedulerError(err error) error {
	if errors.Is(err, scheduler.ErrInvalidConfig) {
		return appErrors.Clone(appErrors.ErrInvalidScheduleConfig, err.Error())
	}
	return internalErr(err, "schedule planning failed")
}

func slotKey(studentID string, examNumber int) string {
	return fmt.Sprintf("%s#%d", studentID, examNumber)
}
