package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/pkg/cache"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type courseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, id string, cfg models.ScheduleConfig, startDate time.Time) error
}

type sectionReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Section, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type studentStore interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateWeekGroups(ctx context.Context, exec sqlx.ExtContext, groups map[string]string) error
}

type constraintReader interface {
	ListActiveByCourse(ctx context.Context, courseID string) ([]models.StudentConstraint, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.StudentConstraint, error)
}

type examSlotStore interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.ExamSlotFilter) ([]models.ExamSlot, error)
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.ExamSlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ExamSlot, error)
	FindByStudentExam(ctx context.Context, exec sqlx.ExtContext, studentID string, examNumber int) (*models.ExamSlot, error)
	ListBySectionDate(ctx context.Context, exec sqlx.ExtContext, sectionID string, date time.Time) ([]models.ExamSlot, error)
	Supersede(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ExamSlot) error
	UpdateTiming(ctx context.Context, exec sqlx.ExtContext, slot *models.ExamSlot) error
	SetLocked(ctx context.Context, exec sqlx.ExtContext, ids []string, locked bool) error
	ListLocked(ctx context.Context, exec sqlx.ExtContext, courseID string, examNumber int, weekGroup string) ([]models.ExamSlot, error)
	ListUnlockedOnDate(ctx context.Context, exec sqlx.ExtContext, courseID string, date time.Time) ([]models.ExamSlot, error)
}

type historyStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, entries ...models.ExamSlotHistory) error
	ListByStudentExam(ctx context.Context, studentID string, examNumber int) ([]models.ExamSlotHistory, error)
	FindByID(ctx context.Context, id string) (*models.ExamSlotHistory, error)
}

// courseGuard serialises generation and mutations of one course.
type courseGuard struct {
	locker cache.Locker
	ttl    time.Duration
}

func newCourseGuard(locker cache.Locker, ttl time.Duration) courseGuard {
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return courseGuard{locker: locker, ttl: ttl}
}

func (g courseGuard) run(ctx context.Context, courseID string, fn func() error) error {
	release, err := g.locker.Acquire(ctx, "course:"+courseID, g.ttl)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return appErrors.ErrGenerationInProgress
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire course lock")
	}
	defer release()
	return fn()
}

// withTx runs fn inside a transaction, rolling back on error.
func withTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func notFoundOr(err error, message, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func internalErr(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
