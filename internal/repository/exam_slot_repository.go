package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/examslot-api/internal/models"
)

// ExamSlotRepository persists exam slots. Soft-deleted rows are never returned.
type ExamSlotRepository struct {
	db *sqlx.DB
}

// NewExamSlotRepository constructs the repository.
func NewExamSlotRepository(db *sqlx.DB) *ExamSlotRepository {
	return &ExamSlotRepository{db: db}
}

func (r *ExamSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const examSlotColumns = `id, course_id, student_id, section_id, exam_number, week_number, date, start_time, end_time,
       is_scheduled, is_locked, created_at, updated_at, deleted_at`

// List returns live slots matching the filter.
func (r *ExamSlotRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.ExamSlotFilter) ([]models.ExamSlot, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + examSlotColumns + ` FROM exam_slots`)

	conditions := []string{"deleted_at IS NULL"}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)))
	}
	if filter.ExamNumber > 0 {
		args = append(args, filter.ExamNumber)
		conditions = append(conditions, fmt.Sprintf("exam_number = $%d", len(args)))
	}
	if filter.Scheduled != nil {
		args = append(args, *filter.Scheduled)
		conditions = append(conditions, fmt.Sprintf("is_scheduled = $%d", len(args)))
	}
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY exam_number ASC, date ASC NULLS LAST, start_time ASC NULLS LAST, section_id ASC, student_id ASC")

	var slots []models.ExamSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list exam slots: %w", err)
	}
	return slots, nil
}

// ListByStudent returns a student's live slots ordered by exam number.
func (r *ExamSlotRepository) ListByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.ExamSlot, error) {
	query := `SELECT ` + examSlotColumns + ` FROM exam_slots WHERE student_id = $1 AND deleted_at IS NULL ORDER BY exam_number ASC`
	var slots []models.ExamSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, studentID); err != nil {
		return nil, fmt.Errorf("list student exam slots: %w", err)
	}
	return slots, nil
}

// FindByID loads a live slot. With forUpdate the row is locked until the transaction ends.
func (r *ExamSlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ExamSlot, error) {
	query := `SELECT ` + examSlotColumns + ` FROM exam_slots WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var slot models.ExamSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByStudentExam loads the live slot of a student for an exam and locks it.
func (r *ExamSlotRepository) FindByStudentExam(ctx context.Context, exec sqlx.ExtContext, studentID string, examNumber int) (*models.ExamSlot, error) {
	query := `SELECT ` + examSlotColumns + ` FROM exam_slots WHERE student_id = $1 AND exam_number = $2 AND deleted_at IS NULL FOR UPDATE`
	var slot models.ExamSlot
	if err := sqlx.GetContext(ctx, r.exec(exec), &slot, query, studentID, examNumber); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListBySectionDate returns the scheduled live slots of a section on a date, locking them.
func (r *ExamSlotRepository) ListBySectionDate(ctx context.Context, exec sqlx.ExtContext, sectionID string, date time.Time) ([]models.ExamSlot, error) {
	query := `SELECT ` + examSlotColumns + ` FROM exam_slots
WHERE section_id = $1 AND date = $2 AND is_scheduled = TRUE AND deleted_at IS NULL
ORDER BY start_time ASC FOR UPDATE`
	var slots []models.ExamSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, sectionID, date); err != nil {
		return nil, fmt.Errorf("list section exam slots: %w", err)
	}
	return slots, nil
}

// Supersede soft-deletes the given slots. Locked rows are never touched.
func (r *ExamSlotRepository) Supersede(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE exam_slots SET deleted_at = $1, updated_at = $1
WHERE id = ANY($2) AND is_locked = FALSE AND deleted_at IS NULL`
	res, err := r.exec(exec).ExecContext(ctx, query, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("supersede exam slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("supersede exam slots: %w", err)
	}
	return affected, nil
}

// InsertBatch writes new slots.
func (r *ExamSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ExamSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO exam_slots (id, course_id, student_id, section_id, exam_number, week_number, date, start_time, end_time,
    is_scheduled, is_locked, created_at, updated_at)
VALUES (:id, :course_id, :student_id, :section_id, :exam_number, :week_number, :date, :start_time, :end_time,
    :is_scheduled, :is_locked, :created_at, :updated_at)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		slot.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert exam slot: %w", err)
		}
	}
	return nil
}

// UpdateTiming writes the section, week, date, interval and scheduled flag of a slot.
func (r *ExamSlotRepository) UpdateTiming(ctx context.Context, exec sqlx.ExtContext, slot *models.ExamSlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exam_slots
SET section_id = :section_id, week_number = :week_number, date = :date, start_time = :start_time, end_time = :end_time,
    is_scheduled = :is_scheduled, updated_at = :updated_at
WHERE id = :id AND deleted_at IS NULL`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("update exam slot: %w", err)
	}
	return nil
}

// SetLocked toggles the lock flag for the given slots.
func (r *ExamSlotRepository) SetLocked(ctx context.Context, exec sqlx.ExtContext, ids []string, locked bool) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE exam_slots SET is_locked = $1, updated_at = $2 WHERE id = ANY($3) AND deleted_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, locked, time.Now().UTC(), pq.Array(ids)); err != nil {
		return fmt.Errorf("set exam slot lock: %w", err)
	}
	return nil
}

// ListLocked returns locked live slots of a course exam, optionally limited to one week group.
func (r *ExamSlotRepository) ListLocked(ctx context.Context, exec sqlx.ExtContext, courseID string, examNumber int, weekGroup string) ([]models.ExamSlot, error) {
	query := `SELECT e.id, e.course_id, e.student_id, e.section_id, e.exam_number, e.week_number, e.date, e.start_time, e.end_time,
       e.is_scheduled, e.is_locked, e.created_at, e.updated_at, e.deleted_at
FROM exam_slots e
JOIN students s ON s.id = e.student_id
WHERE e.course_id = $1 AND e.exam_number = $2 AND e.is_locked = TRUE AND e.deleted_at IS NULL`
	args := []interface{}{courseID, examNumber}
	if weekGroup != "" {
		args = append(args, weekGroup)
		query += fmt.Sprintf(" AND s.week_group = $%d", len(args))
	}
	query += " ORDER BY e.id ASC FOR UPDATE OF e"
	var slots []models.ExamSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list locked exam slots: %w", err)
	}
	return slots, nil
}

// ListUnlockedOnDate returns scheduled, unlocked live slots of a course on a date.
func (r *ExamSlotRepository) ListUnlockedOnDate(ctx context.Context, exec sqlx.ExtContext, courseID string, date time.Time) ([]models.ExamSlot, error) {
	query := `SELECT ` + examSlotColumns + ` FROM exam_slots
WHERE course_id = $1 AND date = $2 AND is_scheduled = TRUE AND is_locked = FALSE AND deleted_at IS NULL
ORDER BY start_time ASC FOR UPDATE`
	var slots []models.ExamSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, courseID, date); err != nil {
		return nil, fmt.Errorf("list unlocked exam slots: %w", err)
	}
	return slots, nil
}
