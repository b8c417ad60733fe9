package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/examslot-api/internal/models"
)

// ExamSlotHistoryRepository appends and reads slot history. Rows are never updated.
type ExamSlotHistoryRepository struct {
	db *sqlx.DB
}

// NewExamSlotHistoryRepository constructs the repository.
func NewExamSlotHistoryRepository(db *sqlx.DB) *ExamSlotHistoryRepository {
	return &ExamSlotHistoryRepository{db: db}
}

func (r *ExamSlotHistoryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const historyColumns = `id, exam_slot_id, student_id, section_id, exam_number, week_number, date, start_time, end_time,
       is_scheduled, changed_at, changed_by, reason`

// Append inserts history rows.
func (r *ExamSlotHistoryRepository) Append(ctx context.Context, exec sqlx.ExtContext, entries ...models.ExamSlotHistory) error {
	const query = `INSERT INTO exam_slot_histories
	(id, exam_slot_id, student_id, section_id, exam_number, week_number, date, start_time, end_time, is_scheduled, changed_at, changed_by, reason)
	VALUES (:id, :exam_slot_id, :student_id, :section_id, :exam_number, :week_number, :date, :start_time, :end_time, :is_scheduled, :changed_at, :changed_by, :reason)`
	target := r.exec(exec)
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.ChangedAt.IsZero() {
			entry.ChangedAt = time.Now().UTC()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("append exam slot history: %w", err)
		}
	}
	return nil
}

// ListByStudentExam returns history for one student's exam, most recent first.
func (r *ExamSlotHistoryRepository) ListByStudentExam(ctx context.Context, studentID string, examNumber int) ([]models.ExamSlotHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM exam_slot_histories
WHERE student_id = $1 AND exam_number = $2 ORDER BY changed_at DESC, id DESC`
	var entries []models.ExamSlotHistory
	if err := r.db.SelectContext(ctx, &entries, query, studentID, examNumber); err != nil {
		return nil, fmt.Errorf("list exam slot history: %w", err)
	}
	return entries, nil
}

// FindByID returns sql.ErrNoRows when the entry does not exist.
func (r *ExamSlotHistoryRepository) FindByID(ctx context.Context, id string) (*models.ExamSlotHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM exam_slot_histories WHERE id = $1`
	var entry models.ExamSlotHistory
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}
