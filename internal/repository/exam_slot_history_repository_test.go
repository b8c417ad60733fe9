package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/examslot-api/internal/models"
)

func TestExamSlotHistoryRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamSlotHistoryRepository(db)

	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	start, end := models.MustParseClock("09:00"), models.MustParseClock("09:30")
	entry := models.ExamSlotHistory{
		ExamSlotID: "slot-1", StudentID: "stu-1", SectionID: "sec-1", ExamNumber: 1, WeekNumber: 1,
		Date: &date, StartTime: &start, EndTime: &end, IsScheduled: true, ChangedBy: "user-1", Reason: "swap",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exam_slot_histories")).
		WithArgs(sqlmock.AnyArg(), "slot-1", "stu-1", "sec-1", 1, 1, sqlmock.AnyArg(), "09:00:00", "09:30:00", true, sqlmock.AnyArg(), "user-1", "swap").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), nil, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamSlotHistoryRepositoryListMostRecentFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamSlotHistoryRepository(db)

	newer := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "exam_slot_id", "student_id", "section_id", "exam_number", "week_number", "date",
		"start_time", "end_time", "is_scheduled", "changed_at", "changed_by", "reason"}).
		AddRow("hist-2", "slot-1", "stu-1", "sec-1", 1, 1, nil, nil, nil, false, newer, "user-1", "manual schedule").
		AddRow("hist-1", "slot-1", "stu-1", "sec-1", 1, 1, nil, nil, nil, false, older, "system", "regenerated")
	mock.ExpectQuery(regexp.QuoteMeta("FROM exam_slot_histories WHERE student_id = $1 AND exam_number = $2 ORDER BY changed_at DESC")).
		WithArgs("stu-1", 1).
		WillReturnRows(rows)

	entries, err := repo.ListByStudentExam(context.Background(), "stu-1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hist-2", entries[0].ID)
	assert.True(t, entries[0].ChangedAt.After(entries[1].ChangedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
