package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/examslot-api/internal/dto"
	"github.com/noah-isme/examslot-api/internal/models"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
)

func newSlotService(t *testing.T, fx *examFixture) (*ExamSlotService, sqlmock.Sqlmock) {
	tx, mock := newTxProviderMock(t)
	svc := NewExamSlotService(fx.slots, fx.history, tx, nil, time.Minute, nil, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return svc, mock
}

func TestExamSlotServiceLockIsIdempotent(t *testing.T) {
	fx := newExamFixture(1)
	fx.slots.put(slotAt("a", "stu-1", termStart, "09:00", "09:30"))
	svc, mock := newSlotService(t, fx)
	expectCommits(mock, 3)

	slot, err := svc.Lock(context.Background(), "a", "ta-1")
	require.NoError(t, err)
	assert.True(t, slot.IsLocked)

	_, err = svc.Lock(context.Background(), "a", "ta-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fx.history.count(), "repeated lock writes no history")

	slot, err = svc.Unlock(context.Background(), "a", "ta-1")
	require.NoError(t, err)
	assert.False(t, slot.IsLocked)
	assert.Equal(t, 2, fx.history.count())
}

func TestExamSlotServiceLockMissingSlot(t *testing.T) {
	fx := newExamFixture(1)
	svc, _ := newSlotService(t, fx)

	_, err := svc.Lock(context.Background(), "missing", "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExamSlotServiceSwap(t *testing.T) {
	fx := newExamFixture(2)
	fx.slots.put(
		slotAt("a", "stu-1", termStart, "09:00", "09:30"),
		slotAt("b", "stu-2", termStart, "09:40", "10:10"),
	)
	svc, mock := newSlotService(t, fx)
	expectCommits(mock, 1)

	swapped, err := svc.Swap(context.Background(), dto.SwapSlotsRequest{FirstSlotID: "a", SecondSlotID: "b"}, "ta-1")
	require.NoError(t, err)
	require.Len(t, swapped, 2)

	a, _ := fx.slots.FindByID(context.Background(), nil, "a", false)
	b, _ := fx.slots.FindByID(context.Background(), nil, "b", false)
	assert.Equal(t, "09:40", a.StartTime.String())
	assert.Equal(t, "09:00", b.StartTime.String())
	assert.Equal(t, 2, fx.history.count())
}

func TestExamSlotServiceSwapRefusesLocked(t *testing.T) {
	fx := newExamFixture(2)
	locked := slotAt("a", "stu-1", termStart, "09:00", "09:30")
	locked.IsLocked = true
	fx.slots.put(locked, slotAt("b", "stu-2", termStart, "09:40", "10:10"))
	svc, mock := newSlotService(t, fx)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Swap(context.Background(), dto.SwapSlotsRequest{FirstSlotID: "a", SecondSlotID: "b"}, "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotLocked.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, fx.history.count())
}

func TestExamSlotServiceSwapRejectsOverlap(t *testing.T) {
	fx := newExamFixture(3)
	other := slotAt("b", "stu-2", termStart, "10:00", "11:00")
	other.SectionID = "sec-2"
	fx.slots.put(
		slotAt("a", "stu-1", termStart, "09:00", "09:30"),
		other,
		slotAt("c", "stu-3", termStart, "10:30", "10:45"),
	)
	svc, mock := newSlotService(t, fx)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Swap(context.Background(), dto.SwapSlotsRequest{FirstSlotID: "a", SecondSlotID: "b"}, "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotOverlap.Code, appErrors.FromError(err).Code)

	a, _ := fx.slots.FindByID(context.Background(), nil, "a", false)
	b, _ := fx.slots.FindByID(context.Background(), nil, "b", false)
	assert.Equal(t, "09:00", a.StartTime.String())
	assert.Equal(t, "10:00", b.StartTime.String())
	assert.Equal(t, 0, fx.history.count())
}

func TestExamSlotServiceSwapRejectsDifferentExams(t *testing.T) {
	fx := newExamFixture(2)
	other := slotAt("b", "stu-2", termStart, "09:40", "10:10")
	other.ExamNumber = 2
	fx.slots.put(slotAt("a", "stu-1", termStart, "09:00", "09:30"), other)
	svc, mock := newSlotService(t, fx)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Swap(context.Background(), dto.SwapSlotsRequest{FirstSlotID: "a", SecondSlotID: "b"}, "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamSlotServiceSwapRejectsSameSlot(t *testing.T) {
	fx := newExamFixture(1)
	svc, _ := newSlotService(t, fx)

	_, err := svc.Swap(context.Background(), dto.SwapSlotsRequest{FirstSlotID: "a", SecondSlotID: "a"}, "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamSlotServiceManualSchedule(t *testing.T) {
	fx := newExamFixture(2)
	fx.slots.put(
		slotAt("a", "stu-1", termStart, "09:00", "09:30"),
		slotAt("b", "stu-2", termStart, "09:40", "10:10"),
	)
	svc, mock := newSlotService(t, fx)

	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := svc.ManualSchedule(context.Background(), "b", dto.ManualScheduleRequest{
		Date: "2024-01-01", StartTime: "09:15", EndTime: "09:45",
	}, "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotOverlap.Code, appErrors.FromError(err).Code)

	expectCommits(mock, 1)
	slot, err := svc.ManualSchedule(context.Background(), "b", dto.ManualScheduleRequest{
		Date: "2024-01-01", StartTime: "09:30", EndTime: "10:00",
	}, "ta-1")
	require.NoError(t, err)
	assert.Equal(t, "09:30", slot.StartTime.String())
	assert.True(t, slot.IsScheduled)
	assert.Equal(t, 1, fx.history.count())
}

func TestExamSlotServiceManualScheduleValidatesInterval(t *testing.T) {
	fx := newExamFixture(1)
	svc, _ := newSlotService(t, fx)

	_, err := svc.ManualSchedule(context.Background(), "a", dto.ManualScheduleRequest{
		Date: "2024-01-01", StartTime: "10:00", EndTime: "10:00",
	}, "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.ManualSchedule(context.Background(), "a", dto.ManualScheduleRequest{
		Date: "01/01/2024", StartTime: "10:00", EndTime: "10:30",
	}, "ta-1")
	require.Error(t, err)
}

func TestExamSlotServiceRevertRoundTrip(t *testing.T) {
	fx := newExamFixture(1)
	fx.slots.put(slotAt("a", "stu-1", termStart, "09:00", "09:30"))
	svc, mock := newSlotService(t, fx)
	expectCommits(mock, 2)

	_, err := svc.ManualSchedule(context.Background(), "a", dto.ManualScheduleRequest{
		Date: "2024-01-08", StartTime: "10:00", EndTime: "10:30",
	}, "ta-1")
	require.NoError(t, err)

	entries, err := svc.History(context.Background(), "stu-1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	reverted, err := svc.Revert(context.Background(), entries[0].ID, "ta-2")
	require.NoError(t, err)
	assert.Equal(t, "09:00", reverted.StartTime.String())
	assert.True(t, reverted.Date.Equal(termStart))

	entries, err = svc.History(context.Background(), "stu-1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ta-2", entries[0].ChangedBy)
	assert.Equal(t, "10:00", entries[0].StartTime.String())
}

func TestExamSlotServiceRevertKeepsCurrentSection(t *testing.T) {
	fx := newExamFixture(1)
	fx.slots.put(slotAt("a", "stu-1", termStart, "09:00", "09:30"))
	moved := slotAt("a", "stu-1", termStart, "10:00", "10:30")
	moved.SectionID = "sec-old"
	require.NoError(t, fx.history.Append(context.Background(), nil, models.SnapshotExamSlot(moved, "ta-1", "manual", termStart)))
	svc, mock := newSlotService(t, fx)
	expectCommits(mock, 1)

	reverted, err := svc.Revert(context.Background(), "hist-1", "ta-2")
	require.NoError(t, err)
	assert.Equal(t, "sec-1", reverted.SectionID)
	assert.Equal(t, "10:00", reverted.StartTime.String())

	live, _ := fx.slots.FindByID(context.Background(), nil, "a", false)
	assert.Equal(t, "sec-1", live.SectionID)
}

func TestExamSlotServiceHistoryEmpty(t *testing.T) {
	fx := newExamFixture(1)
	svc, _ := newSlotService(t, fx)

	entries, err := svc.History(context.Background(), "stu-1", 1)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = svc.History(context.Background(), "stu-1", 0)
	assert.Error(t, err)
}

func TestExamSlotServiceBulkUnlock(t *testing.T) {
	fx := newExamFixture(3)
	for _, slot := range []struct{ id, student, start, end string }{
		{"a", "stu-1", "09:00", "09:30"},
		{"b", "stu-2", "09:40", "10:10"},
		{"c", "stu-3", "10:20", "10:50"},
	} {
		s := slotAt(slot.id, slot.student, termStart, slot.start, slot.end)
		s.IsLocked = slot.id != "c"
		fx.slots.put(s)
	}
	fx.slots.groups["stu-1"] = "A"
	fx.slots.groups["stu-2"] = "B"
	svc, mock := newSlotService(t, fx)
	expectCommits(mock, 2)

	resp, err := svc.BulkUnlock(context.Background(), "course-1", dto.BulkUnlockRequest{ExamNumber: 1, WeekGroup: "A"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Affected)

	resp, err = svc.BulkUnlock(context.Background(), "course-1", dto.BulkUnlockRequest{ExamNumber: 1}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Affected)
	assert.Equal(t, 2, fx.history.count())
}

func TestExamSlotServiceAutoLock(t *testing.T) {
	fx := newExamFixture(2)
	fx.slots.put(
		slotAt("a", "stu-1", termStart, "09:00", "09:30"),
		slotAt("b", "stu-2", termStart.AddDate(0, 0, 7), "09:00", "09:30"),
	)
	svc, mock := newSlotService(t, fx)
	expectCommits(mock, 1)

	resp, err := svc.AutoLock(context.Background(), "course-1", dto.AutoLockRequest{}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Affected)

	a, _ := fx.slots.FindByID(context.Background(), nil, "a", false)
	b, _ := fx.slots.FindByID(context.Background(), nil, "b", false)
	assert.True(t, a.IsLocked)
	assert.False(t, b.IsLocked)
}

func TestExamSlotServiceList(t *testing.T) {
	fx := newExamFixture(2)
	fx.slots.put(
		slotAt("a", "stu-1", termStart, "09:00", "09:30"),
		slotAt("b", "stu-2", termStart, "09:40", "10:10"),
	)
	svc, _ := newSlotService(t, fx)

	slots, err := svc.List(context.Background(), "course-1", dto.ExamSlotQuery{ExamNumber: 1})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "a", slots[0].ID)

	slots, err = svc.List(context.Background(), "course-2", dto.ExamSlotQuery{})
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}
