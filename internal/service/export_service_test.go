package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/examslot-api/internal/dto"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
	"github.com/noah-isme/examslot-api/pkg/storage"
)

func newExportFixture(t *testing.T) (*ExportService, *examFixture) {
	fx := newExamFixture(2)
	second := slotAt("b", "stu-2", termStart, "09:40", "10:10")
	second.ExamNumber = 2
	second.WeekNumber = 2
	fx.slots.put(slotAt("a", "stu-1", termStart, "09:00", "09:30"), second)
	signer := storage.NewLinkSigner("secret", time.Hour)
	svc := NewExportService(fx.courses, fx.sections, fx.students, fx.slots, signer,
		ExportConfig{PublicBaseURL: "https://exams.example.com/"}, nil, nil, nil)
	return svc, fx
}

func TestExportServiceCourseWorkbook(t *testing.T) {
	svc, _ := newExportFixture(t)

	payload, filename, err := svc.CourseWorkbook(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "intro-programming-exam-schedule.xlsx", filename)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Exam 1", "Exam 2"}, f.GetSheetList())

	rows, err := f.GetRows("Exam 1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, workbookHeaders, rows[0])
	assert.Equal(t, []string{"Section 1", "Student 1", "1", "2024-01-01", "09:00", "09:30", "yes", "no"}, rows[1])
}

func TestExportServiceCourseCSV(t *testing.T) {
	svc, _ := newExportFixture(t)

	payload, filename, err := svc.CourseCSV(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "intro-programming-exam-schedule.csv", filename)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Exam,Section,Student,Week,Date,Start,End,Scheduled,Locked", lines[0])
	assert.Equal(t, "Exam 1,Section 1,Student 1,1,2024-01-01,09:00,09:30,yes,no", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "Exam 2,Section 1,Student 2,2,"))
}

func TestExportServiceCourseWorkbookMissingCourse(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, _, err := svc.CourseWorkbook(context.Background(), "course-x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCalendarRoundTrip(t *testing.T) {
	svc, _ := newExportFixture(t)

	link, err := svc.CalendarLink(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://exams.example.com/calendar/students/"))
	assert.True(t, strings.HasSuffix(link.URL, "/exams.ics"))

	token := tokenFromLink(t, link)
	body, err := svc.StudentCalendar(context.Background(), token)
	require.NoError(t, err)
	text := string(body)
	assert.Equal(t, 1, strings.Count(text, "BEGIN:VEVENT"))
	assert.Contains(t, text, "DTSTART:20240101T090000Z")
	assert.Contains(t, text, "LOCATION:Room 4")
}

func TestExportServiceCalendarRejectsBadToken(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.StudentCalendar(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCalendarLinkUnknownStudent(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.CalendarLink(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func tokenFromLink(t *testing.T, link *dto.CalendarLinkResponse) string {
	t.Helper()
	trimmed := strings.TrimSuffix(link.URL, "/exams.ics")
	idx := strings.LastIndex(trimmed, "/")
	require.True(t, idx >= 0)
	return trimmed[idx+1:]
}
