package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/examslot-api/internal/dto"
	"github.com/noah-isme/examslot-api/internal/models"
	appErrors "github.com/noah-isme/examslot-api/pkg/errors"
	"github.com/noah-isme/examslot-api/pkg/export"
	"github.com/noah-isme/examslot-api/pkg/storage"
)

const calendarFeed = "exams.ics"

var workbookHeaders = []string{"Section", "Student", "Week", "Date", "Start", "End", "Scheduled", "Locked"}

type workbookRenderer interface {
	Render(sheets []export.Sheet) ([]byte, error)
}

type tableRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, events []export.CalendarEvent) ([]byte, error)
}

type linkSigner interface {
	Generate(subjectID, feed string) (string, time.Time, error)
	Parse(token string) (subjectID, feed string, expiresAt time.Time, err error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	PublicBaseURL string
	Location      *time.Location
}

// ExportService renders course workbooks and student calendar feeds.
type ExportService struct {
	courses  courseStore
	sections sectionReader
	students studentStore
	slots    examSlotStore
	xlsx     workbookRenderer
	csv      tableRenderer
	ics      calendarRenderer
	signer   linkSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export defaults.
func NewExportService(
	courses courseStore,
	sections sectionReader,
	students studentStore,
	slots examSlotStore,
	signer linkSigner,
	cfg ExportConfig,
	logger *zap.Logger,
	xlsx workbookRenderer,
	ics calendarRenderer,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	if ics == nil {
		ics = export.NewICSExporter("")
	}
	return &ExportService{
		courses:  courses,
		sections: sections,
		students: students,
		slots:    slots,
		xlsx:     xlsx,
		csv:      export.NewCSVExporter(),
		ics:      ics,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// CourseWorkbook renders the live schedule of a course with one sheet per exam.
func (s *ExportService) CourseWorkbook(ctx context.Context, courseID string) ([]byte, string, error) {
	course, sheets, err := s.courseSheets(ctx, courseID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.xlsx.Render(sheets)
	if err != nil {
		return nil, "", internalErr(err, "failed to render workbook")
	}
	s.logger.Info("course workbook exported",
		zap.String("course_id", course.ID),
		zap.Int("sheets", len(sheets)),
	)
	return payload, fmt.Sprintf("%s-exam-schedule.xlsx", fileSafe(course.Name, course.ID)), nil
}

// CourseCSV flattens the live schedule of a course into one table with an Exam column.
func (s *ExportService) CourseCSV(ctx context.Context, courseID string) ([]byte, string, error) {
	course, sheets, err := s.courseSheets(ctx, courseID)
	if err != nil {
		return nil, "", err
	}
	table := export.Sheet{Headers: append([]string{"Exam"}, workbookHeaders...)}
	for _, sheet := range sheets {
		for _, row := range sheet.Rows {
			table.Rows = append(table.Rows, append([]interface{}{sheet.Name}, row...))
		}
	}
	payload, err := s.csv.Render(table)
	if err != nil {
		return nil, "", internalErr(err, "failed to render csv")
	}
	return payload, fmt.Sprintf("%s-exam-schedule.csv", fileSafe(course.Name, course.ID)), nil
}

func (s *ExportService) courseSheets(ctx context.Context, courseID string) (*models.Course, []export.Sheet, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, nil, notFoundOr(err, "course not found", "failed to load course")
	}
	sections, err := s.sections.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, nil, internalErr(err, "failed to load sections")
	}
	students, err := s.students.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, nil, internalErr(err, "failed to load students")
	}
	slots, err := s.slots.List(ctx, nil, models.ExamSlotFilter{CourseID: courseID})
	if err != nil {
		return nil, nil, internalErr(err, "failed to load exam slots")
	}

	sectionNames := make(map[string]string, len(sections))
	for _, sec := range sections {
		sectionNames[sec.ID] = sec.Name
	}
	studentNames := make(map[string]string, len(students))
	for _, st := range students {
		studentNames[st.ID] = st.FullName
	}

	byExam := make(map[int][]models.ExamSlot)
	for _, slot := range slots {
		byExam[slot.ExamNumber] = append(byExam[slot.ExamNumber], slot)
	}
	exams := make([]int, 0, len(byExam))
	for exam := range byExam {
		exams = append(exams, exam)
	}
	sort.Ints(exams)

	sheets := make([]export.Sheet, 0, len(exams))
	for _, exam := range exams {
		sheet := export.Sheet{Name: fmt.Sprintf("Exam %d", exam), Headers: workbookHeaders}
		for _, slot := range byExam[exam] {
			sheet.Rows = append(sheet.Rows, workbookRow(slot, sectionNames, studentNames))
		}
		sheets = append(sheets, sheet)
	}
	if len(sheets) == 0 {
		sheets = append(sheets, export.Sheet{Name: "Schedule", Headers: workbookHeaders})
	}
	return course, sheets, nil
}

// CalendarLink issues an expiring public URL for a student's exam feed.
func (s *ExportService) CalendarLink(ctx context.Context, studentID string) (*dto.CalendarLinkResponse, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	token, expiresAt, err := s.signer.Generate(student.ID, calendarFeed)
	if err != nil {
		return nil, internalErr(err, "failed to sign calendar link")
	}
	return &dto.CalendarLinkResponse{
		URL:       fmt.Sprintf("%s/calendar/students/%s/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), token, calendarFeed),
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

// StudentCalendar resolves a signed token and renders the student's scheduled exams.
func (s *ExportService) StudentCalendar(ctx context.Context, token string) ([]byte, error) {
	studentID, feed, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrLinkExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "calendar link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid calendar link")
	}
	if feed != calendarFeed {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid calendar link")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	courseName := ""
	if course, err := s.courses.FindByID(ctx, student.CourseID); err == nil {
		courseName = course.Name
	}
	slots, err := s.slots.ListByStudent(ctx, nil, student.ID)
	if err != nil {
		return nil, internalErr(err, "failed to load exam slots")
	}

	locations := make(map[string]string)
	events := make([]export.CalendarEvent, 0, len(slots))
	for _, slot := range slots {
		if !slot.IsScheduled || !slot.HasTime() {
			continue
		}
		location, ok := locations[slot.SectionID]
		if !ok {
			if sec, err := s.sections.FindByID(ctx, slot.SectionID); err == nil {
				location = sec.Location
			} else {
				s.logger.Warn("section lookup failed for calendar", zap.String("section_id", slot.SectionID), zap.Error(err))
			}
			locations[slot.SectionID] = location
		}
		summary := strings.TrimSpace(fmt.Sprintf("%s Exam %d", courseName, slot.ExamNumber))
		events = append(events, export.CalendarEvent{
			UID:         slot.ID + "@examslot",
			Summary:     summary,
			Description: fmt.Sprintf("Week %d exam for %s", slot.WeekNumber, student.FullName),
			Location:    location,
			Start:       s.at(*slot.Date, *slot.StartTime),
			End:         s.at(*slot.Date, *slot.EndTime),
		})
	}

	payload, err := s.ics.Render(fmt.Sprintf("%s exams", student.FullName), events)
	if err != nil {
		return nil, internalErr(err, "failed to render calendar")
	}
	return payload, nil
}

func (s *ExportService) at(date time.Time, clock models.Clock) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, s.cfg.Location)
}

func workbookRow(slot models.ExamSlot, sections, students map[string]string) []interface{} {
	section := sections[slot.SectionID]
	if section == "" {
		section = slot.SectionID
	}
	student := students[slot.StudentID]
	if student == "" {
		student = slot.StudentID
	}
	date, start, end := "", "", ""
	if slot.Date != nil {
		date = slot.Date.Format("2006-01-02")
	}
	if slot.StartTime != nil {
		start = slot.StartTime.String()
	}
	if slot.EndTime != nil {
		end = slot.EndTime.String()
	}
	return []interface{}{section, student, slot.WeekNumber, date, start, end, yesNo(slot.IsScheduled), yesNo(slot.IsLocked)}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func fileSafe(name, fallback string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}
