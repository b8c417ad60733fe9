package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/examslot-api/internal/models"
)

// 2024-01-01 is a Monday.
var termStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() models.ScheduleConfig {
	return models.ScheduleConfig{
		ExamDurationMinutes:    30,
		BufferMinutes:          10,
		StartTime:              models.MustParseClock("09:00"),
		EndTime:                models.MustParseClock("11:00"),
		ScheduleFrequencyWeeks: 1,
		TotalExams:             1,
	}
}

type examFixture struct {
	courses     *memCourses
	sections    *memSections
	students    *memStudents
	constraints *memConstraints
	slots       *memSlots
	history     *memHistory
}

func newExamFixture(students int) *examFixture {
	section := models.Section{
		ID:            "sec-1",
		CourseID:      "course-1",
		Name:          "Section 1",
		Location:      "Room 4",
		PreferredDays: models.WeekdayList{models.Weekday(time.Monday)},
		Active:        true,
	}
	roster := make([]models.Student, 0, students)
	for i := 1; i <= students; i++ {
		roster = append(roster, models.Student{
			ID:             fmt.Sprintf("stu-%d", i),
			CourseID:       "course-1",
			SectionID:      section.ID,
			FullName:       fmt.Sprintf("Student %d", i),
			RosterPosition: i,
			Active:         true,
		})
	}
	return &examFixture{
		courses: &memCourses{course: &models.Course{
			ID:        "course-1",
			Name:      "Intro Programming",
			StartDate: termStart,
			Config:    testConfig(),
		}},
		sections:    &memSections{items: []models.Section{section}},
		students:    &memStudents{items: roster, groups: map[string]string{}},
		constraints: &memConstraints{},
		slots:       newMemSlots(),
		history:     &memHistory{},
	}
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return sqlxdb, mock
}

func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

type memCourses struct {
	course       *models.Course
	savedConfigs []models.ScheduleConfig
	savedStarts  []time.Time
}

func (m *memCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.course == nil || m.course.ID != id {
		return nil, sql.ErrNoRows
	}
	copy := *m.course
	return &copy, nil
}

func (m *memCourses) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, id string, cfg models.ScheduleConfig, startDate time.Time) error {
	m.savedConfigs = append(m.savedConfigs, cfg)
	m.savedStarts = append(m.savedStarts, startDate)
	m.course.Config = cfg
	m.course.StartDate = startDate
	return nil
}

type memSections struct {
	items []models.Section
}

func (m *memSections) ListByCourse(ctx context.Context, courseID string) ([]models.Section, error) {
	var out []models.Section
	for _, item := range m.items {
		if item.CourseID == courseID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memSections) FindByID(ctx context.Context, id string) (*models.Section, error) {
	for _, item := range m.items {
		if item.ID == id {
			copy := item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

type memStudents struct {
	items  []models.Student
	groups map[string]string
}

func (m *memStudents) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	var out []models.Student
	for _, item := range m.items {
		if item.CourseID == courseID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	for _, item := range m.items {
		if item.ID == id {
			copy := item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStudents) UpdateWeekGroups(ctx context.Context, exec sqlx.ExtContext, groups map[string]string) error {
	for id, group := range groups {
		m.groups[id] = group
		for i := range m.items {
			if m.items[i].ID == id {
				m.items[i].WeekGroup = group
			}
		}
	}
	return nil
}

type memConstraints struct {
	items []models.StudentConstraint
}

func (m *memConstraints) ListActiveByCourse(ctx context.Context, courseID string) ([]models.StudentConstraint, error) {
	return m.items, nil
}

func (m *memConstraints) ListActiveByStudent(ctx context.Context, studentID string) ([]models.StudentConstraint, error) {
	var out []models.StudentConstraint
	for _, item := range m.items {
		if item.StudentID == studentID {
			out = append(out, item)
		}
	}
	return out, nil
}

type memSlots struct {
	mu         sync.Mutex
	live       map[string]models.ExamSlot
	groups     map[string]string
	superseded []string
	inserted   int
}

func newMemSlots() *memSlots {
	return &memSlots{live: map[string]models.ExamSlot{}, groups: map[string]string{}}
}

func (m *memSlots) put(slots ...models.ExamSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range slots {
		m.live[slot.ID] = slot
	}
}

func (m *memSlots) sorted(match func(models.ExamSlot) bool) []models.ExamSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExamSlot
	for _, slot := range m.live {
		if match(slot) {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ExamNumber != b.ExamNumber {
			return a.ExamNumber < b.ExamNumber
		}
		if a.HasTime() && b.HasTime() {
			if !a.Date.Equal(*b.Date) {
				return a.Date.Before(*b.Date)
			}
			if *a.StartTime != *b.StartTime {
				return *a.StartTime < *b.StartTime
			}
		}
		return a.StudentID < b.StudentID
	})
	return out
}

func (m *memSlots) List(ctx context.Context, exec sqlx.ExtContext, filter models.ExamSlotFilter) ([]models.ExamSlot, error) {
	return m.sorted(func(s models.ExamSlot) bool {
		if filter.CourseID != "" && s.CourseID != filter.CourseID {
			return false
		}
		if filter.SectionID != "" && s.SectionID != filter.SectionID {
			return false
		}
		if filter.ExamNumber > 0 && s.ExamNumber != filter.ExamNumber {
			return false
		}
		if filter.Scheduled != nil && s.IsScheduled != *filter.Scheduled {
			return false
		}
		return true
	}), nil
}

func (m *memSlots) ListByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.ExamSlot, error) {
	return m.sorted(func(s models.ExamSlot) bool { return s.StudentID == studentID }), nil
}

func (m *memSlots) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.ExamSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.live[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (m *memSlots) FindByStudentExam(ctx context.Context, exec sqlx.ExtContext, studentID string, examNumber int) (*models.ExamSlot, error) {
	found := m.sorted(func(s models.ExamSlot) bool { return s.StudentID == studentID && s.ExamNumber == examNumber })
	if len(found) == 0 {
		return nil, sql.ErrNoRows
	}
	return &found[0], nil
}

func (m *memSlots) ListBySectionDate(ctx context.Context, exec sqlx.ExtContext, sectionID string, date time.Time) ([]models.ExamSlot, error) {
	return m.sorted(func(s models.ExamSlot) bool {
		return s.SectionID == sectionID && s.Date != nil && s.Date.Equal(date)
	}), nil
}

func (m *memSlots) Supersede(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.live[id]; ok {
			delete(m.live, id)
			m.superseded = append(m.superseded, id)
			n++
		}
	}
	return n, nil
}

func (m *memSlots) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.ExamSlot) error {
	m.put(slots...)
	m.mu.Lock()
	m.inserted += len(slots)
	m.mu.Unlock()
	return nil
}

func (m *memSlots) UpdateTiming(ctx context.Context, exec sqlx.ExtContext, slot *models.ExamSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.live[slot.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.SectionID = slot.SectionID
	current.WeekNumber = slot.WeekNumber
	current.Date, current.StartTime, current.EndTime = slot.Date, slot.StartTime, slot.EndTime
	current.IsScheduled = slot.IsScheduled
	m.live[slot.ID] = current
	return nil
}

func (m *memSlots) SetLocked(ctx context.Context, exec sqlx.ExtContext, ids []string, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if slot, ok := m.live[id]; ok {
			slot.IsLocked = locked
			m.live[id] = slot
		}
	}
	return nil
}

func (m *memSlots) ListLocked(ctx context.Context, exec sqlx.ExtContext, courseID string, examNumber int, weekGroup string) ([]models.ExamSlot, error) {
	return m.sorted(func(s models.ExamSlot) bool {
		if s.CourseID != courseID || s.ExamNumber != examNumber || !s.IsLocked {
			return false
		}
		return weekGroup == "" || m.groups[s.StudentID] == weekGroup
	}), nil
}

func (m *memSlots) ListUnlockedOnDate(ctx context.Context, exec sqlx.ExtContext, courseID string, date time.Time) ([]models.ExamSlot, error) {
	return m.sorted(func(s models.ExamSlot) bool {
		return s.CourseID == courseID && !s.IsLocked && s.IsScheduled && s.Date != nil && s.Date.Equal(date)
	}), nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []models.ExamSlotHistory
}

func (m *memHistory) Append(ctx context.Context, exec sqlx.ExtContext, entries ...models.ExamSlotHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		entry.ID = fmt.Sprintf("hist-%d", len(m.entries)+1)
		m.entries = append(m.entries, entry)
	}
	return nil
}

func (m *memHistory) ListByStudentExam(ctx context.Context, studentID string, examNumber int) ([]models.ExamSlotHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExamSlotHistory
	for i := len(m.entries) - 1; i >= 0; i-- {
		entry := m.entries[i]
		if entry.StudentID == studentID && entry.ExamNumber == examNumber {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memHistory) FindByID(ctx context.Context, id string) (*models.ExamSlotHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.ID == id {
			copy := entry
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func slotAt(id, studentID string, date time.Time, start, end string) models.ExamSlot {
	s := models.MustParseClock(start)
	e := models.MustParseClock(end)
	d := date
	return models.ExamSlot{
		ID:          id,
		CourseID:    "course-1",
		StudentID:   studentID,
		SectionID:   "sec-1",
		ExamNumber:  1,
		WeekNumber:  1,
		Date:        &d,
		StartTime:   &s,
		EndTime:     &e,
		IsScheduled: true,
	}
}
