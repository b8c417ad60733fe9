package scheduler

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/examslot-api/internal/models"
)

// 2024-01-01 is a Monday.
var termStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func clock(raw string) models.Clock { return models.MustParseClock(raw) }

func baseConfig() models.ScheduleConfig {
	return models.ScheduleConfig{
		ExamDurationMinutes:    30,
		BufferMinutes:          10,
		StartTime:              clock("09:00"),
		EndTime:                clock("11:00"),
		ScheduleFrequencyWeeks: 1,
		TotalExams:             1,
	}
}

func section(id string, days ...time.Weekday) models.Section {
	list := make(models.WeekdayList, 0, len(days))
	for _, d := range days {
		list = append(list, models.Weekday(d))
	}
	return models.Section{ID: id, Name: "Section " + id, PreferredDays: list, Active: true}
}

func roster(sectionID string, n int) []models.Student {
	students := make([]models.Student, 0, n)
	for i := 1; i <= n; i++ {
		students = append(students, models.Student{
			ID:             fmt.Sprintf("%s-stu-%d", sectionID, i),
			SectionID:      sectionID,
			FullName:       fmt.Sprintf("Student %d", i),
			RosterPosition: i,
			Active:         true,
		})
	}
	return students
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("slot-%d", n)
	}
}

func scheduledSlots(slots []models.ExamSlot) []models.ExamSlot {
	var out []models.ExamSlot
	for _, s := range slots {
		if s.IsScheduled {
			out = append(out, s)
		}
	}
	return out
}

func TestSlotStarts(t *testing.T) {
	cases := []struct {
		name     string
		start    string
		end      string
		duration int
		buffer   int
		want     []string
		wantErr  bool
	}{
		{name: "fills window", start: "09:00", end: "11:00", duration: 30, buffer: 10, want: []string{"09:00", "09:40", "10:20"}},
		{name: "exact fit", start: "13:30", end: "13:37", duration: 7, buffer: 1, want: []string{"13:30"}},
		{name: "start equals end", start: "09:00", end: "09:00", duration: 30, buffer: 10},
		{name: "window shorter than duration", start: "09:00", end: "09:20", duration: 30, buffer: 10},
		{name: "zero duration", start: "09:00", end: "11:00", duration: 0, buffer: 10, wantErr: true},
		{name: "negative buffer", start: "09:00", end: "11:00", duration: 30, buffer: -1, wantErr: true},
		{name: "end before start", start: "11:00", end: "09:00", duration: 30, buffer: 10, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			starts, err := SlotStarts(clock(tc.start), clock(tc.end), tc.duration, tc.buffer)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			got := make([]string, 0, len(starts))
			for _, s := range starts {
				got = append(got, s.String())
			}
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPlanScenarioTwoStudentsSameDay(t *testing.T) {
	sec := section("s1", time.Friday)
	out, err := NewDriver(sequentialIDs()).Plan(RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{sec},
		Students:  roster("s1", 2),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Result.ScheduledCount)
	assert.Equal(t, 0, out.Result.UnscheduledCount)
	require.Len(t, out.Slots, 2)

	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	first, second := out.Slots[0], out.Slots[1]
	assert.Equal(t, "s1-stu-1", first.StudentID)
	assert.True(t, first.Date.Equal(friday))
	assert.Equal(t, "09:00", first.StartTime.String())
	assert.Equal(t, "09:30", first.EndTime.String())
	assert.Equal(t, "s1-stu-2", second.StudentID)
	assert.True(t, second.Date.Equal(friday))
	assert.Equal(t, "09:40", second.StartTime.String())
	assert.Equal(t, "10:10", second.EndTime.String())
}

func TestPlanScenarioEmptySection(t *testing.T) {
	out, err := NewDriver(nil).Plan(RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result.ScheduledCount)
	assert.Equal(t, 0, out.Result.UnscheduledCount)
	assert.Empty(t, out.Slots)
	assert.Empty(t, out.Result.Errors)
	assert.False(t, out.Result.HasUnscheduled())
}

func TestPlanScenarioCapacityExhausted(t *testing.T) {
	out, err := NewDriver(sequentialIDs()).Plan(RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday)},
		Students:  roster("s1", 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Result.ScheduledCount)
	assert.Equal(t, 2, out.Result.UnscheduledCount)
	assert.Equal(t, []string{"s1-stu-4", "s1-stu-5"}, out.Result.UnscheduledStudents)
	assert.True(t, out.Result.HasUnscheduled())
	assert.Len(t, out.Result.Errors, 2)

	require.Len(t, out.Slots, 5)
	for _, slot := range out.Slots[3:] {
		assert.False(t, slot.IsScheduled)
		assert.Nil(t, slot.Date)
		assert.Equal(t, 1, slot.WeekNumber)
	}
}

func TestPlanAdvancesToNextPreferredDay(t *testing.T) {
	out, err := NewDriver(sequentialIDs()).Plan(RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday, time.Monday)},
		Students:  roster("s1", 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Result.ScheduledCount)

	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, slot := range out.Slots {
		if i < 3 {
			assert.True(t, slot.Date.Equal(friday), "slot %d", i)
			continue
		}
		assert.True(t, slot.Date.Equal(monday), "slot %d", i)
	}
	assert.Equal(t, "09:00", out.Slots[3].StartTime.String())
}

func TestPlanExcludedDayLeavesStudentsUnscheduled(t *testing.T) {
	cfg := baseConfig()
	cfg.ExcludedDays = models.WeekdayList{models.Weekday(time.Friday)}
	out, err := NewDriver(nil).Plan(RunInput{
		Config:    cfg,
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday, time.Tuesday)},
		Students:  roster("s1", 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Result.ScheduledCount)
	assert.Equal(t, 1, out.Result.UnscheduledCount)
	for _, slot := range scheduledSlots(out.Slots) {
		assert.Equal(t, time.Tuesday, slot.Date.Weekday())
	}
}

func TestPlanInvariantsAcrossRecurrences(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalExams = 3
	cfg.ScheduleFrequencyWeeks = 2
	cfg.EndTime = clock("12:00")
	sections := []models.Section{section("s1", time.Wednesday, time.Thursday), section("s2", time.Wednesday)}
	students := append(roster("s1", 7), roster("s2", 4)...)

	out, err := NewDriver(nil).Plan(RunInput{Config: cfg, StartDate: termStart, Sections: sections, Students: students})
	require.NoError(t, err)
	assert.Equal(t, 33, out.Result.TotalCount())

	weeks := map[int]int{}
	byDay := map[string][]models.ExamSlot{}
	for _, slot := range scheduledSlots(out.Slots) {
		weeks[slot.ExamNumber] = slot.WeekNumber
		assert.Equal(t, cfg.ExamDurationMinutes, int(*slot.EndTime-*slot.StartTime))
		assert.True(t, *slot.StartTime >= cfg.StartTime && *slot.EndTime <= cfg.EndTime)
		key := slot.SectionID + slot.Date.Format("2006-01-02")
		byDay[key] = append(byDay[key], slot)
	}
	assert.Equal(t, map[int]int{1: 1, 2: 3, 3: 5}, weeks)

	for key, slots := range byDay {
		sort.Slice(slots, func(i, j int) bool { return *slots[i].StartTime < *slots[j].StartTime })
		for i := 1; i < len(slots); i++ {
			prev, next := slots[i-1], slots[i]
			assert.False(t, prev.Overlaps(next), key)
			assert.GreaterOrEqual(t, int(*next.StartTime-*prev.EndTime), cfg.BufferMinutes, key)
		}
	}
}

func TestPlanDatesFollowWeekNumbers(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalExams = 2
	cfg.ScheduleFrequencyWeeks = 2
	out, err := NewDriver(nil).Plan(RunInput{
		Config:       cfg,
		StartDate:    termStart,
		StartingExam: 2,
		Sections:     []models.Section{section("s1", time.Friday)},
		Students:     roster("s1", 1),
	})
	require.NoError(t, err)
	require.Len(t, out.Slots, 1)
	slot := out.Slots[0]
	assert.Equal(t, 2, slot.ExamNumber)
	assert.Equal(t, 3, slot.WeekNumber)
	assert.True(t, slot.Date.Equal(time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)))
}

func TestPlanKeepsLockedSlotsAndRoutesAround(t *testing.T) {
	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	start, end := clock("09:00"), clock("09:30")
	locked := models.ExamSlot{
		ID: "locked-1", StudentID: "s1-stu-2", SectionID: "s1", ExamNumber: 1, WeekNumber: 1,
		Date: &friday, StartTime: &start, EndTime: &end, IsScheduled: true, IsLocked: true,
	}
	out, err := NewDriver(sequentialIDs()).Plan(RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday)},
		Students:  roster("s1", 3),
		Existing:  []models.ExamSlot{locked},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.LockedCount)
	assert.Equal(t, 2, out.Result.ScheduledCount)
	for _, slot := range out.Slots {
		assert.NotEqual(t, "s1-stu-2", slot.StudentID)
		assert.False(t, slot.Overlaps(locked))
	}
	assert.Equal(t, "09:40", out.Slots[0].StartTime.String())
	assert.Equal(t, "10:20", out.Slots[1].StartTime.String())
}

func TestPlanIsStableAcrossRuns(t *testing.T) {
	in := RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday, time.Monday)},
		Students:  roster("s1", 8),
	}
	first, err := NewDriver(nil).Plan(in)
	require.NoError(t, err)
	second, err := NewDriver(nil).Plan(in)
	require.NoError(t, err)

	assert.Equal(t, first.Result.ScheduledCount, second.Result.ScheduledCount)
	assert.Equal(t, first.Result.UnscheduledCount, second.Result.UnscheduledCount)
	require.Len(t, second.Slots, len(first.Slots))
	for i := range first.Slots {
		a, b := first.Slots[i], second.Slots[i]
		assert.Equal(t, a.StudentID, b.StudentID)
		assert.True(t, models.SameTiming(a, b))
	}
}

func TestPlanSplitsWeekGroups(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalExams = 2
	cfg.ScheduleFrequencyWeeks = 2
	cfg.StudentSplit = &models.SplitConfig{Enabled: true, PercentGroupA: 40, WeeksBetweenSplits: 1}
	students := roster("s1", 5)
	students[4].WeekGroup = models.WeekGroupA

	out, err := NewDriver(nil).Plan(RunInput{
		Config:    cfg,
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday)},
		Students:  students,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"s1-stu-1": models.WeekGroupA,
		"s1-stu-2": models.WeekGroupB,
		"s1-stu-3": models.WeekGroupB,
		"s1-stu-4": models.WeekGroupB,
	}, out.WeekGroups)

	weeks := map[string][]int{}
	for _, slot := range out.Slots {
		weeks[slot.StudentID] = append(weeks[slot.StudentID], slot.WeekNumber)
	}
	assert.Equal(t, []int{1, 3}, weeks["s1-stu-1"])
	assert.Equal(t, []int{1, 3}, weeks["s1-stu-5"])
	assert.Equal(t, []int{2, 4}, weeks["s1-stu-2"])
	assert.Equal(t, 10, out.Result.ScheduledCount)
}

func TestPlanHonoursStudentConstraints(t *testing.T) {
	students := roster("s1", 3)
	out, err := NewDriver(nil).Plan(RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday, time.Monday)},
		Students:  students,
		Constraints: []models.StudentConstraint{
			{StudentID: "s1-stu-1", Type: models.ConstraintTimeAfter, Value: "10:00", Active: true},
			{StudentID: "s1-stu-3", Type: models.ConstraintExcludeDate, Value: "2024-01-05", Active: true},
			{StudentID: "s1-stu-2", Type: models.ConstraintTimeBefore, Value: "08:00", Active: false},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 3, out.Result.ScheduledCount)

	placed := map[string]models.ExamSlot{}
	for _, slot := range out.Slots {
		placed[slot.StudentID] = slot
	}
	assert.Equal(t, "10:20", placed["s1-stu-1"].StartTime.String())
	assert.Equal(t, "09:00", placed["s1-stu-2"].StartTime.String())
	assert.Equal(t, time.Monday, placed["s1-stu-3"].Date.Weekday())
	assert.Equal(t, "s1-stu-1", out.Slots[0].StudentID)
}

func TestPlanRejectsConfigurationErrors(t *testing.T) {
	valid := RunInput{
		Config:    baseConfig(),
		StartDate: termStart,
		Sections:  []models.Section{section("s1", time.Friday)},
		Students:  roster("s1", 1),
	}
	cases := map[string]func(in *RunInput){
		"zero duration":      func(in *RunInput) { in.Config.ExamDurationMinutes = 0 },
		"zero buffer":        func(in *RunInput) { in.Config.BufferMinutes = 0 },
		"end before start":   func(in *RunInput) { in.Config.EndTime = clock("08:00") },
		"no preferred days":  func(in *RunInput) { in.Sections = []models.Section{section("s1")} },
		"unknown section":    func(in *RunInput) { in.Students[0].SectionID = "ghost" },
		"starting too late":  func(in *RunInput) { in.StartingExam = 2 },
		"bad constraint":     func(in *RunInput) { in.Constraints = []models.StudentConstraint{{StudentID: "s1-stu-1", Type: models.ConstraintTimeBefore, Value: "soon", Active: true}} },
		"split out of range": func(in *RunInput) { in.Config.StudentSplit = &models.SplitConfig{Enabled: true, PercentGroupA: 120} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			in.Students = roster("s1", 1)
			mutate(&in)
			out, err := NewDriver(nil).Plan(in)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, out)
		})
	}
}

func TestAvailabilityConflicts(t *testing.T) {
	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	start, end := clock("09:00"), clock("09:30")
	avail, err := NewAvailability(baseConfig(), []models.ExamSlot{{
		ID: "a", SectionID: "s1", Date: &friday, StartTime: &start, EndTime: &end, IsScheduled: true,
	}})
	require.NoError(t, err)

	assert.True(t, avail.Conflicts("s1", friday, clock("09:15"), clock("09:45")))
	assert.False(t, avail.Conflicts("s1", friday, clock("09:30"), clock("10:00")))
	assert.False(t, avail.Conflicts("s1", friday, clock("09:15"), clock("09:45"), "a"))
	assert.False(t, avail.Conflicts("s2", friday, clock("09:15"), clock("09:45")))

	sec := section("s1", time.Friday)
	assert.True(t, avail.IsDayEligible(sec, friday))
	assert.False(t, avail.IsDayEligible(sec, friday.AddDate(0, 0, 1)))
	starts := avail.AvailableStarts(sec, friday)
	require.Len(t, starts, 2)
	assert.Equal(t, "09:40", starts[0].String())
}
