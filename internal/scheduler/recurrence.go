package scheduler

import (
	"time"

	"github.com/noah-isme/examslot-api/internal/models"
)

// RunInput is everything one generation run needs.
type RunInput struct {
	CourseID     string
	Config       models.ScheduleConfig
	StartDate    time.Time
	StartingExam int
	Sections     []models.Section
	Students     []models.Student
	Constraints  []models.StudentConstraint
	// Existing holds slots that stay live through the run: locked slots and
	// slots outside the regenerated range. Superseded slots must be excluded.
	Existing []models.ExamSlot
}

// RunOutput is the plan produced by a run. Nothing is persisted by the driver.
type RunOutput struct {
	Slots      []models.ExamSlot
	WeekGroups map[string]string
	Result     models.ScheduleResult
}

// Driver repeats the engine across every exam of the configured cadence.
type Driver struct {
	newID func() string
}

// NewDriver constructs a driver. A nil idFunc keeps random UUIDs.
func NewDriver(idFunc func() string) *Driver {
	return &Driver{newID: idFunc}
}

// Plan validates the input and assigns every student for exams StartingExam..TotalExams.
func (d *Driver) Plan(in RunInput) (*RunOutput, error) {
	if err := ValidateConfig(in.Config); err != nil {
		return nil, err
	}
	startingExam := in.StartingExam
	if startingExam <= 0 {
		startingExam = 1
	}
	if startingExam > in.Config.TotalExams {
		return nil, configError("starting exam %d exceeds total exams %d", startingExam, in.Config.TotalExams)
	}
	if in.StartDate.IsZero() {
		return nil, configError("start date is required")
	}
	roster, err := rosterBySection(in.Sections, in.Students)
	if err != nil {
		return nil, err
	}

	avail, err := NewAvailability(in.Config, in.Existing)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(avail, in.Constraints)
	if err != nil {
		return nil, err
	}
	if d.newID != nil {
		engine.newID = d.newID
	}

	groups := make(map[string]string)
	out := &RunOutput{WeekGroups: make(map[string]string)}
	for _, section := range in.Sections {
		assigned := assignWeekGroups(roster[section.ID], in.Config, engine.constraints)
		for id, group := range assigned {
			groups[id] = group
		}
	}
	for _, student := range in.Students {
		if group, ok := groups[student.ID]; ok && group != student.WeekGroup {
			out.WeekGroups[student.ID] = group
		}
	}

	unscheduledSeen := make(map[string]bool)
	for exam := startingExam; exam <= in.Config.TotalExams; exam++ {
		for _, group := range weekGroupsFor(in.Config) {
			week := WeekNumber(in.Config, exam, group)
			anchor := WeekAnchor(in.StartDate, week)
			for _, section := range in.Sections {
				students := filterGroup(roster[section.ID], groups, group)
				if len(students) == 0 {
					continue
				}
				outcome := engine.AssignWeek(WeekPlan{
					CourseID:   in.CourseID,
					ExamNumber: exam,
					WeekNumber: week,
					Anchor:     anchor,
					Section:    section,
					Students:   students,
				})
				out.Slots = append(out.Slots, outcome.Slots...)
				out.Result.ScheduledCount += outcome.Scheduled
				out.Result.UnscheduledCount += outcome.Unscheduled
				out.Result.LockedCount += outcome.Locked
				out.Result.Errors = append(out.Result.Errors, outcome.Errors...)
				for _, id := range outcome.UnscheduledStudents {
					if !unscheduledSeen[id] {
						unscheduledSeen[id] = true
						out.Result.UnscheduledStudents = append(out.Result.UnscheduledStudents, id)
					}
				}
			}
		}
	}
	return out, nil
}

// WeekNumber returns the 1-based week in which a group sits an exam.
func WeekNumber(cfg models.ScheduleConfig, examNumber int, group string) int {
	frequency := cfg.ScheduleFrequencyWeeks
	if frequency <= 0 {
		frequency = 1
	}
	week := (examNumber-1)*frequency + 1
	if cfg.SplitEnabled() && group == models.WeekGroupB {
		week += cfg.StudentSplit.WeeksBetweenSplits
	}
	return week
}

// WeekAnchor returns the first day of the given week counted from the start date.
func WeekAnchor(startDate time.Time, week int) time.Time {
	return models.DateOnly(startDate).AddDate(0, 0, (week-1)*7)
}

// assignWeekGroups decides each student's week group for a single section.
// Week-preference constraints win, existing groups are kept, and the rest fill
// group A in roster order up to floor(n*pct/100) with the remainder in group B.
func assignWeekGroups(students []models.Student, cfg models.ScheduleConfig, constraints map[string]constraintSet) map[string]string {
	out := make(map[string]string, len(students))
	if !cfg.SplitEnabled() {
		return out
	}
	targetA := len(students) * cfg.StudentSplit.PercentGroupA / 100
	countA := 0
	var pending []models.Student
	for _, student := range students {
		group := constraints[student.ID].weekGroup
		if group == "" {
			group = student.WeekGroup
		}
		switch group {
		case models.WeekGroupA:
			countA++
			out[student.ID] = group
		case models.WeekGroupB:
			out[student.ID] = group
		default:
			pending = append(pending, student)
		}
	}
	for _, student := range pending {
		if countA < targetA {
			out[student.ID] = models.WeekGroupA
			countA++
			continue
		}
		out[student.ID] = models.WeekGroupB
	}
	return out
}

func weekGroupsFor(cfg models.ScheduleConfig) []string {
	if cfg.SplitEnabled() {
		return []string{models.WeekGroupA, models.WeekGroupB}
	}
	return []string{""}
}

func filterGroup(students []models.Student, groups map[string]string, group string) []models.Student {
	if group == "" {
		return students
	}
	filtered := make([]models.Student, 0, len(students))
	for _, student := range students {
		if groups[student.ID] == group {
			filtered = append(filtered, student)
		}
	}
	return filtered
}

func rosterBySection(sections []models.Section, students []models.Student) (map[string][]models.Student, error) {
	roster := make(map[string][]models.Student, len(sections))
	for _, section := range sections {
		if len(section.PreferredDays) == 0 {
			return nil, configError("section %s has no preferred days", section.Name)
		}
		if _, dup := roster[section.ID]; dup {
			return nil, configError("section %s listed twice", section.ID)
		}
		roster[section.ID] = nil
	}
	seen := make(map[string]bool, len(students))
	for _, student := range students {
		if _, ok := roster[student.SectionID]; !ok {
			return nil, configError("student %s belongs to unknown section %s", student.ID, student.SectionID)
		}
		if seen[student.ID] {
			return nil, configError("student %s listed twice", student.ID)
		}
		seen[student.ID] = true
		roster[student.SectionID] = append(roster[student.SectionID], student)
	}
	return roster, nil
}
