package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/examslot-api/internal/models"
)

// WeekPlan is one section's roster for one exam in one calendar week.
type WeekPlan struct {
	CourseID   string
	ExamNumber int
	WeekNumber int
	Anchor     time.Time
	Section    models.Section
	Students   []models.Student
}

// WeekOutcome collects what the engine produced for a WeekPlan.
type WeekOutcome struct {
	Slots               []models.ExamSlot
	Scheduled           int
	Unscheduled         int
	Locked              int
	UnscheduledStudents []string
	Errors              []string
}

// Engine greedily places students into the earliest free start of their section.
type Engine struct {
	cfg         models.ScheduleConfig
	avail       *Availability
	constraints map[string]constraintSet
	newID       func() string
}

// NewEngine builds an engine over an availability model.
func NewEngine(avail *Availability, constraints []models.StudentConstraint) (*Engine, error) {
	sets, err := buildConstraints(constraints)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:         avail.cfg,
		avail:       avail,
		constraints: sets,
		newID:       uuid.NewString,
	}, nil
}

// AssignWeek places every student of the plan or records them as unscheduled.
func (e *Engine) AssignWeek(plan WeekPlan) WeekOutcome {
	var out WeekOutcome
	days := WeekDays(plan.Section, plan.Anchor)
	for _, student := range orderStudents(plan.Students, e.constraints) {
		if _, locked := e.avail.LockedSlot(student.ID, plan.ExamNumber); locked {
			out.Locked++
			continue
		}
		slot, ok := e.place(plan, days, student)
		out.Slots = append(out.Slots, slot)
		if ok {
			out.Scheduled++
			continue
		}
		out.Unscheduled++
		out.UnscheduledStudents = append(out.UnscheduledStudents, student.ID)
		out.Errors = append(out.Errors, fmt.Sprintf(
			"exam %d week %d: no available slot for student %s (%s) in section %s",
			plan.ExamNumber, plan.WeekNumber, student.FullName, student.ID, plan.Section.Name,
		))
	}
	return out
}

// Place finds one slot for a single student without disturbing anyone else.
// The returned slot is unscheduled when ok is false.
func (e *Engine) Place(plan WeekPlan, student models.Student) (models.ExamSlot, bool) {
	return e.place(plan, WeekDays(plan.Section, plan.Anchor), student)
}

func (e *Engine) place(plan WeekPlan, days []time.Time, student models.Student) (models.ExamSlot, bool) {
	slot := models.ExamSlot{
		ID:         e.newID(),
		CourseID:   plan.CourseID,
		StudentID:  student.ID,
		SectionID:  plan.Section.ID,
		ExamNumber: plan.ExamNumber,
		WeekNumber: plan.WeekNumber,
	}
	rules := e.constraints[student.ID]
	for _, day := range days {
		for _, start := range e.avail.AvailableStarts(plan.Section, day) {
			if !rules.allows(day, start) {
				continue
			}
			date := day
			begin := start
			end := start.Add(e.cfg.ExamDurationMinutes)
			slot.Date = &date
			slot.StartTime = &begin
			slot.EndTime = &end
			slot.IsScheduled = true
			e.avail.Reserve(slot)
			return slot, true
		}
	}
	return slot, false
}

// WeekDays lists the section's preferred dates within the 7 days from anchor,
// in the section's preferred order.
func WeekDays(section models.Section, anchor time.Time) []time.Time {
	anchor = models.DateOnly(anchor)
	days := make([]time.Time, 0, len(section.PreferredDays))
	seen := make(map[time.Weekday]bool, len(section.PreferredDays))
	for _, preferred := range section.PreferredDays {
		wd := preferred.Std()
		if seen[wd] {
			continue
		}
		seen[wd] = true
		offset := (int(wd) - int(anchor.Weekday()) + 7) % 7
		days = append(days, anchor.AddDate(0, 0, offset))
	}
	return days
}
