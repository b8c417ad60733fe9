package scheduler

import (
	"time"

	"github.com/noah-isme/examslot-api/internal/models"
)

type dayKey struct {
	sectionID string
	date      string
}

type interval struct {
	slotID string
	start  models.Clock
	end    models.Clock
}

type studentExam struct {
	studentID  string
	examNumber int
}

// Availability tracks slot occupancy per (section, date) during a run.
type Availability struct {
	cfg        models.ScheduleConfig
	candidates []models.Clock
	excluded   map[time.Weekday]bool
	occupied   map[dayKey][]interval
	locked     map[studentExam]models.ExamSlot
}

// NewAvailability seeds the model with slots that stay live through the run.
func NewAvailability(cfg models.ScheduleConfig, existing []models.ExamSlot) (*Availability, error) {
	candidates, err := SlotStarts(cfg.StartTime, cfg.EndTime, cfg.ExamDurationMinutes, cfg.BufferMinutes)
	if err != nil {
		return nil, err
	}
	a := &Availability{
		cfg:        cfg,
		candidates: candidates,
		excluded:   make(map[time.Weekday]bool, len(cfg.ExcludedDays)),
		occupied:   make(map[dayKey][]interval),
		locked:     make(map[studentExam]models.ExamSlot),
	}
	for _, day := range cfg.ExcludedDays {
		a.excluded[day.Std()] = true
	}
	for _, slot := range existing {
		if slot.IsLocked {
			a.locked[studentExam{studentID: slot.StudentID, examNumber: slot.ExamNumber}] = slot
		}
		a.Reserve(slot)
	}
	return a, nil
}

// IsDayEligible is false when the weekday is excluded or not preferred by the section.
func (a *Availability) IsDayEligible(section models.Section, date time.Time) bool {
	day := date.Weekday()
	if a.excluded[day] {
		return false
	}
	return section.PreferredDays.Contains(day)
}

// AvailableStarts returns candidate starts on the date that keep a buffer
// from every slot already occupying the section.
func (a *Availability) AvailableStarts(section models.Section, date time.Time) []models.Clock {
	if !a.IsDayEligible(section, date) {
		return nil
	}
	taken := a.occupied[keyFor(section.ID, date)]
	free := make([]models.Clock, 0, len(a.candidates))
	for _, start := range a.candidates {
		end := start.Add(a.cfg.ExamDurationMinutes)
		if a.clear(taken, start, end) {
			free = append(free, start)
		}
	}
	return free
}

func (a *Availability) clear(taken []interval, start, end models.Clock) bool {
	buffer := a.cfg.BufferMinutes
	for _, iv := range taken {
		if end.Add(buffer) <= iv.start || start >= iv.end.Add(buffer) {
			continue
		}
		return false
	}
	return true
}

// Reserve marks a slot's interval as occupied. Slots without a time are ignored.
func (a *Availability) Reserve(slot models.ExamSlot) {
	if !slot.IsScheduled || !slot.HasTime() {
		return
	}
	key := keyFor(slot.SectionID, *slot.Date)
	a.occupied[key] = append(a.occupied[key], interval{slotID: slot.ID, start: *slot.StartTime, end: *slot.EndTime})
}

// Conflicts reports a strict [start, end) overlap with any occupied slot in the
// section on the date, skipping the given slot ids.
func (a *Availability) Conflicts(sectionID string, date time.Time, start, end models.Clock, ignore ...string) bool {
	skip := make(map[string]bool, len(ignore))
	for _, id := range ignore {
		skip[id] = true
	}
	for _, iv := range a.occupied[keyFor(sectionID, date)] {
		if iv.slotID != "" && skip[iv.slotID] {
			continue
		}
		if start < iv.end && iv.start < end {
			return true
		}
	}
	return false
}

// LockedSlot returns the locked slot held by a student for an exam, if any.
func (a *Availability) LockedSlot(studentID string, examNumber int) (models.ExamSlot, bool) {
	slot, ok := a.locked[studentExam{studentID: studentID, examNumber: examNumber}]
	return slot, ok
}

func keyFor(sectionID string, date time.Time) dayKey {
	return dayKey{sectionID: sectionID, date: date.Format("2006-01-02")}
}

// FindConflict returns the first slot of the section on the date whose interval
// strictly overlaps [start, end), skipping the given slot ids.
func FindConflict(slots []models.ExamSlot, sectionID string, date time.Time, start, end models.Clock, ignore ...string) (models.ExamSlot, bool) {
	candidate := models.ExamSlot{SectionID: sectionID, Date: &date, StartTime: &start, EndTime: &end}
	for _, slot := range slots {
		if slot.SectionID != sectionID || !slot.IsScheduled || containsID(ignore, slot.ID) {
			continue
		}
		if candidate.Overlaps(slot) {
			return slot, true
		}
	}
	return models.ExamSlot{}, false
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
