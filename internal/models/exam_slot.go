package models

import "time"

// ExamSlot assigns one student a (date, start, end) for one exam in one section.
type ExamSlot struct {
	ID          string     `db:"id" json:"id" yaml:"id"`
	CourseID    string     `db:"course_id" json:"course_id" yaml:"-"`
	StudentID   string     `db:"student_id" json:"student_id" yaml:"student_id"`
	SectionID   string     `db:"section_id" json:"section_id" yaml:"section_id"`
	ExamNumber  int        `db:"exam_number" json:"exam_number" yaml:"exam_number"`
	WeekNumber  int        `db:"week_number" json:"week_number" yaml:"week_number"`
	Date        *time.Time `db:"date" json:"date,omitempty" yaml:"-"`
	StartTime   *Clock     `db:"start_time" json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime     *Clock     `db:"end_time" json:"end_time,omitempty" yaml:"end_time,omitempty"`
	IsScheduled bool       `db:"is_scheduled" json:"is_scheduled" yaml:"scheduled"`
	IsLocked    bool       `db:"is_locked" json:"is_locked" yaml:"locked"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at" yaml:"-"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-" yaml:"-"`
}

// HasTime reports whether the slot carries a concrete date and interval.
func (s ExamSlot) HasTime() bool {
	return s.Date != nil && s.StartTime != nil && s.EndTime != nil
}

// Overlaps reports whether two slots share a date and intersect on [start, end).
func (s ExamSlot) Overlaps(other ExamSlot) bool {
	if !s.HasTime() || !other.HasTime() {
		return false
	}
	if !s.Date.Equal(*other.Date) {
		return false
	}
	return *s.StartTime < *other.EndTime && *other.StartTime < *s.EndTime
}

// ExamSlotHistory is an append-only snapshot of a slot taken before a change.
type ExamSlotHistory struct {
	ID          string     `db:"id" json:"id"`
	ExamSlotID  string     `db:"exam_slot_id" json:"exam_slot_id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	SectionID   string     `db:"section_id" json:"section_id"`
	ExamNumber  int        `db:"exam_number" json:"exam_number"`
	WeekNumber  int        `db:"week_number" json:"week_number"`
	Date        *time.Time `db:"date" json:"date,omitempty"`
	StartTime   *Clock     `db:"start_time" json:"start_time,omitempty"`
	EndTime     *Clock     `db:"end_time" json:"end_time,omitempty"`
	IsScheduled bool       `db:"is_scheduled" json:"is_scheduled"`
	ChangedAt   time.Time  `db:"changed_at" json:"changed_at"`
	ChangedBy   string     `db:"changed_by" json:"changed_by"`
	Reason      string     `db:"reason" json:"reason"`
}

// SnapshotExamSlot captures the restorable fields of a slot.
func SnapshotExamSlot(slot ExamSlot, actor, reason string, at time.Time) ExamSlotHistory {
	return ExamSlotHistory{
		ExamSlotID:  slot.ID,
		StudentID:   slot.StudentID,
		SectionID:   slot.SectionID,
		ExamNumber:  slot.ExamNumber,
		WeekNumber:  slot.WeekNumber,
		Date:        slot.Date,
		StartTime:   slot.StartTime,
		EndTime:     slot.EndTime,
		IsScheduled: slot.IsScheduled,
		ChangedAt:   at,
		ChangedBy:   actor,
		Reason:      reason,
	}
}

// SameTiming reports whether two slots share date, interval and scheduled flag.
func SameTiming(a, b ExamSlot) bool {
	if a.IsScheduled != b.IsScheduled || a.SectionID != b.SectionID || a.WeekNumber != b.WeekNumber {
		return false
	}
	return equalDate(a.Date, b.Date) && equalClock(a.StartTime, b.StartTime) && equalClock(a.EndTime, b.EndTime)
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalClock(a, b *Clock) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ExamSlotFilter narrows slot listings.
type ExamSlotFilter struct {
	CourseID   string
	SectionID  string
	ExamNumber int
	Scheduled  *bool
}
