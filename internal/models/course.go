package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Course owns sections, students and the scheduling configuration.
type Course struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	StartDate time.Time      `db:"start_date" json:"start_date"`
	RawConfig types.JSONText `db:"schedule_config" json:"-"`
	Config    ScheduleConfig `db:"-" json:"config"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Section groups students that share one facilitator and slot pool.
type Section struct {
	ID            string      `db:"id" json:"id" yaml:"id"`
	CourseID      string      `db:"course_id" json:"course_id" yaml:"-"`
	Name          string      `db:"name" json:"name" yaml:"name"`
	FacilitatorID string      `db:"facilitator_id" json:"facilitator_id" yaml:"facilitator_id"`
	Location      string      `db:"location" json:"location" yaml:"location"`
	PreferredDays WeekdayList `db:"preferred_days" json:"preferred_days" yaml:"preferred_days"`
	Position      int         `db:"position" json:"position" yaml:"-"`
	Active        bool        `db:"active" json:"active" yaml:"-"`
}

// Student is a roster member belonging to exactly one section.
type Student struct {
	ID             string `db:"id" json:"id" yaml:"id"`
	CourseID       string `db:"course_id" json:"course_id" yaml:"-"`
	SectionID      string `db:"section_id" json:"section_id" yaml:"section_id"`
	FullName       string `db:"full_name" json:"full_name" yaml:"full_name"`
	ContactHandle  string `db:"contact_handle" json:"contact_handle" yaml:"contact_handle"`
	WeekGroup      string `db:"week_group" json:"week_group,omitempty" yaml:"week_group,omitempty"`
	RosterPosition int    `db:"roster_position" json:"roster_position" yaml:"-"`
	Active         bool   `db:"active" json:"active" yaml:"-"`
}

// ConstraintType enumerates per-student scheduling constraints.
type ConstraintType string

const (
	ConstraintTimeBefore     ConstraintType = "time_before"
	ConstraintTimeAfter      ConstraintType = "time_after"
	ConstraintSpecificDate   ConstraintType = "specific_date"
	ConstraintExcludeDate    ConstraintType = "exclude_date"
	ConstraintWeekPreference ConstraintType = "week_preference"
)

// StudentConstraint restricts where the engine may place a student.
type StudentConstraint struct {
	ID        string         `db:"id" json:"id" yaml:"-"`
	StudentID string         `db:"student_id" json:"student_id" yaml:"student_id"`
	Type      ConstraintType `db:"constraint_type" json:"constraint_type" yaml:"type"`
	Value     string         `db:"constraint_value" json:"constraint_value" yaml:"value"`
	Active    bool           `db:"active" json:"active" yaml:"-"`
}
