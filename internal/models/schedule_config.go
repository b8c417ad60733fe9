package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday wraps time.Weekday with lowercase textual encoding ("monday").
type Weekday time.Weekday

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(raw string) (Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if day, ok := weekdayNames[key]; ok {
		return Weekday(day), nil
	}
	for name, day := range weekdayNames {
		if len(key) == 3 && strings.HasPrefix(name, key) {
			return Weekday(day), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", raw)
}

// Std returns the time.Weekday value.
func (d Weekday) Std() time.Weekday { return time.Weekday(d) }

func (d Weekday) String() string { return strings.ToLower(time.Weekday(d).String()) }

// MarshalText renders the lowercase day name.
func (d Weekday) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a day name.
func (d *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeekdayList is an ordered list of weekdays stored as a JSON array.
type WeekdayList []Weekday

// Contains reports whether the list includes the weekday.
func (l WeekdayList) Contains(day time.Weekday) bool {
	for _, d := range l {
		if d.Std() == day {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner for JSONB columns.
func (l *WeekdayList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into WeekdayList", src)
	}
	var out WeekdayList
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode weekdays: %w", err)
	}
	*l = out
	return nil
}

// Value implements driver.Valuer.
func (l WeekdayList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// SplitConfig partitions a section roster into week groups A and B.
type SplitConfig struct {
	Enabled            bool `json:"enabled" yaml:"enabled"`
	PercentGroupA      int  `json:"percent_group_a" yaml:"percent_group_a" validate:"min=0,max=100"`
	WeeksBetweenSplits int  `json:"weeks_between_splits" yaml:"weeks_between_splits" validate:"min=0"`
}

// ScheduleConfig enumerates every course-wide scheduling option.
type ScheduleConfig struct {
	ExamDurationMinutes    int          `json:"exam_duration_minutes" yaml:"exam_duration_minutes"`
	BufferMinutes          int          `json:"buffer_minutes" yaml:"buffer_minutes"`
	StartTime              Clock        `json:"start_time" yaml:"start_time"`
	EndTime                Clock        `json:"end_time" yaml:"end_time"`
	ExcludedDays           WeekdayList  `json:"excluded_days" yaml:"excluded_days"`
	ScheduleFrequencyWeeks int          `json:"schedule_frequency_weeks" yaml:"schedule_frequency_weeks"`
	TotalExams             int          `json:"total_exams" yaml:"total_exams"`
	StudentSplit           *SplitConfig `json:"student_split,omitempty" yaml:"student_split,omitempty"`
}

// SplitEnabled reports whether week-group splitting applies.
func (c ScheduleConfig) SplitEnabled() bool {
	return c.StudentSplit != nil && c.StudentSplit.Enabled
}

// Week groups used when splitting is enabled.
const (
	WeekGroupA = "A"
	WeekGroupB = "B"
)
