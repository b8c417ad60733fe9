// Package scheduler assigns students to recurring, non-overlapping exam slots.
//
// The package is free of I/O: callers load sections, students and existing
// slots, run a Driver, and persist the returned slots themselves.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/noah-isme/examslot-api/internal/models"
)

// ErrInvalidConfig marks configuration problems that must abort a run before any write.
var ErrInvalidConfig = errors.New("invalid schedule configuration")

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// SlotStarts lists the candidate start times of a day window in ascending order.
// Consecutive starts are duration+buffer apart and every slot ends by the window end.
func SlotStarts(start, end models.Clock, duration, buffer int) ([]models.Clock, error) {
	if duration <= 0 {
		return nil, configError("exam duration must be positive, got %d", duration)
	}
	if buffer <= 0 {
		return nil, configError("buffer must be positive, got %d", buffer)
	}
	if end < start {
		return nil, configError("window end %s is before start %s", end, start)
	}
	var starts []models.Clock
	for t := start; t.Add(duration) <= end; t = t.Add(duration + buffer) {
		starts = append(starts, t)
	}
	return starts, nil
}

// ValidateConfig checks a course configuration before generation starts.
func ValidateConfig(cfg models.ScheduleConfig) error {
	if cfg.ExamDurationMinutes <= 0 {
		return configError("exam duration must be positive, got %d", cfg.ExamDurationMinutes)
	}
	if cfg.BufferMinutes <= 0 {
		return configError("buffer must be positive, got %d", cfg.BufferMinutes)
	}
	if !cfg.StartTime.Valid() || !cfg.EndTime.Valid() {
		return configError("window %s-%s is outside a single day", cfg.StartTime, cfg.EndTime)
	}
	if cfg.EndTime <= cfg.StartTime {
		return configError("window end %s must be after start %s", cfg.EndTime, cfg.StartTime)
	}
	if cfg.ScheduleFrequencyWeeks <= 0 {
		return configError("schedule frequency must be at least one week, got %d", cfg.ScheduleFrequencyWeeks)
	}
	if cfg.TotalExams <= 0 {
		return configError("total exams must be positive, got %d", cfg.TotalExams)
	}
	if len(cfg.ExcludedDays) >= 7 {
		return configError("every weekday is excluded")
	}
	if split := cfg.StudentSplit; split != nil && split.Enabled {
		if split.PercentGroupA < 0 || split.PercentGroupA > 100 {
			return configError("split percentage must be within 0-100, got %d", split.PercentGroupA)
		}
		if split.WeeksBetweenSplits < 0 {
			return configError("weeks between splits cannot be negative, got %d", split.WeeksBetweenSplits)
		}
	}
	return nil
}
