package scheduler

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/examslot-api/internal/models"
)

// priority bands; lower runs first.
const (
	bandTimeBefore = iota
	bandTimeAfter
	bandOther
	bandNone
)

type constraintSet struct {
	before    *models.Clock
	after     *models.Clock
	onlyDates map[string]bool
	skipDates map[string]bool
	weekGroup string
	count     int
}

func (c constraintSet) allows(date time.Time, start models.Clock) bool {
	if c.before != nil && start >= *c.before {
		return false
	}
	if c.after != nil && start < *c.after {
		return false
	}
	key := date.Format("2006-01-02")
	if len(c.onlyDates) > 0 && !c.onlyDates[key] {
		return false
	}
	return !c.skipDates[key]
}

func (c constraintSet) band() int {
	switch {
	case c.before != nil:
		return bandTimeBefore
	case c.after != nil:
		return bandTimeAfter
	case c.count > 0:
		return bandOther
	default:
		return bandNone
	}
}

// buildConstraints indexes active constraints by student and rejects malformed values.
func buildConstraints(list []models.StudentConstraint) (map[string]constraintSet, error) {
	out := make(map[string]constraintSet)
	for _, item := range list {
		if !item.Active {
			continue
		}
		set := out[item.StudentID]
		set.count++
		switch item.Type {
		case models.ConstraintTimeBefore, models.ConstraintTimeAfter:
			clock, err := models.ParseClock(item.Value)
			if err != nil {
				return nil, configError("constraint %s for student %s: %v", item.Type, item.StudentID, err)
			}
			if item.Type == models.ConstraintTimeBefore {
				if set.before == nil || clock < *set.before {
					set.before = &clock
				}
			} else if set.after == nil || clock > *set.after {
				set.after = &clock
			}
		case models.ConstraintSpecificDate, models.ConstraintExcludeDate:
			date, err := models.ParseDate(item.Value)
			if err != nil {
				return nil, configError("constraint %s for student %s: %v", item.Type, item.StudentID, err)
			}
			key := date.Format("2006-01-02")
			if item.Type == models.ConstraintSpecificDate {
				if set.onlyDates == nil {
					set.onlyDates = make(map[string]bool)
				}
				set.onlyDates[key] = true
			} else {
				if set.skipDates == nil {
					set.skipDates = make(map[string]bool)
				}
				set.skipDates[key] = true
			}
		case models.ConstraintWeekPreference:
			group := strings.ToUpper(strings.TrimSpace(item.Value))
			if group != models.WeekGroupA && group != models.WeekGroupB {
				return nil, configError("week preference for student %s must be A or B, got %q", item.StudentID, item.Value)
			}
			set.weekGroup = group
		default:
			return nil, configError("unknown constraint type %q for student %s", item.Type, item.StudentID)
		}
		out[item.StudentID] = set
	}
	return out, nil
}

// orderStudents moves constrained students ahead while preserving roster order within a band.
func orderStudents(students []models.Student, constraints map[string]constraintSet) []models.Student {
	ordered := make([]models.Student, len(students))
	copy(ordered, students)
	sort.SliceStable(ordered, func(i, j int) bool {
		return constraints[ordered[i].ID].band() < constraints[ordered[j].ID].band()
	})
	return ordered
}
