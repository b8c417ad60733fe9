package models

import "encoding/json"

// ScheduleResult summarises one generation run.
type ScheduleResult struct {
	ScheduledCount      int      `json:"scheduled_count" yaml:"scheduled_count"`
	UnscheduledCount    int      `json:"unscheduled_count" yaml:"unscheduled_count"`
	LockedCount         int      `json:"locked_count" yaml:"locked_count"`
	UnscheduledStudents []string `json:"unscheduled_students" yaml:"unscheduled_students"`
	Errors              []string `json:"errors" yaml:"errors"`
}

// TotalCount counts every (student, exam) pair the run touched.
func (r ScheduleResult) TotalCount() int {
	return r.ScheduledCount + r.UnscheduledCount + r.LockedCount
}

// HasUnscheduled reports whether any student could not be placed.
func (r ScheduleResult) HasUnscheduled() bool { return r.UnscheduledCount > 0 }

// HasErrors reports whether the run recorded any error strings.
func (r ScheduleResult) HasErrors() bool { return len(r.Errors) > 0 }

// MarshalJSON adds the derived flags to the payload.
func (r ScheduleResult) MarshalJSON() ([]byte, error) {
	type alias ScheduleResult
	unscheduled := r.UnscheduledStudents
	if unscheduled == nil {
		unscheduled = []string{}
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	a := alias(r)
	a.UnscheduledStudents = unscheduled
	a.Errors = errs
	return json.Marshal(struct {
		alias
		TotalCount     int  `json:"total_count"`
		HasUnscheduled bool `json:"has_unscheduled"`
		HasErrors      bool `json:"has_errors"`
	}{
		alias:          a,
		TotalCount:     r.TotalCount(),
		HasUnscheduled: r.HasUnscheduled(),
		HasErrors:      r.HasErrors(),
	})
}

// ScheduleRunStatus tracks asynchronous generation runs.
type ScheduleRunStatus string

const (
	ScheduleRunQueued    ScheduleRunStatus = "queued"
	ScheduleRunRunning   ScheduleRunStatus = "running"
	ScheduleRunSucceeded ScheduleRunStatus = "succeeded"
	ScheduleRunFailed    ScheduleRunStatus = "failed"
)

// ScheduleRun is the observable state of an asynchronous generation.
type ScheduleRun struct {
	ID        string            `json:"id"`
	CourseID  string            `json:"course_id"`
	Status    ScheduleRunStatus `json:"status"`
	Result    *ScheduleResult   `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedBy string            `json:"created_by"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
}
