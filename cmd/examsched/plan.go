package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/examslot-api/internal/models"
	"github.com/noah-isme/examslot-api/internal/scheduler"
)

// scenario is an offline generation input read from YAML.
type scenario struct {
	CourseID     string                     `yaml:"course_id"`
	StartDate    string                     `yaml:"start_date"`
	StartingExam int                        `yaml:"starting_exam"`
	Config       models.ScheduleConfig      `yaml:"config"`
	Sections     []models.Section           `yaml:"sections"`
	Students     []models.Student           `yaml:"students"`
	Constraints  []models.StudentConstraint `yaml:"constraints"`
	Locked       []plannedSlot              `yaml:"locked"`
}

type plannedSlot struct {
	StudentID  string `yaml:"student_id"`
	SectionID  string `yaml:"section_id"`
	ExamNumber int    `yaml:"exam_number"`
	WeekNumber int    `yaml:"week_number"`
	Date       string `yaml:"date,omitempty"`
	Start      string `yaml:"start,omitempty"`
	End        string `yaml:"end,omitempty"`
	Scheduled  bool   `yaml:"scheduled"`
	Locked     bool   `yaml:"locked,omitempty"`
}

type planReport struct {
	Result     models.ScheduleResult `yaml:"result"`
	WeekGroups map[string]string     `yaml:"week_groups,omitempty"`
	Slots      []plannedSlot         `yaml:"slots"`
}

func planCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Run the scheduler offline on a YAML scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open scenario: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runPlan(in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "scenario file, - for stdin")
	return cmd
}

func runPlan(in io.Reader, out io.Writer) error {
	var sc scenario
	if err := yaml.NewDecoder(in).Decode(&sc); err != nil {
		return fmt.Errorf("decode scenario: %w", err)
	}
	input, err := sc.runInput()
	if err != nil {
		return err
	}

	seq := 0
	plan, err := scheduler.NewDriver(func() string {
		seq++
		return fmt.Sprintf("slot-%d", seq)
	}).Plan(input)
	if err != nil {
		return err
	}

	report := planReport{Result: plan.Result, WeekGroups: plan.WeekGroups}
	for _, slot := range plan.Slots {
		report.Slots = append(report.Slots, toPlanned(slot))
	}
	sort.SliceStable(report.Slots, func(i, j int) bool {
		a, b := report.Slots[i], report.Slots[j]
		if a.ExamNumber != b.ExamNumber {
			return a.ExamNumber < b.ExamNumber
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Start < b.Start
	})

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}

func (sc scenario) runInput() (scheduler.RunInput, error) {
	start, err := models.ParseDate(sc.StartDate)
	if err != nil {
		return scheduler.RunInput{}, fmt.Errorf("start_date: %w", err)
	}
	courseID := sc.CourseID
	if courseID == "" {
		courseID = "scenario"
	}
	for i := range sc.Sections {
		sc.Sections[i].CourseID = courseID
		sc.Sections[i].Position = i
		sc.Sections[i].Active = true
	}
	for i := range sc.Students {
		sc.Students[i].CourseID = courseID
		sc.Students[i].RosterPosition = i
		sc.Students[i].Active = true
	}
	for i := range sc.Constraints {
		sc.Constraints[i].Active = true
	}

	existing := make([]models.ExamSlot, 0, len(sc.Locked))
	for i, p := range sc.Locked {
		slot, err := p.toSlot(courseID)
		if err != nil {
			return scheduler.RunInput{}, fmt.Errorf("locked[%d]: %w", i, err)
		}
		slot.ID = fmt.Sprintf("locked-%d", i+1)
		existing = append(existing, slot)
	}

	return scheduler.RunInput{
		CourseID:     courseID,
		Config:       sc.Config,
		StartDate:    start,
		StartingExam: sc.StartingExam,
		Sections:     sc.Sections,
		Students:     sc.Students,
		Constraints:  sc.Constraints,
		Existing:     existing,
	}, nil
}

func (p plannedSlot) toSlot(courseID string) (models.ExamSlot, error) {
	date, err := models.ParseDate(p.Date)
	if err != nil {
		return models.ExamSlot{}, err
	}
	start, err := models.ParseClock(p.Start)
	if err != nil {
		return models.ExamSlot{}, err
	}
	end, err := models.ParseClock(p.End)
	if err != nil {
		return models.ExamSlot{}, err
	}
	return models.ExamSlot{
		CourseID:    courseID,
		StudentID:   p.StudentID,
		SectionID:   p.SectionID,
		ExamNumber:  p.ExamNumber,
		WeekNumber:  p.WeekNumber,
		Date:        &date,
		StartTime:   &start,
		EndTime:     &end,
		IsScheduled: true,
		IsLocked:    true,
	}, nil
}

func toPlanned(slot models.ExamSlot) plannedSlot {
	p := plannedSlot{
		StudentID:  slot.StudentID,
		SectionID:  slot.SectionID,
		ExamNumber: slot.ExamNumber,
		WeekNumber: slot.WeekNumber,
		Scheduled:  slot.IsScheduled,
		Locked:     slot.IsLocked,
	}
	if slot.Date != nil {
		p.Date = slot.Date.Format("2006-01-02")
	}
	if slot.StartTime != nil {
		p.Start = slot.StartTime.String()
	}
	if slot.EndTime != nil {
		p.End = slot.EndTime.String()
	}
	return p
}
