package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/examslot-api/internal/models"
)

// CourseRepository reads courses and their stored scheduling configuration.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the course does not exist.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, start_date, schedule_config, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	if len(course.RawConfig) > 0 && string(course.RawConfig) != "null" {
		if err := json.Unmarshal(course.RawConfig, &course.Config); err != nil {
			return nil, fmt.Errorf("decode course schedule config: %w", err)
		}
	}
	return &course, nil
}

// UpdateSchedule stores the scheduling configuration and start date a generation run used.
func (r *CourseRepository) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, id string, cfg models.ScheduleConfig, startDate time.Time) error {
	if exec == nil {
		exec = r.db
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode course schedule config: %w", err)
	}
	const query = `UPDATE courses SET schedule_config = $1, start_date = $2, updated_at = NOW() WHERE id = $3`
	if _, err := exec.ExecContext(ctx, query, raw, models.DateOnly(startDate), id); err != nil {
		return fmt.Errorf("update course schedule: %w", err)
	}
	return nil
}
