package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/examslot-api/internal/models"
)

// SectionRepository reads sections of a course.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_id, name, facilitator_id, location, preferred_days, position, active`

// ListByCourse returns active sections in configured order.
func (r *SectionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE course_id = $1 AND active = TRUE ORDER BY position ASC, name ASC, id ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, courseID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// FindByID returns sql.ErrNoRows when the section does not exist.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// StudentRepository reads roster members and maintains week groups.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const studentColumns = `id, course_id, section_id, full_name, contact_handle, week_group, roster_position, active`

// ListByCourse returns active students in roster order.
func (r *StudentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE course_id = $1 AND active = TRUE ORDER BY roster_position ASC, id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// FindByID returns sql.ErrNoRows when the student does not exist.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateWeekGroups persists week-group assignments keyed by student id.
func (r *StudentRepository) UpdateWeekGroups(ctx context.Context, exec sqlx.ExtContext, groups map[string]string) error {
	if len(groups) == 0 {
		return nil
	}
	const query = `UPDATE students SET week_group = $1, updated_at = NOW() WHERE id = $2`
	target := r.exec(exec)
	for studentID, group := range groups {
		if _, err := target.ExecContext(ctx, query, group, studentID); err != nil {
			return fmt.Errorf("update week group: %w", err)
		}
	}
	return nil
}

// StudentConstraintRepository reads per-student placement constraints.
type StudentConstraintRepository struct {
	db *sqlx.DB
}

// NewStudentConstraintRepository constructs the repository.
func NewStudentConstraintRepository(db *sqlx.DB) *StudentConstraintRepository {
	return &StudentConstraintRepository{db: db}
}

// ListActiveByCourse returns active constraints of every student in the course.
func (r *StudentConstraintRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.StudentConstraint, error) {
	const query = `SELECT c.id, c.student_id, c.constraint_type, c.constraint_value, c.active
FROM student_constraints c
JOIN students s ON s.id = c.student_id
WHERE s.course_id = $1 AND c.active = TRUE
ORDER BY c.student_id ASC, c.id ASC`
	var constraints []models.StudentConstraint
	if err := r.db.SelectContext(ctx, &constraints, query, courseID); err != nil {
		return nil, fmt.Errorf("list student constraints: %w", err)
	}
	return constraints, nil
}

// ListActiveByStudent returns a single student's active constraints.
func (r *StudentConstraintRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.StudentConstraint, error) {
	const query = `SELECT id, student_id, constraint_type, constraint_value, active
FROM student_constraints WHERE student_id = $1 AND active = TRUE ORDER BY id ASC`
	var constraints []models.StudentConstraint
	if err := r.db.SelectContext(ctx, &constraints, query, studentID); err != nil {
		return nil, fmt.Errorf("list student constraints: %w", err)
	}
	return constraints, nil
}
