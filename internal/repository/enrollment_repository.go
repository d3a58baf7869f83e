package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencampus/registrar-api/internal/models"
)

// Sentinel errors surfaced by the conditional updates below. Services map
// them onto the public error taxonomy.
var (
	// ErrCapacityFull means the conditional counter increment matched no
	// row: the section is at capacity.
	ErrCapacityFull = errors.New("section capacity reached")
	// ErrNotEnrolled means the drop update matched no row: the enrollment
	// is not in ENROLLED status.
	ErrNotEnrolled = errors.New("enrollment not in enrolled status")
)

// EnrollmentRepository handles persistence of enrollments, including the
// capacity-coupled atomic units.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, section_id, status, enrolled_at, dropped_at, dropped_by`

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := "FROM enrollments"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY enrolled_at %s LIMIT %d OFFSET %d`,
		enrollmentColumns, base+clause, order, size, offset)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ExistsActive checks whether the student already holds an active
// enrollment in the section.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// ActiveBlocksByStudent returns the schedule blocks of all sections the
// student is actively enrolled in, feeding the conflict detector.
func (r *EnrollmentRepository) ActiveBlocksByStudent(ctx context.Context, studentID string) ([]models.ScheduleBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_blocks b
        JOIN enrollments e ON e.section_id = b.section_id
        WHERE e.student_id = $1 AND e.status = $2`, prefixColumns("b", blockColumns))
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list student blocks: %w", err)
	}
	return blocks, nil
}

// CreateWithCapacity inserts the enrollment and increments the section's
// enrollment counter as one atomic unit. The conditional update guarantees
// the counter never exceeds capacity under concurrent callers; when the
// section is full no row matches and ErrCapacityFull is returned.
func (r *EnrollmentRepository) CreateWithCapacity(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const increment = `UPDATE sections
        SET current_enrollment_count = current_enrollment_count + 1, updated_at = NOW()
        WHERE id = $1 AND active = TRUE AND current_enrollment_count < capacity`
	result, err := tx.ExecContext(ctx, increment, enrollment.SectionID)
	if err != nil {
		return fmt.Errorf("increment enrollment count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment enrollment count: %w", err)
	}
	if affected == 0 {
		return ErrCapacityFull
	}

	const insert = `INSERT INTO enrollments (id, student_id, section_id, status, enrolled_at)
        VALUES (:id, :student_id, :section_id, :status, :enrolled_at)`
	if _, err := tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// DropWithDecrement marks the enrollment dropped and decrements the
// section counter as one atomic unit. The status guard rejects dropping a
// record that is not currently enrolled.
func (r *EnrollmentRepository) DropWithDecrement(ctx context.Context, id, actorID string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const drop = `UPDATE enrollments SET status = $2, dropped_at = $3, dropped_by = $4
        WHERE id = $1 AND status = $5`
	result, err := tx.ExecContext(ctx, drop, id, models.EnrollmentStatusDropped, at, actorID, models.EnrollmentStatusEnrolled)
	if err != nil {
		return fmt.Errorf("drop enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop enrollment: %w", err)
	}
	if affected == 0 {
		return ErrNotEnrolled
	}

	const decrement = `UPDATE sections
        SET current_enrollment_count = current_enrollment_count - 1, updated_at = NOW()
        WHERE id = (SELECT section_id FROM enrollments WHERE id = $1) AND current_enrollment_count > 0`
	if _, err := tx.ExecContext(ctx, decrement, id); err != nil {
		return fmt.Errorf("decrement enrollment count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit drop tx: %w", err)
	}
	return nil
}

// CompleteBySection moves every still-active enrollment of the section
// to COMPLETED. Runs at term close, after grades are archived; the
// section counter is left alone since the roster is final.
func (r *EnrollmentRepository) CompleteBySection(ctx context.Context, sectionID string) (int64, error) {
	const query = `UPDATE enrollments SET status = $2 WHERE section_id = $1 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, sectionID, models.EnrollmentStatusCompleted, models.EnrollmentStatusEnrolled)
	if err != nil {
		return 0, fmt.Errorf("complete section enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete section enrollments: %w", err)
	}
	return affected, nil
}
