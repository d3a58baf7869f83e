package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencampus/registrar-api/internal/models"
)

// ErrRecordLocked means the upsert matched an existing locked row; locked
// attendance records are immutable.
var ErrRecordLocked = errors.New("attendance record locked")

// AttendanceRepository handles the append-only attendance ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, enrollment_id, session_date, status, locked, created_at`

// Append records a session entry. A second write for the same session
// revises the unlocked row; locked rows are immutable and surface
// ErrRecordLocked.
func (r *AttendanceRepository) Append(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO attendance_records (id, enrollment_id, session_date, status, locked, created_at)
        VALUES (:id, :enrollment_id, :session_date, :status, FALSE, :created_at)
        ON CONFLICT (enrollment_id, session_date)
        DO UPDATE SET status = EXCLUDED.status
        WHERE attendance_records.locked = FALSE`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("append attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append attendance: %w", err)
	}
	if affected == 0 {
		return ErrRecordLocked
	}
	return nil
}

// AppendBatch records a set of session entries in one transaction. Any
// locked row aborts the whole batch.
func (r *AttendanceRepository) AppendBatch(ctx context.Context, records []*models.AttendanceRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO attendance_records (id, enrollment_id, session_date, status, locked, created_at)
        VALUES (:id, :enrollment_id, :session_date, :status, FALSE, :created_at)
        ON CONFLICT (enrollment_id, session_date)
        DO UPDATE SET status = EXCLUDED.status
        WHERE attendance_records.locked = FALSE`
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		result, err := tx.NamedExecContext(ctx, query, record)
		if err != nil {
			return fmt.Errorf("append attendance batch: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("append attendance batch: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("enrollment %s: %w", record.EnrollmentID, ErrRecordLocked)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance tx: %w", err)
	}
	return nil
}

// ListByEnrollment returns the ledger rows for an enrollment.
func (r *AttendanceRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE enrollment_id = $1 ORDER BY session_date`, attendanceColumns)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// CountsByEnrollment aggregates present and total session counts for one
// enrollment.
func (r *AttendanceRepository) CountsByEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceCounts, error) {
	const query = `SELECT a.enrollment_id, e.student_id,
        COUNT(*) FILTER (WHERE a.status = 'PRESENT') AS present_count,
        COUNT(*) AS total_sessions
        FROM attendance_records a
        JOIN enrollments e ON e.id = a.enrollment_id
        WHERE a.enrollment_id = $1
        GROUP BY a.enrollment_id, e.student_id`
	var counts models.AttendanceCounts
	if err := r.db.GetContext(ctx, &counts, query, enrollmentID); err != nil {
		return nil, err
	}
	return &counts, nil
}

// CountsBySection aggregates present and total session counts per
// enrollment across the section roster. Enrollments without ledger rows
// appear with zero totals.
func (r *AttendanceRepository) CountsBySection(ctx context.Context, sectionID string) ([]models.AttendanceCounts, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id,
        COUNT(a.id) FILTER (WHERE a.status = 'PRESENT') AS present_count,
        COUNT(a.id) AS total_sessions
        FROM enrollments e
        LEFT JOIN attendance_records a ON a.enrollment_id = e.id
        WHERE e.section_id = $1 AND e.status = $2
        GROUP BY e.id, e.student_id`
	var counts []models.AttendanceCounts
	if err := r.db.SelectContext(ctx, &counts, query, sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("aggregate section attendance: %w", err)
	}
	return counts, nil
}

// LockBySection marks every attendance record of the section locked.
// Idempotent: already-locked rows are skipped, never an error. Returns the
// number of rows newly locked.
func (r *AttendanceRepository) LockBySection(ctx context.Context, sectionID string) (int64, error) {
	const query = `UPDATE attendance_records SET locked = TRUE
        WHERE locked = FALSE AND enrollment_id IN (SELECT id FROM enrollments WHERE section_id = $1)`
	result, err := r.db.ExecContext(ctx, query, sectionID)
	if err != nil {
		return 0, fmt.Errorf("lock section attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("lock section attendance: %w", err)
	}
	return affected, nil
}
