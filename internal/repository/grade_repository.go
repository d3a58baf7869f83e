package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencampus/registrar-api/internal/models"
)

// ErrBatchEmpty means the section has no grade records to transition.
var ErrBatchEmpty = errors.New("no grade records for section")

// BatchStateError reports the observed states when a batch transition's
// precondition fails. The caller decides whether the batch lost a race
// (uniformly past the expected state) or is genuinely split.
type BatchStateError struct {
	States map[models.GradeApprovalStatus]int
}

// Error implements the error interface.
func (e *BatchStateError) Error() string {
	parts := make([]string, 0, len(e.States))
	for state, count := range e.States {
		parts = append(parts, fmt.Sprintf("%s=%d", state, count))
	}
	sort.Strings(parts)
	return "grade batch state mismatch: " + strings.Join(parts, ", ")
}

// Uniform returns the single observed state when the batch is not split.
func (e *BatchStateError) Uniform() (models.GradeApprovalStatus, bool) {
	if len(e.States) != 1 {
		return "", false
	}
	for state := range e.States {
		return state, true
	}
	return "", false
}

// BatchTransition describes one workflow edge applied to a section batch.
type BatchTransition struct {
	SectionID string
	From      models.GradeApprovalStatus
	To        models.GradeApprovalStatus
	ActorID   string
	At        time.Time
	Overrides []models.GradeOverride
}

// GradeRepository handles persistence of grade records and the atomic
// batch transitions of the approval workflow.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, enrollment_id, section_id, value, max_value, weight, approval_status,
        submitted_by, submitted_at, reviewed_by, reviewed_at, published_at, override_note,
        created_at, updated_at`

// List returns grade records matching the filter.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeRecord, error) {
	var conditions []string
	var args []interface{}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("approval_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM grade_records%s ORDER BY created_at`, gradeColumns, clause)
	var records []models.GradeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list grade records: %w", err)
	}
	return records, nil
}

// StatesBySection returns the count of records per workflow state.
func (r *GradeRepository) StatesBySection(ctx context.Context, sectionID string) (map[models.GradeApprovalStatus]int, error) {
	const query = `SELECT approval_status, COUNT(*) AS count FROM grade_records WHERE section_id = $1 GROUP BY approval_status`
	rows, err := r.db.QueryxContext(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("count grade states: %w", err)
	}
	defer rows.Close()

	states := make(map[models.GradeApprovalStatus]int)
	for rows.Next() {
		var state models.GradeApprovalStatus
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan grade state: %w", err)
		}
		states[state] = count
	}
	return states, rows.Err()
}

// Upsert inserts or revises a draft grade record. Workflow-state guards
// belong to the service layer.
func (r *GradeRepository) Upsert(ctx context.Context, record *models.GradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ApprovalStatus == "" {
		record.ApprovalStatus = models.GradeStatusDraft
	}
	const query = `INSERT INTO grade_records (id, enrollment_id, section_id, value, max_value, weight, approval_status)
        VALUES (:id, :enrollment_id, :section_id, :value, :max_value, :weight, :approval_status)
        ON CONFLICT (enrollment_id, section_id)
        DO UPDATE SET value = EXCLUDED.value, max_value = EXCLUDED.max_value,
            weight = EXCLUDED.weight, updated_at = NOW()`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert grade record: %w", err)
	}
	return nil
}

// Transition applies one workflow edge to the whole section batch as one
// atomic unit: rows are locked, verified to sit uniformly in the expected
// source state, then moved together. Concurrent callers on the same batch
// serialize on the row locks; the loser observes the new state and gets a
// BatchStateError.
func (r *GradeRepository) Transition(ctx context.Context, t BatchTransition) ([]models.GradeRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const lockQuery = `SELECT id, approval_status FROM grade_records WHERE section_id = $1 FOR UPDATE`
	rows, err := tx.QueryxContext(ctx, lockQuery, t.SectionID)
	if err != nil {
		return nil, fmt.Errorf("lock grade batch: %w", err)
	}
	states := make(map[models.GradeApprovalStatus]int)
	count := 0
	for rows.Next() {
		var id string
		var state models.GradeApprovalStatus
		if err := rows.Scan(&id, &state); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan grade batch: %w", err)
		}
		states[state]++
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read grade batch: %w", err)
	}

	if count == 0 {
		return nil, ErrBatchEmpty
	}
	if len(states) != 1 || states[t.From] != count {
		return nil, &BatchStateError{States: states}
	}

	set := []string{"approval_status = $2", "updated_at = NOW()"}
	args := []interface{}{t.SectionID, t.To}
	switch t.To {
	case models.GradeStatusSubmitted:
		set = append(set, fmt.Sprintf("submitted_by = $%d", len(args)+1), fmt.Sprintf("submitted_at = $%d", len(args)+2))
		args = append(args, t.ActorID, t.At)
	case models.GradeStatusUnderReview, models.GradeStatusApproved, models.GradeStatusRejected:
		set = append(set, fmt.Sprintf("reviewed_by = $%d", len(args)+1), fmt.Sprintf("reviewed_at = $%d", len(args)+2))
		args = append(args, t.ActorID, t.At)
	case models.GradeStatusPublished:
		set = append(set, fmt.Sprintf("published_at = $%d", len(args)+1))
		args = append(args, t.At)
	}
	update := fmt.Sprintf(`UPDATE grade_records SET %s WHERE section_id = $1`, strings.Join(set, ", "))
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, fmt.Errorf("transition grade batch: %w", err)
	}

	const overrideQuery = `UPDATE grade_records SET value = $2, override_note = $3, updated_at = NOW() WHERE id = $1`
	for _, override := range t.Overrides {
		if _, err := tx.ExecContext(ctx, overrideQuery, override.RecordID, override.Value, override.Note); err != nil {
			return nil, fmt.Errorf("apply grade override: %w", err)
		}
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM grade_records WHERE section_id = $1 ORDER BY created_at`, gradeColumns)
	var records []models.GradeRecord
	if err := tx.SelectContext(ctx, &records, selectQuery, t.SectionID); err != nil {
		return nil, fmt.Errorf("reload grade batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}
	return records, nil
}
