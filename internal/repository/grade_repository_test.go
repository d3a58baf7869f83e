package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/registrar-api/internal/models"
)

func gradeRows(states ...models.GradeApprovalStatus) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "approval_status"})
	for i, state := range states {
		rows.AddRow(string(rune('a'+i)), state)
	}
	return rows
}

func fullGradeRows(status models.GradeApprovalStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "enrollment_id", "section_id", "value", "max_value", "weight", "approval_status",
		"submitted_by", "submitted_at", "reviewed_by", "reviewed_at", "published_at", "override_note",
		"created_at", "updated_at",
	}).AddRow("g-1", "enr-1", "sec-1", 80.0, 100.0, 1.0, status, nil, nil, nil, nil, nil, nil, now, now)
}

func TestGradeRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, approval_status FROM grade_records WHERE section_id = (.+) FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(gradeRows(models.GradeStatusDraft, models.GradeStatusDraft))
	mock.ExpectExec("UPDATE grade_records SET approval_status").
		WithArgs("sec-1", models.GradeStatusSubmitted, "ins-1", at).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT id, enrollment_id, section_id").
		WithArgs("sec-1").
		WillReturnRows(fullGradeRows(models.GradeStatusSubmitted))
	mock.ExpectCommit()

	records, err := repo.Transition(context.Background(), BatchTransition{
		SectionID: "sec-1",
		From:      models.GradeStatusDraft,
		To:        models.GradeStatusSubmitted,
		ActorID:   "ins-1",
		At:        at,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryTransitionWithOverrides(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, approval_status FROM grade_records WHERE section_id = (.+) FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(gradeRows(models.GradeStatusUnderReview))
	mock.ExpectExec("UPDATE grade_records SET approval_status").
		WithArgs("sec-1", models.GradeStatusApproved, "rev-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE grade_records SET value").
		WithArgs("g-1", 0.0, "attendance below auto-fail threshold").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, enrollment_id, section_id").
		WithArgs("sec-1").
		WillReturnRows(fullGradeRows(models.GradeStatusApproved))
	mock.ExpectCommit()

	_, err := repo.Transition(context.Background(), BatchTransition{
		SectionID: "sec-1",
		From:      models.GradeStatusUnderReview,
		To:        models.GradeStatusApproved,
		ActorID:   "rev-1",
		At:        at,
		Overrides: []models.GradeOverride{{RecordID: "g-1", Value: 0, Note: "attendance below auto-fail threshold"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryTransitionSplitBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, approval_status FROM grade_records WHERE section_id = (.+) FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(gradeRows(models.GradeStatusDraft, models.GradeStatusSubmitted))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), BatchTransition{
		SectionID: "sec-1",
		From:      models.GradeStatusDraft,
		To:        models.GradeStatusSubmitted,
	})
	var stateErr *BatchStateError
	require.True(t, errors.As(err, &stateErr))
	_, uniform := stateErr.Uniform()
	require.False(t, uniform)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryTransitionWrongUniformState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, approval_status FROM grade_records WHERE section_id = (.+) FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(gradeRows(models.GradeStatusSubmitted, models.GradeStatusSubmitted))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), BatchTransition{
		SectionID: "sec-1",
		From:      models.GradeStatusDraft,
		To:        models.GradeStatusSubmitted,
	})
	var stateErr *BatchStateError
	require.True(t, errors.As(err, &stateErr))
	state, uniform := stateErr.Uniform()
	require.True(t, uniform)
	require.Equal(t, models.GradeStatusSubmitted, state)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryTransitionEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, approval_status FROM grade_records WHERE section_id = (.+) FOR UPDATE").
		WithArgs("sec-1").
		WillReturnRows(gradeRows())
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), BatchTransition{
		SectionID: "sec-1",
		From:      models.GradeStatusDraft,
		To:        models.GradeStatusSubmitted,
	})
	require.ErrorIs(t, err, ErrBatchEmpty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryStatesBySection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"approval_status", "count"}).
		AddRow(models.GradeStatusDraft, 3).
		AddRow(models.GradeStatusRejected, 1)
	mock.ExpectQuery("SELECT approval_status, COUNT").
		WithArgs("sec-1").
		WillReturnRows(rows)

	states, err := repo.StatesBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Equal(t, 3, states[models.GradeStatusDraft])
	require.Equal(t, 1, states[models.GradeStatusRejected])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec("INSERT INTO grade_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.GradeRecord{EnrollmentID: "enr-1", SectionID: "sec-1", Value: 75, MaxValue: 100, Weight: 1}
	err := repo.Upsert(context.Background(), record)
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.Equal(t, models.GradeStatusDraft, record.ApprovalStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
