package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/registrar-api/internal/models"
)

func sectionRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "course_code", "term_id", "capacity", "current_enrollment_count", "active",
		"registration_start", "registration_end", "created_at", "updated_at",
	}).AddRow("sec-1", "CS101", "term-1", 30, 12, true, now.Add(-24*time.Hour), now.Add(24*time.Hour), now, now)
}

func blockRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "section_id", "day_of_week", "start_minute", "end_minute", "room", "instructor_id", "created_at"}).
		AddRow("blk-1", "sec-1", "MONDAY", 540, 630, "R101", "ins-1", time.Now())
}

func TestSectionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery("SELECT id, course_code, term_id").
		WithArgs("sec-1").
		WillReturnRows(sectionRow())
	mock.ExpectQuery("SELECT id, section_id, day_of_week").
		WithArgs("sec-1").
		WillReturnRows(blockRow())

	section, err := repo.FindByID(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Equal(t, "CS101", section.CourseCode)
	require.Len(t, section.Blocks, 1)
	require.Equal(t, 540, section.Blocks[0].StartMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryBlocksByRoom(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery("SELECT b.id, b.section_id, b.day_of_week").
		WithArgs("term-1", "R101", "sec-2").
		WillReturnRows(blockRow())

	blocks, err := repo.BlocksByRoom(context.Background(), "term-1", "R101", "sec-2")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.NotNil(t, blocks[0].Room)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery("SELECT id, course_code, term_id").
		WithArgs("term-1").
		WillReturnRows(sectionRow())
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("term-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sections, total, err := repo.List(context.Background(), models.SectionFilter{TermID: "term-1"})
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
