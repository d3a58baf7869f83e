package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencampus/registrar-api/internal/models"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
)

type mockSectionRepo struct {
	sections         map[string]models.Section
	roomBlocks       []models.ScheduleBlock
	instructorBlocks []models.ScheduleBlock
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	result := make([]models.Section, 0, len(m.sections))
	for _, s := range m.sections {
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockSectionRepo) BlocksByRoom(ctx context.Context, termID, room, excludeSectionID string) ([]models.ScheduleBlock, error) {
	return m.roomBlocks, nil
}

func (m *mockSectionRepo) BlocksByInstructor(ctx context.Context, termID, instructorID, excludeSectionID string) ([]models.ScheduleBlock, error) {
	return m.instructorBlocks, nil
}

type mockStudentBlocks struct {
	blocks []models.ScheduleBlock
}

func (m *mockStudentBlocks) ActiveBlocksByStudent(ctx context.Context, studentID string) ([]models.ScheduleBlock, error) {
	return m.blocks, nil
}

func newSectionFixture() (*SectionService, *mockSectionRepo, *mockStudentBlocks) {
	repo := &mockSectionRepo{sections: map[string]models.Section{
		"sec-1": openSection("sec-1"),
	}}
	enrollments := &mockStudentBlocks{}
	svc := NewSectionService(repo, enrollments, validator.New(), zap.NewNop())
	return svc, repo, enrollments
}

func TestSectionServiceGetNotFound(t *testing.T) {
	svc, _, _ := newSectionFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSectionServiceCheckBlockClean(t *testing.T) {
	svc, _, _ := newSectionFixture()

	result, err := svc.CheckBlock(context.Background(), CheckBlockRequest{
		SectionID: "sec-1",
		DayOfWeek: "monday",
		Start:     "09:00",
		End:       "10:30",
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Conflicts)
}

func TestSectionServiceCheckBlockRoomConflict(t *testing.T) {
	svc, repo, _ := newSectionFixture()
	repo.roomBlocks = []models.ScheduleBlock{block(models.DayMonday, 9*60+30, 11*60)}
	room := "R101"

	result, err := svc.CheckBlock(context.Background(), CheckBlockRequest{
		SectionID: "sec-1",
		DayOfWeek: "MONDAY",
		Start:     "09:00",
		End:       "10:30",
		Room:      &room,
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictClassRoom, result.Conflicts[0].Class)
}

func TestSectionServiceCheckBlockStudentDimension(t *testing.T) {
	svc, _, enrollments := newSectionFixture()
	enrollments.blocks = []models.ScheduleBlock{block(models.DayTuesday, 10*60, 11*60)}

	result, err := svc.CheckBlock(context.Background(), CheckBlockRequest{
		SectionID: "sec-1",
		DayOfWeek: "TUESDAY",
		Start:     "10:30",
		End:       "11:30",
		StudentID: "stu-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictClassStudent, result.Conflicts[0].Class)
}

func TestSectionServiceRoomSchedule(t *testing.T) {
	svc, repo, _ := newSectionFixture()
	repo.roomBlocks = []models.ScheduleBlock{block(models.DayMonday, 9*60, 10*60)}

	blocks, err := svc.RoomSchedule(context.Background(), "term-1", "R101")
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	_, err = svc.RoomSchedule(context.Background(), "", "R101")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSectionServiceInstructorSchedule(t *testing.T) {
	svc, repo, _ := newSectionFixture()
	repo.instructorBlocks = []models.ScheduleBlock{block(models.DayFriday, 13*60, 14*60)}

	blocks, err := svc.InstructorSchedule(context.Background(), "term-1", "inst-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	_, err = svc.InstructorSchedule(context.Background(), "term-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSectionServiceCheckBlockInvalidInput(t *testing.T) {
	svc, _, _ := newSectionFixture()

	_, err := svc.CheckBlock(context.Background(), CheckBlockRequest{
		SectionID: "sec-1",
		DayOfWeek: "FUNDAY",
		Start:     "09:00",
		End:       "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CheckBlock(context.Background(), CheckBlockRequest{
		SectionID: "sec-1",
		DayOfWeek: "MONDAY",
		Start:     "10:00",
		End:       "09:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
