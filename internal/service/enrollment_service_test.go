package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencampus/registrar-api/internal/models"
	"github.com/opencampus/registrar-api/internal/repository"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments   map[string]models.Enrollment
	activePairs   map[string]bool
	studentBlocks []models.ScheduleBlock
	capacityFull  bool
	created       []models.Enrollment
	dropped       []string
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	result := make([]models.Enrollment, 0, len(m.enrollments))
	for _, e := range m.enrollments {
		result = append(result, e)
	}
	return result, len(result), nil
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	return m.activePairs[studentID+"/"+sectionID], nil
}

func (m *mockEnrollmentRepo) ActiveBlocksByStudent(ctx context.Context, studentID string) ([]models.ScheduleBlock, error) {
	return m.studentBlocks, nil
}

func (m *mockEnrollmentRepo) CreateWithCapacity(ctx context.Context, enrollment *models.Enrollment) error {
	if m.capacityFull {
		return repository.ErrCapacityFull
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-generated"
	}
	m.created = append(m.created, *enrollment)
	return nil
}

func (m *mockEnrollmentRepo) DropWithDecrement(ctx context.Context, id, actorID string, at time.Time) error {
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled {
		return repository.ErrNotEnrolled
	}
	m.dropped = append(m.dropped, id)
	return nil
}

func (m *mockEnrollmentRepo) CompleteBySection(ctx context.Context, sectionID string) (int64, error) {
	var completed int64
	for id, e := range m.enrollments {
		if e.SectionID == sectionID && e.Status == models.EnrollmentStatusEnrolled {
			e.Status = models.EnrollmentStatusCompleted
			m.enrollments[id] = e
			completed++
		}
	}
	return completed, nil
}

type mockSectionReader struct {
	sections map[string]models.Section
}

func (m *mockSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudentReader struct {
	students map[string]models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type recordingPublisher struct {
	events []models.DomainEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	p.events = append(p.events, event)
	return nil
}

func openSection(id string) models.Section {
	return models.Section{
		ID:                     id,
		CourseCode:             "CS101",
		TermID:                 "term-1",
		Capacity:               30,
		CurrentEnrollmentCount: 10,
		Active:                 true,
		RegistrationWindow: models.RegistrationWindow{
			Start: time.Now().Add(-24 * time.Hour),
			End:   time.Now().Add(24 * time.Hour),
		},
	}
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockSectionReader, *mockStudentReader, *recordingPublisher) {
	repo := &mockEnrollmentRepo{
		enrollments: make(map[string]models.Enrollment),
		activePairs: make(map[string]bool),
	}
	sections := &mockSectionReader{sections: map[string]models.Section{
		"sec-1": openSection("sec-1"),
	}}
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", Active: true, Type: models.StudentTypeRegular},
	}}
	publisher := &recordingPublisher{}
	svc := NewEnrollmentService(repo, sections, students, publisher, nil, validator.New(), zap.NewNop())
	return svc, repo, sections, students, publisher
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	svc, repo, _, _, publisher := newEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.Len(t, repo.created, 1)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventEnrollmentCreated, publisher.events[0].Type)
}

func TestEnrollmentServiceEnrollCapacityRace(t *testing.T) {
	svc, repo, _, _, _ := newEnrollmentFixture()
	repo.capacityFull = true

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
}

func TestEnrollmentServiceEnrollScheduleConflict(t *testing.T) {
	svc, repo, sections, _, _ := newEnrollmentFixture()
	section := sections.sections["sec-1"]
	section.Blocks = []models.ScheduleBlock{block(models.DayMonday, 9*60, 10*60)}
	sections.sections["sec-1"] = section
	repo.studentBlocks = []models.ScheduleBlock{block(models.DayMonday, 9*60+30, 11*60)}

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)

	var conflictErr *models.BlockConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Len(t, conflictErr.Conflicts, 1)
	assert.Empty(t, repo.created)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	svc, repo, _, _, _ := newEnrollmentFixture()
	repo.activePairs["stu-1/sec-1"] = true

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollWindowClosed(t *testing.T) {
	svc, _, sections, _, _ := newEnrollmentFixture()
	section := sections.sections["sec-1"]
	section.RegistrationWindow.End = time.Now().Add(-time.Hour)
	sections.sections["sec-1"] = section

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRegistrationClosed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceValidateFirstFailure(t *testing.T) {
	svc, repo, sections, students, _ := newEnrollmentFixture()
	students.students["stu-1"] = models.Student{ID: "stu-1", Active: false, Type: models.StudentTypeRegular}
	section := sections.sections["sec-1"]
	section.CurrentEnrollmentCount = section.Capacity
	sections.sections["sec-1"] = section
	repo.activePairs["stu-1/sec-1"] = true

	result, err := svc.Validate(context.Background(), ValidateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, models.ReasonStudentInactive, result.Reasons[0].Code)
}

func TestEnrollmentServiceValidateAllFailures(t *testing.T) {
	svc, repo, sections, students, _ := newEnrollmentFixture()
	students.students["stu-1"] = models.Student{ID: "stu-1", Active: false, Type: models.StudentTypeRegular}
	section := sections.sections["sec-1"]
	section.CurrentEnrollmentCount = section.Capacity
	section.RegistrationWindow.End = time.Now().Add(-time.Hour)
	sections.sections["sec-1"] = section
	repo.activePairs["stu-1/sec-1"] = true

	result, err := svc.Validate(context.Background(), ValidateEnrollmentRequest{
		StudentID: "stu-1",
		SectionID: "sec-1",
		Mode:      string(models.ValidationModeAllFailures),
	})
	require.NoError(t, err)
	assert.False(t, result.Eligible)

	codes := make([]models.EnrollmentReasonCode, 0, len(result.Reasons))
	for _, reason := range result.Reasons {
		codes = append(codes, reason.Code)
	}
	assert.Contains(t, codes, models.ReasonStudentInactive)
	assert.Contains(t, codes, models.ReasonCapacityExceeded)
	assert.Contains(t, codes, models.ReasonDuplicateEnrollment)
	assert.Contains(t, codes, models.ReasonWindowClosed)
}

func TestEnrollmentServiceValidateEligible(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	result, err := svc.Validate(context.Background(), ValidateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Empty(t, result.Reasons)
}

func TestEnrollmentServiceValidateNotEnrollableType(t *testing.T) {
	svc, _, _, students, _ := newEnrollmentFixture()
	students.students["stu-1"] = models.Student{ID: "stu-1", Active: true, Type: models.StudentTypeAlumni}

	result, err := svc.Validate(context.Background(), ValidateEnrollmentRequest{StudentID: "stu-1", SectionID: "sec-1"})
	require.NoError(t, err)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, models.ReasonStudentNotEnrollable, result.Reasons[0].Code)
}

func TestEnrollmentServiceDrop(t *testing.T) {
	svc, repo, _, _, publisher := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID:        "enr-1",
		StudentID: "stu-1",
		SectionID: "sec-1",
		Status:    models.EnrollmentStatusEnrolled,
	}

	enrollment, err := svc.Drop(context.Background(), "enr-1", "registrar-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, enrollment.Status)
	require.NotNil(t, enrollment.DroppedAt)
	require.NotNil(t, enrollment.DroppedBy)
	assert.Equal(t, "registrar-1", *enrollment.DroppedBy)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.EventEnrollmentDropped, publisher.events[0].Type)
}

func TestEnrollmentServiceDropNotActive(t *testing.T) {
	svc, repo, _, _, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID:     "enr-1",
		Status: models.EnrollmentStatusDropped,
	}

	_, err := svc.Drop(context.Background(), "enr-1", "registrar-1", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceDropNotFound(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()

	_, err := svc.Drop(context.Background(), "missing", "registrar-1", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceDropOwnOnly(t *testing.T) {
	svc, repo, _, _, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID:        "enr-1",
		StudentID: "stu-1",
		SectionID: "sec-1",
		Status:    models.EnrollmentStatusEnrolled,
	}

	_, err := svc.Drop(context.Background(), "enr-1", "stu-2", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	enrollment, err := svc.Drop(context.Background(), "enr-1", "stu-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, enrollment.Status)
}

func TestEnrollmentServiceCompleteSection(t *testing.T) {
	svc, repo, _, _, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled}
	repo.enrollments["enr-2"] = models.Enrollment{ID: "enr-2", SectionID: "sec-1", Status: models.EnrollmentStatusDropped}
	repo.enrollments["enr-3"] = models.Enrollment{ID: "enr-3", SectionID: "sec-2", Status: models.EnrollmentStatusEnrolled}

	completed, err := svc.CompleteSection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)
	assert.Equal(t, models.EnrollmentStatusCompleted, repo.enrollments["enr-1"].Status)
	assert.Equal(t, models.EnrollmentStatusDropped, repo.enrollments["enr-2"].Status)
	assert.Equal(t, models.EnrollmentStatusEnrolled, repo.enrollments["enr-3"].Status)
}
