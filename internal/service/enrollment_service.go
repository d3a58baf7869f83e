package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencampus/registrar-api/internal/models"
	"github.com/opencampus/registrar-api/internal/repository"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error)
	ActiveBlocksByStudent(ctx context.Context, studentID string) ([]models.ScheduleBlock, error)
	CreateWithCapacity(ctx context.Context, enrollment *models.Enrollment) error
	DropWithDecrement(ctx context.Context, id, actorID string, at time.Time) error
	CompleteBySection(ctx context.Context, sectionID string) (int64, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// ValidateEnrollmentRequest describes a dry validation run.
type ValidateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Mode      string `json:"mode" validate:"omitempty,oneof=firstFailure allFailures"`
}

// EnrollmentService orchestrates conflict-checked enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	sections  sectionReader
	students  studentReader
	publisher eventPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, sections sectionReader, students studentReader, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		sections:  sections,
		students:  students,
		publisher: publisher,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Validate runs the enrollment checks without mutating anything. The mode
// controls whether the run stops at the first blocking reason or collects
// every applicable one.
func (s *EnrollmentService) Validate(ctx context.Context, req ValidateEnrollmentRequest) (*models.EnrollmentValidation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	mode := models.ValidationMode(req.Mode)
	if mode == "" {
		mode = models.ValidationModeFirstFailure
	}
	reasons, err := s.collectReasons(ctx, req.StudentID, req.SectionID, mode)
	if err != nil {
		return nil, err
	}
	return &models.EnrollmentValidation{
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		Eligible:  len(reasons) == 0,
		Reasons:   reasons,
	}, nil
}

// Enroll registers a student into a section after all checks pass. The
// capacity check-and-increment happens atomically in the repository, so a
// concurrent burst against a nearly-full section admits exactly the
// remaining seats.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	reasons, err := s.collectReasons(ctx, req.StudentID, req.SectionID, models.ValidationModeFirstFailure)
	if err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		s.metrics.IncEnrollment("rejected")
		return nil, blockingError(reasons[0])
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		SectionID:  req.SectionID,
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: s.now(),
	}
	if err := s.repo.CreateWithCapacity(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrCapacityFull) {
			s.metrics.IncEnrollment("capacity_exceeded")
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.metrics.IncEnrollment("enrolled")
	s.publish(ctx, models.EventEnrollmentCreated, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"student_id":    enrollment.StudentID,
		"section_id":    enrollment.SectionID,
	})
	return enrollment, nil
}

// Drop withdraws an active enrollment. The status guard and the counter
// decrement are one atomic unit; dropping a non-enrolled record is
// rejected. When ownOnly is set the caller may only drop enrollments
// belonging to them.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID, actorID string, ownOnly bool) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if ownOnly && enrollment.StudentID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not active")
	}

	at := s.now()
	if err := s.repo.DropWithDecrement(ctx, enrollmentID, actorID, at); err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not active")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}

	enrollment.Status = models.EnrollmentStatusDropped
	enrollment.DroppedAt = &at
	enrollment.DroppedBy = &actorID

	s.publish(ctx, models.EventEnrollmentDropped, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"student_id":    enrollment.StudentID,
		"section_id":    enrollment.SectionID,
		"actor_id":      actorID,
	})
	return enrollment, nil
}

// CompleteSection marks every remaining active enrollment of the section
// COMPLETED. Invoked by the term close job after grades are archived.
func (s *EnrollmentService) CompleteSection(ctx context.Context, sectionID string) (int64, error) {
	completed, err := s.repo.CompleteBySection(ctx, sectionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete section enrollments")
	}
	if completed > 0 {
		s.logger.Info("section enrollments completed", zap.String("section_id", sectionID), zap.Int64("count", completed))
	}
	return completed, nil
}

// collectReasons evaluates the enrollment checks in their fixed order.
func (s *EnrollmentService) collectReasons(ctx context.Context, studentID, sectionID string, mode models.ValidationMode) ([]models.EnrollmentReason, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	var reasons []models.EnrollmentReason
	add := func(reason models.EnrollmentReason) bool {
		reasons = append(reasons, reason)
		return mode == models.ValidationModeFirstFailure
	}

	if !student.Active {
		if add(models.EnrollmentReason{Code: models.ReasonStudentInactive, Message: "student is inactive"}) {
			return reasons, nil
		}
	} else if !student.Type.Enrollable() {
		if add(models.EnrollmentReason{Code: models.ReasonStudentNotEnrollable, Message: fmt.Sprintf("student type %s cannot enroll", student.Type)}) {
			return reasons, nil
		}
	}

	if !section.Active {
		if add(models.EnrollmentReason{Code: models.ReasonSectionInactive, Message: "section is inactive"}) {
			return reasons, nil
		}
	}

	if section.CurrentEnrollmentCount >= section.Capacity {
		if add(models.EnrollmentReason{Code: models.ReasonCapacityExceeded, Message: "section capacity reached"}) {
			return reasons, nil
		}
	}

	exists, err := s.repo.ExistsActive(ctx, studentID, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate enrollment")
	}
	if exists {
		if add(models.EnrollmentReason{Code: models.ReasonDuplicateEnrollment, Message: "student already enrolled in this section"}) {
			return reasons, nil
		}
	}

	studentBlocks, err := s.repo.ActiveBlocksByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student schedule")
	}
	conflicts, err := StudentConflicts(section.Blocks, studentBlocks)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if add(models.EnrollmentReason{Code: models.ReasonScheduleConflict, Message: "section meetings overlap the student's schedule", Conflicts: conflicts}) {
			return reasons, nil
		}
	}

	if !section.RegistrationWindow.Contains(s.now()) {
		if add(models.EnrollmentReason{Code: models.ReasonWindowClosed, Message: "registration window is closed"}) {
			return reasons, nil
		}
	}

	return reasons, nil
}

func (s *EnrollmentService) publish(ctx context.Context, eventType models.EventType, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	event := models.DomainEvent{Type: eventType, Payload: payload}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", string(eventType)), zap.Error(err))
	}
}

// blockingError maps a validation reason onto the error taxonomy.
func blockingError(reason models.EnrollmentReason) error {
	switch reason.Code {
	case models.ReasonCapacityExceeded:
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	case models.ReasonDuplicateEnrollment:
		return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	case models.ReasonScheduleConflict:
		return appErrors.Wrap(&models.BlockConflictError{Message: reason.Message, Conflicts: reason.Conflicts},
			appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, reason.Message)
	case models.ReasonWindowClosed:
		return appErrors.Clone(appErrors.ErrRegistrationClosed, "")
	default:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, reason.Message)
	}
}
