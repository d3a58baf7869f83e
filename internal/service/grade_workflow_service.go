package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencampus/registrar-api/internal/models"
	"github.com/opencampus/registrar-api/internal/repository"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeRecord, error)
	StatesBySection(ctx context.Context, sectionID string) (map[models.GradeApprovalStatus]int, error)
	Upsert(ctx context.Context, record *models.GradeRecord) error
	Transition(ctx context.Context, t repository.BatchTransition) ([]models.GradeRecord, error)
}

type attendanceAggregator interface {
	CountsBySection(ctx context.Context, sectionID string) ([]models.AttendanceCounts, error)
}

// UpsertGradeRequest enters or revises one draft grade value.
type UpsertGradeRequest struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	SectionID    string  `json:"section_id" validate:"required"`
	Value        float64 `json:"value" validate:"gte=0"`
	MaxValue     float64 `json:"max_value" validate:"gt=0"`
	Weight       float64 `json:"weight" validate:"gt=0,lte=1"`
}

// GradeWorkflowService drives the approval workflow of section grade
// batches. Every transition moves the whole batch at once; a section
// whose records sit in different states is treated as corrupted.
type GradeWorkflowService struct {
	repo       gradeRepository
	attendance attendanceAggregator
	publisher  eventPublisher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewGradeWorkflowService constructs the workflow service.
func NewGradeWorkflowService(repo gradeRepository, attendance attendanceAggregator, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeWorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeWorkflowService{
		repo:       repo,
		attendance: attendance,
		publisher:  publisher,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns grade records matching the filter.
func (s *GradeWorkflowService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade records")
	}
	return records, nil
}

// UpsertDraft enters or revises a grade value. Entry is only open while
// the batch is empty, in DRAFT, or sent back via REJECTED.
func (s *GradeWorkflowService) UpsertDraft(ctx context.Context, req UpsertGradeRequest) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Value > req.MaxValue {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade value exceeds max value")
	}

	states, err := s.repo.StatesBySection(ctx, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect grade batch")
	}
	for state := range states {
		if state != models.GradeStatusDraft && state != models.GradeStatusRejected {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("grade entry closed, batch is %s", state))
		}
	}

	record := &models.GradeRecord{
		EnrollmentID:   req.EnrollmentID,
		SectionID:      req.SectionID,
		Value:          req.Value,
		MaxValue:       req.MaxValue,
		Weight:         req.Weight,
		ApprovalStatus: models.GradeStatusDraft,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade record")
	}
	return record, nil
}

// Submit moves the batch into SUBMITTED after structural validation.
// Attendance compliance is only advisory here; the authoritative check
// happens at approval.
func (s *GradeWorkflowService) Submit(ctx context.Context, sectionID, actorID string) (*models.GradeBatchResult, error) {
	from := models.GradeStatusDraft
	states, err := s.repo.StatesBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect grade batch")
	}
	if len(states) == 1 && states[models.GradeStatusRejected] > 0 {
		from = models.GradeStatusRejected
	}

	records, err := s.repo.List(ctx, models.GradeFilter{SectionID: sectionID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade batch")
	}
	for _, record := range records {
		if record.MaxValue <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("record for enrollment %s has no max value", record.EnrollmentID))
		}
		if record.Value < 0 || record.Value > record.MaxValue {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("record for enrollment %s has value outside [0, %g]", record.EnrollmentID, record.MaxValue))
		}
	}

	advisories, _, err := s.classifyRoster(ctx, sectionID, records)
	if err != nil {
		return nil, err
	}

	result, err := s.transition(ctx, sectionID, from, models.GradeStatusSubmitted, actorID, nil, nil)
	if err != nil {
		return nil, err
	}
	result.Advisories = advisories
	return result, nil
}

// Review claims the batch for review.
func (s *GradeWorkflowService) Review(ctx context.Context, sectionID, actorID string) (*models.GradeBatchResult, error) {
	return s.transition(ctx, sectionID, models.GradeStatusSubmitted, models.GradeStatusUnderReview, actorID, nil, nil)
}

// Approve moves the batch into APPROVED. This is the authoritative
// compliance gate: AUTO_FAIL enrollments get their value overridden to
// zero with a note, EXAM_INELIGIBLE and AT_RISK ones are reported as
// advisories.
func (s *GradeWorkflowService) Approve(ctx context.Context, sectionID, actorID string) (*models.GradeBatchResult, error) {
	records, err := s.repo.List(ctx, models.GradeFilter{SectionID: sectionID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade batch")
	}
	advisories, overrides, err := s.classifyRoster(ctx, sectionID, records)
	if err != nil {
		return nil, err
	}

	result, err := s.transition(ctx, sectionID, models.GradeStatusUnderReview, models.GradeStatusApproved, actorID, overrides, nil)
	if err != nil {
		return nil, err
	}
	result.Advisories = advisories
	return result, nil
}

// Reject sends the batch back for revision. A substantive reason is
// mandatory.
func (s *GradeWorkflowService) Reject(ctx context.Context, sectionID, actorID, reason string) (*models.GradeBatchResult, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < 10 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason must be at least 10 characters")
	}
	extra := map[string]interface{}{"reason": reason}
	return s.transition(ctx, sectionID, models.GradeStatusUnderReview, models.GradeStatusRejected, actorID, nil, extra)
}

// Publish makes the approved batch visible to students.
func (s *GradeWorkflowService) Publish(ctx context.Context, sectionID, actorID string) (*models.GradeBatchResult, error) {
	return s.transition(ctx, sectionID, models.GradeStatusApproved, models.GradeStatusPublished, actorID, nil, nil)
}

// Archive freezes the batch. Archiving an already archived batch is a
// successful no-op so retrying term-close jobs stay safe.
func (s *GradeWorkflowService) Archive(ctx context.Context, sectionID, actorID string) (*models.GradeBatchResult, error) {
	result, err := s.transition(ctx, sectionID, models.GradeStatusPublished, models.GradeStatusArchived, actorID, nil, nil)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrAlreadyInState.Code {
			return &models.GradeBatchResult{
				SectionID: sectionID,
				From:      models.GradeStatusArchived,
				To:        models.GradeStatusArchived,
				NoOp:      true,
			}, nil
		}
		return nil, err
	}
	return result, nil
}

// classifyRoster derives compliance tiers for the section roster and
// splits them into blocking overrides and non-blocking advisories.
func (s *GradeWorkflowService) classifyRoster(ctx context.Context, sectionID string, records []models.GradeRecord) ([]models.GradeAdvisory, []models.GradeOverride, error) {
	counts, err := s.attendance.CountsBySection(ctx, sectionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	recordByEnrollment := make(map[string]models.GradeRecord, len(records))
	for _, record := range records {
		recordByEnrollment[record.EnrollmentID] = record
	}

	var advisories []models.GradeAdvisory
	var overrides []models.GradeOverride
	for _, row := range counts {
		result := Classify(row.PresentCount, row.TotalSessions)
		switch result.Tier {
		case models.TierAutoFail:
			record, ok := recordByEnrollment[row.EnrollmentID]
			if !ok {
				continue
			}
			overrides = append(overrides, models.GradeOverride{
				RecordID: record.ID,
				Value:    0,
				Note:     fmt.Sprintf("attendance %.1f%% below auto-fail threshold", result.Percentage),
			})
			advisories = append(advisories, models.GradeAdvisory{
				EnrollmentID: row.EnrollmentID,
				Tier:         result.Tier,
				Message:      "attendance below 25%, grade is overridden to zero at approval",
			})
		case models.TierExamIneligible:
			advisories = append(advisories, models.GradeAdvisory{
				EnrollmentID: row.EnrollmentID,
				Tier:         result.Tier,
				Message:      "attendance below 50%, student is exam ineligible",
			})
		case models.TierAtRisk:
			advisories = append(advisories, models.GradeAdvisory{
				EnrollmentID: row.EnrollmentID,
				Tier:         result.Tier,
				Message:      "attendance below 75%, student is at risk",
			})
		}
	}
	return advisories, overrides, nil
}

func (s *GradeWorkflowService) transition(ctx context.Context, sectionID string, from, to models.GradeApprovalStatus, actorID string, overrides []models.GradeOverride, extra map[string]interface{}) (*models.GradeBatchResult, error) {
	if !models.CanTransition(from, to) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("transition %s -> %s is not allowed", from, to))
	}

	records, err := s.repo.Transition(ctx, repository.BatchTransition{
		SectionID: sectionID,
		From:      from,
		To:        to,
		ActorID:   actorID,
		At:        s.now(),
		Overrides: overrides,
	})
	if err != nil {
		return nil, s.mapTransitionError(err, from, to)
	}

	s.metrics.IncGradeTransition(string(from), string(to))
	if s.publisher != nil {
		payload := map[string]interface{}{
			"section_id": sectionID,
			"from":       string(from),
			"to":         string(to),
			"actor_id":   actorID,
		}
		for k, v := range extra {
			payload[k] = v
		}
		event := models.DomainEvent{Type: models.EventGradeBatchTransitioned, Payload: payload}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed", zap.String("type", string(models.EventGradeBatchTransitioned)), zap.Error(err))
		}
	}

	return &models.GradeBatchResult{
		SectionID: sectionID,
		From:      from,
		To:        to,
		Records:   records,
		Overrides: overrides,
	}, nil
}

// mapTransitionError translates repository preconditions into API errors.
// A uniform batch already sitting in the target state lost a race and is
// reported as ALREADY_IN_STATE; any other uniform state is an invalid
// edge; a split batch is corrupted.
func (s *GradeWorkflowService) mapTransitionError(err error, from, to models.GradeApprovalStatus) error {
	if errors.Is(err, repository.ErrBatchEmpty) {
		return appErrors.Clone(appErrors.ErrEmptyBatch, "")
	}
	var stateErr *repository.BatchStateError
	if errors.As(err, &stateErr) {
		if state, ok := stateErr.Uniform(); ok {
			if state == to {
				return appErrors.Clone(appErrors.ErrAlreadyInState, fmt.Sprintf("batch already %s", to))
			}
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("batch is %s, expected %s", state, from))
		}
		return appErrors.Clone(appErrors.ErrInconsistentBatch, stateErr.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition grade batch")
}
