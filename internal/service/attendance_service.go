package service

import (
	"context"
	"database/sql"
	"encoding/json"
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

type attendanceRepository interface {
	Append(ctx context.Context, record *models.AttendanceRecord) error
	AppendBatch(ctx context.Context, records []*models.AttendanceRecord) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.AttendanceRecord, error)
	CountsByEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceCounts, error)
	CountsBySection(ctx context.Context, sectionID string) ([]models.AttendanceCounts, error)
	LockBySection(ctx context.Context, sectionID string) (int64, error)
}

type enrollmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// MarkAttendanceRequest records one session entry.
type MarkAttendanceRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	SessionDate  string `json:"session_date" validate:"required"`
	Status       string `json:"status" validate:"required,attendance_status"`
}

// BulkAttendanceItem holds one entry of a bulk mark.
type BulkAttendanceItem struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	Status       string `json:"status" validate:"required,attendance_status"`
}

// BulkMarkAttendanceRequest records a whole session at once.
type BulkMarkAttendanceRequest struct {
	SessionDate string               `json:"session_date" validate:"required"`
	Mode        string               `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Items       []BulkAttendanceItem `json:"items" validate:"required,min=1,dive"`
}

// BulkAttendanceResult summarises bulk execution.
type BulkAttendanceResult struct {
	Processed int                             `json:"processed"`
	Success   int                             `json:"success"`
	Conflicts []models.AttendanceBulkConflict `json:"conflicts,omitempty"`
}

// AttendanceService maintains the attendance ledger and derives
// compliance classifications from it.
type AttendanceService struct {
	repo        attendanceRepository
	enrollments enrollmentFinder
	cache       summaryCache
	cacheTTL    time.Duration
	publisher   eventPublisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, enrollments enrollmentFinder, cache summaryCache, cacheTTL time.Duration, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	svc := &AttendanceService{
		repo:        repo,
		enrollments: enrollments,
		cache:       cache,
		cacheTTL:    cacheTTL,
		publisher:   publisher,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// Mark appends one session entry to the ledger. Locked records are
// immutable.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := time.Parse("2006-01-02", req.SessionDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid session date, expected YYYY-MM-DD")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	record := &models.AttendanceRecord{
		EnrollmentID: req.EnrollmentID,
		SessionDate:  date,
		Status:       models.AttendanceStatus(strings.ToUpper(req.Status)),
	}
	if err := s.repo.Append(ctx, record); err != nil {
		if errors.Is(err, repository.ErrRecordLocked) {
			return nil, appErrors.Clone(appErrors.ErrAttendanceLocked, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.invalidateSummary(ctx, enrollment.SectionID)
	return record, nil
}

// BulkMark records a whole session. Atomic mode writes every entry in one
// transaction and aborts on any failure; partialOnError collects per-row
// conflicts and keeps going.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkMarkAttendanceRequest) (*BulkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	date, err := time.Parse("2006-01-02", req.SessionDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid session date, expected YYYY-MM-DD")
	}
	atomic := req.Mode == "" || models.BulkOperationMode(req.Mode) == models.BulkModeAtomic
	if atomic {
		return s.bulkMarkAtomic(ctx, req, date)
	}
	return s.bulkMarkPartial(ctx, req, date)
}

func (s *AttendanceService) bulkMarkAtomic(ctx context.Context, req BulkMarkAttendanceRequest, date time.Time) (*BulkAttendanceResult, error) {
	records := make([]*models.AttendanceRecord, 0, len(req.Items))
	sections := make(map[string]struct{})
	for _, item := range req.Items {
		enrollment, err := s.enrollments.FindByID(ctx, item.EnrollmentID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found", item.EnrollmentID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		records = append(records, &models.AttendanceRecord{
			EnrollmentID: item.EnrollmentID,
			SessionDate:  date,
			Status:       models.AttendanceStatus(strings.ToUpper(item.Status)),
		})
		sections[enrollment.SectionID] = struct{}{}
	}

	if err := s.repo.AppendBatch(ctx, records); err != nil {
		if errors.Is(err, repository.ErrRecordLocked) {
			return nil, appErrors.Wrap(err, appErrors.ErrAttendanceLocked.Code, appErrors.ErrAttendanceLocked.Status, "attendance locked, batch aborted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	for sectionID := range sections {
		s.invalidateSummary(ctx, sectionID)
	}
	return &BulkAttendanceResult{Processed: len(req.Items), Success: len(req.Items)}, nil
}

func (s *AttendanceService) bulkMarkPartial(ctx context.Context, req BulkMarkAttendanceRequest, date time.Time) (*BulkAttendanceResult, error) {
	result := &BulkAttendanceResult{Processed: len(req.Items)}
	sections := make(map[string]struct{})
	for _, item := range req.Items {
		enrollment, err := s.enrollments.FindByID(ctx, item.EnrollmentID)
		if err != nil {
			if err == sql.ErrNoRows {
				result.Conflicts = append(result.Conflicts, models.AttendanceBulkConflict{EnrollmentID: item.EnrollmentID, SessionDate: date, Reason: "enrollment not found"})
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		record := &models.AttendanceRecord{
			EnrollmentID: item.EnrollmentID,
			SessionDate:  date,
			Status:       models.AttendanceStatus(strings.ToUpper(item.Status)),
		}
		if err := s.repo.Append(ctx, record); err != nil {
			if errors.Is(err, repository.ErrRecordLocked) {
				result.Conflicts = append(result.Conflicts, models.AttendanceBulkConflict{EnrollmentID: item.EnrollmentID, SessionDate: date, Reason: "record locked"})
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
		}
		result.Success++
		sections[enrollment.SectionID] = struct{}{}
	}
	for sectionID := range sections {
		s.invalidateSummary(ctx, sectionID)
	}
	return result, nil
}

// ListByEnrollment returns the ledger rows for an enrollment.
func (s *AttendanceService) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.AttendanceRecord, error) {
	records, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// Compliance classifies a single enrollment.
func (s *AttendanceService) Compliance(ctx context.Context, enrollmentID string) (*models.StudentCompliance, error) {
	counts, err := s.repo.CountsByEnrollment(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			// no sessions held yet; never penalizes the student
			counts = &models.AttendanceCounts{EnrollmentID: enrollmentID}
		} else {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
		}
	}
	result := Classify(counts.PresentCount, counts.TotalSessions)
	return &models.StudentCompliance{
		EnrollmentID: enrollmentID,
		StudentID:    counts.StudentID,
		Percentage:   result.Percentage,
		Tier:         result.Tier,
	}, nil
}

// SectionSummary aggregates per-student tiers, per-tier counts and the
// section average percentage, cached for a short window.
func (s *AttendanceService) SectionSummary(ctx context.Context, sectionID string) (*models.SectionComplianceSummary, error) {
	key := summaryCacheKey(sectionID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var cached models.SectionComplianceSummary
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	counts, err := s.repo.CountsBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate section attendance")
	}

	summary := &models.SectionComplianceSummary{
		SectionID:   sectionID,
		Students:    make([]models.StudentCompliance, 0, len(counts)),
		TierCounts:  make(map[models.ComplianceTier]int),
		GeneratedAt: s.now(),
	}
	totalPercentage := 0.0
	for _, row := range counts {
		result := Classify(row.PresentCount, row.TotalSessions)
		summary.Students = append(summary.Students, models.StudentCompliance{
			EnrollmentID: row.EnrollmentID,
			StudentID:    row.StudentID,
			Percentage:   result.Percentage,
			Tier:         result.Tier,
		})
		summary.TierCounts[result.Tier]++
		totalPercentage += result.Percentage
	}
	if len(counts) > 0 {
		summary.AveragePercentage = totalPercentage / float64(len(counts))
	}

	if s.cache != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
				s.logger.Warn("summary cache write failed", zap.String("section_id", sectionID), zap.Error(err))
			}
		}
	}
	return summary, nil
}

// Lock marks every attendance record of the section locked. Idempotent;
// safe to invoke from parallel batch workers.
func (s *AttendanceService) Lock(ctx context.Context, sectionID string) (int64, error) {
	locked, err := s.repo.LockBySection(ctx, sectionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock attendance")
	}
	s.metrics.IncAttendanceLock()
	s.invalidateSummary(ctx, sectionID)
	if s.publisher != nil {
		event := models.DomainEvent{Type: models.EventAttendanceLocked, Payload: map[string]interface{}{
			"section_id":   sectionID,
			"locked_count": locked,
		}}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed", zap.String("type", string(models.EventAttendanceLocked)), zap.Error(err))
		}
	}
	return locked, nil
}

func (s *AttendanceService) invalidateSummary(ctx context.Context, sectionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, summaryCacheKey(sectionID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}

func summaryCacheKey(sectionID string) string {
	return "compliance:summary:" + sectionID
}
