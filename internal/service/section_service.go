package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencampus/registrar-api/internal/models"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
)

type sectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	BlocksByRoom(ctx context.Context, termID, room, excludeSectionID string) ([]models.ScheduleBlock, error)
	BlocksByInstructor(ctx context.Context, termID, instructorID, excludeSectionID string) ([]models.ScheduleBlock, error)
}

type studentBlocksReader interface {
	ActiveBlocksByStudent(ctx context.Context, studentID string) ([]models.ScheduleBlock, error)
}

// CheckBlockRequest is a dry-run placement of a candidate meeting block.
// Nothing is persisted; the response lists every conflict found.
type CheckBlockRequest struct {
	SectionID    string  `json:"section_id" validate:"required"`
	DayOfWeek    string  `json:"day_of_week" validate:"required"`
	Start        string  `json:"start" validate:"required"`
	End          string  `json:"end" validate:"required"`
	Room         *string `json:"room,omitempty"`
	InstructorID *string `json:"instructor_id,omitempty"`
	StudentID    string  `json:"student_id,omitempty"`
}

// CheckBlockResult reports the outcome of a dry-run placement.
type CheckBlockResult struct {
	Valid     bool                   `json:"valid"`
	Conflicts []models.BlockConflict `json:"conflicts,omitempty"`
}

// SectionService serves the catalog read model and the conflict
// check used when planning schedule changes.
type SectionService struct {
	repo        sectionRepository
	enrollments studentBlocksReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSectionService constructs the section service.
func NewSectionService(repo sectionRepository, enrollments studentBlocksReader, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// Get returns a section with its schedule blocks.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// List returns sections matching the filter with pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RoomSchedule returns the weekly meeting blocks booked in a room across
// the term's active sections.
func (s *SectionService) RoomSchedule(ctx context.Context, termID, room string) ([]models.ScheduleBlock, error) {
	if termID == "" || room == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId and room are required")
	}
	blocks, err := s.repo.BlocksByRoom(ctx, termID, room, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedule")
	}
	return blocks, nil
}

// InstructorSchedule returns the weekly meeting blocks an instructor
// teaches across the term's active sections.
func (s *SectionService) InstructorSchedule(ctx context.Context, termID, instructorID string) ([]models.ScheduleBlock, error) {
	if termID == "" || instructorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId and instructor id are required")
	}
	blocks, err := s.repo.BlocksByInstructor(ctx, termID, instructorID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor schedule")
	}
	return blocks, nil
}

// CheckBlock runs the conflict engine against a candidate block without
// persisting anything. Room and instructor calendars are always checked
// when the candidate carries them; the student calendar only when a
// student is named.
func (s *SectionService) CheckBlock(ctx context.Context, req CheckBlockRequest) (*CheckBlockResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid block payload")
	}

	day := models.DayOfWeek(strings.ToUpper(req.DayOfWeek))
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid day of week")
	}
	start, err := models.ParseClock(req.Start)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	end, err := models.ParseClock(req.End)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	section, err := s.repo.FindByID(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	candidate := models.ScheduleBlock{
		SectionID:    req.SectionID,
		DayOfWeek:    day,
		StartMinute:  start,
		EndMinute:    end,
		Room:         req.Room,
		InstructorID: req.InstructorID,
	}

	var studentBlocks []models.ScheduleBlock
	if req.StudentID != "" {
		studentBlocks, err = s.enrollments.ActiveBlocksByStudent(ctx, req.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student blocks")
		}
	}
	var roomBlocks []models.ScheduleBlock
	if req.Room != nil {
		roomBlocks, err = s.repo.BlocksByRoom(ctx, section.TermID, *req.Room, req.SectionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room blocks")
		}
	}
	var instructorBlocks []models.ScheduleBlock
	if req.InstructorID != nil {
		instructorBlocks, err = s.repo.BlocksByInstructor(ctx, section.TermID, *req.InstructorID, req.SectionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor blocks")
		}
	}

	conflicts, err := FindConflicts(candidate, studentBlocks, roomBlocks, instructorBlocks)
	if err != nil {
		return nil, err
	}
	return &CheckBlockResult{Valid: len(conflicts) == 0, Conflicts: conflicts}, nil
}
