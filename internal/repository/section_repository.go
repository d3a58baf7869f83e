package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/opencampus/registrar-api/internal/models"
)

// SectionRepository handles the catalog read model: sections and their
// schedule blocks.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_code, term_id, capacity, current_enrollment_count, active,
        registration_start, registration_end, created_at, updated_at`

// FindByID returns a section with its schedule blocks.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE id = $1`, sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	blocks, err := r.BlocksBySection(ctx, id)
	if err != nil {
		return nil, err
	}
	section.Blocks = blocks
	return &section, nil
}

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	base := "FROM sections"
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.CourseCode != "" {
		conditions = append(conditions, fmt.Sprintf("course_code = $%d", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"course_code": "course_code",
		"created_at":  "created_at",
	}
	sortBy := allowedSorts[filter.SortBy]
	if sortBy == "" {
		sortBy = "course_code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		sectionColumns, base+clause, sortBy, order, size, offset)

	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

const blockColumns = `id, section_id, day_of_week, start_minute, end_minute, room, instructor_id, created_at`

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// BlocksBySection returns a section's meeting blocks.
func (r *SectionRepository) BlocksBySection(ctx context.Context, sectionID string) ([]models.ScheduleBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_blocks WHERE section_id = $1 ORDER BY day_of_week, start_minute`, blockColumns)
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section blocks: %w", err)
	}
	return blocks, nil
}

// BlocksByRoom returns blocks of other active sections in the same term
// that use the given room.
func (r *SectionRepository) BlocksByRoom(ctx context.Context, termID, room, excludeSectionID string) ([]models.ScheduleBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_blocks b
        JOIN sections s ON s.id = b.section_id
        WHERE s.term_id = $1 AND s.active = TRUE AND b.room = $2 AND b.section_id <> $3`,
		prefixColumns("b", blockColumns))
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, termID, room, excludeSectionID); err != nil {
		return nil, fmt.Errorf("list room blocks: %w", err)
	}
	return blocks, nil
}

// BlocksByInstructor returns blocks of other active sections in the same
// term taught by the given instructor.
func (r *SectionRepository) BlocksByInstructor(ctx context.Context, termID, instructorID, excludeSectionID string) ([]models.ScheduleBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_blocks b
        JOIN sections s ON s.id = b.section_id
        WHERE s.term_id = $1 AND s.active = TRUE AND b.instructor_id = $2 AND b.section_id <> $3`,
		prefixColumns("b", blockColumns))
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, termID, instructorID, excludeSectionID); err != nil {
		return nil, fmt.Errorf("list instructor blocks: %w", err)
	}
	return blocks, nil
}
