package service

import (
	"github.com/opencampus/registrar-api/internal/models"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
)

// FindConflicts checks a candidate meeting block against existing blocks
// along three independent dimensions: the student's other active blocks,
// blocks sharing the candidate's room, and blocks sharing the candidate's
// instructor. A candidate without a room or instructor skips that class.
//
// Pure function: the caller supplies all block sets. Overlap uses
// half-open intervals, so exactly touching boundaries never conflict.
func FindConflicts(candidate models.ScheduleBlock, studentBlocks, roomBlocks, instructorBlocks []models.ScheduleBlock) ([]models.BlockConflict, error) {
	if candidate.StartMinute >= candidate.EndMinute {
		return nil, appErrors.Clone(appErrors.ErrValidation, "block start must be before end")
	}

	var conflicts []models.BlockConflict
	for _, block := range studentBlocks {
		if candidate.Overlaps(block) {
			conflicts = append(conflicts, models.BlockConflict{Class: models.ConflictClassStudent, Block: block})
		}
	}
	if candidate.Room != nil {
		for _, block := range roomBlocks {
			if candidate.Overlaps(block) {
				conflicts = append(conflicts, models.BlockConflict{Class: models.ConflictClassRoom, Block: block})
			}
		}
	}
	if candidate.InstructorID != nil {
		for _, block := range instructorBlocks {
			if candidate.Overlaps(block) {
				conflicts = append(conflicts, models.BlockConflict{Class: models.ConflictClassInstructor, Block: block})
			}
		}
	}
	return conflicts, nil
}

// StudentConflicts checks every block of a section against the student's
// existing active blocks. Used by enrollment validation, where room and
// instructor dimensions are the section's own and need no re-checking.
func StudentConflicts(sectionBlocks, studentBlocks []models.ScheduleBlock) ([]models.BlockConflict, error) {
	var conflicts []models.BlockConflict
	for _, candidate := range sectionBlocks {
		found, err := FindConflicts(candidate, studentBlocks, nil, nil)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, found...)
	}
	return conflicts, nil
}
