package models

import (
	"fmt"
	"time"
)

// DayOfWeek identifies the weekday of a recurring meeting block.
type DayOfWeek string

// Supported weekdays.
const (
	DayMonday    DayOfWeek = "MONDAY"
	DayTuesday   DayOfWeek = "TUESDAY"
	DayWednesday DayOfWeek = "WEDNESDAY"
	DayThursday  DayOfWeek = "THURSDAY"
	DayFriday    DayOfWeek = "FRIDAY"
	DaySaturday  DayOfWeek = "SATURDAY"
	DaySunday    DayOfWeek = "SUNDAY"
)

// Valid returns true when the day is a supported value.
func (d DayOfWeek) Valid() bool {
	switch d {
	case DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday, DaySaturday, DaySunday:
		return true
	default:
		return false
	}
}

// ScheduleBlock is a recurring meeting window belonging to a section.
// Times are minutes since midnight; the interval is half-open, a block
// ends the instant EndMinute is reached.
type ScheduleBlock struct {
	ID           string    `db:"id" json:"id"`
	SectionID    string    `db:"section_id" json:"section_id"`
	DayOfWeek    DayOfWeek `db:"day_of_week" json:"day_of_week"`
	StartMinute  int       `db:"start_minute" json:"start_minute"`
	EndMinute    int       `db:"end_minute" json:"end_minute"`
	Room         *string   `db:"room" json:"room,omitempty"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Overlaps reports whether two blocks collide on the same day.
// Touching boundaries do not overlap.
func (b ScheduleBlock) Overlaps(other ScheduleBlock) bool {
	if b.DayOfWeek != other.DayOfWeek {
		return false
	}
	return b.StartMinute < other.EndMinute && b.EndMinute > other.StartMinute
}

// ParseClock converts an "HH:MM" string to minutes since midnight.
func ParseClock(value string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value %q out of range", value)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// RegistrationWindow bounds the period students may enroll into a section.
type RegistrationWindow struct {
	Start time.Time `db:"registration_start" json:"start"`
	End   time.Time `db:"registration_end" json:"end"`
}

// Contains reports whether the instant falls inside the window, inclusive
// on both ends.
func (w RegistrationWindow) Contains(at time.Time) bool {
	return !at.Before(w.Start) && !at.After(w.End)
}

// Section is one term's scheduled offering of a course.
// Invariant: CurrentEnrollmentCount never exceeds Capacity.
type Section struct {
	ID                     string    `db:"id" json:"id"`
	CourseCode             string    `db:"course_code" json:"course_code"`
	TermID                 string    `db:"term_id" json:"term_id"`
	Capacity               int       `db:"capacity" json:"capacity"`
	CurrentEnrollmentCount int       `db:"current_enrollment_count" json:"current_enrollment_count"`
	Active                 bool      `db:"active" json:"active"`
	RegistrationWindow
	Blocks    []ScheduleBlock `json:"blocks,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// SectionFilter describes query params for listing sections.
type SectionFilter struct {
	TermID     string
	CourseCode string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// ConflictClass names the dimension a candidate block collides on.
type ConflictClass string

const (
	ConflictClassStudent    ConflictClass = "STUDENT"
	ConflictClassRoom       ConflictClass = "ROOM"
	ConflictClassInstructor ConflictClass = "INSTRUCTOR"
)

// BlockConflict pairs the colliding dimension with the existing block.
type BlockConflict struct {
	Class ConflictClass `json:"class"`
	Block ScheduleBlock `json:"block"`
}

// BlockConflictError is returned when a candidate block collides with
// existing blocks.
type BlockConflictError struct {
	Message   string          `json:"message"`
	Conflicts []BlockConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *BlockConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
