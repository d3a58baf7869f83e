package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// Enrollment captures a student's registration to a section. Records are
// never physically deleted; withdrawal moves the status to DROPPED.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt  *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	DroppedBy  *string          `db:"dropped_by" json:"dropped_by,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ValidationMode selects how many blocking reasons a dry validation reports.
type ValidationMode string

const (
	// ValidationModeFirstFailure stops at the first blocking reason.
	ValidationModeFirstFailure ValidationMode = "firstFailure"
	// ValidationModeAllFailures collects every applicable reason, used by
	// bulk-import tooling so operators can fix all issues at once.
	ValidationModeAllFailures ValidationMode = "allFailures"
)

// EnrollmentReasonCode is a machine-readable blocking reason.
type EnrollmentReasonCode string

const (
	ReasonStudentInactive      EnrollmentReasonCode = "STUDENT_INACTIVE"
	ReasonStudentNotEnrollable EnrollmentReasonCode = "STUDENT_NOT_ENROLLABLE"
	ReasonSectionInactive      EnrollmentReasonCode = "SECTION_INACTIVE"
	ReasonCapacityExceeded     EnrollmentReasonCode = "CAPACITY_EXCEEDED"
	ReasonDuplicateEnrollment  EnrollmentReasonCode = "DUPLICATE_ENROLLMENT"
	ReasonScheduleConflict     EnrollmentReasonCode = "SCHEDULE_CONFLICT"
	ReasonWindowClosed         EnrollmentReasonCode = "REGISTRATION_WINDOW_CLOSED"
)

// EnrollmentReason explains why a validation check blocked enrollment.
type EnrollmentReason struct {
	Code      EnrollmentReasonCode `json:"code"`
	Message   string               `json:"message"`
	Conflicts []BlockConflict      `json:"conflicts,omitempty"`
}

// EnrollmentValidation is the outcome of a dry validation run.
type EnrollmentValidation struct {
	StudentID string             `json:"student_id"`
	SectionID string             `json:"section_id"`
	Eligible  bool               `json:"eligible"`
	Reasons   []EnrollmentReason `json:"reasons,omitempty"`
}
