package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one session entry in the append-only ledger.
// Once Locked is set the record is immutable.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	SessionDate  time.Time        `db:"session_date" json:"session_date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Locked       bool             `db:"locked" json:"locked"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceCounts aggregates ledger rows per enrollment.
type AttendanceCounts struct {
	EnrollmentID  string `db:"enrollment_id" json:"enrollment_id"`
	StudentID     string `db:"student_id" json:"student_id"`
	PresentCount  int    `db:"present_count" json:"present_count"`
	TotalSessions int    `db:"total_sessions" json:"total_sessions"`
}

// ComplianceTier classifies an attendance percentage.
type ComplianceTier string

const (
	TierAutoFail       ComplianceTier = "AUTO_FAIL"
	TierExamIneligible ComplianceTier = "EXAM_INELIGIBLE"
	TierAtRisk         ComplianceTier = "AT_RISK"
	TierCompliant      ComplianceTier = "COMPLIANT"
)

// StudentCompliance is the per-student classification within a section.
type StudentCompliance struct {
	EnrollmentID string         `json:"enrollment_id"`
	StudentID    string         `json:"student_id"`
	Percentage   float64        `json:"percentage"`
	Tier         ComplianceTier `json:"tier"`
}

// SectionComplianceSummary aggregates compliance across a section roster.
type SectionComplianceSummary struct {
	SectionID         string                 `json:"section_id"`
	Students          []StudentCompliance    `json:"students"`
	TierCounts        map[ComplianceTier]int `json:"tier_counts"`
	AveragePercentage float64                `json:"average_percentage"`
	GeneratedAt       time.Time              `json:"generated_at"`
}

// AttendanceBulkConflict captures failed bulk mark operations.
type AttendanceBulkConflict struct {
	EnrollmentID string    `json:"enrollment_id"`
	SessionDate  time.Time `json:"session_date"`
	Reason       string    `json:"reason"`
}

// BulkOperationMode controls how bulk writes behave on errors.
type BulkOperationMode string

const (
	BulkModeAtomic         BulkOperationMode = "atomic"
	BulkModePartialOnError BulkOperationMode = "partialOnError"
)
