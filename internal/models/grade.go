package models

import "time"

// GradeApprovalStatus is the workflow state of a grade record. All records
// of a section move through the workflow together as one batch.
type GradeApprovalStatus string

const (
	GradeStatusDraft       GradeApprovalStatus = "DRAFT"
	GradeStatusSubmitted   GradeApprovalStatus = "SUBMITTED"
	GradeStatusUnderReview GradeApprovalStatus = "UNDER_REVIEW"
	GradeStatusApproved    GradeApprovalStatus = "APPROVED"
	GradeStatusRejected    GradeApprovalStatus = "REJECTED"
	GradeStatusPublished   GradeApprovalStatus = "PUBLISHED"
	GradeStatusArchived    GradeApprovalStatus = "ARCHIVED"
)

// Valid returns true when the status is a supported value.
func (s GradeApprovalStatus) Valid() bool {
	switch s {
	case GradeStatusDraft, GradeStatusSubmitted, GradeStatusUnderReview,
		GradeStatusApproved, GradeStatusRejected, GradeStatusPublished,
		GradeStatusArchived:
		return true
	default:
		return false
	}
}

// gradeTransitions is the exhaustive edge table; any edge not listed here
// is rejected.
var gradeTransitions = map[GradeApprovalStatus][]GradeApprovalStatus{
	GradeStatusDraft:       {GradeStatusSubmitted},
	GradeStatusSubmitted:   {GradeStatusUnderReview},
	GradeStatusUnderReview: {GradeStatusApproved, GradeStatusRejected},
	GradeStatusRejected:    {GradeStatusSubmitted},
	GradeStatusApproved:    {GradeStatusPublished},
	GradeStatusPublished:   {GradeStatusArchived},
	GradeStatusArchived:    {},
}

// CanTransition reports whether the edge from -> to is allowed.
func CanTransition(from, to GradeApprovalStatus) bool {
	for _, next := range gradeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// GradeRecord is a single assessment result for an enrollment, governed by
// the approval workflow.
type GradeRecord struct {
	ID             string              `db:"id" json:"id"`
	EnrollmentID   string              `db:"enrollment_id" json:"enrollment_id"`
	SectionID      string              `db:"section_id" json:"section_id"`
	Value          float64             `db:"value" json:"value"`
	MaxValue       float64             `db:"max_value" json:"max_value"`
	Weight         float64             `db:"weight" json:"weight"`
	ApprovalStatus GradeApprovalStatus `db:"approval_status" json:"approval_status"`
	SubmittedBy    *string             `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time          `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedBy     *string             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	PublishedAt    *time.Time          `db:"published_at" json:"published_at,omitempty"`
	OverrideNote   *string             `db:"override_note" json:"override_note,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// GradeOverride replaces a record's value during approval when the
// attendance tier forces it.
type GradeOverride struct {
	RecordID string  `json:"record_id"`
	Value    float64 `json:"value"`
	Note     string  `json:"note"`
}

// GradeAdvisory is a non-blocking warning attached to a workflow result.
type GradeAdvisory struct {
	EnrollmentID string         `json:"enrollment_id"`
	Tier         ComplianceTier `json:"tier"`
	Message      string         `json:"message"`
}

// GradeBatchResult summarises a workflow transition over a section batch.
type GradeBatchResult struct {
	SectionID  string              `json:"section_id"`
	From       GradeApprovalStatus `json:"from"`
	To         GradeApprovalStatus `json:"to"`
	Records    []GradeRecord       `json:"records"`
	Overrides  []GradeOverride     `json:"overrides,omitempty"`
	Advisories []GradeAdvisory     `json:"advisories,omitempty"`
	NoOp       bool                `json:"no_op,omitempty"`
}

// GradeFilter allows querying of grade records.
type GradeFilter struct {
	SectionID    string
	EnrollmentID string
	Status       GradeApprovalStatus
}
