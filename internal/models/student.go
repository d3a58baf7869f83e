package models

import "time"

// StudentType categorises students for enrollment eligibility. The student
// directory itself is owned by an external system; this service keeps a
// read-only reference projection.
type StudentType string

const (
	StudentTypeRegular   StudentType = "REGULAR"
	StudentTypeExchange  StudentType = "EXCHANGE"
	StudentTypeAuditor   StudentType = "AUDITOR"
	StudentTypeAlumni    StudentType = "ALUMNI"
	StudentTypeSuspended StudentType = "SUSPENDED"
)

// Enrollable reports whether the type may register into sections.
func (t StudentType) Enrollable() bool {
	switch t {
	case StudentTypeRegular, StudentTypeExchange, StudentTypeAuditor:
		return true
	default:
		return false
	}
}

// Student is the directory reference used by enrollment checks.
type Student struct {
	ID        string      `db:"id" json:"id"`
	Active    bool        `db:"active" json:"active"`
	Type      StudentType `db:"type" json:"type"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
