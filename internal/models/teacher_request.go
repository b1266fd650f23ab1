package models

import "time"

// TeacherRequestStatus tracks role-upgrade request state.
type TeacherRequestStatus string

const (
	TeacherRequestPending  TeacherRequestStatus = "PENDING"
	TeacherRequestApproved TeacherRequestStatus = "APPROVED"
	TeacherRequestRejected TeacherRequestStatus = "REJECTED"
)

// TeacherRequest is a user's application for the TEACHER role.
type TeacherRequest struct {
	ID         string               `db:"id" json:"id"`
	UserID     string               `db:"user_id" json:"user_id"`
	Motivation string               `db:"motivation" json:"motivation"`
	Status     TeacherRequestStatus `db:"status" json:"status"`
	DecidedBy  *string              `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt  *time.Time           `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
}

// TeacherRequestDetail adds applicant identity to a request.
type TeacherRequestDetail struct {
	TeacherRequest
	ApplicantName  string `db:"applicant_name" json:"applicant_name"`
	ApplicantEmail string `db:"applicant_email" json:"applicant_email"`
}
