package models

import "time"

// EnrollmentRequestStatus tracks the approval state machine for requests.
// PENDING is the only state that accepts a transition; APPROVED and REJECTED
// are terminal. A student may file a fresh request after rejection; the
// rejected row is retained.
type EnrollmentRequestStatus string

const (
	RequestStatusPending  EnrollmentRequestStatus = "PENDING"
	RequestStatusApproved EnrollmentRequestStatus = "APPROVED"
	RequestStatusRejected EnrollmentRequestStatus = "REJECTED"
)

// EnrollmentRequest is a student-initiated proposal to join a course.
type EnrollmentRequest struct {
	ID        string                  `db:"id" json:"id"`
	StudentID string                  `db:"student_id" json:"student_id"`
	CourseID  string                  `db:"course_id" json:"course_id"`
	Status    EnrollmentRequestStatus `db:"status" json:"status"`
	DecidedBy *string                 `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt *time.Time              `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt time.Time               `db:"created_at" json:"created_at"`
}

// EnrollmentRequestDetail adds student and course context to a request.
type EnrollmentRequestDetail struct {
	EnrollmentRequest
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
	CourseCode  string `db:"course_code" json:"course_code"`
}

// EnrollmentRequestFilter captures listing criteria for requests.
type EnrollmentRequestFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentRequestStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EnrollmentStatus tracks the lifecycle of a realized enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// Enrollment is the realized student-course relationship.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	Grade     *string          `db:"grade" json:"grade,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentDetail adds student and course context to an enrollment.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseTitle string `db:"course_title" json:"course_title"`
	CourseCode  string `db:"course_code" json:"course_code"`
}

// EnrollmentFilter captures listing criteria for enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
