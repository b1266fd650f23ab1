package models

import "time"

// Notification type tags. Free-form strings on the wire; these constants
// cover every type the service itself emits.
const (
	NotificationEnrollmentRequested = "enrollment_requested"
	NotificationEnrollmentApproved  = "enrollment_approved"
	NotificationEnrollmentRejected  = "enrollment_rejected"
	NotificationEnrollmentCreated   = "enrollment_created"
	NotificationGradeSubmitted      = "grade_submitted"
	NotificationGradeApproved       = "grade_approved"
	NotificationGradeRejected       = "grade_rejected"
	NotificationCourseCreated       = "course_created"
	NotificationNewAssignment       = "new_assignment"
	NotificationTeacherRequest      = "teacher_request"
	NotificationTeacherApproved     = "teacher_request_approved"
	NotificationTeacherRejected     = "teacher_request_rejected"
)

// Notification is a per-recipient message row created as a side effect of a
// state-changing action. Only the addressed user may flip the read flag.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Type      string    `db:"type" json:"type"`
	Read      bool      `db:"read" json:"read"`
	Link      *string   `db:"link" json:"link,omitempty"`
	RelatedID *string   `db:"related_id" json:"related_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter captures listing criteria for notifications.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Type       string
	Page       int
	PageSize   int
}
