package models

import "time"

// Assignment is coursework published by a teacher for an enrolled cohort.
type Assignment struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	Points      float64   `db:"points" json:"points"`
	FileURL     *string   `db:"file_url" json:"file_url,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentFilter captures listing criteria for assignments.
type AssignmentFilter struct {
	CourseID  string
	DueBefore *time.Time
	DueAfter  *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Submission is student work handed in for an assignment.
//
// A submission is ungraded until a teacher sets Grade/Feedback and flips
// NeedsReview on; an admin then either approves (NeedsReview off, grade kept)
// or rejects (grade, feedback and graded_at cleared).
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Content      string     `db:"content" json:"content"`
	FileURL      *string    `db:"file_url" json:"file_url,omitempty"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	Late         bool       `db:"late" json:"late"`
	Grade        *float64   `db:"grade" json:"grade,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy     *string    `db:"graded_by" json:"graded_by,omitempty"`
	NeedsReview  bool       `db:"needs_review" json:"needs_review"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SubmissionDetail joins assignment and student context onto a submission.
type SubmissionDetail struct {
	Submission
	StudentName      string  `db:"student_name" json:"student_name"`
	AssignmentTitle  string  `db:"assignment_title" json:"assignment_title"`
	AssignmentPoints float64 `db:"assignment_points" json:"assignment_points"`
	CourseID         string  `db:"course_id" json:"course_id"`
}

// SubmissionFilter captures listing criteria for submissions.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	NeedsReview  *bool
	Graded       *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// SubmissionComment is a threaded note on a submission.
type SubmissionComment struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	AuthorID     string    `db:"author_id" json:"author_id"`
	Content      string    `db:"content" json:"content"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
