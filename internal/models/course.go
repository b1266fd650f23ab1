package models

import "time"

// Course represents a course offering stored in the courses table.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Code         string    `db:"code" json:"code"`
	Department   string    `db:"department" json:"department"`
	Credits      int       `db:"credits" json:"credits"`
	Description  string    `db:"description" json:"description"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	Semester     string    `db:"semester" json:"semester"`
	Year         int       `db:"year" json:"year"`
	Capacity     int       `db:"capacity" json:"capacity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail joins instructor identity and enrollment counts onto a course.
type CourseDetail struct {
	Course
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
}

// CourseFilter captures listing criteria for courses.
type CourseFilter struct {
	Department   string
	InstructorID string
	Semester     string
	Year         int
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CourseMaterial is an uploaded file attached to a course.
type CourseMaterial struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	FilePath    string    `db:"file_path" json:"-"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
