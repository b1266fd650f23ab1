package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutrack/edutrack-api/internal/models"
)

// CourseRepository handles persistence of courses and course materials.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c
LEFT JOIN profiles p ON p.id = c.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("c.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("c.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.title ILIKE $%d OR c.code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "c.created_at",
		"title":      "c.title",
		"code":       "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.title, c.code, c.department, c.credits, c.description, c.instructor_id,
        c.semester, c.year, c.capacity, c.created_at, c.updated_at,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id AND e.status = 'ACTIVE') AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, code, department, credits, description, instructor_id, semester, year, capacity, created_at, updated_at
        FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, code, department, credits, description, instructor_id, semester, year, capacity, created_at, updated_at)
        VALUES (:id, :title, :code, :department, :credits, :description, :instructor_id, :semester, :year, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists course edits.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, code = :code, department = :department, credits = :credits,
        description = :description, semester = :semester, year = :year, capacity = :capacity, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course by id.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// CodeExists checks whether a course code is already taken.
func (r *CourseRepository) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	query := `SELECT 1 FROM courses WHERE code = $1`
	args := []interface{}{code}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// CreateMaterial attaches an uploaded file to a course.
func (r *CourseRepository) CreateMaterial(ctx context.Context, material *models.CourseMaterial) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	if material.CreatedAt.IsZero() {
		material.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_materials (id, course_id, title, file_path, content_type, size_bytes, uploaded_by, created_at)
        VALUES (:id, :course_id, :title, :file_path, :content_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create course material: %w", err)
	}
	return nil
}

// ListMaterials returns all materials for a course, newest first.
func (r *CourseRepository) ListMaterials(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	const query = `SELECT id, course_id, title, file_path, content_type, size_bytes, uploaded_by, created_at
        FROM course_materials WHERE course_id = $1 ORDER BY created_at DESC`
	var materials []models.CourseMaterial
	if err := r.db.SelectContext(ctx, &materials, query, courseID); err != nil {
		return nil, fmt.Errorf("list course materials: %w", err)
	}
	return materials, nil
}

// FindMaterial returns a single material row.
func (r *CourseRepository) FindMaterial(ctx context.Context, id string) (*models.CourseMaterial, error) {
	const query = `SELECT id, course_id, title, file_path, content_type, size_bytes, uploaded_by, created_at
        FROM course_materials WHERE id = $1`
	var material models.CourseMaterial
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// DeleteMaterial removes a material row.
func (r *CourseRepository) DeleteMaterial(ctx context.Context, id string) error {
	const query = `DELETE FROM course_materials WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course material: %w", err)
	}
	return nil
}
