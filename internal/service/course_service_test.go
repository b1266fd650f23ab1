package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/storage"
)

type mockCourseRepo struct {
	courses   map[string]*models.Course
	materials map[string]*models.CourseMaterial
	codes     map[string]string
	seq       int
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{
		courses:   make(map[string]*models.Course),
		materials: make(map[string]*models.CourseMaterial),
		codes:     make(map[string]string),
	}
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, c := range m.courses {
		out = append(out, models.CourseDetail{Course: *c})
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	m.seq++
	course.ID = fmt.Sprintf("crs-%d", m.seq)
	m.courses[course.ID] = course
	m.codes[course.Code] = course.ID
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	delete(m.courses, id)
	return nil
}

func (m *mockCourseRepo) CodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	id, ok := m.codes[code]
	return ok && id != excludeID, nil
}

func (m *mockCourseRepo) CreateMaterial(ctx context.Context, material *models.CourseMaterial) error {
	m.seq++
	material.ID = fmt.Sprintf("mat-%d", m.seq)
	m.materials[material.ID] = material
	return nil
}

func (m *mockCourseRepo) ListMaterials(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	var out []models.CourseMaterial
	for _, mat := range m.materials {
		if mat.CourseID == courseID {
			out = append(out, *mat)
		}
	}
	return out, nil
}

func (m *mockCourseRepo) FindMaterial(ctx context.Context, id string) (*models.CourseMaterial, error) {
	if mat, ok := m.materials[id]; ok {
		return mat, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) DeleteMaterial(ctx context.Context, id string) error {
	delete(m.materials, id)
	return nil
}

func newCourseFixture(t *testing.T) (*CourseService, *mockCourseRepo, *mockNotifier) {
	t.Helper()
	repo := newMockCourseRepo()
	directory := &mockDirectory{
		admins: []string{"adm-1", "adm-2"},
		profiles: map[string]*models.Profile{
			"tch-1": {ID: "tch-1", Role: models.RoleTeacher, FirstName: "Ada", LastName: "Okoye"},
			"stu-1": {ID: "stu-1", Role: models.RoleStudent},
		},
	}
	notifier := &mockNotifier{}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewCourseService(repo, directory, notifier, nil, store, validator.New(), zap.NewNop(), 0)
	return svc, repo, notifier
}

func validCourseInput() CourseInput {
	return CourseInput{
		Title:        "Algorithms",
		Code:         "CS301",
		Department:   "Computer Science",
		Credits:      6,
		InstructorID: "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d",
		Semester:     "FALL",
		Year:         2026,
		Capacity:     40,
	}
}

func TestCourseServiceCreateNotifiesAdmins(t *testing.T) {
	svc, repo, notifier := newCourseFixture(t)

	input := validCourseInput()
	svc.directory.(*mockDirectory).profiles[input.InstructorID] = &models.Profile{
		ID: input.InstructorID, Role: models.RoleTeacher,
	}

	course, err := svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, course.ID)
	require.Len(t, repo.courses, 1)

	all := notifier.all()
	require.Len(t, all, 2)
	recipients := []string{all[0].UserID, all[1].UserID}
	assert.ElementsMatch(t, []string{"adm-1", "adm-2"}, recipients)
	assert.Equal(t, models.NotificationCourseCreated, all[0].Type)
	assert.Equal(t, "New course created", all[0].Title)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	svc, _, _ := newCourseFixture(t)

	input := validCourseInput()
	svc.directory.(*mockDirectory).profiles[input.InstructorID] = &models.Profile{
		ID: input.InstructorID, Role: models.RoleTeacher,
	}

	_, err := svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateInstructorMustBeTeacher(t *testing.T) {
	svc, _, _ := newCourseFixture(t)

	input := validCourseInput()
	svc.directory.(*mockDirectory).profiles[input.InstructorID] = &models.Profile{
		ID: input.InstructorID, Role: models.RoleStudent,
	}

	_, err := svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateOtherInstructorForbidden(t *testing.T) {
	svc, repo, _ := newCourseFixture(t)

	input := validCourseInput()
	svc.directory.(*mockDirectory).profiles[input.InstructorID] = &models.Profile{
		ID: input.InstructorID, Role: models.RoleTeacher,
	}
	course, err := svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.NoError(t, err)

	input.Title = "Advanced Algorithms"
	_, err = svc.Update(context.Background(), course.ID, input, teacherClaims("tch-other"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, "Algorithms", repo.courses[course.ID].Title)
}

func TestCourseServiceUploadAndOpenMaterial(t *testing.T) {
	svc, _, _ := newCourseFixture(t)

	input := validCourseInput()
	svc.directory.(*mockDirectory).profiles[input.InstructorID] = &models.Profile{
		ID: input.InstructorID, Role: models.RoleTeacher,
	}
	course, err := svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.NoError(t, err)

	content := "week one lecture notes"
	material, err := svc.UploadMaterial(context.Background(), course.ID, "Lecture 1",
		"notes.txt", "text/plain", int64(len(content)), strings.NewReader(content),
		&models.JWTClaims{UserID: input.InstructorID, Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, "Lecture 1", material.Title)
	assert.Equal(t, int64(len(content)), material.SizeBytes)

	got, file, err := svc.OpenMaterial(context.Background(), material.ID)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, material.ID, got.ID)
}

func TestCourseServiceUploadMaterialForbiddenForOtherTeacher(t *testing.T) {
	svc, _, _ := newCourseFixture(t)

	input := validCourseInput()
	svc.directory.(*mockDirectory).profiles[input.InstructorID] = &models.Profile{
		ID: input.InstructorID, Role: models.RoleTeacher,
	}
	course, err := svc.Create(context.Background(), input, adminClaims("adm-1"))
	require.NoError(t, err)

	_, err = svc.UploadMaterial(context.Background(), course.ID, "Lecture 1",
		"notes.txt", "text/plain", 4, strings.NewReader("nope"), teacherClaims("tch-other"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
