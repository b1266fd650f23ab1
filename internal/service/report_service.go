package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/export"
)

type reportEnrollmentRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type reportSubmissionRepository interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
}

type reportProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

// ReportFormat selects the rendering of an exported report.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Report is a rendered export ready to stream to the client.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService renders transcripts and grade sheets as CSV or PDF.
type ReportService struct {
	enrollments reportEnrollmentRepository
	submissions reportSubmissionRepository
	profiles    reportProfileRepository
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewReportService constructs a ReportService instance.
func NewReportService(enrollments reportEnrollmentRepository, submissions reportSubmissionRepository, profiles reportProfileRepository, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		enrollments: enrollments,
		submissions: submissions,
		profiles:    profiles,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// Transcript renders a student's enrollment history with final grades.
// Students export their own; admins anyone's.
func (s *ReportService) Transcript(ctx context.Context, studentID string, format ReportFormat, actor *models.JWTClaims) (*Report, error) {
	if actor.Role != models.RoleAdmin && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "transcript belongs to another student")
	}

	student, err := s.profiles.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}

	dataset := export.Dataset{
		Headers: []string{"Course Code", "Course Title", "Status", "Final Grade"},
	}
	for _, e := range enrollments {
		grade := ""
		if e.Grade != nil {
			grade = *e.Grade
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Course Code":  e.CourseCode,
			"Course Title": e.CourseTitle,
			"Status":       string(e.Status),
			"Final Grade":  grade,
		})
	}

	title := fmt.Sprintf("Transcript - %s", student.FullName())
	return s.render(dataset, title, fmt.Sprintf("transcript-%s", studentID), format)
}

// GradeSheet renders every submission grade for an assignment. Teachers and
// admins only; the handler enforces the role.
func (s *ReportService) GradeSheet(ctx context.Context, assignmentID string, format ReportFormat) (*Report, error) {
	submissions, _, err := s.submissions.List(ctx, models.SubmissionFilter{AssignmentID: assignmentID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Submitted At", "Late", "Grade", "Awaiting Review"},
	}
	for _, sub := range submissions {
		grade := ""
		if sub.Grade != nil {
			grade = fmt.Sprintf("%.1f / %.1f", *sub.Grade, sub.AssignmentPoints)
		}
		late := "no"
		if sub.Late {
			late = "yes"
		}
		review := "no"
		if sub.NeedsReview {
			review = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":         sub.StudentName,
			"Submitted At":    sub.SubmittedAt.Format("2006-01-02 15:04"),
			"Late":            late,
			"Grade":           grade,
			"Awaiting Review": review,
		})
	}

	return s.render(dataset, "Grade Sheet", fmt.Sprintf("grades-%s", assignmentID), format)
}

func (s *ReportService) render(dataset export.Dataset, title, basename string, format ReportFormat) (*Report, error) {
	switch ReportFormat(strings.ToLower(string(format))) {
	case ReportFormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF")
		}
		return &Report{Filename: basename + ".pdf", ContentType: "application/pdf", Data: data}, nil
	case ReportFormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV")
		}
		return &Report{Filename: basename + ".csv", ContentType: "text/csv", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
}
