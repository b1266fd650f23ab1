package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/middleware"
	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth            *AuthHandler
	Users           *UserHandler
	Courses         *CourseHandler
	Enrollments     *EnrollmentHandler
	Assignments     *AssignmentHandler
	Submissions     *SubmissionHandler
	GradeReviews    *GradeReviewHandler
	Notifications   *NotificationHandler
	Messages        *MessageHandler
	TeacherRequests *TeacherRequestHandler
	Reports         *ReportHandler
	Metrics         *MetricsHandler
	Websocket       *WebsocketHandler
}

// RegisterRoutes mounts every endpoint on the engine.
func RegisterRoutes(r *gin.Engine, h Handlers, authService *service.AuthService, metricsService *service.MetricsService, realtimeEnabled bool) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	authRequired := middleware.JWT(authService)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staffOnly := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", authRequired, h.Auth.Logout)
		auth.POST("/change-password", authRequired, h.Auth.ChangePassword)
		auth.GET("/me", authRequired, h.Auth.Me)
	}

	users := api.Group("/users", authRequired)
	{
		users.GET("", adminOnly, h.Users.List)
		users.GET("/:id", middleware.RBAC("ADMIN", "TEACHER", "SELF"), h.Users.Get)
		users.PUT("/me", h.Users.UpdateProfile)
		users.POST("/me/avatar", h.Users.UploadAvatar)
		users.PUT("/:id/active", adminOnly, h.Users.SetActive)
		users.PUT("/:id/role", adminOnly, h.Users.ChangeRole)
	}

	courses := api.Group("/courses", authRequired)
	{
		courses.GET("", h.Courses.List)
		courses.GET("/:id", h.Courses.Get)
		courses.POST("", staffOnly, h.Courses.Create)
		courses.PUT("/:id", staffOnly, h.Courses.Update)
		courses.DELETE("/:id", adminOnly, h.Courses.Delete)
		courses.GET("/:id/materials", h.Courses.ListMaterials)
		courses.POST("/:id/materials", staffOnly, h.Courses.UploadMaterial)
	}

	materials := api.Group("/materials", authRequired)
	{
		materials.GET("/:materialId/download", h.Courses.DownloadMaterial)
		materials.DELETE("/:materialId", staffOnly, h.Courses.DeleteMaterial)
	}

	enrollments := api.Group("/enrollments", authRequired)
	{
		enrollments.POST("/requests", studentOnly, h.Enrollments.Request)
		enrollments.GET("/requests", h.Enrollments.ListRequests)
		enrollments.POST("/requests/:id/approve", staffOnly, h.Enrollments.Approve)
		enrollments.POST("/requests/:id/reject", staffOnly, h.Enrollments.Reject)
		enrollments.DELETE("/requests/:id", studentOnly, h.Enrollments.Cancel)
		enrollments.POST("", staffOnly, h.Enrollments.DirectEnroll)
		enrollments.GET("", staffOnly, h.Enrollments.List)
		enrollments.GET("/me", h.Enrollments.ListMine)
		enrollments.DELETE("/:id", h.Enrollments.Drop)
		enrollments.POST("/:id/complete", staffOnly, h.Enrollments.Complete)
	}

	assignments := api.Group("/assignments", authRequired)
	{
		assignments.GET("", h.Assignments.List)
		assignments.GET("/:id", h.Assignments.Get)
		assignments.POST("", staffOnly, h.Assignments.Create)
		assignments.PUT("/:id", staffOnly, h.Assignments.Update)
		assignments.DELETE("/:id", staffOnly, h.Assignments.Delete)
	}

	submissions := api.Group("/submissions", authRequired)
	{
		submissions.POST("", studentOnly, h.Submissions.Submit)
		submissions.GET("", h.Submissions.List)
		submissions.GET("/:id", h.Submissions.Get)
		submissions.DELETE("/:id", h.Submissions.Delete)
		submissions.POST("/:id/comments", h.Submissions.AddComment)
		submissions.GET("/:id/comments", h.Submissions.ListComments)
		submissions.POST("/:id/grade", middleware.RequireRoles(models.RoleTeacher), h.GradeReviews.Grade)
		submissions.POST("/:id/grade/approve", adminOnly, h.GradeReviews.Approve)
		submissions.POST("/:id/grade/reject", adminOnly, h.GradeReviews.Reject)
	}
	api.DELETE("/comments/:commentId", authRequired, h.Submissions.DeleteComment)
	api.GET("/grades/pending", authRequired, adminOnly, h.GradeReviews.ListPending)

	notifications := api.Group("/notifications", authRequired)
	{
		notifications.GET("", h.Notifications.List)
		notifications.GET("/unread-count", h.Notifications.UnreadCount)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
		notifications.POST("/read-all", h.Notifications.MarkAllRead)
	}

	messages := api.Group("/messages", authRequired)
	{
		messages.POST("", h.Messages.Post)
		messages.GET("", h.Messages.List)
	}

	teacherRequests := api.Group("/teacher-requests", authRequired)
	{
		teacherRequests.POST("", studentOnly, h.TeacherRequests.Apply)
		teacherRequests.GET("/pending", adminOnly, h.TeacherRequests.ListPending)
		teacherRequests.POST("/:id/approve", adminOnly, h.TeacherRequests.Approve)
		teacherRequests.POST("/:id/reject", adminOnly, h.TeacherRequests.Reject)
	}

	reports := api.Group("/reports", authRequired)
	{
		reports.GET("/transcript/:id", h.Reports.Transcript)
		reports.GET("/grade-sheet/:id", staffOnly, h.Reports.GradeSheet)
	}

	api.GET("/admin/metrics", authRequired, adminOnly, h.Metrics.Snapshot)

	if realtimeEnabled {
		ws := r.Group("/ws", middleware.WebsocketJWT(authService))
		ws.GET("/notifications", h.Websocket.Notifications)
		ws.GET("/messages", h.Websocket.GlobalFeed)
		ws.GET("/courses/:courseId", h.Websocket.CourseFeed)
	}
}
