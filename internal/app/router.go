package app

import (
	"school_lms_backend/docs"
	"school_lms_backend/internal/config"
	"school_lms_backend/internal/middleware"
	"school_lms_backend/internal/model"
	"school_lms_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		// 学生作答接口
		a.registerLearnerRoutes(authGroup, c)

		// 教师出题与阅卷接口
		a.registerTeacherRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerLearnerRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.Profile)

	take := middleware.RequirePermission(middleware.PermAssessmentTake)
	start := middleware.RequirePermission(middleware.PermAttemptStart)

	// 测验
	rg.GET("/quizzes/:id", take, c.attempt.GetQuizPaper)
	rg.POST("/quizzes/:id/attempts", start, c.attempt.StartQuiz)

	// 考试
	rg.GET("/exams/:id", take, c.attempt.GetExamPaper)
	rg.POST("/exams/:id/attempts", start, c.attempt.StartExam)

	// 作答
	rg.PUT("/attempts/:attemptId/answers", middleware.RequirePermission(middleware.PermAttemptSave), c.attempt.SaveAnswer)
	rg.POST("/attempts/:attemptId/submit", middleware.RequirePermission(middleware.PermAttemptSubmit), c.attempt.Submit)
	rg.GET("/attempts/:attemptId", middleware.RequirePermission(middleware.PermAttemptViewOwn), c.attempt.GetResult)
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("/teacher")
	{
		manage := middleware.RequirePermission(middleware.PermAssessmentManage)
		viewAll := middleware.RequirePermission(middleware.PermAttemptViewAll)

		// 测验/考试管理
		teacher.POST("/assessments", manage, c.assessment.Create)
		teacher.GET("/assessments", manage, c.assessment.List)
		teacher.GET("/assessments/:id", manage, c.assessment.Get)
		teacher.DELETE("/assessments/:id", manage, c.assessment.Delete)
		teacher.POST("/assessments/:id/questions", manage, c.assessment.AddQuestion)
		teacher.DELETE("/questions/:questionId", manage, c.assessment.DeleteQuestion)

		// 阅卷
		teacher.GET("/assessments/:id/attempts", viewAll, c.assessment.ListAttempts)
		teacher.GET("/attempts/:attemptId", viewAll, c.assessment.AttemptDetail)
		teacher.POST("/attempts/:attemptId/regrade", middleware.RequirePermission(middleware.PermAttemptGrade), c.assessment.Regrade)

		// 成绩导出
		teacher.GET("/assessments/:id/results.csv", viewAll, c.assessment.ExportCSV)
		teacher.POST("/assessments/:id/results/export", viewAll, c.assessment.PublishExport)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/users", c.auth.CreateUser)
	}
}
