package app

import (
	"edu_assessment_backend/docs"
	"edu_assessment_backend/internal/config"
	"edu_assessment_backend/internal/middleware"
	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/auth/me", c.auth.Me)

		// 学生端：测验作答
		attempts := authGroup.Group("/attempts")
		{
			attempts.POST("/:linkageId/start", c.attempt.Start)
			attempts.POST("/:linkageId/answers", c.attempt.SaveAnswers)
			attempts.POST("/:linkageId/submit", c.attempt.Submit)
			attempts.GET("/:linkageId/result", c.attempt.GetResult)
		}

		authGroup.GET("/courses/:courseId/tests", c.test.ListByCourse)
		authGroup.GET("/accreditations", c.accreditation.ListMine)

		// 教师端：测验管理
		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/tests", c.test.Create)
			teacher.GET("/tests", c.test.List)
			teacher.GET("/tests/:id", c.test.Get)
			teacher.PUT("/tests/:id", c.test.Update)
			teacher.DELETE("/tests/:id", c.test.Delete)
			teacher.POST("/tests/:id/publish", c.test.Publish)
			teacher.POST("/tests/:id/archive", c.test.Archive)
			teacher.GET("/tests/:id/stats", c.test.Stats)
			teacher.POST("/tests/:id/export", c.test.Export)
			teacher.POST("/tests/:id/linkages", c.test.CreateLinkage)
			teacher.DELETE("/linkages/:linkageId", c.test.DeleteLinkage)
		}
	}
}
