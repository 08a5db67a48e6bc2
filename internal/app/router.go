package app

import (
	"learnai_backend/internal/config"
	"learnai_backend/internal/middleware"
	"learnai_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.Health)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.POST("/forgot-password", c.auth.ForgotPassword)
		public.POST("/reset-password", c.auth.ResetPassword)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.user.GetProfile)
		authGroup.DELETE("/user", c.user.DeleteAccount)

		authGroup.POST("/generate-notes", c.notes.GenerateNotes)
		authGroup.POST("/generate-quiz", c.quiz.GenerateQuiz)

		quiz := authGroup.Group("/quiz/:sessionId")
		{
			quiz.GET("/questions", c.quiz.GetQuestions)
			quiz.POST("/results", c.quiz.SubmitResults)
			quiz.GET("/stats", c.quiz.GetStats)
		}

		authGroup.GET("/dashboards", c.dashboard.ListDashboards)
		authGroup.GET("/dashboard/:sessionId", c.dashboard.GetDashboard)
		authGroup.DELETE("/dashboard/:sessionId", c.dashboard.DeleteDashboard)

		authGroup.POST("/chat/:sessionId", c.chat.Ask)
		authGroup.POST("/chat/:sessionId/stream", c.chat.AskStream)
	}
}
