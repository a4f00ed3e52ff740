package ruleset

import (
	"payrolliq/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	ruleSets := r.Group("/tax-rule-sets")
	ruleSets.Use(middleware.AuthMiddleware())
	{
		ruleSets.GET("",
			middleware.RateLimitByUser(2, 10),
			handler.GetAll,
		)
		ruleSets.POST("",
			middleware.RateLimitByUser(0.5, 2),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Create,
		)
		ruleSets.POST("/supersede",
			middleware.RateLimitByUser(0.5, 2),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Supersede,
		)
	}
}
