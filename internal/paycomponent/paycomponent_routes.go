package paycomponent

import (
	"payrolliq/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	components := r.Group("/pay-components")
	components.Use(middleware.AuthMiddleware())
	{
		components.GET("",
			middleware.RateLimitByUser(2, 10),
			handler.GetAll,
		)
		components.GET("/:id",
			middleware.RateLimitByUser(2, 10),
			handler.GetById,
		)
		components.POST("",
			middleware.RateLimitByUser(0.5, 2),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Create,
		)
		components.PUT("/:id",
			middleware.RateLimitByUser(0.5, 2),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Update,
		)
		components.DELETE("/:id",
			middleware.RateLimitByUser(0.2, 1),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Delete,
		)
	}
}
