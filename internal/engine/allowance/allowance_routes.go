package allowance

import (
	"payrolliq/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	allowances := r.Group("/allowances")
	allowances.Use(middleware.AuthMiddleware())
	{
		allowances.GET("",
			middleware.RateLimitByUser(2, 10),
			handler.GetAll,
		)
		allowances.POST("",
			middleware.RateLimitByUser(0.5, 2),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Create,
		)
	}
}
