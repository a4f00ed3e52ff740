package payrollrun

import (
	"payrolliq/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler, rdb ...*redis.Client) {
	var redisClient *redis.Client
	if len(rdb) > 0 {
		redisClient = rdb[0]
	}

	runs := r.Group("/payroll-runs")
	runs.Use(middleware.AuthMiddleware())
	{
		runs.GET("",
			middleware.RateLimitByUser(2, 10),
			handler.GetAll,
		)
		runs.GET("/:id",
			middleware.RateLimitByUser(2, 10),
			handler.GetById,
		)
		runs.POST("/preview",
			middleware.RateLimitByUser(0.5, 2),
			middleware.RoleMiddleware("admin", "payroll_admin"),
			handler.Preview,
		)

		commitHandlers := []gin.HandlerFunc{
			middleware.RateLimitByUser(0.2, 1),
			middleware.RoleMiddleware("admin", "payroll_admin"),
		}
		if redisClient != nil {
			commitHandlers = append([]gin.HandlerFunc{middleware.Idempotency(redisClient)}, commitHandlers...)
		}
		runs.POST("/commit", append(commitHandlers, handler.Commit)...)
	}
}
