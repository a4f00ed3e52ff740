package app

import (
	"database/sql"
	"payrolliq/internal/engine/allowance"
	"payrolliq/internal/engine/composer"
	"payrolliq/internal/engine/deduction"
	"payrolliq/internal/engine/ruleset"
	"payrolliq/internal/messaging/kafka"
	"payrolliq/internal/paycomponent"
	"payrolliq/internal/payrollrun"
	"payrolliq/internal/shared/counter"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	logger := zap.L()

	// --- Repositories ---
	ruleSetRepo := ruleset.NewRepository(gormDB)
	allowanceRepo := allowance.NewRepository(gormDB)
	deductionRepo := deduction.NewRepository(gormDB)
	payComponentRepo := paycomponent.NewRepository(gormDB)
	payrollRunRepo := payrollrun.NewRepository(gormDB)
	counterRepo := counter.NewRepository(gormDB)
	markerRepo := composer.NewMarkerRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(db)

	// --- Engine Core ---
	runner := composer.NewRunner(
		ruleSetRepo,
		allowanceRepo,
		deduction.NewResolver(deductionRepo),
		markerRepo,
		logger,
	)

	// --- Services ---
	ruleSetService := ruleset.NewService(ruleSetRepo)
	allowanceService := allowance.NewService(allowanceRepo)
	payComponentService := paycomponent.NewService(payComponentRepo, logger)
	payrollRunService := payrollrun.NewService(
		db,
		payrollRunRepo,
		payComponentRepo,
		runner,
		counterRepo,
		outboxRepo,
		logger,
	)

	// --- Handlers ---
	ruleSetHandler := ruleset.NewHandler(ruleSetService)
	allowanceHandler := allowance.NewHandler(allowanceService)
	payComponentHandler := paycomponent.NewHandler(payComponentService)
	payrollRunHandler := payrollrun.NewHandlerWithRedis(payrollRunService, rdb)

	// --- Routes Registration ---
	api := router.Group("/api/v1")
	{
		ruleset.RegisterRoutes(api, ruleSetHandler)
		allowance.RegisterRoutes(api, allowanceHandler)
		paycomponent.RegisterRoutes(api, payComponentHandler)
		payrollrun.RegisterRoutes(api, payrollRunHandler, rdb)
	}

	return nil
}
