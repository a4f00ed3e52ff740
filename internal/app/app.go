package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"payrolliq/internal/middleware"
	"payrolliq/internal/seed"
	"payrolliq/internal/shared/connection"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func BuildApp(router *gin.Engine) error {
	// 1. Setup Infrastructure
	gormDB, err := connection.ConnectGORMWithRetry(
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
		5,
	)
	if err != nil {
		return err
	}
	log.Println("✅ Database connection established")

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}

	redisClient, err := connection.ConnectRedisWithRetry(os.Getenv("REDIS_ADDR"), 5)
	if err != nil {
		return err
	}
	log.Println("✅ Redis connection established")

	// Optional: seed 2025 reference data for a fresh organization.
	if orgID := os.Getenv("SEED_ORGANIZATION_ID"); orgID != "" {
		parsed, err := uuid.Parse(orgID)
		if err != nil {
			return fmt.Errorf("SEED_ORGANIZATION_ID is not a uuid: %w", err)
		}
		if err := seed.Apply(context.Background(), gormDB, parsed); err != nil {
			return err
		}
		log.Println("✅ Reference data seeded")
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.ContextLogger(zap.L()))

	// Register Modules & Routes
	return registerModules(router, sqlDB, gormDB, redisClient)
}
