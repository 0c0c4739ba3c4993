package main

import (
	"context"
	"log"

	"fleet-api/internal/api"
	"fleet-api/internal/config"
	"fleet-api/internal/database"
	"fleet-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Set Gin mode
	gin.SetMode(config.AppConfig.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes (also wires the capacity engine services)
	api.SetupRoutes(r)

	// Start the grace period sweeper
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.GetSweeper().Start(ctx)

	// Start server
	port := config.AppConfig.Port
	logging.Infof("Starting %s on port %s", config.AppConfig.ServiceName, port)

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
