package api

import (
	"time"

	"fleet-api/internal/config"
	"fleet-api/internal/database"
	"fleet-api/internal/middleware"
	"fleet-api/internal/services"

	"github.com/gin-gonic/gin"
)

var (
	deviceService     *services.DeviceService
	admissionService  *services.AdmissionService
	planChangeService *services.PlanChangeService
	overviewService   *services.FleetOverviewService
	sweeper           *services.GracePeriodSweeper
)

// InitServices wires the capacity engine. Called once from SetupRoutes; the
// sweeper is returned through GetSweeper so main can start it with its own
// lifecycle context.
func InitServices() {
	db := database.GetDB()

	var locker services.UserLocker
	if config.AppConfig.LockBackend == "redis" && database.GetRedis() != nil {
		locker = services.NewRedisUserLocker(database.GetRedis(), 30*time.Second)
	} else {
		locker = services.NewLocalUserLocker()
	}

	notifier := services.NewNotificationService(db)
	state := services.NewDeviceStateService(notifier)
	admissionService = services.NewAdmissionService(db, locker, state)
	planChangeService = services.NewPlanChangeService(db, locker, admissionService, state)
	deviceService = services.NewDeviceService(db, locker, state, admissionService)
	overviewService = services.NewFleetOverviewService(db)
	sweeper = services.NewGracePeriodSweeper(db, notifier,
		time.Duration(config.AppConfig.SweepIntervalMin)*time.Minute)
}

// GetSweeper returns the grace period sweeper for main to start
func GetSweeper() *services.GracePeriodSweeper {
	return sweeper
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine) {
	InitServices()

	// API route group (all collaborator-facing routes require the service key)
	api := r.Group("/api")
	api.Use(middleware.ServiceAuthMiddleware())
	api.Use(middleware.RateLimitMiddleware())
	{
		// Device lifecycle routes (registration and telemetry collaborators)
		devices := api.Group("/devices")
		{
			devices.POST("", RegisterDevice)
			devices.POST("/:id/activate", ActivateDevice)
			devices.POST("/:id/heartbeat", HeartbeatDevice)
			devices.POST("/:id/suspend", SuspendDevice)
			devices.POST("/:id/wake", WakeDevice)
			devices.POST("/:id/disable", DisableDevice)
		}

		// Dashboard/reporting read API
		users := api.Group("/users")
		{
			users.GET("/:id/devices", ListUserDevices)
			users.GET("/:id/fleet", GetFleetOverview)
		}

		// Billing collaborator routes
		subscription := api.Group("/subscription")
		{
			subscription.POST("/plan-change/preview", PreviewPlanChange)
			subscription.POST("/plan-change/execute", ExecutePlanChange)
			subscription.POST("/extra-slots", PurchaseExtraSlots)
		}

		// Onboarding routes (account collaborator)
		admin := api.Group("/admin")
		{
			admin.POST("/users", CreateUser)
			admin.GET("/plans", ListPlans)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "fleet-capacity-service",
		})
	})
}
