package controllers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/health"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/jwt"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/middleware"
	actuator "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Actuator"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	notification "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Notification"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
)

// Dependencies holds everything the HTTP surface talks to
type Dependencies struct {
	CORSOrigins       []string
	InternalAPISecret string

	Logger       *logger.Logger
	Health       *health.HealthChecker
	Auth         *rbac.Service
	Tokens       *jwt.Service
	Provisioning *provisioning.Service
	Dispatcher   *actuator.Dispatcher
	Readings     interfaces.ReadingRepository
	Hub          *notification.Hub
}

// SetupRoutes wires all the REST API endpoints
func SetupRoutes(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.UserIDHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	NewHealthController(deps.Health).RegisterRoutes(router)
	NewAuthController(deps.Auth, deps.Logger).RegisterRoutes(router)
	NewNotificationController(deps.Hub, deps.Tokens, deps.Logger).RegisterRoutes(router)

	NewInternalController(deps.InternalAPISecret,
		NewDeviceController(deps.Provisioning, deps.Dispatcher, deps.Logger),
		NewReadingController(deps.Readings, deps.Provisioning, deps.Logger),
		NewUserController(deps.Provisioning, deps.Tokens, deps.Logger),
	).RegisterRoutes(router)

	return router
}
