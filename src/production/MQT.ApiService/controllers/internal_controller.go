package controllers

import (
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/middleware"
)

// GroupRegistrar is a controller that mounts its routes on a shared group
type GroupRegistrar interface {
	RegisterRoutes(group *gin.RouterGroup)
}

// InternalController mounts the user-backend routes behind the shared
// service secret
type InternalController struct {
	secret      string
	controllers []GroupRegistrar
}

// NewInternalController creates a new internal controller
func NewInternalController(secret string, controllers ...GroupRegistrar) *InternalController {
	return &InternalController{secret: secret, controllers: controllers}
}

// RegisterRoutes registers the internal API routes
func (c *InternalController) RegisterRoutes(router *gin.Engine) {
	// Internal API group with service-to-service authentication
	internal := router.Group("/internal")
	internal.Use(middleware.ServiceAuthMiddleware(c.secret))

	for _, ctrl := range c.controllers {
		ctrl.RegisterRoutes(internal)
	}
}
