package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/jwt"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/middleware"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	notification "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Notification"
)

// NotificationController upgrades alert subscriptions to websockets
type NotificationController struct {
	hub    *notification.Hub
	tokens *jwt.Service
	logger *logger.Logger
}

// NewNotificationController creates a new notification controller. A nil
// tokens service keys sockets by the user_id parameter alone.
func NewNotificationController(hub *notification.Hub, tokens *jwt.Service, logger *logger.Logger) *NotificationController {
	return &NotificationController{hub: hub, tokens: tokens, logger: logger}
}

// RegisterRoutes registers the websocket route with Gin
func (c *NotificationController) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/alerts", middleware.RequireUser(c.tokens), c.Subscribe)
}

func (c *NotificationController) Subscribe(ctx *gin.Context) {
	userID, err := middleware.GetUserFromGinContext(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	// the upgrader has already answered the client when this fails
	if err := c.hub.ServeWS(ctx.Writer, ctx.Request, userID); err != nil {
		c.logger.Logger.Warn().Err(err).Str("user_id", userID).Msg("Websocket upgrade failed")
	}
}
