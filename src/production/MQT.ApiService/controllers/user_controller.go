package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/jwt"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
)

// UserController answers per-user device queries
type UserController struct {
	provisioning *provisioning.Service
	tokens       *jwt.Service
	logger       *logger.Logger
}

// NewUserController creates a new user controller
func NewUserController(prov *provisioning.Service, tokens *jwt.Service, logger *logger.Logger) *UserController {
	return &UserController{provisioning: prov, tokens: tokens, logger: logger}
}

// RegisterRoutes registers the user routes under an authenticated group
func (c *UserController) RegisterRoutes(group *gin.RouterGroup) {
	users := group.Group("/users/:user_id")
	{
		users.GET("/devices", c.ListDevices)
		users.GET("/devices/:plant_id/owner", c.CheckOwner)
		users.POST("/alerts-token", c.IssueAlertsToken)
	}
}

func (c *UserController) ListDevices(ctx *gin.Context) {
	devices, err := c.provisioning.DevicesByOwner(ctx.Request.Context(), ctx.Param("user_id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	if devices == nil {
		devices = []mqtmodels.PlantDevice{}
	}
	ctx.JSON(http.StatusOK, gin.H{"devices": devices})
}

// CheckOwner reports whether user_id owns plant_id. An unknown plant is
// simply not owned.
func (c *UserController) CheckOwner(ctx *gin.Context) {
	userID := ctx.Param("user_id")
	plantID := ctx.Param("plant_id")

	owner, err := c.provisioning.IsOwner(ctx.Request.Context(), userID, plantID)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"plant_id": plantID,
		"is_owner": owner,
	})
}

// IssueAlertsToken signs a token the user's browser presents on /ws/alerts
func (c *UserController) IssueAlertsToken(ctx *gin.Context) {
	if c.tokens == nil {
		ctx.JSON(http.StatusNotImplemented, gin.H{"error": "alerts tokens are not enabled"})
		return
	}

	token, err := c.tokens.GenerateAlertsToken(ctx.Param("user_id"))
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusCreated, token)
}
