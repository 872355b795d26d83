package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	actuator "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Actuator"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
)

// DeviceController handles discovery, claim, threshold and command requests
// from the user backend
type DeviceController struct {
	provisioning *provisioning.Service
	dispatcher   *actuator.Dispatcher
	logger       *logger.Logger
}

// NewDeviceController creates a new device controller
func NewDeviceController(prov *provisioning.Service, dispatcher *actuator.Dispatcher, logger *logger.Logger) *DeviceController {
	return &DeviceController{
		provisioning: prov,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// RegisterRoutes registers the device routes under an authenticated group
func (c *DeviceController) RegisterRoutes(group *gin.RouterGroup) {
	devices := group.Group("/devices")
	{
		devices.GET("/available", c.ListAvailable)
		devices.POST("/claim", c.Claim)
		devices.PATCH("/:plant_id/thresholds", c.UpdateThresholds)
		devices.POST("/:plant_id/commands", c.SendCommand)
		devices.POST("/:plant_id/provisioning/resend", c.ResendConfiguration)
	}
}

// ClaimResponse is returned for a claimed device. The MQTT password never
// leaves the gateway over HTTP.
type ClaimResponse struct {
	Device               *mqtmodels.PlantDevice `json:"device"`
	ConfigurationPending bool                   `json:"configuration_pending"`
	Error                string                 `json:"error,omitempty"`
}

func (c *DeviceController) ListAvailable(ctx *gin.Context) {
	devices, err := c.provisioning.AvailableDevices(ctx.Request.Context())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	if devices == nil {
		devices = []mqtmodels.PlantDevice{}
	}
	ctx.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (c *DeviceController) Claim(ctx *gin.Context) {
	var req provisioning.ClaimRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	device, err := c.provisioning.Claim(ctx.Request.Context(), req)
	if err != nil && device != nil {
		// persisted, but the credentials did not reach the hardware
		ctx.JSON(http.StatusAccepted, ClaimResponse{
			Device:               device,
			ConfigurationPending: true,
			Error:                err.Error(),
		})
		return
	}
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	ctx.JSON(http.StatusCreated, ClaimResponse{Device: device})
}

func (c *DeviceController) UpdateThresholds(ctx *gin.Context) {
	var update mqtmodels.Thresholds
	if err := ctx.ShouldBindJSON(&update); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	device, err := c.provisioning.UpdateThresholds(ctx.Request.Context(), ctx.Param("plant_id"), update)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, device)
}

func (c *DeviceController) SendCommand(ctx *gin.Context) {
	var cmd mqtmodels.CommandPayload
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := c.dispatcher.Send(ctx.Request.Context(), ctx.Param("plant_id"), cmd); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"status": "sent", "command": cmd.Command})
}

func (c *DeviceController) ResendConfiguration(ctx *gin.Context) {
	if err := c.provisioning.ResendConfiguration(ctx.Request.Context(), ctx.Param("plant_id")); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}
