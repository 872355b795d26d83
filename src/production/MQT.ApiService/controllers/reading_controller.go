package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ReadingController serves the stored reading history of a plant
type ReadingController struct {
	readingRepo  interfaces.ReadingRepository
	provisioning *provisioning.Service
	logger       *logger.Logger
}

// NewReadingController creates a new reading controller
func NewReadingController(readingRepo interfaces.ReadingRepository, prov *provisioning.Service, logger *logger.Logger) *ReadingController {
	return &ReadingController{
		readingRepo:  readingRepo,
		provisioning: prov,
		logger:       logger,
	}
}

// RegisterRoutes registers the reading routes under an authenticated group
func (c *ReadingController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/devices/:plant_id/readings", c.GetDeviceReadings)
}

// GetDeviceReadings pages readings newest first, whatever their QC status
func (c *ReadingController) GetDeviceReadings(ctx *gin.Context) {
	plantID := ctx.Param("plant_id")

	page, err := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}
	pageSize, err := strconv.Atoi(ctx.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
		return
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	if _, err := c.provisioning.Device(ctx.Request.Context(), plantID); err != nil {
		respondError(ctx, c.logger, err)
		return
	}

	result, err := c.readingRepo.ListByPlant(ctx.Request.Context(), plantID, page, pageSize)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
