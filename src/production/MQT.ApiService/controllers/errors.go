package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	actuator "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Actuator"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
)

// statusFor maps domain sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, provisioning.ErrDeviceNotFound),
		errors.Is(err, actuator.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, provisioning.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, provisioning.ErrInvalidClaimRequest),
		errors.Is(err, provisioning.ErrInvalidThresholds),
		errors.Is(err, actuator.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, provisioning.ErrNoActiveConnection),
		errors.Is(err, actuator.ErrNoBrokerAssociated),
		errors.Is(err, actuator.ErrBrokerInactive):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal failures are logged and
// their detail is not echoed to the caller.
func respondError(ctx *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Logger.Error().Err(err).Str("path", ctx.FullPath()).Msg("Request failed")
		ctx.JSON(status, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
