package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/rbac"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
)

// AuthController serves the broker's HTTP auth plugin. Any status other
// than 200 denies the client.
type AuthController struct {
	auth   *rbac.Service
	logger *logger.Logger
}

// NewAuthController creates a new broker auth controller
func NewAuthController(auth *rbac.Service, logger *logger.Logger) *AuthController {
	return &AuthController{auth: auth, logger: logger}
}

// MQTTAuthRequest is sent by the plugin on CONNECT
type MQTTAuthRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	ClientID string `json:"clientid" form:"clientid"`
}

// MQTTACLRequest is sent by the plugin on every publish and subscribe check
type MQTTACLRequest struct {
	Username string `json:"username" form:"username"`
	ClientID string `json:"clientid" form:"clientid"`
	Topic    string `json:"topic" form:"topic" binding:"required"`
	Acc      int    `json:"acc" form:"acc" binding:"required"`
}

// RegisterRoutes registers the plugin routes with Gin
func (c *AuthController) RegisterRoutes(router *gin.Engine) {
	mqtt := router.Group("/api/mqtt")
	{
		mqtt.POST("/auth", c.Authenticate)
		mqtt.POST("/acl", c.Authorize)
	}
}

func (c *AuthController) Authenticate(ctx *gin.Context) {
	var req MQTTAuthRequest
	if err := ctx.ShouldBind(&req); err != nil {
		ctx.String(http.StatusBadRequest, "Bad Request")
		return
	}

	ok, err := c.auth.Authenticate(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("username", req.Username).Msg("MQTT authentication lookup failed")
		ctx.String(http.StatusInternalServerError, "Error")
		return
	}
	if !ok {
		ctx.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	ctx.String(http.StatusOK, "OK")
}

func (c *AuthController) Authorize(ctx *gin.Context) {
	var req MQTTACLRequest
	if err := ctx.ShouldBind(&req); err != nil {
		ctx.String(http.StatusBadRequest, "Bad Request")
		return
	}

	ok, err := c.auth.Authorize(ctx.Request.Context(), req.Username, req.Topic, rbac.Access(req.Acc))
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("username", req.Username).Msg("MQTT ACL lookup failed")
		ctx.String(http.StatusInternalServerError, "Error")
		return
	}
	if !ok {
		ctx.String(http.StatusForbidden, "Forbidden")
		return
	}
	ctx.String(http.StatusOK, "OK")
}
