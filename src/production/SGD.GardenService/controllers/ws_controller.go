package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
)

// StreamServer upgrades a request to a live state stream
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, deviceUID string) error
}

// StreamController serves the dashboard websocket routes
type StreamController struct {
	hub    StreamServer
	logger *logger.Logger
}

// NewStreamController creates a new websocket controller
func NewStreamController(hub StreamServer, log *logger.Logger) *StreamController {
	return &StreamController{hub: hub, logger: log.WithComponent("stream_controller")}
}

// RegisterRoutes registers /ws/devices and /ws/devices/:deviceUid
func (c *StreamController) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws/devices", c.Subscribe)
	router.GET("/ws/devices/:deviceUid", c.Subscribe)
}

// Subscribe streams every device when no UID is given
func (c *StreamController) Subscribe(ctx *gin.Context) {
	uid := ctx.Param("deviceUid")
	if uid != "" {
		if _, ok := validUIDParam(ctx); !ok {
			return
		}
	}
	// the upgrader has already answered the client on failure
	if err := c.hub.ServeWS(ctx.Writer, ctx.Request, uid); err != nil {
		c.logger.Logger.Debug().Err(err).Str("device_uid", uid).Msg("WebSocket upgrade failed")
	}
}
