package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/middleware"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

// DeviceService is the device registry used by the controller
type DeviceService interface {
	List(ctx context.Context) ([]sgdmodels.Device, error)
	Create(ctx context.Context, req sgdmodels.DeviceRequest) (*sgdmodels.Device, error)
	UpdateName(ctx context.Context, deviceUID, name string) (*sgdmodels.Device, error)
	Delete(ctx context.Context, deviceUID string) error
	Restore(ctx context.Context, deviceUID string) error
	SetAutoMode(ctx context.Context, deviceUID string, enabled bool) error
}

// StateReader returns the cached real-time state
type StateReader interface {
	GetState(ctx context.Context, deviceUID string) (*sgdmodels.DeviceState, error)
}

// HistoryReader returns persisted telemetry
type HistoryReader interface {
	History(ctx context.Context, deviceUID string, from, to time.Time) ([]sgdmodels.TelemetryLog, error)
}

// CommandSender publishes device commands
type CommandSender interface {
	Send(ctx context.Context, deviceUID string, cmd sgdmodels.CommandRequest) error
}

// DeviceController handles device management, state, history and commands
type DeviceController struct {
	devices        DeviceService
	state          StateReader
	history        HistoryReader
	commands       CommandSender
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewDeviceController creates a new device controller
func NewDeviceController(devices DeviceService, state StateReader, history HistoryReader, commands CommandSender, log *logger.Logger, authMiddleware *middleware.AuthMiddleware) *DeviceController {
	return &DeviceController{
		devices:        devices,
		state:          state,
		history:        history,
		commands:       commands,
		logger:         log.WithComponent("device_controller"),
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the device routes with Gin
func (c *DeviceController) RegisterRoutes(router gin.IRouter) {
	devices := router.Group("/devices", c.authMiddleware.Authenticate())
	{
		devices.GET("", c.ListDevices)
		devices.POST("", c.CreateDevice)
		devices.PUT("/:deviceUid", c.UpdateDevice)
		devices.DELETE("/:deviceUid", c.DeleteDevice)
		devices.POST("/:deviceUid/restore", c.RestoreDevice)
		devices.POST("/:deviceUid/auto-mode", c.SetAutoMode)
		// auto-off?autoOff= is kept for older dashboards
		devices.POST("/:deviceUid/auto-off", c.SetAutoMode)
		devices.GET("/:deviceUid/state", c.GetState)
		devices.GET("/:deviceUid/history", c.GetHistory)
		devices.POST("/:deviceUid/command", c.SendCommand)
	}
}

func (c *DeviceController) ListDevices(ctx *gin.Context) {
	devices, err := c.devices.List(ctx.Request.Context())
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Successfully retrieved user's devices.", devices)
}

func (c *DeviceController) CreateDevice(ctx *gin.Context) {
	var req sgdmodels.DeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	device, err := c.devices.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusCreated, "Device created successfully.", device)
}

func (c *DeviceController) UpdateDevice(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	var req sgdmodels.DeviceUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	device, err := c.devices.UpdateName(ctx.Request.Context(), uid, req.Name)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Device updated successfully.", device)
}

func (c *DeviceController) DeleteDevice(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	if err := c.devices.Delete(ctx.Request.Context(), uid); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Device soft deleted successfully.", nil)
}

func (c *DeviceController) RestoreDevice(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	if err := c.devices.Restore(ctx.Request.Context(), uid); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Device restored successfully.", nil)
}

func (c *DeviceController) SetAutoMode(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	raw, present := ctx.GetQuery("enabled")
	if !present {
		raw, present = ctx.GetQuery("autoOff")
	}
	if !present {
		invalidParam(ctx, "query parameter enabled is required")
		return
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		invalidParam(ctx, "enabled must be true or false")
		return
	}

	if err := c.devices.SetAutoMode(ctx.Request.Context(), uid, enabled); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Auto mode updated successfully.", nil)
}

func (c *DeviceController) GetState(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	state, err := c.state.GetState(ctx.Request.Context(), uid)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Successfully retrieved device state.", state)
}

// GetHistory takes from and to as epoch milliseconds
func (c *DeviceController) GetHistory(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	from, err := epochMillisQuery(ctx, "from")
	if err != nil {
		invalidParam(ctx, err.Error())
		return
	}
	to, err := epochMillisQuery(ctx, "to")
	if err != nil {
		invalidParam(ctx, err.Error())
		return
	}

	logs, err := c.history.History(ctx.Request.Context(), uid, from, to)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	if logs == nil {
		logs = []sgdmodels.TelemetryLog{}
	}
	respond(ctx, http.StatusOK, "Successfully retrieved device history.", logs)
}

func (c *DeviceController) SendCommand(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	var cmd sgdmodels.CommandRequest
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		bindError(ctx, err)
		return
	}

	if err := c.commands.Send(ctx.Request.Context(), uid, cmd); err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusAccepted, "Command sent successfully to device.", nil)
}

func epochMillisQuery(ctx *gin.Context, name string) (time.Time, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("query parameter %s is required", name)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be epoch milliseconds", name)
	}
	return time.UnixMilli(ms).UTC(), nil
}
