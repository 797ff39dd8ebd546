package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/middleware"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

// ThresholdService stores soil-moisture automation settings
type ThresholdService interface {
	Get(ctx context.Context, deviceUID string) (*sgdmodels.ThresholdSetting, error)
	Save(ctx context.Context, deviceUID string, req sgdmodels.ThresholdRequest) (*sgdmodels.ThresholdSetting, error)
}

// ThresholdController handles threshold settings
type ThresholdController struct {
	thresholds     ThresholdService
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewThresholdController creates a new threshold controller
func NewThresholdController(thresholds ThresholdService, log *logger.Logger, authMiddleware *middleware.AuthMiddleware) *ThresholdController {
	return &ThresholdController{
		thresholds:     thresholds,
		logger:         log.WithComponent("threshold_controller"),
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the threshold routes with Gin
func (c *ThresholdController) RegisterRoutes(router gin.IRouter) {
	thresholds := router.Group("/thresholds", c.authMiddleware.Authenticate())
	{
		thresholds.GET("/:deviceUid", c.GetSettings)
		thresholds.POST("", c.SaveSettings)
	}
}

func (c *ThresholdController) GetSettings(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	setting, err := c.thresholds.Get(ctx.Request.Context(), uid)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Success", setting)
}

// SaveSettings upserts by the body's deviceUid, or the default device when omitted
func (c *ThresholdController) SaveSettings(ctx *gin.Context) {
	var req sgdmodels.ThresholdRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}
	uid := req.DeviceUID
	if uid == "" {
		uid = config.DefaultDeviceUID
	}

	saved, err := c.thresholds.Save(ctx.Request.Context(), uid, req)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Settings saved", saved)
}
