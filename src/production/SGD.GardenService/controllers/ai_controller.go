package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/notification"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/middleware"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

// Assistant answers operator chat messages
type Assistant interface {
	Chat(ctx context.Context, message, deviceUID string) (string, error)
}

// OperatorNotifier sends a message to the operator mailbox
type OperatorNotifier interface {
	NotifyOperator(message string) error
}

// ChatReply is the body returned by the chat endpoint
type ChatReply struct {
	Response string `json:"response"`
}

// AIController exposes the garden assistant and the notification test hook
type AIController struct {
	assistant      Assistant
	notifier       OperatorNotifier
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewAIController creates a new assistant controller
func NewAIController(assistant Assistant, notifier OperatorNotifier, log *logger.Logger, authMiddleware *middleware.AuthMiddleware) *AIController {
	return &AIController{
		assistant:      assistant,
		notifier:       notifier,
		logger:         log.WithComponent("ai_controller"),
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the assistant routes with Gin
func (c *AIController) RegisterRoutes(router gin.IRouter) {
	router.POST("/ai/chat/:deviceUid", c.authMiddleware.Authenticate(), c.Chat)
	router.POST("/test-notifications", c.authMiddleware.Authenticate(), c.TestNotification)
}

// Chat replies with {response} rather than the envelope; the dashboard reads it directly
func (c *AIController) Chat(ctx *gin.Context) {
	uid, ok := validUIDParam(ctx)
	if !ok {
		return
	}
	var req sgdmodels.ChatMessage
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	c.logger.Logger.Info().Str("device_uid", uid).Str("message", req.Message).Msg("AI chat request")
	reply, err := c.assistant.Chat(ctx.Request.Context(), req.Message, uid)
	if err != nil {
		respondError(ctx, c.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, ChatReply{Response: reply})
}

func (c *AIController) TestNotification(ctx *gin.Context) {
	message := ctx.Query("message")
	if message == "" {
		invalidParam(ctx, "query parameter message is required")
		return
	}

	if err := c.notifier.NotifyOperator(message); err != nil {
		if errors.Is(err, notification.ErrMailDisabled) {
			respondError(ctx, c.logger, api_models.NewAppError(api_models.ErrInvalidRequest, "mail is not configured"))
			return
		}
		respondError(ctx, c.logger, err)
		return
	}
	respond(ctx, http.StatusOK, "Test notification sent.", nil)
}
