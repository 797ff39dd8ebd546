package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

// RegisterValidators adds the garden binding rules (device_uid, ...) to gin's validator
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}
	return config.RegisterGardenRules(v)
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, api_models.Success(status, message, data))
}

// respondError writes the envelope for err. Internal failures are logged
// and their detail is not echoed to the client.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	appErr := api_models.AsAppError(err)
	if appErr.Code == api_models.ErrInternal {
		log.Logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(appErr.Code.HTTPStatus(), api_models.ApiResponse{
			Code:    int(appErr.Code),
			Message: appErr.Code.Message(),
		})
		return
	}
	c.JSON(appErr.Code.HTTPStatus(), api_models.Failure(appErr))
}

func bindError(c *gin.Context, err error) {
	var detail string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		detail = fmt.Sprintf("field %s failed rule %s", fe.Field(), fe.Tag())
	} else {
		detail = err.Error()
	}
	appErr := api_models.NewAppError(api_models.ErrInvalidRequest, detail)
	c.JSON(appErr.Code.HTTPStatus(), api_models.Failure(appErr))
}

func invalidParam(c *gin.Context, detail string) {
	appErr := api_models.NewAppError(api_models.ErrInvalidRequest, detail)
	c.JSON(http.StatusBadRequest, api_models.Failure(appErr))
}

// validUIDParam rejects path UIDs that could not be an MQTT topic level
func validUIDParam(c *gin.Context) (string, bool) {
	uid := c.Param("deviceUid")
	if !config.ValidDeviceUID(uid) {
		invalidParam(c, "invalid device uid: "+uid)
		return "", false
	}
	return uid, true
}
