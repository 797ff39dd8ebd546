package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/health"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/auth"
	jwt "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/jwt"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/implementation/notification"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/middleware"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

type fakeDevices struct {
	devices  []sgdmodels.Device
	err      error
	autoMode map[string]bool
}

func (f *fakeDevices) List(context.Context) ([]sgdmodels.Device, error) { return f.devices, f.err }

func (f *fakeDevices) Create(_ context.Context, req sgdmodels.DeviceRequest) (*sgdmodels.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sgdmodels.Device{DeviceUID: req.DeviceUID, Name: req.Name}, nil
}

func (f *fakeDevices) UpdateName(_ context.Context, uid, name string) (*sgdmodels.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sgdmodels.Device{DeviceUID: uid, Name: name}, nil
}

func (f *fakeDevices) Delete(context.Context, string) error  { return f.err }
func (f *fakeDevices) Restore(context.Context, string) error { return f.err }

func (f *fakeDevices) SetAutoMode(_ context.Context, uid string, enabled bool) error {
	if f.err != nil {
		return f.err
	}
	if f.autoMode == nil {
		f.autoMode = map[string]bool{}
	}
	f.autoMode[uid] = enabled
	return nil
}

type fakeState struct{}

func (fakeState) GetState(_ context.Context, uid string) (*sgdmodels.DeviceState, error) {
	return sgdmodels.DefaultDeviceState(uid), nil
}

type fakeHistory struct {
	from, to time.Time
	err      error
}

func (f *fakeHistory) History(_ context.Context, _ string, from, to time.Time) ([]sgdmodels.TelemetryLog, error) {
	f.from, f.to = from, to
	return nil, f.err
}

type fakeCommands struct {
	sent []sgdmodels.CommandRequest
}

func (f *fakeCommands) Send(_ context.Context, _ string, cmd sgdmodels.CommandRequest) error {
	f.sent = append(f.sent, cmd)
	return nil
}

type fakeThresholds struct {
	savedFor string
}

func (f *fakeThresholds) Get(_ context.Context, uid string) (*sgdmodels.ThresholdSetting, error) {
	return sgdmodels.DefaultThreshold(uid), nil
}

func (f *fakeThresholds) Save(_ context.Context, uid string, req sgdmodels.ThresholdRequest) (*sgdmodels.ThresholdSetting, error) {
	f.savedFor = uid
	s := sgdmodels.DefaultThreshold(uid)
	req.Apply(s)
	return s, nil
}

type fakeAssistant struct{ reply string }

func (f fakeAssistant) Chat(context.Context, string, string) (string, error) { return f.reply, nil }

type fakeNotifier struct{ err error }

func (f fakeNotifier) NotifyOperator(string) error { return f.err }

func openAuth() *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(nil, false, middleware.DefaultConfig())
}

func do(r http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) api_models.ApiResponse {
	t.Helper()
	var resp api_models.ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func deviceRouter(devices *fakeDevices, history *fakeHistory, commands *fakeCommands) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/v1")
	NewDeviceController(devices, fakeState{}, history, commands, logger.Nop(), openAuth()).RegisterRoutes(api)
	return r
}

func TestDevices_List(t *testing.T) {
	r := deviceRouter(&fakeDevices{devices: []sgdmodels.Device{{DeviceUID: "ESP32_A"}}}, &fakeHistory{}, &fakeCommands{})

	rec := do(r, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "Successfully retrieved user's devices.", resp.Message)
	assert.Len(t, resp.Data, 1)
}

func TestDevices_CreateValidation(t *testing.T) {
	r := deviceRouter(&fakeDevices{}, &fakeHistory{}, &fakeCommands{})

	rec := do(r, http.MethodPost, "/api/v1/devices", map[string]string{"device_uid": "bad/uid", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int(api_models.ErrInvalidRequest), decode(t, rec).Code)

	rec = do(r, http.MethodPost, "/api/v1/devices", map[string]string{"device_uid": "ESP32_B", "name": "Bed"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Device created successfully.", decode(t, rec).Message)
}

func TestDevices_CreateDuplicate(t *testing.T) {
	dup := api_models.NewAppError(api_models.ErrDeviceAlreadyExists, "device already exists: ESP32_B")
	r := deviceRouter(&fakeDevices{err: dup}, &fakeHistory{}, &fakeCommands{})

	rec := do(r, http.MethodPost, "/api/v1/devices", map[string]string{"device_uid": "ESP32_B", "name": "Bed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1003, decode(t, rec).Code)
}

func TestDevices_InternalErrorHidesDetail(t *testing.T) {
	r := deviceRouter(&fakeDevices{err: errors.New("pq: connection refused")}, &fakeHistory{}, &fakeCommands{})

	rec := do(r, http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, 1002, resp.Code)
	assert.Nil(t, resp.Data)
}

func TestDevices_AutoMode(t *testing.T) {
	devices := &fakeDevices{}
	r := deviceRouter(devices, &fakeHistory{}, &fakeCommands{})

	rec := do(r, http.MethodPost, "/api/v1/devices/ESP32_A/auto-mode?enabled=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, devices.autoMode["ESP32_A"])

	rec = do(r, http.MethodPost, "/api/v1/devices/ESP32_A/auto-off?autoOff=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, devices.autoMode["ESP32_A"])

	rec = do(r, http.MethodPost, "/api/v1/devices/ESP32_A/auto-mode", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(r, http.MethodPost, "/api/v1/devices/ESP32_A/auto-mode?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDevices_State(t *testing.T) {
	r := deviceRouter(&fakeDevices{}, &fakeHistory{}, &fakeCommands{})

	rec := do(r, http.MethodGet, "/api/v1/devices/ESP32_A/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "ESP32_A", data["deviceUid"])
	assert.Equal(t, sgdmodels.StatusOffline, data["status"])
}

func TestDevices_History(t *testing.T) {
	history := &fakeHistory{}
	r := deviceRouter(&fakeDevices{}, history, &fakeCommands{})

	rec := do(r, http.MethodGet, "/api/v1/devices/ESP32_A/history?from=1700000000000&to=1700000060000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1700000000000), history.from.UnixMilli())
	assert.Equal(t, int64(1700000060000), history.to.UnixMilli())
	assert.Equal(t, []interface{}{}, decode(t, rec).Data)

	rec = do(r, http.MethodGet, "/api/v1/devices/ESP32_A/history?from=yesterday&to=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	history.err = api_models.DeviceNotFound("ESP32_A")
	rec = do(r, http.MethodGet, "/api/v1/devices/ESP32_A/history?from=1&to=2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1004, decode(t, rec).Code)
}

func TestDevices_Command(t *testing.T) {
	commands := &fakeCommands{}
	r := deviceRouter(&fakeDevices{}, &fakeHistory{}, commands)

	rec := do(r, http.MethodPost, "/api/v1/devices/ESP32_A/command", map[string]interface{}{
		"action":  "CONTROL_PUMP",
		"payload": map[string]string{"state": "ON"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 202, decode(t, rec).Code)
	require.Len(t, commands.sent, 1)
	assert.Equal(t, "CONTROL_PUMP", commands.sent[0].Action)

	rec = do(r, http.MethodPost, "/api/v1/devices/ESP32_A/command", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThresholds(t *testing.T) {
	thresholds := &fakeThresholds{}
	r := gin.New()
	NewThresholdController(thresholds, logger.Nop(), openAuth()).RegisterRoutes(r.Group("/api/v1"))

	rec := do(r, http.MethodGet, "/api/v1/thresholds/ESP32_A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec).Data.(map[string]interface{})
	assert.Equal(t, float64(10), data["maxPumpDurationSeconds"])

	rec = do(r, http.MethodPost, "/api/v1/thresholds", map[string]interface{}{"minSoilMoisture": 35, "isActive": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.DefaultDeviceUID, thresholds.savedFor)
	assert.Equal(t, "Settings saved", decode(t, rec).Message)

	rec = do(r, http.MethodPost, "/api/v1/thresholds", map[string]interface{}{"deviceUid": "ESP32_B"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ESP32_B", thresholds.savedFor)

	rec = do(r, http.MethodPost, "/api/v1/thresholds", map[string]interface{}{"minSoilMoisture": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIChat(t *testing.T) {
	r := gin.New()
	NewAIController(fakeAssistant{reply: "Soil looks fine."}, fakeNotifier{}, logger.Nop(), openAuth()).RegisterRoutes(r.Group("/api/v1"))

	rec := do(r, http.MethodPost, "/api/v1/ai/chat/ESP32_A", map[string]string{"message": "how is it?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"Soil looks fine."}`, rec.Body.String())

	rec = do(r, http.MethodPost, "/api/v1/ai/chat/ESP32_A", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestNotification(t *testing.T) {
	r := gin.New()
	NewAIController(fakeAssistant{}, fakeNotifier{}, logger.Nop(), openAuth()).RegisterRoutes(r)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/test-notifications?message=hi", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/test-notifications", nil).Code)

	r = gin.New()
	NewAIController(fakeAssistant{}, fakeNotifier{err: notification.ErrMailDisabled}, logger.Nop(), openAuth()).RegisterRoutes(r)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/test-notifications?message=hi", nil).Code)
}

func TestAuthFlow(t *testing.T) {
	jwtService := jwt.NewService(api_models.Config{
		SecretKey:            "test-secret",
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: time.Hour,
		Issuer:               "smartgarden",
	})
	authService, err := auth.NewAuthService(config.AdminConfig{Username: "admin", Password: "s3cret-pass"}, jwtService)
	require.NoError(t, err)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, true, middleware.DefaultConfig())

	r := gin.New()
	NewAuthController(authService, time.Hour, false, logger.Nop()).RegisterRoutes(r.Group("/api/v1"), authMiddleware)

	rec := do(r, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var refresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			refresh = c
		}
	}
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(refresh)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "admin", data["username"])

	rec = do(r, http.MethodPost, "/api/v1/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRoutes_MountedWithoutOperator(t *testing.T) {
	r := gin.New()
	NewAuthController(nil, time.Hour, false, logger.Nop()).RegisterRoutes(r.Group("/api/v1"), openAuth())

	rec := do(r, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int(api_models.ErrInvalidRequest), decode(t, rec).Code)

	rec = do(r, http.MethodPost, "/api/v1/auth/refresh", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReady(t *testing.T) {
	checker := health.NewHealthChecker()
	checker.Register("mqtt", health.ConnectedCheck(func() bool { return false }))
	r := gin.New()
	NewHealthController(checker).RegisterRoutes(r)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health/live", nil).Code)
	rec := do(r, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")

	rec = do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
