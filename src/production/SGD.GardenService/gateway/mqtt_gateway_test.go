package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

type update struct {
	uid, msgType string
}

type stateSpy struct {
	updates []update
	err     error
}

func (s *stateSpy) UpdateFromMQTT(_ context.Context, uid, msgType string, _ []byte) (*sgdmodels.DeviceState, error) {
	s.updates = append(s.updates, update{uid, msgType})
	if s.err != nil {
		return nil, s.err
	}
	return &sgdmodels.DeviceState{DeviceUID: uid, Sensors: sgdmodels.SensorData{SoilMoisture: 20}}, nil
}

type telemetrySpy struct{ saved []string }

func (t *telemetrySpy) Save(state *sgdmodels.DeviceState) { t.saved = append(t.saved, state.DeviceUID) }

type automatorSpy struct{ checked []float64 }

func (a *automatorSpy) CheckAndAutomate(_ context.Context, _ string, s sgdmodels.SensorData) (bool, error) {
	a.checked = append(a.checked, s.SoilMoisture)
	return false, nil
}

func newTestGateway(cfg config.MQTTConfig) (*Gateway, *stateSpy, *telemetrySpy, *automatorSpy) {
	st, tel, auto := &stateSpy{}, &telemetrySpy{}, &automatorSpy{}
	return New(cfg, st, tel, auto, logger.Nop()), st, tel, auto
}

func TestParseDeviceTopic(t *testing.T) {
	uid, typ, err := ParseDeviceTopic("smartgarden/device/ESP32_GARDEN_001/telemetry")
	require.NoError(t, err)
	assert.Equal(t, "ESP32_GARDEN_001", uid)
	assert.Equal(t, "telemetry", typ)

	for _, bad := range []string{
		"smartgarden/device/A",
		"smartgarden/other/A/telemetry",
		"garden/device/A/telemetry",
		"smartgarden/device//telemetry",
		"",
	} {
		_, _, err := ParseDeviceTopic(bad)
		assert.ErrorIs(t, err, ErrBadTopic, bad)
	}
}

func TestSubscriptionTopic(t *testing.T) {
	g, _, _, _ := newTestGateway(config.MQTTConfig{Topic: config.DefaultInboundTopic})
	assert.Equal(t, "smartgarden/device/+/+", g.SubscriptionTopic())

	g, _, _, _ = newTestGateway(config.MQTTConfig{Topic: config.DefaultInboundTopic, SharedGroup: "garden"})
	assert.Equal(t, "$share/garden/smartgarden/device/+/+", g.SubscriptionTopic())
}

func TestHandle_Telemetry(t *testing.T) {
	g, st, tel, auto := newTestGateway(config.MQTTConfig{})

	g.Handle(context.Background(), "smartgarden/device/A/Telemetry", []byte(`{"sensors":{"soilMoisture":20}}`))
	assert.Equal(t, []update{{"A", "telemetry"}}, st.updates)
	assert.Equal(t, []string{"A"}, tel.saved)
	assert.Equal(t, []float64{20}, auto.checked)
}

func TestHandle_TelemetryWithoutSensorsLoggedNotAutomated(t *testing.T) {
	g, st, tel, auto := newTestGateway(config.MQTTConfig{})

	g.Handle(context.Background(), "smartgarden/device/A/telemetry", []byte(`{"sensors":null}`))
	assert.Len(t, st.updates, 1)
	assert.Equal(t, []string{"A"}, tel.saved)
	assert.Empty(t, auto.checked)
}

func TestHandle_StatusAndState(t *testing.T) {
	g, st, tel, _ := newTestGateway(config.MQTTConfig{})

	g.Handle(context.Background(), "smartgarden/device/A/status", []byte("ONLINE"))
	g.Handle(context.Background(), "smartgarden/device/A/state", []byte(`{"pumpState":"ON"}`))
	g.Handle(context.Background(), "smartgarden/device/A/firmware", []byte(`{}`))

	assert.Equal(t, []update{{"A", "status"}, {"A", "state"}, {"A", "firmware"}}, st.updates)
	assert.Empty(t, tel.saved)
}

func TestHandle_IgnoresRejectedAndOwnCommands(t *testing.T) {
	g, st, _, _ := newTestGateway(config.MQTTConfig{})

	g.Handle(context.Background(), "smartgarden/device/A", []byte(`{}`))
	g.Handle(context.Background(), "smartgarden/device/A/command", []byte(`{"action":"SET_PUMP"}`))
	assert.Empty(t, st.updates)
}

func TestHandle_StateFailureStopsProcessing(t *testing.T) {
	g, st, tel, auto := newTestGateway(config.MQTTConfig{})
	st.err = errors.New("redis down")

	g.Handle(context.Background(), "smartgarden/device/A/telemetry", []byte(`{"sensors":{}}`))
	assert.Empty(t, tel.saved)
	assert.Empty(t, auto.checked)
}

func TestPublish_NotConnected(t *testing.T) {
	g, _, _, _ := newTestGateway(config.MQTTConfig{})
	assert.ErrorIs(t, g.Publish("t", 1, nil), ErrNotConnected)
	assert.False(t, g.IsConnected())
}

func TestHandle_AutomatorWiredLater(t *testing.T) {
	st, tel := &stateSpy{}, &telemetrySpy{}
	g := New(config.MQTTConfig{}, st, tel, nil, logger.Nop())

	g.Handle(context.Background(), "smartgarden/device/A/telemetry", []byte(`{"sensors":{"soilMoisture":20}}`))
	assert.Equal(t, []string{"A"}, tel.saved)

	auto := &automatorSpy{}
	g.SetAutomator(auto)
	g.Handle(context.Background(), "smartgarden/device/A/telemetry", []byte(`{"sensors":{"soilMoisture":20}}`))
	assert.Equal(t, []float64{20}, auto.checked)
}
