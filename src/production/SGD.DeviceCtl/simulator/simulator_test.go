package simulator

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

func cmd(action string, payload map[string]interface{}) sgdmodels.CommandRequest {
	return sgdmodels.CommandRequest{Action: action, Payload: payload}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "smartgarden/device/ESP32_GARDEN_001/telemetry", Topic("ESP32_GARDEN_001", sgdmodels.MessageTelemetry))
}

func TestStep_PumpWetsSoil(t *testing.T) {
	d := NewDevice("dev-1", 42)
	d.SetSoilMoisture(20)

	require.NoError(t, d.Apply(cmd(sgdmodels.ActionControlPump, map[string]interface{}{"state": "ON"})))
	wet := d.Step(time.Minute)
	assert.Greater(t, wet.SoilMoisture, 30.0)

	require.NoError(t, d.Apply(cmd(sgdmodels.ActionControlPump, map[string]interface{}{"state": "OFF"})))
	before := wet.SoilMoisture
	dry := d.Step(10 * time.Minute)
	assert.Less(t, dry.SoilMoisture, before)
}

func TestStep_StaysInRange(t *testing.T) {
	d := NewDevice("dev-1", 7)
	require.NoError(t, d.Apply(cmd(sgdmodels.ActionSetPump, map[string]interface{}{"status": "on"})))
	for i := 0; i < 200; i++ {
		s := d.Step(time.Minute)
		assert.LessOrEqual(t, s.SoilMoisture, 100.0)
		assert.GreaterOrEqual(t, s.Temperature, 10.0)
		assert.LessOrEqual(t, s.Temperature, 45.0)
	}
}

func TestStep_SameSeedSameReadings(t *testing.T) {
	a, b := NewDevice("a", 99), NewDevice("b", 99)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Step(time.Second), b.Step(time.Second))
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		cmd     sgdmodels.CommandRequest
		wantErr bool
		pumpOn  bool
		mode    string
	}{
		{"control pump on", cmd(sgdmodels.ActionControlPump, map[string]interface{}{"state": "ON"}), false, true, sgdmodels.ModeManual},
		{"set pump on", cmd(sgdmodels.ActionSetPump, map[string]interface{}{"status": "ON"}), false, true, sgdmodels.ModeManual},
		{"set mode auto", cmd(sgdmodels.ActionSetMode, map[string]interface{}{"mode": "auto"}), false, false, sgdmodels.ModeAuto},
		{"light does not touch pump", cmd(sgdmodels.ActionSetLight, map[string]interface{}{"status": "ON"}), false, false, sgdmodels.ModeManual},
		{"bad pump value", cmd(sgdmodels.ActionControlPump, map[string]interface{}{"state": "MAYBE"}), true, false, sgdmodels.ModeManual},
		{"missing payload", cmd(sgdmodels.ActionSetPump, nil), true, false, sgdmodels.ModeManual},
		{"bad mode", cmd(sgdmodels.ActionSetMode, map[string]interface{}{"mode": "turbo"}), true, false, sgdmodels.ModeManual},
		{"unknown action", cmd("REBOOT", nil), true, false, sgdmodels.ModeManual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDevice("dev-1", 1)
			err := d.Apply(tt.cmd)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.pumpOn, d.PumpOn())
			assert.Equal(t, tt.mode, d.Mode())
		})
	}
}

func TestStatePayload(t *testing.T) {
	d := NewDevice("dev-1", 1)
	require.NoError(t, d.Apply(cmd(sgdmodels.ActionControlPump, map[string]interface{}{"state": "ON"})))
	require.NoError(t, d.Apply(cmd(sgdmodels.ActionSetMode, map[string]interface{}{"mode": "AUTO"})))

	var got map[string]string
	require.NoError(t, json.Unmarshal(d.StatePayload(), &got))
	assert.Equal(t, "ON", got["pumpState"])
	assert.Equal(t, "AUTO", got["controlMode"])
	assert.Equal(t, "OFF", got["lightState"])
}

func TestTelemetryPayload(t *testing.T) {
	body := TelemetryPayload(sgdmodels.SensorData{Temperature: 25.5, AirHumidity: 60, Light: 300, SoilMoisture: 41})
	assert.JSONEq(t, `{"sensors":{"temperature":25.5,"airHumidity":60,"light":300,"soilMoisture":41}}`, string(body))
}

func TestNew_Defaults(t *testing.T) {
	profile := config.TemplateProfile()
	s := New(Options{Profile: profile}, logger.Nop())
	assert.Equal(t, 5*time.Second, s.opts.TelemetryInterval)
	assert.NotZero(t, s.opts.Seed)
	assert.Equal(t, profile.DeviceUID, s.Device().UID())

	opts, err := s.clientOptions()
	require.NoError(t, err)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, Topic(profile.DeviceUID, sgdmodels.MessageStatus), opts.WillTopic)
	assert.Equal(t, []byte(sgdmodels.StatusOffline), opts.WillPayload)
	assert.True(t, opts.WillRetained)
}

func TestRun_StopsWhileBrokerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	profile := config.TemplateProfile()
	profile.MQTTBroker = "127.0.0.1"
	profile.MQTTPort = port
	s := New(Options{Profile: profile, Seed: 1}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after the context was cancelled")
	}
}
