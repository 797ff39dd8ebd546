package sgdmodels

import "strings"

// Device status values
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// Control modes
const (
	ModeAuto   = "AUTO"
	ModeManual = "MANUAL"
)

// Pump states
const (
	PumpOn  = "ON"
	PumpOff = "OFF"
)

// SensorData is one set of readings from a device
type SensorData struct {
	Temperature  float64 `json:"temperature" bson:"temperature"`
	AirHumidity  float64 `json:"airHumidity" bson:"air_humidity"`
	Light        float64 `json:"light" bson:"light"`
	SoilMoisture float64 `json:"soilMoisture" bson:"soil_moisture"`
}

// DeviceState is the real-time view of a device held in the cache
type DeviceState struct {
	DeviceUID   string     `json:"deviceUid"`
	Status      string     `json:"status"`
	LastSeen    int64      `json:"lastSeen"` // epoch millis
	ControlMode string     `json:"controlMode,omitempty"`
	PumpState   string     `json:"pumpState,omitempty"`
	Sensors     SensorData `json:"sensors"`
}

// DefaultDeviceState is returned for devices that never reported
func DefaultDeviceState(deviceUID string) *DeviceState {
	return &DeviceState{
		DeviceUID: deviceUID,
		Status:    StatusOffline,
	}
}

// PumpRunning reports whether the cached state says the pump is on
func (s *DeviceState) PumpRunning() bool {
	return s != nil && strings.EqualFold(s.PumpState, PumpOn)
}

// MQTT message types published by devices
const (
	MessageTelemetry = "telemetry"
	MessageStatus    = "status"
	MessageState     = "state"
)
