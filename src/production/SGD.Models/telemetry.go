package sgdmodels

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TelemetryLog is one persisted sensor snapshot
type TelemetryLog struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DeviceUID    string             `bson:"device_uid" json:"deviceUid"`
	LogTime      time.Time          `bson:"log_time" json:"logTime"`
	Temperature  float64            `bson:"temperature" json:"temperature"`
	AirHumidity  float64            `bson:"air_humidity" json:"airHumidity"`
	Light        float64            `bson:"light" json:"lightLevel"`
	SoilMoisture float64            `bson:"soil_moisture" json:"soilMoisture"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
}

// NewTelemetryLog snapshots the sensors of a state at logTime
func NewTelemetryLog(state *DeviceState, logTime time.Time) *TelemetryLog {
	return &TelemetryLog{
		DeviceUID:    state.DeviceUID,
		LogTime:      logTime,
		Temperature:  state.Sensors.Temperature,
		AirHumidity:  state.Sensors.AirHumidity,
		Light:        state.Sensors.Light,
		SoilMoisture: state.Sensors.SoilMoisture,
	}
}
