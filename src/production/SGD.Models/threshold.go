package sgdmodels

import "time"

// Threshold defaults used when a device has no stored setting
const (
	DefaultMinSoilMoisture        = 0.0
	DefaultMaxPumpDurationSeconds = 10
)

// ThresholdSetting drives soil-moisture automation for one device
type ThresholdSetting struct {
	ID                     int64     `json:"id,omitempty" db:"id"`
	DeviceUID              string    `json:"deviceUid" db:"device_uid"`
	MinSoilMoisture        float64   `json:"minSoilMoisture" db:"min_soil_moisture"`
	MaxPumpDurationSeconds int       `json:"maxPumpDurationSeconds" db:"max_pump_duration_seconds"`
	IsActive               bool      `json:"isActive" db:"is_active"`
	CreatedAt              time.Time `json:"createdAt,omitempty" db:"created_at"`
	UpdatedAt              time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// DefaultThreshold is the inactive setting for a device
func DefaultThreshold(deviceUID string) *ThresholdSetting {
	return &ThresholdSetting{
		DeviceUID:              deviceUID,
		MinSoilMoisture:        DefaultMinSoilMoisture,
		MaxPumpDurationSeconds: DefaultMaxPumpDurationSeconds,
		IsActive:               false,
	}
}

// ThresholdRequest is the body of POST /thresholds. Missing fields keep their defaults.
type ThresholdRequest struct {
	DeviceUID              string   `json:"deviceUid" binding:"omitempty,device_uid"`
	MinSoilMoisture        *float64 `json:"minSoilMoisture" binding:"omitempty,gte=0,lte=100"`
	MaxPumpDurationSeconds *int     `json:"maxPumpDurationSeconds" binding:"omitempty,gte=1,lte=3600"`
	IsActive               *bool    `json:"isActive"`
}

// Apply merges the request onto a setting
func (r ThresholdRequest) Apply(s *ThresholdSetting) {
	if r.MinSoilMoisture != nil {
		s.MinSoilMoisture = *r.MinSoilMoisture
	}
	if r.MaxPumpDurationSeconds != nil {
		s.MaxPumpDurationSeconds = *r.MaxPumpDurationSeconds
	}
	if r.IsActive != nil {
		s.IsActive = *r.IsActive
	}
}
