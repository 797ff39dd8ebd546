package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

// Soil moisture change per minute, in percentage points
const (
	pumpWettingRate = 12.0
	dryingRate      = 0.5
)

// Device is the in-memory model of one ESP32 garden node
type Device struct {
	mu      sync.Mutex
	uid     string
	rng     *rand.Rand
	sensors sgdmodels.SensorData
	pumpOn  bool
	lightOn bool
	mode    string
}

// NewDevice starts from plausible readings for a shaded bed
func NewDevice(uid string, seed uint64) *Device {
	return &Device{
		uid: uid,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		sensors: sgdmodels.SensorData{
			Temperature:  27,
			AirHumidity:  65,
			Light:        400,
			SoilMoisture: 45,
		},
		mode: sgdmodels.ModeManual,
	}
}

// UID returns the device UID
func (d *Device) UID() string {
	return d.uid
}

// Step advances the sensors by dt. Soil moisture rises while the pump runs
// and slowly dries otherwise.
func (d *Device) Step(dt time.Duration) sgdmodels.SensorData {
	d.mu.Lock()
	defer d.mu.Unlock()

	minutes := dt.Minutes()
	s := &d.sensors
	s.Temperature = clamp(s.Temperature+d.jitter(0.2), 10, 45)
	s.AirHumidity = clamp(s.AirHumidity+d.jitter(0.5), 20, 100)
	s.Light = clamp(s.Light+d.jitter(15), 0, 2000)
	if d.lightOn {
		s.Light = math.Max(s.Light, 800)
	}
	if d.pumpOn {
		s.SoilMoisture += pumpWettingRate * minutes
	} else {
		s.SoilMoisture -= dryingRate * minutes
	}
	s.SoilMoisture = clamp(s.SoilMoisture+d.jitter(0.1), 0, 100)
	return *s
}

func (d *Device) jitter(scale float64) float64 {
	return (d.rng.Float64()*2 - 1) * scale
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, round1(v)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SetSoilMoisture overrides the soil reading, for scripted scenarios
func (d *Device) SetSoilMoisture(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sensors.SoilMoisture = clamp(v, 0, 100)
}

// Apply executes a command from the server
func (d *Device) Apply(cmd sgdmodels.CommandRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch strings.ToUpper(cmd.Action) {
	case sgdmodels.ActionControlPump:
		on, err := onOff(cmd, "state")
		if err != nil {
			return err
		}
		d.pumpOn = on
	case sgdmodels.ActionSetPump:
		on, err := onOff(cmd, "status")
		if err != nil {
			return err
		}
		d.pumpOn = on
	case sgdmodels.ActionSetLight:
		on, err := onOff(cmd, "status")
		if err != nil {
			return err
		}
		d.lightOn = on
	case sgdmodels.ActionSetMode:
		mode, _ := cmd.PayloadString("mode")
		mode = strings.ToUpper(mode)
		if mode != sgdmodels.ModeAuto && mode != sgdmodels.ModeManual {
			return fmt.Errorf("unknown mode %q", mode)
		}
		d.mode = mode
	default:
		return fmt.Errorf("unsupported action %q", cmd.Action)
	}
	return nil
}

func onOff(cmd sgdmodels.CommandRequest, key string) (bool, error) {
	v, _ := cmd.PayloadString(key)
	switch strings.ToUpper(v) {
	case sgdmodels.PumpOn:
		return true, nil
	case sgdmodels.PumpOff:
		return false, nil
	}
	return false, fmt.Errorf("%s: payload.%s must be ON or OFF, got %q", cmd.Action, key, v)
}

// PumpOn reports the pump relay state
func (d *Device) PumpOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pumpOn
}

// Mode returns the control mode
func (d *Device) Mode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

type statePayload struct {
	PumpState   string `json:"pumpState"`
	LightState  string `json:"lightState"`
	ControlMode string `json:"controlMode"`
}

// StatePayload is the body echoed on the state topic after a command
func (d *Device) StatePayload() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, _ := json.Marshal(statePayload{
		PumpState:   relay(d.pumpOn),
		LightState:  relay(d.lightOn),
		ControlMode: d.mode,
	})
	return b
}

func relay(on bool) string {
	if on {
		return sgdmodels.PumpOn
	}
	return sgdmodels.PumpOff
}

// TelemetryPayload wraps readings the way the firmware does
func TelemetryPayload(s sgdmodels.SensorData) []byte {
	b, _ := json.Marshal(struct {
		Sensors sgdmodels.SensorData `json:"sensors"`
	}{s})
	return b
}
