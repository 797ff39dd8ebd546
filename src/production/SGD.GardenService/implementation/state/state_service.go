package state

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

// Broadcaster receives every state that was written
type Broadcaster interface {
	BroadcastDeviceUpdate(state *sgdmodels.DeviceState)
}

// Service owns the cached real-time state of each device.
// Writes for one device are serialised; different devices proceed in parallel.
type Service struct {
	store       interfaces.StateStore
	broadcaster Broadcaster
	logger      *logger.Logger
	now         func() time.Time

	locks sync.Map // device UID -> *sync.Mutex
}

// NewService creates a state service; broadcaster may be nil
func NewService(store interfaces.StateStore, broadcaster Broadcaster, log *logger.Logger) *Service {
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		logger:      log.WithComponent("device-state"),
		now:         time.Now,
	}
}

func (s *Service) lock(deviceUID string) func() {
	m, _ := s.locks.LoadOrStore(deviceUID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetState returns the cached state or the OFFLINE default
func (s *Service) GetState(ctx context.Context, deviceUID string) (*sgdmodels.DeviceState, error) {
	state, err := s.store.Get(ctx, deviceUID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Logger.Debug().Str("device_uid", deviceUID).Msg("No cached state, returning default")
			return sgdmodels.DefaultDeviceState(deviceUID), nil
		}
		return nil, err
	}
	return state, nil
}

// CurrentState is GetState for callers that can live with the default on a cache failure
func (s *Service) CurrentState(ctx context.Context, deviceUID string) *sgdmodels.DeviceState {
	state, err := s.GetState(ctx, deviceUID)
	if err != nil {
		s.logger.WithDevice(deviceUID).ErrorWithError(err, "Failed to read cached state")
		return sgdmodels.DefaultDeviceState(deviceUID)
	}
	return state
}

// UpdateFromMQTT applies one inbound device message to the cached state
func (s *Service) UpdateFromMQTT(ctx context.Context, deviceUID, messageType string, payload []byte) (*sgdmodels.DeviceState, error) {
	unlock := s.lock(deviceUID)
	defer unlock()

	current, err := s.GetState(ctx, deviceUID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithDevice(deviceUID)
	nowMs := s.now().UnixMilli()

	switch strings.ToLower(messageType) {
	case sgdmodels.MessageTelemetry:
		if applyTelemetry(current, payload, log) {
			current.LastSeen = nowMs
			revive(current)
		}
	case sgdmodels.MessageStatus:
		current.Status = parseStatus(payload, current.Status, log)
		current.LastSeen = nowMs
	case sgdmodels.MessageState:
		if err := mergeState(current, payload); err != nil {
			log.Logger.Warn().Err(err).Str("payload", string(payload)).Msg("State payload is not valid JSON")
		} else {
			current.LastSeen = nowMs
			revive(current)
		}
	default:
		log.Logger.Warn().Str("message_type", messageType).Msg("Unknown message type")
	}

	current.DeviceUID = deviceUID
	if err := s.put(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// SetControlMode records AUTO or MANUAL without waiting for the device
func (s *Service) SetControlMode(ctx context.Context, deviceUID, mode string) (*sgdmodels.DeviceState, error) {
	return s.mutate(ctx, deviceUID, func(st *sgdmodels.DeviceState) { st.ControlMode = mode })
}

// SetPumpState records ON or OFF without waiting for the device
func (s *Service) SetPumpState(ctx context.Context, deviceUID, pumpState string) (*sgdmodels.DeviceState, error) {
	return s.mutate(ctx, deviceUID, func(st *sgdmodels.DeviceState) { st.PumpState = pumpState })
}

func (s *Service) mutate(ctx context.Context, deviceUID string, fn func(*sgdmodels.DeviceState)) (*sgdmodels.DeviceState, error) {
	unlock := s.lock(deviceUID)
	defer unlock()

	current, err := s.GetState(ctx, deviceUID)
	if err != nil {
		return nil, err
	}
	fn(current)
	if err := s.put(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// MarkStaleOffline flips devices silent for longer than maxSilence to OFFLINE
func (s *Service) MarkStaleOffline(ctx context.Context, maxSilence time.Duration) ([]string, error) {
	uids, err := s.store.ListUIDs(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-maxSilence).UnixMilli()
	var marked []string
	for _, uid := range uids {
		changed, err := s.markOffline(ctx, uid, cutoff)
		if err != nil {
			s.logger.WithDevice(uid).ErrorWithError(err, "Failed to mark device offline")
			continue
		}
		if changed {
			marked = append(marked, uid)
		}
	}
	return marked, nil
}

func (s *Service) markOffline(ctx context.Context, deviceUID string, cutoff int64) (bool, error) {
	unlock := s.lock(deviceUID)
	defer unlock()

	current, err := s.store.Get(ctx, deviceUID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if current.Status == sgdmodels.StatusOffline || current.LastSeen >= cutoff {
		return false, nil
	}
	current.Status = sgdmodels.StatusOffline
	return true, s.put(ctx, current)
}

func (s *Service) put(ctx context.Context, state *sgdmodels.DeviceState) error {
	if err := s.store.Put(ctx, state); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastDeviceUpdate(state)
	}
	return nil
}

// applyTelemetry replaces the sensors from {"sensors": {...}}; false leaves the state untouched
func applyTelemetry(state *sgdmodels.DeviceState, payload []byte, log *logger.Logger) bool {
	var body struct {
		Sensors *sgdmodels.SensorData `json:"sensors"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		log.Logger.Warn().Err(err).Msg("Telemetry payload is not valid JSON")
		return false
	}
	if body.Sensors == nil {
		log.Logger.Warn().Str("payload", string(payload)).Msg("Telemetry payload has no sensors object")
		return false
	}
	state.Sensors = *body.Sensors
	return true
}

// parseStatus accepts {"status": "..."}, a JSON string, or a raw text payload
func parseStatus(payload []byte, current string, log *logger.Logger) string {
	var obj struct {
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil {
		if obj.Status != nil {
			return *obj.Status
		}
		return current
	}

	var str string
	if err := json.Unmarshal(payload, &str); err == nil {
		return str
	}

	raw := strings.TrimSpace(string(payload))
	log.Logger.Debug().Str("payload", raw).Msg("Status payload is not JSON, using raw text")
	if raw == "" {
		return current
	}
	return raw
}

// stateAliases covers the snake_case keys some firmware builds send
type stateAliases struct {
	ControlMode *string `json:"control_mode"`
	PumpState   *string `json:"pump_state"`
}

// mergeState overlays the fields present in payload onto state
func mergeState(state *sgdmodels.DeviceState, payload []byte) error {
	if err := json.Unmarshal(payload, state); err != nil {
		return err
	}
	var aliases stateAliases
	if err := json.Unmarshal(payload, &aliases); err != nil {
		return err
	}
	if aliases.ControlMode != nil {
		state.ControlMode = *aliases.ControlMode
	}
	if aliases.PumpState != nil {
		state.PumpState = *aliases.PumpState
	}
	return nil
}

// revive brings a swept device back once it reports again
func revive(state *sgdmodels.DeviceState) {
	if state.Status == "" || state.Status == sgdmodels.StatusOffline {
		state.Status = sgdmodels.StatusOnline
	}
}
