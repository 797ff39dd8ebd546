package threshold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/metrics"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

// CommandSender publishes a command to a device
type CommandSender interface {
	Send(ctx context.Context, deviceUID string, cmd sgdmodels.CommandRequest) error
}

// StateReader exposes the cached device state
type StateReader interface {
	CurrentState(ctx context.Context, deviceUID string) *sgdmodels.DeviceState
}

// Service stores threshold settings and waters devices that run dry
type Service struct {
	repo     interfaces.ThresholdRepository
	commands CommandSender
	state    StateReader
	logger   *logger.Logger

	mu      sync.Mutex
	pumping map[string]bool
	timers  map[string]*time.Timer
	stopped bool

	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewService(repo interfaces.ThresholdRepository, commands CommandSender, state StateReader, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		commands:  commands,
		state:     state,
		logger:    log.WithComponent("threshold"),
		pumping:   make(map[string]bool),
		timers:    make(map[string]*time.Timer),
		afterFunc: time.AfterFunc,
	}
}

// Get returns the stored setting or the inactive default
func (s *Service) Get(ctx context.Context, deviceUID string) (*sgdmodels.ThresholdSetting, error) {
	setting, err := s.repo.Get(ctx, deviceUID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return sgdmodels.DefaultThreshold(deviceUID), nil
		}
		return nil, api_models.WrapInternal(fmt.Errorf("failed to load threshold for %s: %w", deviceUID, err))
	}
	return setting, nil
}

// Save merges req onto the current setting of deviceUID and stores it
func (s *Service) Save(ctx context.Context, deviceUID string, req sgdmodels.ThresholdRequest) (*sgdmodels.ThresholdSetting, error) {
	current, err := s.Get(ctx, deviceUID)
	if err != nil {
		return nil, err
	}
	req.Apply(current)

	saved, err := s.repo.Upsert(ctx, current)
	if err != nil {
		return nil, api_models.WrapInternal(fmt.Errorf("failed to save threshold for %s: %w", deviceUID, err))
	}

	s.logger.WithDevice(deviceUID).Logger.Info().
		Float64("min_soil_moisture", saved.MinSoilMoisture).
		Int("max_pump_duration_seconds", saved.MaxPumpDurationSeconds).
		Bool("active", saved.IsActive).
		Msg("Threshold saved")
	return saved, nil
}

// CheckAndAutomate starts a timed pump run when soil moisture drops below the threshold.
// It returns true when a run was started.
func (s *Service) CheckAndAutomate(ctx context.Context, deviceUID string, sensors sgdmodels.SensorData) (bool, error) {
	setting, err := s.Get(ctx, deviceUID)
	if err != nil {
		return false, err
	}
	if !setting.IsActive || sensors.SoilMoisture >= setting.MinSoilMoisture {
		return false, nil
	}

	log := s.logger.WithDevice(deviceUID)

	s.mu.Lock()
	if s.stopped || s.pumping[deviceUID] || s.state.CurrentState(ctx, deviceUID).PumpRunning() {
		s.mu.Unlock()
		log.Logger.Debug().Msg("Pump already running, skipping automation")
		return false, nil
	}
	s.pumping[deviceUID] = true
	s.mu.Unlock()

	log.Logger.Info().
		Float64("soil_moisture", sensors.SoilMoisture).
		Float64("min_soil_moisture", setting.MinSoilMoisture).
		Int("duration_seconds", setting.MaxPumpDurationSeconds).
		Msg("Soil too dry, starting pump")

	if err := s.commands.Send(ctx, deviceUID, pumpCommand(sgdmodels.PumpOn)); err != nil {
		s.clear(deviceUID)
		return false, err
	}
	metrics.PumpActivations.WithLabelValues("threshold").Inc()

	duration := time.Duration(setting.MaxPumpDurationSeconds) * time.Second
	s.mu.Lock()
	s.timers[deviceUID] = s.afterFunc(duration, func() { s.stopPump(deviceUID) })
	s.mu.Unlock()
	return true, nil
}

// IsPumping reports whether an automated run is in progress
func (s *Service) IsPumping(deviceUID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumping[deviceUID]
}

func (s *Service) stopPump(deviceUID string) {
	defer s.clear(deviceUID)
	if err := s.commands.Send(context.Background(), deviceUID, pumpCommand(sgdmodels.PumpOff)); err != nil {
		s.logger.WithDevice(deviceUID).ErrorWithError(err, "Failed to stop pump")
		return
	}
	s.logger.WithDevice(deviceUID).Logger.Info().Msg("Pump run finished")
}

func (s *Service) clear(deviceUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pumping, deviceUID)
	delete(s.timers, deviceUID)
}

// Stop cancels pending runs and switches their pumps off
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	var pending []string
	for uid, timer := range s.timers {
		if timer.Stop() {
			pending = append(pending, uid)
		}
	}
	s.mu.Unlock()

	for _, uid := range pending {
		s.stopPump(uid)
	}
}

func pumpCommand(state string) sgdmodels.CommandRequest {
	return sgdmodels.CommandRequest{
		Action:  sgdmodels.ActionControlPump,
		Payload: map[string]interface{}{"state": state},
	}
}
