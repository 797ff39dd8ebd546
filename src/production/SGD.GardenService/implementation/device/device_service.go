package device

import (
	"context"
	"errors"
	"fmt"

	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
	interfaces "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Interfaces"
)

// ModeSetter mirrors the control mode into the cached device state
type ModeSetter interface {
	SetControlMode(ctx context.Context, deviceUID, mode string) (*sgdmodels.DeviceState, error)
}

type Service struct {
	repo   interfaces.DeviceRepository
	state  ModeSetter
	logger *logger.Logger
}

func NewService(repo interfaces.DeviceRepository, state ModeSetter, log *logger.Logger) *Service {
	return &Service{repo: repo, state: state, logger: log.WithComponent("device")}
}

func (s *Service) List(ctx context.Context) ([]sgdmodels.Device, error) {
	devices, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, api_models.WrapInternal(fmt.Errorf("failed to list devices: %w", err))
	}
	return devices, nil
}

// Get returns a device that is not soft deleted
func (s *Service) Get(ctx context.Context, deviceUID string) (*sgdmodels.Device, error) {
	device, err := s.repo.GetByUID(ctx, deviceUID)
	if err != nil {
		return nil, mapRepoError(err, deviceUID)
	}
	if device.IsDeleted() {
		return nil, api_models.DeviceNotFound(deviceUID)
	}
	return device, nil
}

// Exists reports whether an active device owns deviceUID
func (s *Service) Exists(ctx context.Context, deviceUID string) (bool, error) {
	return s.repo.ExistsActive(ctx, deviceUID)
}

// Create registers a device. The UID stays reserved after a soft delete.
func (s *Service) Create(ctx context.Context, req sgdmodels.DeviceRequest) (*sgdmodels.Device, error) {
	device := &sgdmodels.Device{DeviceUID: req.DeviceUID, Name: req.Name}
	if err := s.repo.Create(ctx, device); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, api_models.NewAppError(api_models.ErrDeviceAlreadyExists, "device already exists: "+req.DeviceUID)
		}
		return nil, api_models.WrapInternal(err)
	}
	s.logger.WithDevice(device.DeviceUID).Logger.Info().Str("name", device.Name).Msg("Device created")
	return device, nil
}

func (s *Service) UpdateName(ctx context.Context, deviceUID, name string) (*sgdmodels.Device, error) {
	device, err := s.repo.UpdateName(ctx, deviceUID, name)
	if err != nil {
		return nil, mapRepoError(err, deviceUID)
	}
	s.logger.WithDevice(deviceUID).Logger.Info().Str("name", name).Msg("Device renamed")
	return device, nil
}

func (s *Service) Delete(ctx context.Context, deviceUID string) error {
	if err := s.repo.SoftDelete(ctx, deviceUID); err != nil {
		return mapRepoError(err, deviceUID)
	}
	s.logger.WithDevice(deviceUID).Logger.Info().Msg("Device soft deleted")
	return nil
}

func (s *Service) Restore(ctx context.Context, deviceUID string) error {
	if err := s.repo.Restore(ctx, deviceUID); err != nil {
		return mapRepoError(err, deviceUID)
	}
	s.logger.WithDevice(deviceUID).Logger.Info().Msg("Device restored")
	return nil
}

// SetAutoMode persists the flag and mirrors AUTO or MANUAL into the cached state
func (s *Service) SetAutoMode(ctx context.Context, deviceUID string, enabled bool) error {
	if err := s.repo.SetAutoMode(ctx, deviceUID, enabled); err != nil {
		return mapRepoError(err, deviceUID)
	}

	mode := sgdmodels.ModeManual
	if enabled {
		mode = sgdmodels.ModeAuto
	}
	if _, err := s.state.SetControlMode(ctx, deviceUID, mode); err != nil {
		s.logger.WithDevice(deviceUID).Logger.Warn().Err(err).Msg("Auto mode saved but cached state not updated")
	}

	s.logger.WithDevice(deviceUID).Logger.Info().Bool("auto_mode", enabled).Msg("Auto mode updated")
	return nil
}

func mapRepoError(err error, deviceUID string) error {
	if errors.Is(err, interfaces.ErrNotFound) {
		return api_models.DeviceNotFound(deviceUID)
	}
	return api_models.WrapInternal(err)
}
