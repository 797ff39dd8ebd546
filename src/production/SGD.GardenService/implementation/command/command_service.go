package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/metrics"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

// TopicFormat is the command topic of one device
const TopicFormat = "smartgarden/device/%s/command"

// QoS used for every command
const QoS byte = 1

// Publisher sends raw payloads to the broker
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// StateUpdater receives the optimistic state change a command implies
type StateUpdater interface {
	SetPumpState(ctx context.Context, deviceUID, pumpState string) (*sgdmodels.DeviceState, error)
	SetControlMode(ctx context.Context, deviceUID, mode string) (*sgdmodels.DeviceState, error)
}

// Service publishes commands to devices one at a time
type Service struct {
	mu        sync.Mutex
	publisher Publisher
	state     StateUpdater
	logger    *logger.Logger
}

func NewService(publisher Publisher, state StateUpdater, log *logger.Logger) *Service {
	return &Service{
		publisher: publisher,
		state:     state,
		logger:    log.WithComponent("command"),
	}
}

// Topic returns the command topic for deviceUID
func Topic(deviceUID string) string {
	return fmt.Sprintf(TopicFormat, deviceUID)
}

// Send publishes cmd to the device. The cached state is updated before
// the publish so dashboards reflect the request without waiting for the device.
func (s *Service) Send(ctx context.Context, deviceUID string, cmd sgdmodels.CommandRequest) error {
	if strings.TrimSpace(cmd.Action) == "" {
		return api_models.NewAppError(api_models.ErrInvalidRequest, "action is required")
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return api_models.NewAppError(api_models.ErrInvalidRequest, "payload is not serialisable: "+err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.WithDevice(deviceUID)
	s.applyToState(ctx, deviceUID, cmd, log)

	if err := s.publisher.Publish(Topic(deviceUID), QoS, payload); err != nil {
		metrics.CommandsPublished.WithLabelValues(cmd.Action, "error").Inc()
		log.ErrorWithError(err, "Failed to publish command")
		return api_models.WrapInternal(fmt.Errorf("failed to publish %s: %w", cmd.Action, err))
	}

	metrics.CommandsPublished.WithLabelValues(cmd.Action, "ok").Inc()
	log.Logger.Info().Str("action", cmd.Action).RawJSON("payload", payload).Msg("Command published")
	return nil
}

func (s *Service) applyToState(ctx context.Context, deviceUID string, cmd sgdmodels.CommandRequest, log *logger.Logger) {
	var err error
	switch cmd.Action {
	case sgdmodels.ActionControlPump:
		if v, ok := cmd.PayloadString("state"); ok {
			_, err = s.state.SetPumpState(ctx, deviceUID, v)
		}
	case sgdmodels.ActionSetMode:
		if v, ok := cmd.PayloadString("mode"); ok {
			_, err = s.state.SetControlMode(ctx, deviceUID, v)
		}
	}
	if err != nil {
		log.Logger.Warn().Err(err).Str("action", cmd.Action).Msg("Failed to update cached state for command")
	}
}
