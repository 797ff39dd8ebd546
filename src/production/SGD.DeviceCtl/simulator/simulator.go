package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

const (
	topicFormat = "smartgarden/device/%s/%s"
	qos         = 1
	publishWait = 5 * time.Second
)

// Topic returns smartgarden/device/<uid>/<messageType>
func Topic(deviceUID, messageType string) string {
	return fmt.Sprintf(topicFormat, deviceUID, messageType)
}

// Options configures a simulated device
type Options struct {
	Profile           config.DeviceProfile
	TelemetryInterval time.Duration
	UseTLS            bool
	CAFile            string
	Seed              uint64
}

// Simulator connects a Device to the broker with the profile's credentials
type Simulator struct {
	opts   Options
	device *Device
	client mqtt.Client
	logger *logger.Logger
}

// New creates a simulator; Run connects it
func New(opts Options, log *logger.Logger) *Simulator {
	if opts.TelemetryInterval <= 0 {
		opts.TelemetryInterval = 5 * time.Second
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	return &Simulator{
		opts:   opts,
		device: NewDevice(opts.Profile.DeviceUID, opts.Seed),
		logger: log.WithComponent("simulator").WithDevice(opts.Profile.DeviceUID),
	}
}

// Device exposes the simulated node
func (s *Simulator) Device() *Device {
	return s.device
}

func (s *Simulator) clientOptions() (*mqtt.ClientOptions, error) {
	p := s.opts.Profile
	statusTopic := Topic(p.DeviceUID, sgdmodels.MessageStatus)

	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL(p.MQTTBroker, p.MQTTPort, s.opts.UseTLS)).
		SetClientID(p.DeviceUID+"-sim-"+uuid.NewString()[:8]).
		SetKeepAlive(15*time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetCleanSession(true).
		SetWill(statusTopic, sgdmodels.StatusOffline, qos, true)
	if p.MQTTUsername != "" {
		opts.SetUsername(p.MQTTUsername)
		opts.SetPassword(p.MQTTPassword)
	}
	if s.opts.UseTLS {
		tlsCfg, err := config.TLSConfig(s.opts.CAFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Logger.Error().Err(err).Msg("Connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		commandTopic := Topic(p.DeviceUID, "command")
		if token := c.Subscribe(commandTopic, qos, s.onCommand); token.Wait() && token.Error() != nil {
			s.logger.Logger.Error().Err(token.Error()).Str("topic", commandTopic).Msg("Failed to subscribe")
			return
		}
		s.publish(c, sgdmodels.MessageStatus, []byte(sgdmodels.StatusOnline), true)
		s.publish(c, sgdmodels.MessageState, s.device.StatePayload(), false)
		s.logger.Logger.Info().Str("topic", commandTopic).Msg("Connected, waiting for commands")
	}
	return opts, nil
}

// Run publishes telemetry until ctx is done, then reports OFFLINE and disconnects
func (s *Simulator) Run(ctx context.Context) error {
	opts, err := s.clientOptions()
	if err != nil {
		return err
	}
	s.client = mqtt.NewClient(opts)

	// with connect retry the token only completes once the broker answers
	token := s.client.Connect()
	select {
	case <-ctx.Done():
		s.client.Disconnect(0)
		return nil
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to %s:%d: %w", s.opts.Profile.MQTTBroker, s.opts.Profile.MQTTPort, err)
		}
	}

	ticker := time.NewTicker(s.opts.TelemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publish(s.client, sgdmodels.MessageStatus, []byte(sgdmodels.StatusOffline), true)
			s.client.Disconnect(500)
			return nil
		case <-ticker.C:
			sensors := s.device.Step(s.opts.TelemetryInterval)
			s.publish(s.client, sgdmodels.MessageTelemetry, TelemetryPayload(sensors), false)
			s.logger.Logger.Debug().
				Float64("soil_moisture", sensors.SoilMoisture).
				Bool("pump_on", s.device.PumpOn()).
				Msg("Telemetry sent")
		}
	}
}

func (s *Simulator) onCommand(c mqtt.Client, m mqtt.Message) {
	var cmd sgdmodels.CommandRequest
	if err := json.Unmarshal(m.Payload(), &cmd); err != nil {
		s.logger.Logger.Warn().Str("payload", string(m.Payload())).Msg("Ignoring malformed command")
		return
	}
	if err := s.device.Apply(cmd); err != nil {
		s.logger.Logger.Warn().Err(err).Msg("Command rejected")
		return
	}
	s.logger.Logger.Info().Str("action", cmd.Action).Interface("payload", cmd.Payload).Msg("Command applied")
	s.publish(c, sgdmodels.MessageState, s.device.StatePayload(), false)
}

func (s *Simulator) publish(c mqtt.Client, messageType string, payload []byte, retained bool) {
	topic := Topic(s.opts.Profile.DeviceUID, messageType)
	token := c.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishWait) {
		s.logger.Logger.Warn().Str("topic", topic).Msg("Publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Logger.Error().Err(err).Str("topic", topic).Msg("Publish failed")
	}
}
