package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/metrics"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
)

const (
	topicRoot     = "smartgarden"
	topicDevice   = "device"
	commandType   = "command"
	publishWait   = 5 * time.Second
	handleTimeout = 30 * time.Second
)

var (
	ErrBadTopic     = errors.New("topic is not smartgarden/device/<uid>/<type>")
	ErrNotConnected = errors.New("mqtt client is not connected")
)

// StateUpdater applies device messages to the cached state
type StateUpdater interface {
	UpdateFromMQTT(ctx context.Context, deviceUID, messageType string, payload []byte) (*sgdmodels.DeviceState, error)
}

// TelemetrySink queues a telemetry snapshot for persistence
type TelemetrySink interface {
	Save(state *sgdmodels.DeviceState)
}

// Automator reacts to new sensor readings
type Automator interface {
	CheckAndAutomate(ctx context.Context, deviceUID string, sensors sgdmodels.SensorData) (bool, error)
}

// Gateway bridges the broker and the garden services
type Gateway struct {
	cfg       config.MQTTConfig
	state     StateUpdater
	telemetry TelemetrySink
	automator Automator
	logger    *logger.Logger

	mu     sync.RWMutex
	client mqtt.Client
	wg     sync.WaitGroup
}

func New(cfg config.MQTTConfig, state StateUpdater, telemetry TelemetrySink, automator Automator, log *logger.Logger) *Gateway {
	return &Gateway{
		cfg:       cfg,
		state:     state,
		telemetry: telemetry,
		automator: automator,
		logger:    log.WithComponent("mqtt-gateway"),
	}
}

// SetAutomator wires threshold automation. It must be called before Start;
// the command path publishes through this gateway, so the two are built in turn.
func (g *Gateway) SetAutomator(automator Automator) {
	g.automator = automator
}

// ParseDeviceTopic splits smartgarden/device/<uid>/<type>
func ParseDeviceTopic(topic string) (deviceUID, messageType string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != topicRoot || parts[1] != topicDevice || parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return parts[2], parts[3], nil
}

// SubscriptionTopic is the configured topic, wrapped in $share when a group is set
func (g *Gateway) SubscriptionTopic() string {
	if g.cfg.SharedGroup != "" {
		return fmt.Sprintf("$share/%s/%s", g.cfg.SharedGroup, g.cfg.Topic)
	}
	return g.cfg.Topic
}

func (g *Gateway) clientOptions() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL(g.cfg.BrokerHost, g.cfg.BrokerPort, g.cfg.UseTLS)).
		SetClientID(g.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(g.cfg.KeepAlive).
		SetPingTimeout(g.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if g.cfg.BrokerUser != "" {
		opts.SetUsername(g.cfg.BrokerUser)
		opts.SetPassword(g.cfg.BrokerPass)
	}

	if g.cfg.UseTLS {
		tlsCfg, err := config.TLSConfig(g.cfg.CACertPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		g.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := g.SubscriptionTopic()
		g.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, g.cfg.QoS, g.onMessage); token.Wait() && token.Error() != nil {
			g.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}
	return opts, nil
}

// Start connects to the broker; subscription happens on every (re)connect
func (g *Gateway) Start() error {
	opts, err := g.clientOptions()
	if err != nil {
		return err
	}

	client := mqtt.NewClient(opts)
	g.mu.Lock()
	g.client = client
	g.mu.Unlock()

	if tk := client.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}
	return nil
}

// Stop disconnects and waits for in-flight handlers
func (g *Gateway) Stop() {
	g.mu.RLock()
	client := g.client
	g.mu.RUnlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(500)
	}
	g.wg.Wait()
}

func (g *Gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client != nil && g.client.IsConnected()
}

// Publish sends payload and waits for the broker to accept it
func (g *Gateway) Publish(topic string, qos byte, payload []byte) error {
	g.mu.RLock()
	client := g.client
	g.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (g *Gateway) onMessage(_ mqtt.Client, m mqtt.Message) {
	g.wg.Add(1)
	defer g.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	g.Handle(ctx, m.Topic(), m.Payload())
}

// Handle processes one inbound device message. Failures are logged, never returned,
// so one bad message cannot stop the subscription.
func (g *Gateway) Handle(ctx context.Context, topic string, payload []byte) {
	g.logger.Logger.Debug().Str("topic", topic).Str("payload", string(payload)).Msg("Received MQTT message")

	deviceUID, messageType, err := ParseDeviceTopic(topic)
	if err != nil {
		metrics.MQTTRejected.Inc()
		g.logger.Logger.Warn().Str("topic", topic).Str("expected", "smartgarden/device/<uid>/<type>").Msg("Invalid topic format")
		return
	}

	messageType = strings.ToLower(messageType)
	if messageType == commandType {
		return
	}
	metrics.MQTTMessages.WithLabelValues(messageType).Inc()

	log := g.logger.WithDevice(deviceUID)
	state, err := g.state.UpdateFromMQTT(ctx, deviceUID, messageType, payload)
	if err != nil {
		log.ErrorWithError(err, "Failed to update device state")
		return
	}

	if messageType != sgdmodels.MessageTelemetry {
		return
	}

	// every telemetry message is logged; only fresh readings drive automation
	g.telemetry.Save(state)
	if g.automator == nil || !hasSensors(payload) {
		return
	}
	if _, err := g.automator.CheckAndAutomate(ctx, deviceUID, state.Sensors); err != nil {
		log.ErrorWithError(err, "Threshold automation failed")
	}
}

// hasSensors reports whether a telemetry payload carried a sensors object
func hasSensors(payload []byte) bool {
	var body struct {
		Sensors json.RawMessage `json:"sensors"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}
	return len(body.Sensors) > 0 && string(body.Sensors) != "null"
}
