package ai

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/client"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	sgdmodels "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models"
	api_models "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Models/api"
)

type StateReader interface {
	CurrentState(ctx context.Context, deviceUID string) *sgdmodels.DeviceState
}

type Forecaster interface {
	Forecast(ctx context.Context, location string) sgdmodels.WeatherForecast
}

type CommandSender interface {
	Send(ctx context.Context, deviceUID string, cmd sgdmodels.CommandRequest) error
}

type Notifier interface {
	NotifyOperator(message string) error
}

// Service asks the assistant about a device and acts on its tool calls
type Service struct {
	http     *client.JSONClient
	chatURL  string
	location string

	state    StateReader
	weather  Forecaster
	commands CommandSender
	notifier Notifier
	logger   *logger.Logger
}

func NewService(httpClient *client.JSONClient, serviceURL, location string, state StateReader, weather Forecaster, commands CommandSender, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		http:     httpClient,
		chatURL:  ChatURL(serviceURL),
		location: location,
		state:    state,
		weather:  weather,
		commands: commands,
		notifier: notifier,
		logger:   log.WithComponent("ai"),
	}
}

// ChatURL makes sure the assistant URL ends in /chat
func ChatURL(serviceURL string) string {
	if strings.HasSuffix(serviceURL, "/chat") {
		return serviceURL
	}
	if strings.HasSuffix(serviceURL, "/") {
		return serviceURL + "chat"
	}
	return serviceURL + "/chat"
}

// Chat answers message and executes any tool the assistant requests
func (s *Service) Chat(ctx context.Context, message, deviceUID string) (string, error) {
	resp, err := s.ask(ctx, message, deviceUID)
	if err != nil {
		return "", err
	}
	if resp.ResponseType != sgdmodels.ResponseToolCall || resp.ToolCall == nil {
		return resp.TextContent, nil
	}

	s.notify(resp.ToolCall.ToolName)
	return s.executeToolCall(ctx, deviceUID, resp.ToolCall), nil
}

// Analyze is Chat without side effects on devices; tool calls only notify the operator
func (s *Service) Analyze(ctx context.Context, message, deviceUID string) (string, error) {
	resp, err := s.ask(ctx, message, deviceUID)
	if err != nil {
		return "", err
	}
	if resp.ResponseType == sgdmodels.ResponseToolCall && resp.ToolCall != nil {
		s.notify(resp.ToolCall.ToolName)
	}
	return resp.TextContent, nil
}

func (s *Service) ask(ctx context.Context, message, deviceUID string) (*sgdmodels.ChatResponse, error) {
	garden := s.state.CurrentState(ctx, deviceUID)
	forecast := s.weather.Forecast(ctx, s.location)

	req := sgdmodels.ChatRequest{
		UserMessage:    message,
		DeviceUID:      deviceUID,
		GardenContext:  garden,
		WeatherContext: &forecast,
	}

	s.logger.WithDevice(deviceUID).Logger.Info().Msg("Calling assistant service")
	var resp sgdmodels.ChatResponse
	if err := s.http.Post(ctx, s.chatURL, req, &resp); err != nil {
		return nil, api_models.WrapInternal(fmt.Errorf("assistant service unavailable: %w", err))
	}
	s.logger.WithDevice(deviceUID).Logger.Debug().Str("response_type", resp.ResponseType).Msg("Assistant replied")
	return &resp, nil
}

func (s *Service) notify(toolName string) {
	s.logger.Logger.Info().Str("tool", toolName).Msg("Assistant requested tool call")
	if err := s.notifier.NotifyOperator(toolName); err != nil {
		s.logger.Logger.Warn().Err(err).Msg("Operator notification failed")
	}
}

// executeToolCall runs a tool and describes the outcome for the user
func (s *Service) executeToolCall(ctx context.Context, deviceUID string, call *sgdmodels.ToolCall) string {
	if call.ToolName != sgdmodels.ToolControlDevice {
		return "Error: the assistant requested an unsupported tool: " + call.ToolName
	}

	target, _ := call.Arguments["deviceUid"].(string)
	if target == "" {
		target = deviceUID
	}
	name, _ := call.Arguments["deviceName"].(string)
	turnOn, ok := call.Arguments["turnOn"].(bool)
	if !ok {
		return "Error: the assistant did not say whether to turn " + name + " on or off."
	}

	var action string
	switch strings.ToUpper(name) {
	case "PUMP":
		action = sgdmodels.ActionSetPump
	case "LIGHT":
		action = sgdmodels.ActionSetLight
	default:
		return "Error: the assistant asked to control an unknown device: " + name
	}

	status, verb := sgdmodels.PumpOff, "off"
	if turnOn {
		status, verb = sgdmodels.PumpOn, "on"
	}

	cmd := sgdmodels.CommandRequest{Action: action, Payload: map[string]interface{}{"status": status}}
	if err := s.commands.Send(ctx, target, cmd); err != nil {
		s.logger.WithDevice(target).ErrorWithError(err, "Failed to execute tool call")
		return "Error while executing the command: " + err.Error()
	}
	return fmt.Sprintf("Done! I sent the command to turn %s the %s.", verb, name)
}
