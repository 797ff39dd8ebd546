package sgdmodels

// Assistant response types
const (
	ResponseText     = "TEXT"
	ResponseToolCall = "TOOL_CALL"
)

// ToolControlDevice is the only tool the assistant may call
const ToolControlDevice = "controlDevice"

// ChatRequest is the body sent to the assistant service
type ChatRequest struct {
	UserMessage    string           `json:"user_message"`
	DeviceUID      string           `json:"device_uid"`
	GardenContext  *DeviceState     `json:"garden_context"`
	WeatherContext *WeatherForecast `json:"weather_context"`
}

// ToolCall names a tool and its arguments
type ToolCall struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ChatResponse is the assistant reply
type ChatResponse struct {
	ResponseType string    `json:"response_type"`
	TextContent  string    `json:"text_content"`
	ToolCall     *ToolCall `json:"tool_call"`
}

// ChatMessage is the body of POST /ai/chat/:deviceUid
type ChatMessage struct {
	Message string `json:"message" binding:"required"`
}
