package sgdmodels

// Command actions understood by the firmware
const (
	ActionControlPump = "CONTROL_PUMP"
	ActionSetMode     = "SET_MODE"
	ActionSetPump     = "SET_PUMP"
	ActionSetLight    = "SET_LIGHT"
)

// CommandRequest is published to smartgarden/device/<uid>/command
type CommandRequest struct {
	Action  string                 `json:"action" binding:"required"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// PayloadString returns payload[key] when it is a string
func (c CommandRequest) PayloadString(key string) (string, bool) {
	if c.Payload == nil {
		return "", false
	}
	v, ok := c.Payload[key].(string)
	return v, ok
}
