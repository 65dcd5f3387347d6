package models

// WebSocket message types
const (
	WSTypeMessage     = "message"
	WSTypeReset       = "reset"
	WSTypeTemperature = "temperature"

	WSTypeSession = "session"
	WSTypeTurn    = "turn"
	WSTypeError   = "error"
)

// WSMessage is the frame exchanged over the chat WebSocket in both directions.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// TurnEvent announces turns appended by a completed exchange.
type TurnEvent struct {
	Turns []Turn `json:"turns"`
}

type ErrorEvent struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
