package models

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a turn as coming from the assistant or the user.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

const (
	// Greeting seeds every fresh or reset conversation.
	Greeting = "Hi! How can I help you?"

	DefaultTemperature = 1.0
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
)

// Turn is one message in the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session holds the conversation state for one browser session.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Turns       []Turn    `json:"turns"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSession returns an empty session with the default temperature.
// Call Initialize to seed the greeting.
func NewSession(id uuid.UUID) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		Turns:       []Turn{},
		Temperature: DefaultTemperature,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Initialize seeds the greeting when the turn sequence is empty.
func (s *Session) Initialize() {
	if s.Turns == nil {
		s.Turns = []Turn{}
	}
	if len(s.Turns) == 0 {
		s.Append(RoleAssistant, Greeting)
	}
}

func (s *Session) Append(role Role, text string) {
	s.Turns = append(s.Turns, Turn{Role: role, Text: text})
	s.UpdatedAt = time.Now().UTC()
}

// Reset clears the conversation and re-seeds the greeting in one step.
// The selected temperature survives a reset.
func (s *Session) Reset() {
	s.Turns = []Turn{}
	s.Initialize()
}

// SetTemperature stores v as-is. Callers clamp with ClampTemperature.
func (s *Session) SetTemperature(v float64) {
	s.Temperature = v
	s.UpdatedAt = time.Now().UTC()
}

// History returns a copy of the turns so callers cannot mutate the session.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.Turns))
	copy(out, s.Turns)
	return out
}

func ClampTemperature(v float64) float64 {
	if v < MinTemperature {
		return MinTemperature
	}
	if v > MaxTemperature {
		return MaxTemperature
	}
	return v
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply   string   `json:"reply"`
	Session *Session `json:"session"`
}

type TemperatureRequest struct {
	Temperature float64 `json:"temperature"`
}
