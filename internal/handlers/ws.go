package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tutorchat/internal/middleware"
	"tutorchat/internal/models"
	"tutorchat/internal/websocket"
)

// wsFrame is an inbound WebSocket frame; Payload depends on Type.
type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// pendingFrames bounds how many frames one connection may queue behind a
// running completion.
const pendingFrames = 16

// WebSocket attaches the browser to its session. Frames from one connection
// run strictly in arrival order; results reach every tab of the session
// through the hub. Closing the socket cancels any completion it started.
func (h *ChatHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	sess, err := h.chat.Open(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	client, err := h.hub.Upgrade(w, r, sessionID)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// The request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	client.Send(models.WSMessage{Type: models.WSTypeSession, Payload: sess})

	frames := make(chan wsFrame, pendingFrames)

	go func() {
		for frame := range frames {
			h.handleFrame(ctx, sessionID, client, frame)
		}
	}()

	go func() {
		defer h.hub.Unregister(sessionID, client)
		defer close(frames)
		defer cancel()
		for {
			data, err := client.ReadMessage()
			if err != nil {
				return
			}

			var frame wsFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				sendWSError(client, "VALIDATION_ERROR", "Invalid frame")
				continue
			}

			// Never block here: the read loop must keep running to see the
			// socket close.
			select {
			case frames <- frame:
			default:
				sendWSError(client, "TOO_MANY_PENDING", "Wait for the current reply before sending more")
			}
		}
	}()
}

func (h *ChatHandler) handleFrame(ctx context.Context, sessionID uuid.UUID, client *websocket.Client, frame wsFrame) {
	var err error

	switch frame.Type {
	case models.WSTypeMessage:
		var req models.ChatRequest
		if json.Unmarshal(frame.Payload, &req) != nil || strings.TrimSpace(req.Message) == "" {
			sendWSError(client, "VALIDATION_ERROR", "Message is required")
			return
		}
		_, _, err = h.chat.Send(ctx, sessionID, req.Message)

	case models.WSTypeReset:
		_, err = h.chat.Reset(ctx, sessionID)

	case models.WSTypeTemperature:
		var req models.TemperatureRequest
		if json.Unmarshal(frame.Payload, &req) != nil {
			sendWSError(client, "VALIDATION_ERROR", "Invalid temperature")
			return
		}
		_, err = h.chat.SetTemperature(ctx, sessionID, req.Temperature)

	default:
		sendWSError(client, "VALIDATION_ERROR", "Unknown frame type")
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_, code, message := serviceError(err)
		sendWSError(client, code, message)
	}
}

func sendWSError(client *websocket.Client, code, message string) {
	client.Send(models.WSMessage{
		Type:    models.WSTypeError,
		Payload: models.ErrorEvent{ErrorCode: code, ErrorMessage: message},
	})
}
