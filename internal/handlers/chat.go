package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tutorchat/internal/middleware"
	"tutorchat/internal/models"
	"tutorchat/internal/web"
	"tutorchat/internal/websocket"
)

type chatService interface {
	Open(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Send(ctx context.Context, id uuid.UUID, message string) (*models.Session, string, error)
	Reset(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SetTemperature(ctx context.Context, id uuid.UUID, v float64) (*models.Session, error)
}

type ChatHandler struct {
	chat     chatService
	renderer *web.Renderer
	hub      *websocket.Hub
	logger   *zap.Logger
}

func NewChatHandler(chat chatService, renderer *web.Renderer, hub *websocket.Hub, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		renderer: renderer,
		hub:      hub,
		logger:   logger,
	}
}

// ──── HTML ────

func (h *ChatHandler) Page(w http.ResponseWriter, r *http.Request) {
	sess, err := h.chat.Open(r.Context(), middleware.GetSessionID(r.Context()))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.ChatPage{Session: sess})
}

func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	message := r.FormValue("message")

	if strings.TrimSpace(message) == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess, _, err := h.chat.Send(r.Context(), sessionID, message)
	if err != nil {
		status, _, userMsg := serviceError(err)
		if sess == nil {
			if sess, err = h.chat.Open(r.Context(), sessionID); err != nil {
				h.renderError(w, r, err)
				return
			}
		}
		h.render(w, r, status, web.ChatPage{Session: sess, Error: userMsg, Draft: message})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ChatHandler) PostReset(w http.ResponseWriter, r *http.Request) {
	if _, err := h.chat.Reset(r.Context(), middleware.GetSessionID(r.Context())); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ChatHandler) PostTemperature(w http.ResponseWriter, r *http.Request) {
	v, err := strconv.ParseFloat(r.FormValue("temperature"), 64)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if _, err := h.chat.SetTemperature(r.Context(), middleware.GetSessionID(r.Context()), v); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *ChatHandler) render(w http.ResponseWriter, r *http.Request, status int, page web.ChatPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.renderer.RenderChat(w, page); err != nil {
		h.logger.Error("failed to render chat page", zap.Error(err))
	}
}

func (h *ChatHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _, message := serviceError(err)
	h.logger.Error("chat page failed",
		zap.String("request_id", r.Header.Get(middleware.RequestIDHeader)),
		zap.Error(err),
	)
	http.Error(w, message, status)
}

// ──── JSON API ────

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.chat.Open(r.Context(), middleware.GetSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *ChatHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}

	sess, reply, err := h.chat.Send(r.Context(), middleware.GetSessionID(r.Context()), req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply, Session: sess})
}

func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.chat.Reset(r.Context(), middleware.GetSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *ChatHandler) SetTemperature(w http.ResponseWriter, r *http.Request) {
	var req models.TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	sess, err := h.chat.SetTemperature(r.Context(), middleware.GetSessionID(r.Context()), req.Temperature)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
