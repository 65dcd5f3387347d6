package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tutorchat/internal/middleware"
	"tutorchat/internal/models"
	"tutorchat/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

// serviceError maps a chat service failure to an HTTP status, error code
// and the message shown to the user.
func serviceError(err error) (int, string, string) {
	var ce *services.CompletionError
	switch {
	case errors.As(err, &ce):
		switch ce.Kind {
		case services.RetriableError:
			return http.StatusServiceUnavailable, "AI_ERROR", ce.UserMessage()
		case services.ConfigError:
			return http.StatusInternalServerError, "AI_ERROR", ce.UserMessage()
		default:
			return http.StatusBadGateway, "AI_ERROR", ce.UserMessage()
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "REQUEST_CANCELLED", "The request was cancelled before it finished. Please try again."
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again."
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := serviceError(err)
	writeJSON(w, status, errorResp(code, message, r))
}
