package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const SessionIDKey contextKey = "session_id"

// SessionCookieName holds the server-issued session ID.
const SessionCookieName = "tutorchat_session"

// SessionCookies issues and reads the session cookie.
type SessionCookies struct {
	Secure bool
	MaxAge time.Duration
}

func NewSessionCookies(secure bool, maxAge time.Duration) *SessionCookies {
	return &SessionCookies{Secure: secure, MaxAge: maxAge}
}

// Middleware attaches the session ID to the request context, issuing a
// fresh one when the cookie is missing or malformed.
func (c *SessionCookies) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID uuid.UUID
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			if id, err := uuid.Parse(cookie.Value); err == nil {
				sessionID = id
			}
		}

		if sessionID == uuid.Nil {
			sessionID = uuid.New()
		}

		// Refresh on every request so the cookie outlives active use.
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    sessionID.String(),
			Path:     "/",
			MaxAge:   int(c.MaxAge.Seconds()),
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionID extracts the session ID from request context
func GetSessionID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(SessionIDKey).(uuid.UUID)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
