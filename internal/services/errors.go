package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"
)

// ErrorKind classifies a failed completion.
type ErrorKind int

const (
	// TerminalError will fail again if retried unchanged.
	TerminalError ErrorKind = iota
	// RetriableError is transient: quota, overload, timeouts.
	RetriableError
	// ConfigError means the credential or model setting is wrong.
	ConfigError
)

func (k ErrorKind) String() string {
	switch k {
	case RetriableError:
		return "retriable"
	case ConfigError:
		return "config"
	default:
		return "terminal"
	}
}

// CompletionError is the only error type returned by TutorService.Complete.
type CompletionError struct {
	Kind ErrorKind
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed (%s): %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

func (e *CompletionError) Retriable() bool { return e.Kind == RetriableError }

// UserMessage is the apology shown in the chat when the call fails.
func (e *CompletionError) UserMessage() string {
	switch e.Kind {
	case RetriableError:
		return "Sorry, the tutor is busy right now. Please try sending your message again in a moment."
	case ConfigError:
		return "Sorry, the tutor is not configured correctly. Please contact the site administrator."
	default:
		return "Sorry, I couldn't answer that message. Please try rephrasing it."
	}
}

// classify wraps err in a CompletionError. Already classified errors pass through.
func classify(err error) *CompletionError {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}

	kind := TerminalError
	var (
		blocked *genai.BlockedError
		ae      *apierror.APIError
		ne      net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = RetriableError
	case errors.Is(err, context.Canceled), errors.Is(err, ErrEmptyReply), errors.As(err, &blocked):
		kind = TerminalError
	case errors.As(err, &ae):
		kind = classifyAPIError(ae)
	case errors.As(err, &ne) && ne.Timeout():
		kind = RetriableError
	default:
		// raw gRPC status or googleapi errors that were not wrapped by gax
		if parsed, ok := apierror.FromError(err); ok {
			kind = classifyAPIError(parsed)
		}
	}
	return &CompletionError{Kind: kind, Err: err}
}

// Gemini rejects a bad key as a 400 INVALID_ARGUMENT carrying this reason.
const reasonAPIKeyInvalid = "API_KEY_INVALID"

func classifyAPIError(ae *apierror.APIError) ErrorKind {
	if ae.Reason() == reasonAPIKeyInvalid {
		return ConfigError
	}

	if code := ae.HTTPCode(); code > 0 {
		switch {
		case code == http.StatusTooManyRequests, code >= 500:
			return RetriableError
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			return ConfigError
		default:
			return TerminalError
		}
	}

	if st := ae.GRPCStatus(); st != nil {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return RetriableError
		case codes.Unauthenticated, codes.PermissionDenied:
			return ConfigError
		}
	}
	return TerminalError
}
