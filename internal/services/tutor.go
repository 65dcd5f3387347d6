package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tutorchat/internal/models"
)

const (
	// MaxOutputTokens caps every reply.
	MaxOutputTokens = 1000

	tutorInstruction = `
You are a friendly programming tutor.
Always explain concepts in a simple and clear way, using examples when possible.
If the user asks something unrelated to programming, politely bring the conversation back to programming topics.
`
	defaultRetryBackoff = time.Second
)

// WrapMessage prefixes message with the tutor instruction and quotes it.
// Only the model sees this form; the session stores the raw message.
func WrapMessage(message string) string {
	return fmt.Sprintf("%s\n\nUser message:\n\"\"\"%s\"\"\"", tutorInstruction, message)
}

// BuildContext returns history unchanged followed by the wrapped message
// as a final user entry.
func BuildContext(history []models.Turn, message string) []ContextEntry {
	entries := make([]ContextEntry, 0, len(history)+1)
	for _, t := range history {
		entries = append(entries, ContextEntry{Role: t.Role, Text: t.Text})
	}
	return append(entries, ContextEntry{Role: models.RoleUser, Text: WrapMessage(message)})
}

type TutorOptions struct {
	ConcurrentReqs int
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// TutorService turns a conversation and a new message into a tutor reply.
// It holds no conversation state.
type TutorService struct {
	generator  Generator
	logger     *zap.Logger
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	rateChan   chan struct{} // Token bucket
}

func NewTutorService(generator Generator, logger *zap.Logger, opts TutorOptions) *TutorService {
	if opts.ConcurrentReqs < 1 {
		opts.ConcurrentReqs = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}

	rateChan := make(chan struct{}, opts.ConcurrentReqs)
	for i := 0; i < opts.ConcurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &TutorService{
		generator:  generator,
		logger:     logger,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		rateChan:   rateChan,
	}
}

// acquireRate blocks until a rate slot is available
func (s *TutorService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TutorService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Complete asks the model for the next assistant reply. Failures are
// always *CompletionError; retriable ones are retried before returning.
func (s *TutorService) Complete(ctx context.Context, history []models.Turn, message string, temperature float64) (string, error) {
	req := CompletionRequest{
		Contents:        BuildContext(history, message),
		Temperature:     temperature,
		MaxOutputTokens: MaxOutputTokens,
	}

	var lastErr *CompletionError
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * s.backoff
			s.logger.Warn("retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr.Err),
			)
			select {
			case <-ctx.Done():
				return "", classify(ctx.Err())
			case <-time.After(wait):
			}
		}

		reply, err := s.generate(ctx, req)
		if err == nil {
			s.logger.Debug("completion succeeded",
				zap.Int("context_entries", len(req.Contents)),
				zap.Float64("temperature", temperature),
				zap.Int("reply_length", len(reply)),
			)
			return reply, nil
		}

		lastErr = classify(err)
		if !lastErr.Retriable() || ctx.Err() != nil {
			break
		}
	}

	s.logger.Error("completion failed",
		zap.String("kind", lastErr.Kind.String()),
		zap.Error(lastErr.Err),
	)
	return "", lastErr
}

func (s *TutorService) generate(ctx context.Context, req CompletionRequest) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.generator.Generate(ctx, req)
}
