package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorchat/internal/models"
)

// fakeGenerator replays scripted results and records every request.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []CompletionRequest
	results  []fakeResult
	block    chan struct{}
}

type fakeResult struct {
	reply string
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var res fakeResult
	if len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	} else {
		res = fakeResult{reply: fmt.Sprintf("reply %d", len(f.requests))}
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return res.reply, res.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTutor(gen Generator, retries int) *TutorService {
	return NewTutorService(gen, zap.NewNop(), TutorOptions{
		ConcurrentReqs: 2,
		Timeout:        time.Second,
		MaxRetries:     retries,
		RetryBackoff:   time.Millisecond,
	})
}

func apiErr(t *testing.T, err error) error {
	t.Helper()
	ae, ok := apierror.FromError(err)
	require.True(t, ok)
	return fmt.Errorf("Gemini API error: %w", ae)
}

func TestWrapMessage(t *testing.T) {
	wrapped := WrapMessage("give an example")

	assert.Contains(t, wrapped, "friendly programming tutor")
	assert.Contains(t, wrapped, "bring the conversation back to programming")
	assert.Contains(t, wrapped, "\n\nUser message:\n")
	assert.True(t, strings.HasSuffix(wrapped, `"""give an example"""`))
}

func TestBuildContext_RequestShaping(t *testing.T) {
	history := []models.Turn{
		{Role: models.RoleAssistant, Text: "Hi! How can I help you?"},
		{Role: models.RoleUser, Text: "What is a loop?"},
	}

	entries := BuildContext(history, "give an example")

	require.Len(t, entries, 3)
	assert.Equal(t, ContextEntry{Role: models.RoleAssistant, Text: "Hi! How can I help you?"}, entries[0])
	assert.Equal(t, ContextEntry{Role: models.RoleUser, Text: "What is a loop?"}, entries[1])
	assert.Equal(t, models.RoleUser, entries[2].Role)
	assert.Contains(t, entries[2].Text, "You are a friendly programming tutor.")
	assert.True(t, strings.HasSuffix(entries[2].Text, `"""give an example"""`))
}

func TestBuildContext_DoesNotMutateHistory(t *testing.T) {
	history := []models.Turn{{Role: models.RoleAssistant, Text: models.Greeting}}
	BuildContext(history, "hi")
	assert.Equal(t, []models.Turn{{Role: models.RoleAssistant, Text: models.Greeting}}, history)
}

func TestTutorService_Complete(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{reply: "Recursion is a function calling itself."}}}
	tutor := newTutor(gen, 0)

	history := []models.Turn{{Role: models.RoleAssistant, Text: models.Greeting}}
	reply, err := tutor.Complete(context.Background(), history, "explain recursion", 0.7)

	require.NoError(t, err)
	assert.Equal(t, "Recursion is a function calling itself.", reply)
	require.Len(t, gen.requests, 1)
	assert.Equal(t, int32(MaxOutputTokens), gen.requests[0].MaxOutputTokens)
	assert.Len(t, gen.requests[0].Contents, 2)
}

func TestTutorService_TemperaturePassThrough(t *testing.T) {
	for _, temp := range []float64{0, 0.1, 0.5, 1, 1.37, 2} {
		gen := &fakeGenerator{}
		tutor := newTutor(gen, 0)

		_, err := tutor.Complete(context.Background(), nil, "hi", temp)
		require.NoError(t, err)
		assert.Equal(t, temp, gen.requests[0].Temperature)
	}
}

func TestTutorService_RetriesRetriableErrors(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		{err: apiErr(t, &googleapi.Error{Code: 429, Message: "quota"})},
		{err: apiErr(t, &googleapi.Error{Code: 503, Message: "overloaded"})},
		{reply: "finally"},
	}}
	tutor := newTutor(gen, 2)

	reply, err := tutor.Complete(context.Background(), nil, "hi", 1)
	require.NoError(t, err)
	assert.Equal(t, "finally", reply)
	assert.Equal(t, 3, gen.calls())
}

func TestTutorService_GivesUpAfterMaxRetries(t *testing.T) {
	quota := apiErr(t, &googleapi.Error{Code: 429, Message: "quota"})
	gen := &fakeGenerator{results: []fakeResult{{err: quota}, {err: quota}, {err: quota}}}
	tutor := newTutor(gen, 1)

	_, err := tutor.Complete(context.Background(), nil, "hi", 1)

	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RetriableError, ce.Kind)
	assert.Equal(t, 2, gen.calls())
}

func TestTutorService_DoesNotRetryTerminalErrors(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{err: apiErr(t, &googleapi.Error{Code: 400, Message: "bad"})}}}
	tutor := newTutor(gen, 3)

	_, err := tutor.Complete(context.Background(), nil, "hi", 1)

	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, TerminalError, ce.Kind)
	assert.Equal(t, 1, gen.calls())
}

func TestTutorService_TimeoutIsRetriable(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	tutor := NewTutorService(gen, zap.NewNop(), TutorOptions{ConcurrentReqs: 1, Timeout: 20 * time.Millisecond})

	_, err := tutor.Complete(context.Background(), nil, "hi", 1)

	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, RetriableError, ce.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTutorService_CallerCancellation(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	tutor := newTutor(gen, 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := tutor.Complete(ctx, nil, "hi", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.calls())
}

func TestTutorService_ConcurrencyBucket(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	tutor := NewTutorService(gen, zap.NewNop(), TutorOptions{ConcurrentReqs: 1})

	done := make(chan struct{})
	go func() {
		tutor.Complete(context.Background(), nil, "first", 1)
		close(done)
	}()
	require.Eventually(t, func() bool { return gen.calls() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := tutor.Complete(ctx, nil, "second", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, gen.calls())

	close(gen.block)
	<-done
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"quota", apiErr(t, &googleapi.Error{Code: 429}), RetriableError},
		{"server error", apiErr(t, &googleapi.Error{Code: 500}), RetriableError},
		{"bad key", apiErr(t, &googleapi.Error{Code: 401}), ConfigError},
		{"forbidden", apiErr(t, &googleapi.Error{Code: 403}), ConfigError},
		{"bad request", apiErr(t, &googleapi.Error{Code: 400}), TerminalError},
		{"grpc unavailable", apiErr(t, status.Error(codes.Unavailable, "down")), RetriableError},
		{"grpc exhausted", apiErr(t, status.Error(codes.ResourceExhausted, "quota")), RetriableError},
		{"grpc unauthenticated", apiErr(t, status.Error(codes.Unauthenticated, "key")), ConfigError},
		{"grpc invalid", apiErr(t, status.Error(codes.InvalidArgument, "bad")), TerminalError},
		{"invalid api key", apiErr(t, invalidKeyStatus(t)), ConfigError},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), RetriableError},
		{"canceled", context.Canceled, TerminalError},
		{"empty reply", ErrEmptyReply, TerminalError},
		{"blocked", &genai.BlockedError{}, TerminalError},
		{"unknown", errors.New("boom"), TerminalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ce := classify(tc.err)
			assert.Equal(t, tc.want, ce.Kind)
			assert.ErrorIs(t, ce, tc.err)
		})
	}
}

func invalidKeyStatus(t *testing.T) error {
	t.Helper()
	st, err := status.New(codes.InvalidArgument, "API key not valid. Please pass a valid API key.").
		WithDetails(&errdetails.ErrorInfo{Reason: "API_KEY_INVALID", Domain: "googleapis.com"})
	require.NoError(t, err)
	return st.Err()
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := &CompletionError{Kind: ConfigError, Err: errors.New("x")}
	assert.Same(t, orig, classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestCompletionError_UserMessage(t *testing.T) {
	for _, kind := range []ErrorKind{TerminalError, RetriableError, ConfigError} {
		msg := (&CompletionError{Kind: kind, Err: errors.New("x")}).UserMessage()
		assert.True(t, strings.HasPrefix(msg, "Sorry"), kind.String())
	}
}
