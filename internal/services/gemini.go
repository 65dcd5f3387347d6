package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"tutorchat/internal/models"
)

// Gemini names the second speaker "model" rather than "assistant".
const geminiModelRole = "model"

// ErrEmptyReply means Gemini answered without any text part.
var ErrEmptyReply = errors.New("Gemini returned no text")

// ContextEntry is one role-tagged text part of a completion request.
type ContextEntry struct {
	Role models.Role
	Text string
}

// CompletionRequest is what a Generator sends upstream. It is never stored.
type CompletionRequest struct {
	Contents        []ContextEntry
	Temperature     float64
	MaxOutputTokens int32
}

// Generator issues one generation call and returns the reply text.
type Generator interface {
	Generate(ctx context.Context, req CompletionRequest) (string, error)
}

// GeminiGenerator talks to the Gemini API through generative-ai-go.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, logger: logger}, nil
}

func (g *GeminiGenerator) Close() {
	g.client.Close()
}

// Generate replays all but the last entry as chat history and sends the
// last entry as the new message.
func (g *GeminiGenerator) Generate(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Contents) == 0 {
		return "", fmt.Errorf("completion request has no contents")
	}

	history, last := splitContents(req.Contents)
	cs := g.configure(req).StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		g.logger.Debug("Gemini candidate",
			zap.Int("index", i),
			zap.String("finish_reason", cand.FinishReason.String()),
			zap.Int32("token_count", cand.TokenCount),
		)
		if cand.FinishReason != genai.FinishReasonStop {
			g.logger.Warn("Gemini stopped early", zap.String("finish_reason", cand.FinishReason.String()))
		}
	}

	text := extractText(resp)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// configure builds a model carrying this request's sampling settings.
// GenerativeModel holds its own config, so each call gets a fresh one.
func (g *GeminiGenerator) configure(req CompletionRequest) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(req.MaxOutputTokens)
	return model
}

// splitContents returns every entry but the last as chat history, and the
// last entry as the message to send. entries must not be empty.
func splitContents(entries []ContextEntry) ([]*genai.Content, genai.Text) {
	last := len(entries) - 1
	return toGeminiContents(entries[:last]), genai.Text(entries[last].Text)
}

func toGeminiContents(entries []ContextEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, len(entries))
	for _, e := range entries {
		role := string(e.Role)
		if e.Role == models.RoleAssistant {
			role = geminiModelRole
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(e.Text)},
		})
	}
	return contents
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}
