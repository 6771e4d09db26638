// Package ai generates assistant replies. The Gemini client is optional;
// without an API key the assistant module only keeps the conversation log.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/xelth-com/modspace/internal/schema"
)

const DefaultModel = "gemini-2.0-flash"

var ErrEmptyReply = errors.New("empty response from gemini")

// Request is one turn of a conversation
type Request struct {
	SystemPrompt string
	// History is the conversation before Message, oldest first
	History     []schema.ChatMessage
	Message     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Reply is the generated answer
type Reply struct {
	Text   string
	Model  string
	Tokens int
}

// Replier produces assistant replies
type Replier interface {
	Reply(ctx context.Context, req Request) (Reply, error)
}

// GeminiClient interacts with Google Gemini API using the official SDK
type GeminiClient struct {
	client       *genai.Client
	defaultModel string
	log          *zap.Logger
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(ctx context.Context, apiKey, modelName string, log *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if modelName == "" {
		modelName = DefaultModel
	}

	return &GeminiClient{
		client:       client,
		defaultModel: modelName,
		log:          log.Named("gemini"),
	}, nil
}

// Close closes the client connection
func (c *GeminiClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Reply sends the conversation to Gemini. Model names that are not Gemini
// models (documents seeded with other providers' names) use the default.
func (c *GeminiClient) Reply(ctx context.Context, req Request) (Reply, error) {
	name := c.modelFor(req.Model)
	model := c.client.GenerativeModel(name)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}

	cs := model.StartChat()
	cs.History = History(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return Reply{}, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Reply{}, ErrEmptyReply
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return Reply{}, ErrEmptyReply
	}

	out := Reply{Text: sb.String(), Model: name}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	c.log.Debug("reply generated", zap.String("model", name), zap.Int("tokens", out.Tokens))
	return out, nil
}

func (c *GeminiClient) modelFor(requested string) string {
	if strings.HasPrefix(requested, "gemini") {
		return requested
	}
	return c.defaultModel
}

// History converts a stored conversation into Gemini chat history. Gemini
// knows the roles user and model only; other entries are skipped.
func History(msgs []schema.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role string
		switch m.Role {
		case "user":
			role = "user"
		case "assistant", "model":
			role = "model"
		default:
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

// Trim keeps the last limit messages. A limit of zero or less keeps none.
func Trim(msgs []schema.ChatMessage, limit int) []schema.ChatMessage {
	if limit <= 0 {
		return nil
	}
	if len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
