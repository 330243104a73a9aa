package classifier

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"leadflow/internal/constants"
	"leadflow/internal/models"
)

// ChatClient is the subset of the OpenAI client used by the AI classifier.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var errEmptyResponse = stderrors.New("classifier: empty AI response")

// AI classifies through an OpenAI-compatible chat completion endpoint.
type AI struct {
	client      ChatClient
	model       string
	temperature float32
	timeout     time.Duration
}

// NewAI builds an AI classifier from cfg. cfg.APIKey must be non-empty.
func NewAI(cfg models.AIConfig) *AI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return NewAIWithClient(openai.NewClientWithConfig(config), cfg)
}

// NewAIWithClient builds an AI classifier on an existing client.
func NewAIWithClient(client ChatClient, cfg models.AIConfig) *AI {
	model := cfg.Model
	if model == "" {
		model = constants.DefaultAIModel
	}
	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = constants.DefaultAITemperature
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultClassifierTimeoutSec * time.Second
	}
	return &AI{client: client, model: model, temperature: temperature, timeout: timeout}
}

// wireTemperature maps zero to the smallest positive float32, since the
// request encoder omits a zero temperature and the backend would apply its
// own default instead.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func (a *AI) Classify(ctx context.Context, text string, opts Options) (*models.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text, opts)},
		},
		Temperature: wireTemperature(a.temperature),
		MaxTokens:   constants.MaxAIResponseTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errEmptyResponse
	}
	return parseAIResponse(resp.Choices[0].Message.Content, text)
}

type aiResponse struct {
	Intent     string           `json:"intent"`
	Confidence *float64         `json:"confidence"`
	Sentiment  string           `json:"sentiment"`
	Urgency    string           `json:"urgency"`
	Entities   *models.Entities `json:"entities"`
	Summary    string           `json:"summary"`
}

// parseAIResponse validates the model output. Unknown intents and missing
// confidence are rejected; everything else is normalized.
func parseAIResponse(content, text string) (*models.ClassificationResult, error) {
	content = stripCodeFence(strings.TrimSpace(content))
	if content == "" {
		return nil, errEmptyResponse
	}

	var raw aiResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decode AI response: %w", err)
	}

	intent := models.Intent(strings.ToUpper(strings.TrimSpace(raw.Intent)))
	if !intent.Valid() {
		return nil, fmt.Errorf("AI returned unknown intent %q", raw.Intent)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("AI response missing confidence")
	}

	entities := emptyEntities()
	if raw.Entities != nil {
		entities.Products = nonNil(raw.Entities.Products)
		entities.Values = nonNil(raw.Entities.Values)
		entities.Dates = nonNil(raw.Entities.Dates)
		entities.OrderNumbers = nonNil(raw.Entities.OrderNumbers)
	}

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = summarize(text)
	}

	return &models.ClassificationResult{
		Intent:     intent,
		Confidence: clamp(*raw.Confidence),
		Sentiment:  normalizeSentiment(raw.Sentiment),
		Urgency:    normalizeUrgency(raw.Urgency),
		Entities:   entities,
		Summary:    summary,
		Source:     models.SourceAI,
	}, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func normalizeSentiment(s string) models.Sentiment {
	switch models.Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case models.SentimentPositive:
		return models.SentimentPositive
	case models.SentimentNegative:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func normalizeUrgency(s string) models.Urgency {
	switch models.Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case models.UrgencyHigh:
		return models.UrgencyHigh
	case models.UrgencyMedium:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

func nonNil(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
