package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"leadflow/internal/constants"
	"leadflow/internal/models"
)

type mockChatClient struct {
	mock.Mock
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

const validAIJSON = `{"intent":"purchase_intent","confidence":0.93,"sentiment":"Positive","urgency":"high",
"entities":{"products":["10 correias A42"],"values":[],"dates":["amanhã"],"order_numbers":null},
"summary":"Cliente quer comprar correias"}`

func TestAI_Classify(t *testing.T) {
	client := &mockChatClient{}
	client.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "test-model" &&
			req.ResponseFormat != nil &&
			req.ResponseFormat.Type == openai.ChatCompletionResponseFormatTypeJSONObject &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem
	})).Return(chatResponse(validAIJSON), nil).Once()

	ai := NewAIWithClient(client, models.AIConfig{Model: "test-model"})
	result, err := ai.Classify(context.Background(), "Quero comprar 10 correias A42 para amanhã", Options{CustomerName: "Ana"})
	require.NoError(t, err)

	assert.Equal(t, models.IntentPurchaseIntent, result.Intent)
	assert.Equal(t, 0.93, result.Confidence)
	assert.Equal(t, models.SentimentPositive, result.Sentiment)
	assert.Equal(t, models.UrgencyHigh, result.Urgency)
	assert.Equal(t, []string{"10 correias A42"}, result.Entities.Products)
	assert.Equal(t, []string{}, result.Entities.OrderNumbers)
	assert.Equal(t, models.SourceAI, result.Source)
	client.AssertExpectations(t)
}

func TestAI_ClassifyTemperature(t *testing.T) {
	cases := []struct {
		name string
		cfg  float32
		want float32
	}{
		{"zero is deterministic", 0, math.SmallestNonzeroFloat32},
		{"configured value", 0.7, 0.7},
		{"negative falls back to default", -1, constants.DefaultAITemperature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockChatClient{}
			client.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
				return req.Temperature == tc.want
			})).Return(chatResponse(validAIJSON), nil).Once()

			_, err := NewAIWithClient(client, models.AIConfig{Temperature: tc.cfg}).Classify(context.Background(), "oi", Options{})
			require.NoError(t, err)
			client.AssertExpectations(t)
		})
	}
}

func TestAI_ZeroTemperatureReachesTheWire(t *testing.T) {
	client := &mockChatClient{}
	var sent openai.ChatCompletionRequest
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(openai.ChatCompletionRequest) }).
		Return(chatResponse(validAIJSON), nil).Once()

	_, err := NewAIWithClient(client, models.AIConfig{Temperature: 0}).Classify(context.Background(), "oi", Options{})
	require.NoError(t, err)

	body, err := json.Marshal(sent)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Contains(t, decoded, "temperature")
	assert.InDelta(t, 0, decoded["temperature"], 1e-30)
}

func TestAI_ClassifyTransportError(t *testing.T) {
	client := &mockChatClient{}
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("429 rate limited"))

	_, err := NewAIWithClient(client, models.AIConfig{}).Classify(context.Background(), "oi", Options{})
	assert.ErrorContains(t, err, "rate limited")
}

func TestAI_ClassifyNoChoices(t *testing.T) {
	client := &mockChatClient{}
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, nil)

	_, err := NewAIWithClient(client, models.AIConfig{}).Classify(context.Background(), "oi", Options{})
	assert.ErrorIs(t, err, errEmptyResponse)
}

func TestParseAIResponse(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantErr    bool
		intent     models.Intent
		confidence float64
		sentiment  models.Sentiment
		urgency    models.Urgency
	}{
		{
			name:       "code fenced",
			content:    "```json\n{\"intent\":\"COMPLAINT\",\"confidence\":0.8,\"sentiment\":\"negative\",\"urgency\":\"medium\"}\n```",
			intent:     models.IntentComplaint,
			confidence: 0.8,
			sentiment:  models.SentimentNegative,
			urgency:    models.UrgencyMedium,
		},
		{
			name:       "confidence clamped high",
			content:    `{"intent":"GREETING","confidence":7,"sentiment":"happy","urgency":"whenever"}`,
			intent:     models.IntentGreeting,
			confidence: 1,
			sentiment:  models.SentimentNeutral,
			urgency:    models.UrgencyLow,
		},
		{
			name:       "confidence clamped low",
			content:    `{"intent":"THANKS","confidence":-0.4}`,
			intent:     models.IntentThanks,
			confidence: 0,
			sentiment:  models.SentimentNeutral,
			urgency:    models.UrgencyLow,
		},
		{name: "unknown intent", content: `{"intent":"BUY_NOW","confidence":0.9}`, wantErr: true},
		{name: "missing confidence", content: `{"intent":"GREETING"}`, wantErr: true},
		{name: "not json", content: "GREETING", wantErr: true},
		{name: "empty", content: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseAIResponse(tt.content, "mensagem original")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.intent, result.Intent)
			assert.Equal(t, tt.confidence, result.Confidence)
			assert.Equal(t, tt.sentiment, result.Sentiment)
			assert.Equal(t, tt.urgency, result.Urgency)
			assert.Equal(t, "mensagem original", result.Summary)
			assert.NotNil(t, result.Entities.Products)
		})
	}
}

func TestUserPrompt(t *testing.T) {
	prompt := userPrompt("tem correia?", Options{
		CustomerName:    "Ana",
		ContextMessages: []string{"bom dia", "preciso de peças"},
	})

	assert.Contains(t, prompt, "Cliente: Ana")
	assert.Contains(t, prompt, "- preciso de peças")
	assert.Contains(t, prompt, "tem correia?")
	assert.Contains(t, systemPrompt(), "QUOTE_REQUEST")
}
