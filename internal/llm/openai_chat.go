// Package llm provides the chat model adapter shared by the resume
// structurer, the compatibility scorer and the query refiner, together
// with helpers for digging structured JSON out of model responses.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultChatCompletionsURL = "https://api.openai.com/v1/chat/completions"

// OpenAIChatModel talks to an OpenAI-compatible chat completions endpoint
// and implements the eino model.ToolCallingChatModel interface so the
// pipeline components stay decoupled from any one provider.
type OpenAIChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// ChatOption configures an OpenAIChatModel.
type ChatOption func(*OpenAIChatModel)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ChatOption {
	return func(m *OpenAIChatModel) {
		m.temperature = t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ChatOption {
	return func(m *OpenAIChatModel) {
		m.maxTokens = n
	}
}

// WithHTTPClient replaces the default HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) ChatOption {
	return func(m *OpenAIChatModel) {
		m.httpClient = c
	}
}

// NewOpenAIChatModel builds a chat model client. modelName and apiURL fall
// back to sensible defaults when empty; the API key is required.
func NewOpenAIChatModel(apiKey, modelName, apiURL string, options ...ChatOption) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("llm: API key must not be empty")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultChatCompletionsURL
	}
	m := &OpenAIChatModel{
		apiKey:      apiKey,
		modelName:   modelName,
		apiURL:      apiURL,
		temperature: 0.3,
		httpClient:  &http.Client{},
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Generate implements model.ChatModel.
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqPayload := chatCompletionRequest{
		Model:       m.modelName,
		Messages:    messages,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: send request: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var ae chatCompletionResponse
		if json.Unmarshal(bodyBytes, &ae) == nil && ae.Error != nil && ae.Error.Message != "" {
			return nil, fmt.Errorf("llm: API request failed, status %d, type %s: %s", httpResp.StatusCode, ae.Error.Type, ae.Error.Message)
		}
		return nil, fmt.Errorf("llm: API request failed, status %s: %s", httpResp.Status, string(bodyBytes))
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("llm: unmarshal response: %w, body: %s", err, string(bodyBytes))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty choices in API response: %s", string(bodyBytes))
	}

	apiMessage := resp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}
	return result, nil
}

// Stream is not needed by the matching pipeline.
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("llm: Stream is not implemented for OpenAIChatModel")
}

// BindTools satisfies model.ChatModel; the pipeline issues plain prompt
// calls only, so there is nothing to bind.
func (m *OpenAIChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) > 0 {
		return fmt.Errorf("llm: tool calling is not supported by OpenAIChatModel")
	}
	return nil
}

// WithTools satisfies model.ToolCallingChatModel.
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := m.BindTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

var _ model.ChatModel = (*OpenAIChatModel)(nil)
var _ model.ToolCallingChatModel = (*OpenAIChatModel)(nil)
