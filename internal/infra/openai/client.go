package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ErrEmptyResponse — модель не вернула ни одного варианта ответа.
var ErrEmptyResponse = errors.New("openai: empty response")

// Client выполняет Chat Completions запросы через OpenAI-совместимый API.
type Client struct {
	client *openai.Client
	apiKey string
}

// NewClient создаёт клиента OpenAI. httpClient может быть nil.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Client{client: openai.NewClientWithConfig(cfg), apiKey: apiKey}
}

// Complete отправляет пару system/user сообщений и возвращает текст первого варианта.
// Ошибки, которые не имеет смысла повторять, помечаются domain.MarkPermanent.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", domain.MarkPermanent(fmt.Errorf("openai: api key is empty"))
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	metrics.ObserveNetworkRequest("openai", "chat_completions", model, start, err)
	if err != nil {
		return "", classify(err)
	}
	metrics.ObserveLLMGeneration(model, time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// classify отделяет постоянные ошибки API от временных.
func classify(err error) error {
	wrapped := fmt.Errorf("openai: chat completion: %w", err)
	if IsPermanentStatus(statusCode(err)) {
		return domain.MarkPermanent(wrapped)
	}
	return wrapped
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// IsPermanentStatus сообщает, что HTTP статус не изменится при повторе.
// 408, 409, 429 и 5xx считаются временными.
func IsPermanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
