package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// OpenAIClient talks to an OpenAI-compatible API for embeddings and chat
// completions. Calls go through a circuit breaker and are retried on
// transport errors, 429 and 5xx.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "OpenAI",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: logger.Named("openai"),
	}, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai error status %d: %s", e.code, e.body)
}

func retryableHTTP(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

func (c *OpenAIClient) post(ctx context.Context, path string, reqBody, out interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return retry.Do(
		func() error {
			_, err := c.cb.Execute(func() (interface{}, error) {
				httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
				if err != nil {
					return nil, fmt.Errorf("failed to create request: %w", err)
				}
				httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
				httpReq.Header.Set("Content-Type", "application/json")

				resp, err := c.client.Do(httpReq)
				if err != nil {
					return nil, fmt.Errorf("request failed: %w", err)
				}
				defer resp.Body.Close()

				body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
				if resp.StatusCode != http.StatusOK {
					return nil, &statusError{code: resp.StatusCode, body: string(body)}
				}
				if err := json.Unmarshal(body, out); err != nil {
					return nil, fmt.Errorf("failed to parse response: %w", err)
				}
				return nil, nil
			})
			return err
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableHTTP),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying openai call", zap.String("path", path), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embedding returns the embedding of text under model.
func (c *OpenAIClient) Embedding(ctx context.Context, model, text string) ([]float32, error) {
	var parsed embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Model: model, Input: text}, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai returned no embedding")
	}
	return parsed.Data[0].Embedding, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete runs one chat completion. With jsonMode the model is asked for a
// JSON object.
func (c *OpenAIClient) Complete(ctx context.Context, model, system, prompt string, jsonMode bool) (string, error) {
	req := chatRequest{
		Model:       model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	var parsed chatResponse
	if err := c.post(ctx, "/chat/completions", req, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned empty content")
	}
	return parsed.Choices[0].Message.Content, nil
}

// OpenAIEmbedder adapts the client to Embedder.
type OpenAIEmbedder struct {
	client *OpenAIClient
	model  string
}

func NewOpenAIEmbedder(client *OpenAIClient, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embedding(ctx, e.model, text)
}
