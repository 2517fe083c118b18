// Package oracle classifies candidate articles with an OpenAI-compatible
// chat completion service.
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

	"github.com/pders01/newsroom/internal/apperr"
	"github.com/pders01/newsroom/internal/config"
)

// Completer sends one system/user exchange and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// ChatClient implements Completer against a chat completions endpoint.
type ChatClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Completer = (*ChatClient)(nil)

// NewChatClient builds a client from configuration.
func NewChatClient(cfg config.OracleConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *ChatClient) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete posts one exchange. Transport failures, error statuses and empty
// replies are ErrExternalService.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	const op = "oracle.complete"
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", apperr.External(op, errors.New("chat client misconfigured"))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", apperr.External(op, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperr.External(op, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.External(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperr.External(op, fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(payload))))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.External(op, fmt.Errorf("decode response: %w", err))
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", apperr.External(op, errors.New(out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", apperr.External(op, errors.New("no choices in response"))
	}
	return out.Choices[0].Message.Content, nil
}
