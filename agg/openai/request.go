package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/victhorio/arkchat/agg/core"
)

// requestBody is the body of a chat completions request. Every field is always sent, the
// upstream treats a missing temperature differently from an explicit zero.
type requestBody struct {
	Model       string  `json:"model"`
	Messages    []msg   `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type msg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func fromCoreMessages(messages []core.Msg) []msg {
	adapted := make([]msg, 0, len(messages))
	for _, m := range messages {
		adapted = append(adapted, msg{Role: string(m.Role), Content: m.Content})
	}
	return adapted
}

func (m *Model) newRequestBody(messages []core.Msg, stream bool) requestBody {
	return requestBody{
		Model:       m.model,
		Messages:    fromCoreMessages(messages),
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
		Stream:      stream,
	}
}

// post sends payload and returns the response when the status is 2xx. Otherwise the body is
// closed and a *core.StatusError is returned.
func (m *Model) post(ctx context.Context, client *http.Client, payload requestBody) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()

		// the body is only used for diagnostics, a failure to read it doesn't change the outcome
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &core.StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       snippet,
		}
	}

	return resp, nil
}

// CheckHealth probes {endpoint}/health. Any non-200 answer is reported as an error.
func (m *Model) CheckHealth(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("openai: build health request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &core.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
