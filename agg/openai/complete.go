package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/victhorio/arkchat/agg/core"
)

// maxResponseBytes bounds how much of a non-streamed response we're willing to buffer.
const maxResponseBytes = 8 << 20

// Complete issues a single non-streaming request. Failures are returned unclassified: network
// errors as they come from the client, non-2xx answers as *core.StatusError and bodies that
// don't match the schema as *core.DecodeError.
func (m *Model) Complete(ctx context.Context, client *http.Client, messages []core.Msg) (core.ChatResult, error) {
	resp, err := m.post(ctx, client, m.newRequestBody(messages, false))
	if err != nil {
		return core.ChatResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.ChatResult{}, fmt.Errorf("openai: read response: %w", err)
	}

	var r completionRaw
	if err := json.Unmarshal(raw, &r); err != nil {
		return core.ChatResult{}, &core.DecodeError{Body: raw, Err: err}
	}
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return core.ChatResult{}, &core.DecodeError{Body: raw, Err: errors.New("response has no choices")}
	}

	message := r.Choices[0].Message
	result := core.ChatResult{
		Content:   message.Content,
		Reasoning: message.ReasoningContent,
	}
	if r.Usage != nil {
		usage := r.Usage.toCore()
		result.Usage = &usage
	}

	m.logger.Debug("openai completion", "model", m.model, "finish_reason", r.Choices[0].FinishReason)
	return result, nil
}

// Response types from the chat completions API

// completionRaw is a non-streamed response.
type completionRaw struct {
	Model   string      `json:"model"`
	Choices []choiceRaw `json:"choices"`
	Usage   *usageRaw   `json:"usage"`
}

type choiceRaw struct {
	Index        int         `json:"index"`
	Message      *messageRaw `json:"message,omitempty"`
	Delta        *messageRaw `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type messageRaw struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type usageRaw struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u *usageRaw) toCore() core.Usage {
	return core.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
