package openai

import (
	"io"
	"log/slog"
)

// Params is everything needed to talk to one OpenAI compatible chat completions endpoint
// for one model.
type Params struct {
	// Endpoint is the full chat completions URL.
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Model holds the request settings shared by the whole-response and the streaming paths.
type Model struct {
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// NewModel creates a new Model. A nil logger discards everything.
func NewModel(p Params, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Model{
		endpoint:    p.Endpoint,
		apiKey:      p.APIKey,
		model:       p.Model,
		maxTokens:   p.MaxTokens,
		temperature: p.Temperature,
		logger:      logger,
	}
}

func (m *Model) ID() string {
	return m.model
}
