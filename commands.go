package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/victhorio/arkchat/agg"
	"github.com/victhorio/arkchat/agg/core"
	"github.com/victhorio/arkchat/agg/models"
	"github.com/victhorio/arkchat/prompts"
)

const historyPreviewWidth = 72

const helpText = `commands:
  /clear           forget the conversation, keep the system prompt
  /history         show the conversation so far
  /usage           token usage of this session and overall
  /health          probe the upstream
  /models          list the known models
  /model <key>     switch model for the next requests
  /prompt <name>   switch system prompt, a catalog name or literal text
  :q               quit`

type totaler interface {
	Totals() (core.Usage, error)
}

// command runs input when it is a command. ok is false for regular chat input.
func (a *app) command(ctx context.Context, input string) (out string, quit bool, ok bool) {
	switch input {
	case ":q", "quit", "exit", "/quit":
		return "", true, true
	}
	if !strings.HasPrefix(input, "/") {
		return "", false, false
	}

	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help":
		return helpText, false, true

	case "/clear":
		a.session.ClearHistory()
		a.logger.Info("history cleared", "session", a.session.ID())
		return "conversation cleared", false, true

	case "/history":
		return a.historyText(), false, true

	case "/usage":
		return a.usageText(), false, true

	case "/health":
		if a.client.CheckHealth(ctx) {
			return "upstream is healthy", false, true
		}
		return "upstream is not reachable, see the log for details", false, true

	case "/models":
		return a.modelsText(), false, true

	case "/model":
		if arg == "" {
			return "current model: " + a.client.Config().Model, false, true
		}
		a.client.UpdateConfig(func(c *agg.Config) { c.Model = arg })
		a.logger.Info("model switched", "model", arg)
		if _, known := models.Default().Lookup(arg); !known {
			return fmt.Sprintf("model set to %s (not in the catalog, sent as is)", arg), false, true
		}
		return "model set to " + arg, false, true

	case "/prompt":
		if arg == "" {
			return "prompts: " + strings.Join(prompts.Names(), ", "), false, true
		}
		a.sysPrompt = prompts.Resolve(arg)
		a.session.SetSystemPrompt(a.sysPrompt)
		return "system prompt updated", false, true
	}

	return fmt.Sprintf("unknown command %s, try /help", name), false, true
}

func (a *app) historyText() string {
	var b strings.Builder
	for _, m := range a.session.History() {
		if m.IsSystem() {
			continue
		}
		line := strings.Join(strings.Fields(m.Content), " ")
		fmt.Fprintf(&b, "%-9s %s\n", m.Role+":", runewidth.Truncate(line, historyPreviewWidth, "…"))
	}
	if b.Len() == 0 {
		return "no messages yet"
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *app) usageText() string {
	u := a.usage.Usage(a.session.ID())
	out := fmt.Sprintf("session: %d prompt + %d completion = %d tokens",
		u.PromptTokens, u.CompletionTokens, u.TotalTokens)

	if t, ok := a.usage.(totaler); ok {
		total, err := t.Totals()
		if err != nil {
			a.logger.Warn("failed to read usage totals", "err", err)
			return out
		}
		out += fmt.Sprintf("\noverall: %d tokens", total.TotalTokens)
	}
	if s, ok := a.usage.(*agg.SQLiteStore); ok {
		if n, err := s.Requests(a.session.ID()); err == nil {
			out += fmt.Sprintf(", %d requests this session", n)
		}
	}
	return out
}

func (a *app) modelsText() string {
	current := a.client.Config().Model

	var b strings.Builder
	for _, d := range models.Default().List("") {
		marker := "  "
		if d.Key == current || d.UpstreamID == current {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%-22s %s\n", marker, d.Key, d.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// errorHint turns a client error into something a person can act on.
func errorHint(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	switch core.KindOf(err) {
	case core.KindTimeout:
		return "the model took too long to answer, try again"
	case core.KindAuthFailure:
		return "authentication failed, check api_key in the config or ARK_API_KEY"
	case core.KindRateLimited:
		return "too many requests, wait a moment and try again"
	case core.KindServerError:
		return "the model service is temporarily unavailable, try again later"
	case core.KindStreamUnavailable:
		return "the service did not return a stream, try -no-stream"
	case core.KindMalformedResponse:
		return "the service sent a response that could not be read, the body was saved to " + core.DefaultErrorLogsDir()
	}

	var ce *core.Error
	if errors.As(err, &ce) {
		return "request failed: " + ce.Message
	}
	return "request failed: " + err.Error()
}
