package agg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/victhorio/arkchat/agg/core"
	"github.com/victhorio/arkchat/agg/models"
	"github.com/victhorio/arkchat/agg/openai"
	"golang.org/x/time/rate"
)

// Config is what the client needs to reach the upstream. Bounds are trusted here, the config
// package is responsible for validating them.
type Config struct {
	// BaseURL is the full chat completions URL requests are POSTed to.
	BaseURL string
	APIKey  string
	// Model is a registry key or an upstream identifier.
	Model           string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	EnableReasoning bool
}

// Client issues chat requests on behalf of sessions. A single client can serve any number of
// sessions concurrently, it holds no per-conversation state.
type Client struct {
	mu  sync.RWMutex
	cfg Config

	http     *http.Client
	registry *models.Registry
	logger   *slog.Logger
	limiter  *rate.Limiter
	usage    UsageStore
	dumpDir  string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

func WithRegistry(registry *models.Registry) Option {
	return func(c *Client) {
		c.registry = registry
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit paces outgoing requests to perSecond, allowing bursts of burst requests.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithUsageStore makes the client record the usage reported for every successful call.
func WithUsageStore(store UsageStore) Option {
	return func(c *Client) {
		c.usage = store
	}
}

// WithErrorDumpDir keeps the raw body of every malformed response under dir.
func WithErrorDumpDir(dir string) Option {
	return func(c *Client) {
		c.dumpDir = dir
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{},
		registry: models.Default(),
		logger:   discardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// UpdateConfig applies fn to the configuration. Calls already in flight keep the settings
// they started with.
func (c *Client) UpdateConfig(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.cfg)
}

// Send appends text as a user message, requests a whole response and appends the reply. On
// failure the returned error is a *core.Error and the user message stays in the session.
func (c *Client) Send(ctx context.Context, sess *Session, text string) (core.ChatResult, error) {
	msgs := sess.appendUserAndSnapshot(text)
	return c.complete(ctx, sess, msgs, c.prepare())
}

// Regenerate requests a whole response for the session as it is, without appending a new user
// message. It's how a failed Send is retried.
func (c *Client) Regenerate(ctx context.Context, sess *Session) (core.ChatResult, error) {
	msgs := sess.Snapshot()
	if len(msgs) == 0 {
		return core.ChatResult{}, &core.Error{Kind: core.KindGeneric, Message: "nothing to regenerate, the session is empty"}
	}
	return c.complete(ctx, sess, msgs, c.prepare())
}

// SendStream appends text as a user message and streams the reply, calling onChunk on the
// calling goroutine for every non-empty fragment, in order. The assistant message is only
// appended once the stream completes. After ctx is done onChunk is never called again and the
// session is left without a partial reply.
func (c *Client) SendStream(ctx context.Context, sess *Session, text string, onChunk func(string)) error {
	msgs := sess.appendUserAndSnapshot(text)

	_, err := c.streamTurn(ctx, sess, msgs, func(delta string) {
		if ctx.Err() != nil {
			return
		}
		onChunk(delta)
	})
	return err
}

// Stream is SendStream in channel form. The channel carries an EvDelta per fragment and ends
// with exactly one EvDone, whose Delta is the full reply, or one EvError holding a
// *core.Error. It's closed afterwards, callers must drain it.
func (c *Client) Stream(ctx context.Context, sess *Session, text string) <-chan core.Event {
	out := make(chan core.Event)
	msgs := sess.appendUserAndSnapshot(text)

	go func() {
		defer close(out)

		content, err := c.streamTurn(ctx, sess, msgs, func(delta string) {
			select {
			case <-ctx.Done():
			case out <- core.NewEvDelta(delta):
			}
		})
		if err != nil {
			out <- core.NewEvError(err)
			return
		}
		out <- core.NewEvDone(content)
	}()

	return out
}

// CheckHealth probes the upstream's health endpoint. Any failure just means unhealthy.
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	p := c.prepare()
	if err := p.model.CheckHealth(ctx, c.http); err != nil {
		c.logger.Warn("health check failed", "base_url", p.cfg.BaseURL, "err", err)
		return false
	}
	return true
}

// call is everything resolved for a single request, fixed when the request starts.
type call struct {
	cfg   Config
	desc  models.Descriptor
	known bool
	model *openai.Model
}

func (p call) keepReasoning() bool {
	return p.known && p.desc.SupportsReasoning && p.cfg.EnableReasoning
}

func (p call) canStream() bool {
	return !p.known || p.desc.SupportsStream
}

func (c *Client) prepare() call {
	cfg := c.Config()
	desc, known := c.registry.Lookup(cfg.Model)

	maxTokens := cfg.MaxTokens
	if known && maxTokens > desc.MaxTokens {
		maxTokens = desc.MaxTokens
	}

	return call{
		cfg:   cfg,
		desc:  desc,
		known: known,
		model: openai.NewModel(openai.Params{
			Endpoint:    cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       c.registry.Resolve(cfg.Model),
			MaxTokens:   maxTokens,
			Temperature: cfg.Temperature,
		}, c.logger),
	}
}

func (c *Client) complete(ctx context.Context, sess *Session, msgs []core.Msg, p call) (core.ChatResult, error) {
	if err := c.wait(ctx); err != nil {
		return core.ChatResult{}, c.fail(sess, p, err)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	c.logger.Debug("chat request", "session", sess.ID(), "model", p.model.ID(), "stream", false)

	r, err := p.model.Complete(ctx, c.http, msgs)
	if err != nil {
		return core.ChatResult{}, c.fail(sess, p, err)
	}

	if !p.keepReasoning() {
		r.Reasoning = ""
	}

	sess.AppendAssistant(r.Content)
	c.record(sess, r.Usage)

	return r, nil
}

// streamTurn runs one streamed exchange for msgs, which must already hold the user message.
// deliver is called on the current goroutine for every non-empty fragment.
func (c *Client) streamTurn(ctx context.Context, sess *Session, msgs []core.Msg, deliver func(string)) (string, error) {
	p := c.prepare()

	if !p.canStream() {
		c.logger.Debug("model can't stream, falling back to a whole response", "model", p.cfg.Model)

		r, err := c.complete(ctx, sess, msgs, p)
		if err != nil {
			return "", err
		}
		if r.Content != "" {
			deliver(r.Content)
		}
		return r.Content, nil
	}

	if err := c.wait(ctx); err != nil {
		return "", c.fail(sess, p, err)
	}

	c.logger.Debug("chat request", "session", sess.ID(), "model", p.model.ID(), "stream", true)

	stream, err := p.model.OpenStream(ctx, c.http, msgs)
	if err != nil {
		return "", c.fail(sess, p, err)
	}

	events := make(chan core.Event)
	go stream.Consume(ctx, events)

	var content strings.Builder
	var usage *core.Usage
	var streamErr error
	var done bool

	for event := range events {
		switch event.Type {
		case core.EvDelta:
			content.WriteString(event.Delta)
			deliver(event.Delta)
		case core.EvUsage:
			u := event.Usage
			usage = &u
		case core.EvError:
			streamErr = event.Err
		case core.EvDone:
			done = true
		}
	}

	if n := stream.Dropped(); n > 0 {
		c.logger.Debug("stream finished with malformed frames", "session", sess.ID(), "dropped", n)
	}

	// cancellation wins over whatever the stream managed to deliver
	if err := ctx.Err(); err != nil {
		return "", c.fail(sess, p, err)
	}
	if streamErr != nil {
		return "", c.fail(sess, p, streamErr)
	}
	if !done {
		return "", c.fail(sess, p, io.ErrUnexpectedEOF)
	}

	if content.Len() > 0 {
		sess.AppendAssistant(content.String())
	}
	c.record(sess, usage)

	return content.String(), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// fail classifies err, logs it and keeps the body of malformed responses around if a dump
// directory is configured.
func (c *Client) fail(sess *Session, p call, err error) error {
	ce := core.Classify(err)

	if errors.Is(err, context.Canceled) {
		c.logger.Info("chat request cancelled", "session", sess.ID(), "model", p.cfg.Model)
		return ce
	}

	c.logger.Error("chat request failed",
		"session", sess.ID(),
		"model", p.cfg.Model,
		"kind", ce.Kind.String(),
		"status", ce.StatusCode,
		"err", err,
	)

	var de *core.DecodeError
	if c.dumpDir != "" && errors.As(err, &de) {
		path, dumpErr := core.DumpErrorLog(c.dumpDir, "malformed", string(de.Body))
		if dumpErr != nil {
			c.logger.Warn("failed to dump malformed response", "err", dumpErr)
		} else {
			c.logger.Info("malformed response dumped", "path", path)
		}
	}

	return ce
}

func (c *Client) record(sess *Session, usage *core.Usage) {
	if c.usage == nil || usage == nil {
		return
	}
	if err := c.usage.Record(sess.ID(), *usage); err != nil {
		c.logger.Warn("failed to record usage", "session", sess.ID(), "err", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const healthTimeout = 5 * time.Second
