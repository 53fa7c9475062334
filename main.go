package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"golang.org/x/term"

	"github.com/victhorio/arkchat/agg"
	"github.com/victhorio/arkchat/agg/core"
	"github.com/victhorio/arkchat/agg/models"
	"github.com/victhorio/arkchat/config"
)

type options struct {
	configPath string
	model      string
	prompt     string
	plain      bool
	once       string
	noStream   bool
	listModels bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultPath(), "config file, .yaml or .toml")
	flag.StringVar(&opts.model, "model", "", "model key or upstream id, overrides the config")
	flag.StringVar(&opts.prompt, "prompt", "", "system prompt name or text, overrides the config")
	flag.BoolVar(&opts.plain, "plain", false, "line mode instead of the full screen UI")
	flag.StringVar(&opts.once, "once", "", "send a single message, print the reply and exit")
	flag.BoolVar(&opts.noStream, "no-stream", false, "wait for whole responses instead of streaming")
	flag.BoolVar(&opts.listModels, "models", false, "list the known models and exit")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "arkchat: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.listModels {
		printModels(models.Default())
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.prompt != "" {
		cfg.SystemPrompt = opts.prompt
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (%s):\n%w", opts.configPath, err)
	}

	logger, closeLog, err := openLogger(cfg.SlogLevel())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	usage, closeUsage := openUsageStore(cfg.UsageDB, logger)
	defer closeUsage()

	client := agg.NewClient(cfg.Client(),
		agg.WithLogger(logger),
		agg.WithUsageStore(usage),
		agg.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		agg.WithErrorDumpDir(core.DefaultErrorLogsDir()),
	)

	if err := config.Watch(ctx, opts.configPath, logger, func(next config.Config) {
		if opts.model != "" {
			next.Model = opts.model
		}
		client.UpdateConfig(func(c *agg.Config) {
			*c = next.Client()
		})
	}); err != nil {
		// a config that doesn't exist yet can't be watched, that's fine
		logger.Debug("not watching config", "path", opts.configPath, "err", err)
	}

	sess := agg.NewSession()
	sess.SetSystemPrompt(cfg.SystemPromptText())
	logger.Info("session started", "session", sess.ID(), "model", cfg.Model)

	a := &app{
		client:    client,
		session:   sess,
		usage:     usage,
		stream:    !opts.noStream,
		logger:    logger,
		sysPrompt: cfg.SystemPromptText(),
	}

	switch {
	case opts.once != "":
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		return a.once(ctx, os.Stdout, opts.once)
	case opts.plain || !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())):
		return a.repl(ctx)
	default:
		return runTUI(ctx, a)
	}
}

// app is what both front ends share: one client, one conversation.
type app struct {
	client    *agg.Client
	session   *agg.Session
	usage     agg.UsageStore
	stream    bool
	logger    *slog.Logger
	sysPrompt string
}

// openLogger logs to ~/.arkchat/arkchat.log, the terminal belongs to the UI.
func openLogger(level slog.Level) (*slog.Logger, func(), error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	dir := filepath.Join(home, ".arkchat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "arkchat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { f.Close() }, nil
}

// openUsageStore prefers the SQLite ledger and falls back to memory when it can't be opened.
func openUsageStore(path string, logger *slog.Logger) (agg.UsageStore, func()) {
	if path == "" {
		return agg.NewEphemeralStore(), func() {}
	}

	store, err := agg.NewSQLiteStore(path, logger)
	if err != nil {
		logger.Warn("usage ledger unavailable, keeping usage in memory", "path", path, "err", err)
		return agg.NewEphemeralStore(), func() {}
	}

	return store, func() { store.Close() }
}

func printModels(registry *models.Registry) {
	descs := registry.List("")
	sort.SliceStable(descs, func(i, j int) bool {
		return descs[i].Provider < descs[j].Provider
	})

	for _, d := range descs {
		flags := ""
		if d.SupportsReasoning {
			flags = " [reasoning]"
		}
		if !d.SupportsStream {
			flags += " [no stream]"
		}
		fmt.Printf("%-22s %-11s %6d tokens  %s%s\n", d.Key, d.Provider, d.MaxTokens, d.Name, flags)
	}
}
