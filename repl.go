package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/victhorio/arkchat/agg"
	"github.com/victhorio/arkchat/config"
)

const replPrompt = "you> "

// once sends a single message and writes the reply to w.
func (a *app) once(ctx context.Context, w io.Writer, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("nothing to send")
	}

	if a.stream {
		err := a.client.SendStream(ctx, a.session, text, func(chunk string) {
			fmt.Fprint(w, chunk)
		})
		fmt.Fprintln(w)
		if err != nil {
			return errors.New(errorHint(err))
		}
		return nil
	}

	res, err := agg.SendWithRetry(ctx, a.client, a.session, text, agg.DefaultRetryPolicy())
	if err != nil {
		return errors.New(errorHint(err))
	}
	fmt.Fprintln(w, res.Content)
	return nil
}

// repl is the line mode front end, used when the terminal can't host the full screen UI.
func (a *app) repl(ctx context.Context) error {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(filepath.Dir(config.DefaultPath()), "history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	render := term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Printf("arkchat · %s · /help for commands, :q to quit\n", a.client.Config().Model)

	for {
		input, err := line.Prompt(replPrompt)
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin all end the session
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("repl: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if out, quit, ok := a.command(ctx, input); ok {
			if out != "" {
				fmt.Println(out)
			}
			if quit {
				return nil
			}
			continue
		}

		a.turn(ctx, input, render)
	}
}

// turn runs one exchange. Ctrl+C while it's running cancels the request, not the program.
func (a *app) turn(ctx context.Context, input string, render bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.stream {
		err := a.client.SendStream(ctx, a.session, input, func(chunk string) {
			fmt.Print(chunk)
		})
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: "+errorHint(err))
		}
		return
	}

	res, err := agg.SendWithRetry(ctx, a.client, a.session, input, agg.DefaultRetryPolicy())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: "+errorHint(err))
		return
	}

	if res.HasReasoning() {
		fmt.Println(hintStyle.Render(strings.TrimSpace(res.Reasoning)))
	}
	if render {
		fmt.Print(renderMarkdown(res.Content, terminalWidth()))
		return
	}
	fmt.Println(res.Content)
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
