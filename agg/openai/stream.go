package openai

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/victhorio/arkchat/agg/core"
)

// readBlockSize is how much we ask of the body per Read. Chunks are small, this mostly
// bounds how many lines a single read can carry.
const readBlockSize = 4 * 1024

type Stream struct {
	body    io.ReadCloser
	logger  *slog.Logger
	dropped int
}

// OpenStream sends a streaming chat completions request and returns a Stream that can be
// consumed for events. A 2xx answer without a readable body is core.ErrStreamUnavailable.
func (m *Model) OpenStream(ctx context.Context, client *http.Client, messages []core.Msg) (*Stream, error) {
	resp, err := m.post(ctx, client, m.newRequestBody(messages, true))
	if err != nil {
		return nil, err
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, core.ErrStreamUnavailable
	}

	return &Stream{
		body:   resp.Body,
		logger: m.logger.With("model", m.model),
	}, nil
}

// Consume reads the body in blocks and emits an EvDelta for every non-empty content delta and
// an EvUsage if the upstream reports usage. It finishes with EvDone on the [DONE] sentinel or
// on a clean end of body, or with EvError if reading fails. Data lines that aren't valid JSON
// are skipped.
//
// This function closes both the body and the channel at the end of execution.
func (s *Stream) Consume(ctx context.Context, out chan<- core.Event) {
	defer s.body.Close()
	defer close(out)

	var lines lineBuffer
	block := make([]byte, readBlockSize)

	for {
		n, err := s.body.Read(block)
		if n > 0 {
			lines.Write(block[:n])

			for {
				line, ok := lines.Next()
				if !ok {
					break
				}
				if done, ok := s.handleLine(ctx, line, out); done || !ok {
					if done {
						_ = sendEvent(ctx, out, core.NewEvDone(""))
					}
					return
				}
			}
		}

		if err == io.EOF {
			// some upstreams close without a trailing newline or without [DONE] at all, neither
			// is a failure
			if rest := lines.Rest(); rest != "" {
				if _, ok := s.handleLine(ctx, rest, out); !ok {
					return
				}
			}
			_ = sendEvent(ctx, out, core.NewEvDone(""))
			return
		}
		if err != nil {
			_ = sendEvent(ctx, out, core.NewEvError(err))
			return
		}
	}
}

// handleLine returns done when the line was the [DONE] sentinel and ok=false when the
// context was cancelled while emitting.
func (s *Stream) handleLine(ctx context.Context, line string, out chan<- core.Event) (done, ok bool) {
	f := parseFrame(line)

	switch f.outcome {
	case frameIgnored:
	case frameDone:
		return true, true
	case frameDropped:
		s.dropped++
		s.logger.Debug("dropping malformed stream frame", "err", f.err, "line", line)
	case frameDelta:
		if f.delta != "" {
			if !sendEvent(ctx, out, core.NewEvDelta(f.delta)) {
				return false, false
			}
		}
		if f.usage != nil {
			if !sendEvent(ctx, out, core.NewEvUsage(*f.usage)) {
				return false, false
			}
		}
	}

	return false, true
}

// Dropped is the number of malformed frames skipped so far. Only meaningful once the channel
// passed to Consume has been closed.
func (s *Stream) Dropped() int {
	return s.dropped
}

func sendEvent(ctx context.Context, out chan<- core.Event, ev core.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
