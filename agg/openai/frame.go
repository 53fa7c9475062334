package openai

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/victhorio/arkchat/agg/core"
)

// doneSentinel is the data payload the upstream sends to mark the end of a stream.
const doneSentinel = "[DONE]"

// lineBuffer accumulates raw bytes read off the wire and hands out complete lines. Reads can
// split a line anywhere, so the trailing partial line is kept until its newline arrives.
type lineBuffer struct {
	buf []byte
	off int
}

func (b *lineBuffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next returns the next complete line without its terminator, accepting both \n and \r\n.
func (b *lineBuffer) Next() (string, bool) {
	i := bytes.IndexByte(b.buf[b.off:], '\n')
	if i < 0 {
		b.compact()
		return "", false
	}

	line := b.buf[b.off : b.off+i]
	b.off += i + 1
	return string(bytes.TrimSuffix(line, []byte("\r"))), true
}

// Rest drains whatever is left after the last newline.
func (b *lineBuffer) Rest() string {
	rest := string(bytes.TrimSuffix(b.buf[b.off:], []byte("\r")))
	b.buf = b.buf[:0]
	b.off = 0
	return rest
}

func (b *lineBuffer) compact() {
	if b.off == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.off:])
	b.buf = b.buf[:n]
	b.off = 0
}

type frameOutcome int

const (
	// frameIgnored is anything that isn't a data field: blank separators, comments, event names.
	frameIgnored frameOutcome = iota
	// frameDelta is a well-formed chunk. Its delta may be empty.
	frameDelta
	// frameDone is the [DONE] sentinel.
	frameDone
	// frameDropped is a data field whose payload isn't valid JSON.
	frameDropped
)

func (o frameOutcome) String() string {
	switch o {
	case frameIgnored:
		return "ignored"
	case frameDelta:
		return "delta"
	case frameDone:
		return "done"
	case frameDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

type frame struct {
	outcome frameOutcome
	delta   string
	usage   *core.Usage
	err     error
}

// parseFrame interprets a single SSE line. Every chunk is assumed to fit in a single data
// line, which is what OpenAI compatible upstreams send.
func parseFrame(line string) frame {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return frame{outcome: frameIgnored}
	}

	payload = strings.TrimSpace(payload)
	if payload == doneSentinel {
		return frame{outcome: frameDone}
	}

	var chunk chunkRaw
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return frame{outcome: frameDropped, err: err}
	}

	f := frame{outcome: frameDelta}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
		f.delta = chunk.Choices[0].Delta.Content
	}
	if chunk.Usage != nil {
		usage := chunk.Usage.toCore()
		f.usage = &usage
	}
	return f
}

// chunkRaw is a single streamed chunk, the same shape as completionRaw but with deltas.
type chunkRaw struct {
	Choices []choiceRaw `json:"choices"`
	Usage   *usageRaw   `json:"usage"`
}
