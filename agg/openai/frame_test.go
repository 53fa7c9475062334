package openai

import (
	"strings"
	"testing"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		line    string
		outcome frameOutcome
		delta   string
	}{
		{"blank separator", "", frameIgnored, ""},
		{"comment", ": keep-alive", frameIgnored, ""},
		{"event name", "event: message", frameIgnored, ""},
		{"done", "data: [DONE]", frameDone, ""},
		{"done without space", "data:[DONE]", frameDone, ""},
		{"delta", `data: {"choices":[{"delta":{"content":"A"}}]}`, frameDelta, "A"},
		{"delta without space", `data:{"choices":[{"delta":{"content":"B"}}]}`, frameDelta, "B"},
		{"role only", `data: {"choices":[{"delta":{"role":"assistant"}}]}`, frameDelta, ""},
		{"no choices", `data: {"choices":[]}`, frameDelta, ""},
		{"not json", "data: not-json", frameDropped, ""},
		{"empty data", "data:", frameDropped, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := parseFrame(c.line)
			if f.outcome != c.outcome {
				t.Fatalf("expected outcome %s, got %s", c.outcome, f.outcome)
			}
			if f.delta != c.delta {
				t.Fatalf("expected delta %q, got %q", c.delta, f.delta)
			}
			if c.outcome == frameDropped && f.err == nil {
				t.Fatalf("dropped frame should carry the decode error")
			}
		})
	}
}

func TestParseFrameUsage(t *testing.T) {
	t.Parallel()

	f := parseFrame(`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`)
	if f.outcome != frameDelta {
		t.Fatalf("expected delta outcome, got %s", f.outcome)
	}
	if f.usage == nil || f.usage.TotalTokens != 8 || f.usage.PromptTokens != 3 {
		t.Fatalf("unexpected usage: %+v", f.usage)
	}
}

func TestLineBufferSplitsAcrossWrites(t *testing.T) {
	t.Parallel()

	var b lineBuffer
	b.Write([]byte("data: {\"a\""))
	if _, ok := b.Next(); ok {
		t.Fatalf("no complete line yet")
	}

	b.Write([]byte(":1}\r\n\r\ndata: [DO"))
	line, ok := b.Next()
	if !ok || line != `data: {"a":1}` {
		t.Fatalf("expected reassembled line, got %q (ok=%v)", line, ok)
	}
	line, ok = b.Next()
	if !ok || line != "" {
		t.Fatalf("expected blank separator, got %q (ok=%v)", line, ok)
	}
	if _, ok := b.Next(); ok {
		t.Fatalf("partial line should not be returned")
	}

	b.Write([]byte("NE]"))
	if rest := b.Rest(); rest != "data: [DONE]" {
		t.Fatalf("expected trailing partial line, got %q", rest)
	}
	if rest := b.Rest(); rest != "" {
		t.Fatalf("Rest should drain the buffer, got %q", rest)
	}
}

func TestLineBufferByteAtATime(t *testing.T) {
	t.Parallel()

	input := "data: one\ndata: two\n\ndata: three\n"
	var b lineBuffer
	var got []string
	for i := 0; i < len(input); i++ {
		b.Write([]byte{input[i]})
		for {
			line, ok := b.Next()
			if !ok {
				break
			}
			got = append(got, line)
		}
	}

	want := []string{"data: one", "data: two", "", "data: three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
