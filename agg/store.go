package agg

import "github.com/victhorio/arkchat/agg/core"

// UsageStore keeps the token counters reported by the upstream, accumulated per session.
// Transcripts are never stored, only counters.
type UsageStore interface {
	Usage(string) core.Usage
	Record(string, core.Usage) error
}
