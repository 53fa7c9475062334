package core

// Event is what a response stream emits while it is being drained.
type Event struct {
	Type  EventType
	Delta string
	// Usage is only set on EvUsage.
	Usage Usage
	Err   error
}

type EventType int

const (
	EvUnk EventType = iota
	EvDelta
	EvUsage
	EvDone
	EvError
)

func (t EventType) String() string {
	switch t {
	case EvDelta:
		return "delta"
	case EvUsage:
		return "usage"
	case EvDone:
		return "done"
	case EvError:
		return "error"
	default:
		return "unknown"
	}
}

func NewEvDelta(delta string) Event {
	return Event{
		Type:  EvDelta,
		Delta: delta,
	}
}

func NewEvUsage(usage Usage) Event {
	return Event{
		Type:  EvUsage,
		Usage: usage,
	}
}

// NewEvDone marks normal completion. For streams produced by the client, Delta carries the
// full accumulated content.
func NewEvDone(content string) Event {
	return Event{
		Type:  EvDone,
		Delta: content,
	}
}

func NewEvError(err error) Event {
	return Event{
		Type: EvError,
		Err:  err,
	}
}
