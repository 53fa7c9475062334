package core

// ChatResult is what a whole-response call hands back to its caller.
type ChatResult struct {
	Content string
	// Reasoning is only set when the model supports a reasoning trace and actually sent one.
	Reasoning string
	// Usage is nil when the upstream did not report token counters.
	Usage *Usage
}

func (r ChatResult) HasReasoning() bool {
	return r.Reasoning != ""
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u *Usage) Inc(ou Usage) {
	u.PromptTokens += ou.PromptTokens
	u.CompletionTokens += ou.CompletionTokens
	u.TotalTokens += ou.TotalTokens
}

func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}
