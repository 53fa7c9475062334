package main

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	renderersMu sync.Mutex
	renderers   = map[int]*glamour.TermRenderer{}
)

// renderMarkdown renders content for a terminal of the given width. Content comes back
// unchanged when no renderer can be built or rendering fails.
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}

	renderersMu.Lock()
	defer renderersMu.Unlock()

	r, ok := renderers[width]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			r = nil
		}
		renderers[width] = r
	}

	if r == nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
