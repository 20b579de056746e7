// Package cli is the local console for the relay: a bubbletea chat UI that
// streams replies into one block per turn, and a plain line mode for pipes.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type blockKind int

const (
	blockUser blockKind = iota
	blockAssistant
	blockSystem
	blockError
)

// block is one entry of the transcript.
type block struct {
	kind blockKind
	text string
}

// renderTranscript renders blocks as viewport content wrapped to width.
func renderTranscript(blocks []block, styles Styles, width int) string {
	var b strings.Builder
	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}
	for _, bl := range blocks {
		switch bl.kind {
		case blockUser:
			b.WriteString(styles.User.Render(wrap.Render("> " + bl.text)))
			b.WriteString("\n")
		case blockAssistant:
			b.WriteString(styles.Assistant.Render(wrap.Render(bl.text)))
			b.WriteString("\n\n")
		case blockSystem:
			b.WriteString(styles.Notice.Render(wrap.Render(bl.text)))
			b.WriteString("\n\n")
		case blockError:
			b.WriteString(styles.Error.Render(wrap.Render("Error: " + bl.text)))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
