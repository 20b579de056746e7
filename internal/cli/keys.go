package cli

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the bindings the model handles itself; everything else goes
// to the textarea or the viewport.
type KeyMap struct {
	Submit  key.Binding
	Newline key.Binding
	Quit    key.Binding
	Scroll  key.Binding // forwarded to the viewport while typing
}

// DefaultKeyMap returns the console bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		// shift+enter arrives as ctrl+j (LF) in most terminals
		Newline: key.NewBinding(key.WithKeys("ctrl+j"), key.WithHelp("shift+enter", "newline")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "interrupt, twice to quit")),
		Scroll:  key.NewBinding(key.WithKeys("pgup", "pgdown", "home", "end"), key.WithHelp("pgup/pgdn", "scroll")),
	}
}
