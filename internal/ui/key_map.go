package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	send    key.Binding
	cancel  key.Binding
	stream  key.Binding
	save    key.Binding
	history key.Binding
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		send:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		stream:  key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "toggle streaming")),
		save:    key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save")),
		history: key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "history")),
		up:      key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		down:    key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.send, k.cancel, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.send, k.cancel, k.stream},
		{k.save, k.history, k.up, k.down},
		{k.quit},
	}
}
