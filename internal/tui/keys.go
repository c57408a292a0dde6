package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle    key.Binding
	Objective key.Binding
	Complete  key.Binding
	Quit      key.Binding

	Next     key.Binding
	Increase key.Binding
	Decrease key.Binding
	Submit   key.Binding
	Back     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Toggle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/pause")),
		Objective: key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "toggle objective")),
		Complete:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "complete")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		Next:     key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "next field")),
		Increase: key.NewBinding(key.WithKeys("right", "up", "+"), key.WithHelp("→", "raise")),
		Decrease: key.NewBinding(key.WithKeys("left", "down", "-"), key.WithHelp("←", "lower")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "finish session")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	}
}

// timerKeys is the help.KeyMap shown while the timer view is up.
type timerKeys struct{ keyMap }

func (k timerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Objective, k.Complete, k.Quit}
}

func (k timerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type formKeys struct{ keyMap }

func (k formKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Decrease, k.Increase, k.Submit, k.Back}
}

func (k formKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
