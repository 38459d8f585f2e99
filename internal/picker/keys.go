package picker

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the picker's key bindings.
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Recents key.Binding
	Clear   key.Binding
	Quit    key.Binding
}

// ShortHelp returns the bindings shown in the help bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Recents, k.Clear, k.Quit}
}

// FullHelp returns the bindings grouped for expanded help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Recents, k.Clear, k.Quit},
	}
}

// defaultKeyMap returns the picker key bindings. Letters are left to the
// query input, so navigation uses arrows only.
func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+n"),
			key.WithHelp("↓", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		// Terminals deliver ctrl+space as NUL, which bubbletea names ctrl+@.
		Recents: key.NewBinding(
			key.WithKeys("ctrl+@", "ctrl+ "),
			key.WithHelp("ctrl+space", "recent"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "clear"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}
