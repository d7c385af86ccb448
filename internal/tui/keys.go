package tui

// Keybinding constants
const (
	KeyTab   = "tab"
	KeyQuit  = "q"
	KeyCtrlC = "ctrl+c"
	KeyPane1 = "1"
	KeyPane2 = "2"
	KeyUp    = "up"
	KeyDown  = "down"
	KeyJ     = "j"
	KeyK     = "k"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("Tab: switch pane | 1/2: jump to pane | j/k: move/scroll | q: quit")
}
