package graphics

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#87CEEB")).
			Padding(0, 1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Render draws the widget tree. It takes the lock itself.
func (t *Toolkit) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	body := renderChildren(t.screen)
	if body == "" {
		body = emptyStyle.Render("(empty)")
	}
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(t.title), body)
}

func renderChildren(o *Object) string {
	parts := make([]string, 0, len(o.children))
	for _, c := range o.children {
		parts = append(parts, render(c))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func render(o *Object) string {
	switch o.kind {
	case KindLabel:
		return labelStyle.Render(o.text)
	case KindButton:
		text := buttonStyle.Render(o.text)
		if len(o.children) == 0 {
			return text
		}
		return lipgloss.JoinVertical(lipgloss.Left, text, renderChildren(o))
	case KindContainer:
		inner := renderChildren(o)
		if inner == "" {
			inner = emptyStyle.Render("(empty)")
		}
		return containerStyle.Render(inner)
	default:
		return ""
	}
}
