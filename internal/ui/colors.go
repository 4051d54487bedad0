package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/studyctl/internal/chat"
	"github.com/desertthunder/studyctl/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	ok        lipgloss.Style
	err       lipgloss.Style
	warn      lipgloss.Style
	help      lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:     NewBold(t).MarginBottom(1),
		user:      NewBold(t),
		assistant: NewBold(s),
		ok:        NewBold(s),
		err:       NewBold(e),
		warn:      NewStyle(w),
		help:      NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Speaker renders the label shown above a message from r.
func (p *Palette) Speaker(r models.Role) string {
	switch r {
	case models.RoleUser:
		return p.user.Render("You")
	case models.RoleAssistant:
		return p.assistant.Render("Assistant")
	default:
		return p.help.Render(string(r))
	}
}

// Notice renders a status line entry for n.
func (p *Palette) Notice(n chat.Notice) string {
	text := n.Title
	if n.Detail != "" {
		text += ": " + n.Detail
	}

	switch n.Kind {
	case chat.NoticeSuccess:
		return p.ok.Render("✓ " + text)
	case chat.NoticeError:
		return p.err.Render("✗ " + text)
	default:
		return p.warn.Render(text)
	}
}
