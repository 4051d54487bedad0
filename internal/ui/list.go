package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/studyctl/internal/models"
)

var _ list.Item = conversationItem{}

// conversationItem wraps [models.Conversation] to implement [list.Item].
type conversationItem struct {
	conv *models.Conversation
}

func (i conversationItem) FilterValue() string { return i.conv.Title() }
func (i conversationItem) Title() string       { return i.conv.Title() }
func (i conversationItem) Description() string {
	desc := fmt.Sprintf("%d messages • %s", len(i.conv.Messages()), i.conv.UpdatedAt().Format(time.DateTime))
	if i.conv.SessionID() != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.conv.SessionID())
	}
	return desc
}

func conversationItems(convs []*models.Conversation) []list.Item {
	items := make([]list.Item, len(convs))
	for i, conv := range convs {
		items[i] = conversationItem{conv: conv}
	}
	return items
}
