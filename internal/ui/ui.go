package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/studyctl/internal/chat"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ChatView ViewState = iota
	HistoryView
)

const maxNotices = 3

// ConversationStore saves transcripts and lists saved ones.
type ConversationStore interface {
	Create(conv *models.Conversation) error
	List(criteria map[string]any) ([]*models.Conversation, error)
}

// Options configures a [Model].
type Options struct {
	Stream       bool // Stream answers instead of waiting for the whole reply
	HistoryLimit int  // Number of conversations shown in the history view
	TitleLength  int  // Maximum length of titles derived for saved conversations
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	view        ViewState
	controller  *chat.Controller
	store       ConversationStore
	opts        Options
	feed        *feed
	unsubscribe func()
	width       int
	height      int
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	history     list.Model
	messages    []models.ChatMessage
	partial     string
	streaming   bool
	inflight    int
	notices     []chat.Notice
	help        help.Model
	keys        keyMap
}

// NewModel creates a new TUI model that renders the updates published by controller.
//
// store may be nil, which disables saving and the history view.
func NewModel(ctx context.Context, controller *chat.Controller, store ConversationStore, opts Options) *Model {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}

	input := textinput.New()
	input.Placeholder = "Ask about your study plan..."
	input.Prompt = "> "
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.warn

	m := &Model{
		ctx:        ctx,
		view:       ChatView,
		controller: controller,
		store:      store,
		opts:       opts,
		feed:       newFeed(),
		input:      input,
		viewport:   viewport.New(80, 20),
		spinner:    spin,
		history:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		messages:   controller.Messages(),
		help:       help.New(),
		keys:       newKeyMap(),
	}
	m.history.Title = "Saved Conversations"
	m.unsubscribe = controller.Bus().SubscribeAll(func(_ chat.Topic, u chat.Update) {
		m.feed.push(u)
	})
	m.refresh()
	return m
}

// Init starts the cursor blink, the spinner and the update feed.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForUpdates())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-7, 3)
		m.history.SetSize(msg.Width-4, msg.Height-4)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case ChatView:
			return m.handleChatKeys(msg)
		case HistoryView:
			return m.handleHistoryKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateComponents(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case HistoryView:
		return m.renderHistory()
	default:
		return m.renderChat()
	}
}

// Close detaches the model from the controller bus and cancels any active turn.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.feed.close()
	m.controller.Cancel()
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgChatUpdates:
		for _, u := range msg.data.([]chat.Update) {
			m.apply(u)
		}
		m.refresh()
		return m, m.waitForUpdates()

	case MsgTurnComplete:
		if m.inflight > 0 {
			m.inflight--
		}
		// Failures were already published as notices by the controller.
		return m, nil

	case MsgConversationSaved:
		data := msg.data.(struct {
			conv *models.Conversation
			err  error
		})
		if data.err != nil {
			m.notify(chat.Notice{Kind: chat.NoticeError, Key: "save", Title: "Save failed", Detail: data.err.Error()})
			return m, nil
		}
		m.notify(chat.Notice{Kind: chat.NoticeSuccess, Key: "save", Title: "Conversation saved", Detail: data.conv.Title()})
		return m, nil

	case MsgHistoryLoaded:
		data := msg.data.(struct {
			convs []*models.Conversation
			err   error
		})
		if data.err != nil {
			m.notify(chat.Notice{Kind: chat.NoticeError, Key: "history", Title: "Could not load history", Detail: data.err.Error()})
			return m, nil
		}
		cmd := m.history.SetItems(conversationItems(data.convs))
		m.view = HistoryView
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleChatKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		if m.inflight > 0 {
			m.controller.Cancel()
		} else {
			m.notices = nil
		}
		return m, nil
	case key.Matches(msg, m.keys.stream):
		m.opts.Stream = !m.opts.Stream
		mode := "off"
		if m.opts.Stream {
			mode = "on"
		}
		m.notify(chat.Notice{Kind: chat.NoticeSuccess, Key: "mode", Title: "Streaming " + mode})
		return m, nil
	case key.Matches(msg, m.keys.save):
		return m, m.save()
	case key.Matches(msg, m.keys.history):
		return m, m.loadHistory()
	case key.Matches(msg, m.keys.up), key.Matches(msg, m.keys.down):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case key.Matches(msg, m.keys.send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.send(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.history.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ChatView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.history.SelectedItem().(conversationItem); ok {
			m.resume(item.conv)
		}
		m.view = ChatView
		return m, nil
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ChatView:
		m.input, cmd = m.input.Update(msg)
	case HistoryView:
		m.history, cmd = m.history.Update(msg)
	}
	return m, cmd
}

// apply folds a controller update into the view state.
func (m *Model) apply(u chat.Update) {
	switch u := u.(type) {
	case chat.Notice:
		m.notify(u)
	case chat.PartialChanged:
		m.partial = u.Text
	case chat.MessageAppended:
		if u.Index == len(m.messages) {
			m.messages = append(m.messages, u.Message)
		} else {
			m.messages = m.controller.Messages()
		}
		if u.Message.Role == models.RoleAssistant {
			m.partial = ""
		}
	case chat.StreamingChanged:
		m.streaming = u.Streaming
		if !u.Streaming {
			m.partial = ""
		}
	}
}

// notify adds n to the status line. Keyed notices replace earlier ones with the same key.
func (m *Model) notify(n chat.Notice) {
	if n.Key != "" {
		kept := m.notices[:0]
		for _, existing := range m.notices {
			if existing.Key != n.Key {
				kept = append(kept, existing)
			}
		}
		m.notices = kept
	}
	if n.Kind == chat.NoticeDismiss {
		return
	}

	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *Model) resume(conv *models.Conversation) {
	if err := m.controller.Restore(conv.Messages(), conv.SessionID()); err != nil {
		if errors.Is(err, shared.ErrStreamBusy) {
			m.notify(chat.Notice{Kind: chat.NoticeError, Key: "history", Title: "Stop the current answer before resuming"})
			return
		}
		m.notify(chat.Notice{Kind: chat.NoticeError, Key: "history", Title: "Could not resume", Detail: err.Error()})
		return
	}

	m.messages = conv.Messages()
	m.partial = ""
	m.notify(chat.Notice{Kind: chat.NoticeSuccess, Key: "history", Title: "Resumed", Detail: conv.Title()})
	m.refresh()
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) send(text string) tea.Cmd {
	m.inflight++
	stream := m.opts.Stream
	return func() tea.Msg {
		return turnCompleteMsg(m.controller.Send(m.ctx, text, stream))
	}
}

func (m *Model) save() tea.Cmd {
	if m.store == nil {
		m.notify(chat.Notice{Kind: chat.NoticeError, Key: "save", Title: "No database configured"})
		return nil
	}

	messages := m.controller.Messages()
	if len(messages) == 0 {
		m.notify(chat.Notice{Kind: chat.NoticeError, Key: "save", Title: "Nothing to save"})
		return nil
	}

	sessionID := m.controller.SessionID()
	title := models.TitleFrom(messages, m.opts.TitleLength)
	return func() tea.Msg {
		conv := models.NewConversation(0, sessionID, title, messages)
		return conversationSavedMsg(conv, m.store.Create(conv))
	}
}

func (m *Model) loadHistory() tea.Cmd {
	if m.store == nil {
		m.notify(chat.Notice{Kind: chat.NoticeError, Key: "history", Title: "No database configured"})
		return nil
	}

	limit := m.opts.HistoryLimit
	return func() tea.Msg {
		convs, err := m.store.List(map[string]any{"limit": limit})
		return historyLoadedMsg(convs, err)
	}
}

func (m *Model) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		updates := m.feed.next()
		if updates == nil {
			return nil
		}
		return chatUpdatesMsg(updates)
	}
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	for _, msg := range m.messages {
		fmt.Fprintf(&b, "%s\n%s\n\n", styles.Speaker(msg.Role), strings.TrimSpace(msg.Content))
	}
	if m.partial != "" {
		fmt.Fprintf(&b, "%s\n%s▌\n", styles.Speaker(models.RoleAssistant), m.partial)
	}
	if b.Len() == 0 {
		return styles.help.Render("No messages yet.")
	}
	return b.String()
}

func (m *Model) renderStatus() string {
	var parts []string
	if m.streaming || m.inflight > 0 {
		parts = append(parts, m.spinner.View()+" Thinking...")
	}
	for _, n := range m.notices {
		parts = append(parts, styles.Notice(n))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderChat() string {
	title := styles.title.Render("Study Assistant")
	if !m.opts.Stream {
		title += styles.help.Render(" (streaming off)")
	}

	helpKeys := []key.Binding{m.keys.send, m.keys.cancel, m.keys.stream}
	if m.store != nil {
		helpKeys = append(helpKeys, m.keys.save, m.keys.history)
	}
	helpKeys = append(helpKeys, m.keys.quit)

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		title,
		m.viewport.View(),
		m.renderStatus(),
		m.input.View(),
		m.help.ShortHelpView(helpKeys),
	)
}

func (m *Model) renderHistory() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.history.View(), m.help.ShortHelpView(helpKeys))
}
