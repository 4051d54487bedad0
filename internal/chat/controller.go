package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/desertthunder/studyctl/internal/events"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/services"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/sse"
)

// DefaultFlushDelay is how long assistant tokens are buffered before they become visible.
const DefaultFlushDelay = 80 * time.Millisecond

// Bus is the update bus a [Controller] publishes on.
type Bus = events.Bus[Topic, Update]

// Options configures a [Controller].
type Options struct {
	// FlushDelay is the token coalescing window. Zero uses [DefaultFlushDelay]; negative flushes every token immediately.
	FlushDelay time.Duration
}

// Controller owns one chat session.
//
// Update handlers run synchronously and must not call [Controller.Send].
type Controller struct {
	backend    services.ChatService
	bus        *Bus
	flushDelay time.Duration
	logger     *log.Logger

	// emitMu serializes state changes together with the updates they publish.
	emitMu sync.Mutex

	mu         sync.Mutex
	messages   []models.ChatMessage
	stages     map[string]string
	sessionID  string
	tools      map[string]bool
	planNotice bool
	turn       *turn
	nextTurn   uint64
}

// turn is the state of a single Send call.
type turn struct {
	id        uint64
	stream    bool
	cancel    context.CancelFunc
	done      chan struct{}
	flush     *DelayedTask
	pending   string
	assistant string
	errored   bool
}

// New creates a [Controller]. A nil bus creates a private one.
func New(backend services.ChatService, bus *Bus, opts Options, logger *log.Logger) *Controller {
	if bus == nil {
		bus = events.New[Topic, Update]()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	delay := opts.FlushDelay
	if delay == 0 {
		delay = DefaultFlushDelay
	}

	return &Controller{
		backend:    backend,
		bus:        bus,
		flushDelay: delay,
		logger:     shared.WithLogger(logger, "component", "chat"),
		stages:     map[string]string{StageAssistant: "", StagePlan: ""},
		tools:      map[string]bool{},
	}
}

// Bus returns the bus updates are published on.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// Send appends input as a user message (when not blank) and asks the assistant to respond.
//
// With stream set, any active turn is cancelled and finalized first, then the reply is streamed
// and committed as one assistant message when the stream ends. Cancellation returns nil. Other
// failures are published as notices and returned; a partial answer is still committed.
func (c *Controller) Send(ctx context.Context, input string, stream bool) error {
	t, tctx, msgs, err := c.begin(ctx, input, stream)
	if err != nil {
		return err
	}
	defer t.cancel()

	if !stream {
		return c.sendOnce(tctx, t, msgs)
	}

	err = c.backend.StreamChat(tctx, msgs, sse.Handler{
		OnEvent: func(e sse.Event) { c.handleEvent(t, e) },
		OnError: func(err error) { c.handleStreamError(t, err) },
	})
	c.finish(t, nil)

	if err != nil && (isCancel(err) || tctx.Err() != nil) {
		c.logger.Debug("turn cancelled", "turn", t.id)
		return nil
	}
	return err
}

// begin supersedes any active turn and installs a new one.
func (c *Controller) begin(ctx context.Context, input string, stream bool) (*turn, context.Context, []models.ChatMessage, error) {
	for {
		if err := c.supersede(ctx); err != nil {
			return nil, nil, nil, err
		}

		c.emitMu.Lock()
		c.mu.Lock()
		if c.turn != nil {
			// Another Send installed its turn first.
			c.mu.Unlock()
			c.emitMu.Unlock()
			continue
		}

		tctx, cancel := context.WithCancel(ctx)
		c.nextTurn++
		t := &turn{id: c.nextTurn, stream: stream, cancel: cancel, done: make(chan struct{})}
		t.flush = NewDelayedTask(c.flushDelay, func() {
			c.apply(func() []Update { return c.flushLocked(t) })
		})
		c.turn = t
		c.stages[StageAssistant] = ""

		var updates []Update
		if strings.TrimSpace(input) != "" {
			updates = append(updates, c.appendLocked(models.ChatMessage{Role: models.RoleUser, Content: input}))
		}
		msgs := append([]models.ChatMessage(nil), c.messages...)
		c.mu.Unlock()

		if stream {
			updates = append(updates, StreamingChanged{Streaming: true})
		}
		c.publish(updates)
		c.emitMu.Unlock()

		c.logger.Debug("turn started", "turn", t.id, "stream", stream, "messages", len(msgs))
		return t, tctx, msgs, nil
	}
}

// supersede cancels the active turn and waits until it has been finalized.
func (c *Controller) supersede(ctx context.Context) error {
	for {
		c.mu.Lock()
		prev := c.turn
		c.mu.Unlock()
		if prev == nil {
			return nil
		}

		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sendOnce performs a non-streaming turn.
func (c *Controller) sendOnce(ctx context.Context, t *turn, msgs []models.ChatMessage) error {
	reply, err := c.backend.Chat(ctx, msgs)
	if err != nil {
		if isCancel(err) || ctx.Err() != nil {
			c.finish(t, nil)
			return nil
		}
		c.finish(t, []Update{Notice{Kind: NoticeError, Key: NoticeKeyStream, Title: "Assistant request failed", Detail: err.Error()}})
		return err
	}

	c.apply(func() []Update {
		return []Update{c.appendLocked(models.ChatMessage{Role: models.RoleAssistant, Content: reply.Reply})}
	})
	c.finish(t, nil)
	return nil
}

// finish is the finalization step of every turn: flush, commit and release.
func (c *Controller) finish(t *turn, extra []Update) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	updates := append([]Update(nil), extra...)
	updates = append(updates, c.flushLocked(t)...)

	if strings.TrimSpace(t.assistant) != "" {
		updates = append(updates, c.appendLocked(models.ChatMessage{Role: models.RoleAssistant, Content: t.assistant}))
	}
	hadPartial := t.assistant != ""
	t.pending, t.assistant = "", ""
	c.stages[StageAssistant] = ""
	if c.turn == t {
		c.turn = nil
	}
	c.mu.Unlock()

	if hadPartial {
		updates = append(updates, PartialChanged{})
	}
	if t.stream {
		updates = append(updates, StreamingChanged{Streaming: false})
	}
	c.publish(updates)

	close(t.done)
}

func (c *Controller) handleEvent(t *turn, e sse.Event) {
	switch e.Type {
	case EventToken:
		c.apply(func() []Update { return c.onToken(t, e) })
	case EventMeta:
		c.apply(func() []Update { return c.onMeta(t, e) })
	case EventHeartbeat:
		c.apply(func() []Update { return c.onHeartbeat(e) })
	case EventError:
		c.apply(func() []Update { return c.onErrorEvent(t, e) })
	default:
		c.logger.Debug("ignoring event", "type", e.Type)
	}
}

func (c *Controller) handleStreamError(t *turn, err error) {
	if isCancel(err) {
		return
	}
	c.logger.Warn("chat stream error", "turn", t.id, "error", err)

	c.apply(func() []Update {
		t.errored = true
		updates := c.dismissLocked()
		return append(updates, Notice{Kind: NoticeError, Key: NoticeKeyStream, Title: "Connection error", Detail: err.Error()})
	})
}

func (c *Controller) onToken(t *turn, e sse.Event) []Update {
	text, ok := stringField(e.Data, "text")
	if !ok {
		return nil
	}

	stage, ok := stringField(e.Data, "stage")
	if !ok || stage == "" {
		stage = StageAssistant
	}
	c.stages[stage] += text

	if stage != StageAssistant || text == "" {
		return nil
	}

	t.pending += text
	if c.flushDelay < 0 {
		return c.flushLocked(t)
	}
	t.flush.Schedule()
	return nil
}

func (c *Controller) onMeta(t *turn, e sse.Event) []Update {
	metaType, _ := stringField(e.Data, "type")

	switch metaType {
	case MetaSessionStarted:
		c.sessionID, _ = stringField(e.Data, "session_id")
		t.errored = false
		t.flush.Cancel()
		t.pending, t.assistant = "", ""
		for stage := range c.stages {
			c.stages[stage] = ""
		}
		return append(c.dismissLocked(), PartialChanged{})

	case MetaContextCommitted:
		return append(c.dismissToolsLocked(), Notice{
			Kind:   NoticeSuccess,
			Key:    NoticeKeySession,
			Title:  "Context saved",
			Detail: "Generating your personalized plan.",
		})

	case MetaPlanGenerationStarted:
		c.stages[StagePlan] = ""
		updates := c.dismissPlanLocked()
		c.planNotice = true
		return append(updates, Notice{Kind: NoticeLoading, Key: NoticeKeyPlan, Title: "Generating study plan..."})

	case MetaPlanGenerationCompleted:
		return append(c.dismissPlanLocked(), Notice{
			Kind:   NoticeSuccess,
			Key:    NoticeKeyPlan,
			Title:  "Study plan ready!",
			Detail: "Review the assistant's recommendations.",
		})

	case MetaSessionFinished:
		t.flush.Cancel()
		updates := c.flushLocked(t)
		updates = append(updates, c.dismissLocked()...)

		if msg := messageOf(e.Data.Get("error"), ""); msg != "" && !t.errored {
			updates = append(updates, Notice{Kind: NoticeError, Key: NoticeKeySession, Title: "Session finished with an error", Detail: msg})
		}
		t.errored = false
		return updates
	}

	return nil
}

func (c *Controller) onHeartbeat(e sse.Event) []Update {
	if stage, _ := stringField(e.Data, "stage"); stage != StageToolCall {
		return nil
	}

	tool, ok := stringField(e.Data, "tool")
	if !ok || tool == "" {
		tool = defaultToolName
	}
	if c.tools[tool] {
		return nil
	}
	c.tools[tool] = true
	return []Update{Notice{Kind: NoticeLoading, Key: ToolNoticeKey(tool), Title: toolLabel(tool)}}
}

func (c *Controller) onErrorEvent(t *turn, e sse.Event) []Update {
	msg, ok := stringField(e.Data, "message")
	if !ok {
		detail := e.Data.Get("detail")
		if !detail.Exists() || detail.Type == gjson.Null {
			detail = e.Data
		}
		msg = messageOf(detail, "Assistant failure.")
	}

	t.errored = true
	return append(c.dismissLocked(), Notice{Kind: NoticeError, Key: NoticeKeyStream, Title: "Error during the session", Detail: msg})
}

// flushLocked moves pending tokens into the visible partial text.
func (c *Controller) flushLocked(t *turn) []Update {
	t.flush.Cancel()
	if t.pending == "" {
		return nil
	}
	t.assistant += t.pending
	t.pending = ""
	return []Update{PartialChanged{Text: t.assistant}}
}

func (c *Controller) appendLocked(m models.ChatMessage) Update {
	c.messages = append(c.messages, m)
	return MessageAppended{Message: m, Index: len(c.messages) - 1}
}

func (c *Controller) dismissLocked() []Update {
	return append(c.dismissPlanLocked(), c.dismissToolsLocked()...)
}

func (c *Controller) dismissPlanLocked() []Update {
	if !c.planNotice {
		return nil
	}
	c.planNotice = false
	return []Update{Notice{Kind: NoticeDismiss, Key: NoticeKeyPlan}}
}

func (c *Controller) dismissToolsLocked() []Update {
	var updates []Update
	for tool := range c.tools {
		updates = append(updates, Notice{Kind: NoticeDismiss, Key: ToolNoticeKey(tool)})
	}
	clear(c.tools)
	return updates
}

// apply runs fn under the state lock and publishes its updates in order.
func (c *Controller) apply(fn func() []Update) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	updates := fn()
	c.mu.Unlock()

	c.publish(updates)
}

func (c *Controller) publish(updates []Update) {
	for _, u := range updates {
		c.bus.Publish(u.topic(), u)
	}
}

// Cancel aborts the active turn, if any, without waiting for it to finish.
func (c *Controller) Cancel() {
	c.mu.Lock()
	t := c.turn
	c.mu.Unlock()

	if t != nil {
		t.cancel()
	}
}

// Wait blocks until no turn is active or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		t := c.turn
		c.mu.Unlock()
		if t == nil {
			return nil
		}

		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Restore replaces the transcript, e.g. when resuming a saved conversation.
func (c *Controller) Restore(messages []models.ChatMessage, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != nil {
		return shared.ErrStreamBusy
	}
	c.messages = append([]models.ChatMessage(nil), messages...)
	c.sessionID = sessionID
	return nil
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

// Partial returns the visible text of the active turn's answer.
func (c *Controller) Partial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return ""
	}
	return c.turn.assistant
}

// StageBuffer returns all text received for stage in the current session.
func (c *Controller) StageBuffer(stage string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stages[stage]
}

// SessionID returns the id announced by the last session_started event.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Streaming reports whether a streaming turn is active.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn != nil && c.turn.stream
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
