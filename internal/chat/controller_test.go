package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/desertthunder/studyctl/internal/events"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/sse"
	tu "github.com/desertthunder/studyctl/internal/testing"
)

type streamFunc func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error

// fakeBackend scripts chat responses; streams[i] serves the i-th streaming call.
type fakeBackend struct {
	mu      sync.Mutex
	reply   string
	chatErr error
	streams []streamFunc
	calls   [][]models.ChatMessage
}

func (f *fakeBackend) Chat(ctx context.Context, msgs []models.ChatMessage) (*models.ChatReply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &models.ChatReply{Reply: f.reply}, nil
}

func (f *fakeBackend) StreamChat(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	return f.streams[n](ctx, msgs, h)
}

func (f *fakeBackend) call(i int) []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func ev(typ, raw string) sse.Event {
	return sse.Event{Type: typ, Data: gjson.Parse(raw), Raw: raw, Retry: -1}
}

func token(text string) sse.Event {
	return ev(EventToken, `{"stage":"assistant_response","text":"`+text+`"}`)
}

func emit(h sse.Handler, events ...sse.Event) {
	for _, e := range events {
		h.OnEvent(e)
	}
}

// updateLog records every update published on a bus.
type updateLog struct {
	mu      sync.Mutex
	updates []Update
}

func record(bus *Bus) *updateLog {
	l := &updateLog{}
	bus.SubscribeAll(func(_ Topic, u Update) {
		l.mu.Lock()
		l.updates = append(l.updates, u)
		l.mu.Unlock()
	})
	return l
}

func (l *updateLog) partials() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, u := range l.updates {
		if p, ok := u.(PartialChanged); ok && p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

func (l *updateLog) notices(kind NoticeKind) []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Notice
	for _, u := range l.updates {
		if n, ok := u.(Notice); ok && n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (l *updateLog) streaming() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []bool
	for _, u := range l.updates {
		if s, ok := u.(StreamingChanged); ok {
			out = append(out, s.Streaming)
		}
	}
	return out
}

func newController(backend *fakeBackend, delay time.Duration) (*Controller, *updateLog) {
	bus := events.New[Topic, Update]()
	log := record(bus)
	return New(backend, bus, Options{FlushDelay: delay}, shared.NewLogger(io.Discard)), log
}

func assistantMessages(msgs []models.ChatMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			out = append(out, m.Content)
		}
	}
	return out
}

func TestController(t *testing.T) {
	t.Run("Single Assistant Message", func(t *testing.T) {
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("Hi"), token(" there"), ev(EventMeta, `{"type":"session_finished"}`))
				return nil
			},
		}}
		c, log := newController(backend, 20*time.Millisecond)

		if err := c.Send(context.Background(), "hello", true); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}

		msgs := c.Messages()
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d: %v", len(msgs), msgs)
		}
		if msgs[0].Role != models.RoleUser || msgs[0].Content != "hello" {
			t.Errorf("unexpected user message %+v", msgs[0])
		}
		if msgs[1].Role != models.RoleAssistant || msgs[1].Content != "Hi there" {
			t.Errorf("unexpected assistant message %+v", msgs[1])
		}
		if c.Partial() != "" || c.Streaming() {
			t.Error("expected turn state to be cleared")
		}
		if got := log.streaming(); len(got) != 2 || !got[0] || got[1] {
			t.Errorf("expected streaming true then false, got %v", got)
		}
	})

	t.Run("Flush Preserves Order", func(t *testing.T) {
		release := make(chan struct{})
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("a"), token("b"), token("c"))
				<-release
				return nil
			},
		}}
		c, log := newController(backend, 40*time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- c.Send(context.Background(), "go", true) }()

		tu.Eventually(t, time.Second, func() bool { return len(log.partials()) > 0 }, "partial text was never flushed")

		if got := log.partials(); len(got) != 1 || got[0] != "abc" {
			t.Errorf("expected one coalesced update abc, got %v", got)
		}
		if got := c.Partial(); got != "abc" {
			t.Errorf("expected partial abc, got %q", got)
		}
		if got := c.StageBuffer(StageAssistant); got != "abc" {
			t.Errorf("expected stage buffer abc, got %q", got)
		}

		close(release)
		if err := <-done; err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
		if got := assistantMessages(c.Messages()); len(got) != 1 || got[0] != "abc" {
			t.Errorf("expected committed abc, got %v", got)
		}
	})

	t.Run("Immediate Flush", func(t *testing.T) {
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("a"), token("b"))
				return nil
			},
		}}
		c, log := newController(backend, -1)

		if err := c.Send(context.Background(), "go", true); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
		if got := log.partials(); len(got) != 2 || got[0] != "a" || got[1] != "ab" {
			t.Errorf("expected an update per token, got %v", got)
		}
	})

	t.Run("Superseded Turn Commits Once", func(t *testing.T) {
		started := make(chan struct{})
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("part"))
				close(started)
				<-ctx.Done()
				h.OnError(ctx.Err())
				return ctx.Err()
			},
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("second"), ev(EventMeta, `{"type":"session_finished"}`))
				return nil
			},
		}}
		c, log := newController(backend, 20*time.Millisecond)

		first := make(chan error, 1)
		go func() { first <- c.Send(context.Background(), "one", true) }()
		<-started

		if err := c.Send(context.Background(), "two", true); err != nil {
			t.Fatalf("second Send returned error: %v", err)
		}
		if err := <-first; err != nil {
			t.Errorf("cancelled Send should return nil, got %v", err)
		}

		msgs := c.Messages()
		want := []models.ChatMessage{
			{Role: models.RoleUser, Content: "one"},
			{Role: models.RoleAssistant, Content: "part"},
			{Role: models.RoleUser, Content: "two"},
			{Role: models.RoleAssistant, Content: "second"},
		}
		if len(msgs) != len(want) {
			t.Fatalf("expected %d messages, got %v", len(want), msgs)
		}
		for i := range want {
			if msgs[i] != want[i] {
				t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
			}
		}

		if got := backend.call(1); len(got) != 3 {
			t.Errorf("second request should carry the committed partial, got %v", got)
		}
		if errs := log.notices(NoticeError); len(errs) != 0 {
			t.Errorf("cancellation must not surface errors, got %v", errs)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		started := make(chan struct{})
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("half"))
				close(started)
				<-ctx.Done()
				return ctx.Err()
			},
		}}
		c, _ := newController(backend, 20*time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- c.Send(context.Background(), "q", true) }()
		<-started

		c.Cancel()
		if err := <-done; err != nil {
			t.Errorf("expected nil after Cancel, got %v", err)
		}
		if err := c.Wait(context.Background()); err != nil {
			t.Errorf("Wait returned error: %v", err)
		}
		if got := assistantMessages(c.Messages()); len(got) != 1 || got[0] != "half" {
			t.Errorf("expected partial to be committed, got %v", got)
		}
	})

	t.Run("Non Streaming", func(t *testing.T) {
		backend := &fakeBackend{reply: "complete answer"}
		c, log := newController(backend, 0)

		if err := c.Send(context.Background(), "hello", false); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}

		msgs := c.Messages()
		if len(msgs) != 2 || msgs[1].Content != "complete answer" {
			t.Errorf("unexpected messages %v", msgs)
		}
		if got := log.streaming(); len(got) != 0 {
			t.Errorf("non-streaming turn should not toggle streaming, got %v", got)
		}
	})

	t.Run("Non Streaming Failure", func(t *testing.T) {
		backend := &fakeBackend{chatErr: errors.New("boom")}
		c, log := newController(backend, 0)

		if err := c.Send(context.Background(), "hello", false); err == nil {
			t.Fatal("expected error")
		}
		if len(c.Messages()) != 1 {
			t.Errorf("expected only the user message, got %v", c.Messages())
		}
		if len(log.notices(NoticeError)) != 1 {
			t.Errorf("expected an error notice")
		}
	})

	t.Run("Blank Input", func(t *testing.T) {
		backend := &fakeBackend{reply: "hi"}
		c, _ := newController(backend, 0)

		if err := c.Send(context.Background(), "   ", false); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
		if msgs := c.Messages(); len(msgs) != 1 || msgs[0].Role != models.RoleAssistant {
			t.Errorf("blank input should not be appended, got %v", msgs)
		}
	})

	t.Run("Stream Failure Keeps Partial", func(t *testing.T) {
		failure := &sse.StatusError{StatusCode: 502, Status: "502 Bad Gateway"}
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("so far"))
				h.OnError(failure)
				return failure
			},
		}}
		c, log := newController(backend, 20*time.Millisecond)

		err := c.Send(context.Background(), "q", true)
		if !errors.Is(err, failure) {
			t.Errorf("expected stream failure to be returned, got %v", err)
		}
		if got := assistantMessages(c.Messages()); len(got) != 1 || got[0] != "so far" {
			t.Errorf("expected partial answer to be committed, got %v", got)
		}

		errs := log.notices(NoticeError)
		if len(errs) != 1 || errs[0].Title != "Connection error" {
			t.Errorf("expected one connection error notice, got %v", errs)
		}
	})

	t.Run("Blank Answer Not Committed", func(t *testing.T) {
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, token("  "), ev(EventMeta, `{"type":"session_finished"}`))
				return nil
			},
		}}
		c, _ := newController(backend, 20*time.Millisecond)

		if err := c.Send(context.Background(), "q", true); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
		if got := assistantMessages(c.Messages()); len(got) != 0 {
			t.Errorf("whitespace answer should not be committed, got %v", got)
		}
	})
}

func TestControllerEvents(t *testing.T) {
	run := func(t *testing.T, events ...sse.Event) (*Controller, *updateLog) {
		t.Helper()
		backend := &fakeBackend{streams: []streamFunc{
			func(ctx context.Context, msgs []models.ChatMessage, h sse.Handler) error {
				emit(h, events...)
				return nil
			},
		}}
		c, log := newController(backend, 20*time.Millisecond)
		if err := c.Send(context.Background(), "q", true); err != nil {
			t.Fatalf("Send returned error: %v", err)
		}
		return c, log
	}

	t.Run("Session Started Resets", func(t *testing.T) {
		c, _ := run(t,
			token("stale"),
			ev(EventToken, `{"stage":"study_plan","text":"old plan"}`),
			ev(EventMeta, `{"type":"session_started","session_id":"s-42"}`),
			token("fresh"),
		)

		if c.SessionID() != "s-42" {
			t.Errorf("expected session id s-42, got %q", c.SessionID())
		}
		if got := assistantMessages(c.Messages()); len(got) != 1 || got[0] != "fresh" {
			t.Errorf("expected only post-start text, got %v", got)
		}
		if c.StageBuffer(StagePlan) != "" {
			t.Errorf("expected plan buffer to be reset, got %q", c.StageBuffer(StagePlan))
		}
	})

	t.Run("Stage Buffers", func(t *testing.T) {
		c, log := run(t,
			ev(EventMeta, `{"type":"plan_generation_started"}`),
			ev(EventToken, `{"stage":"study_plan","text":"Week 1"}`),
			ev(EventToken, `{"stage":"study_plan","text":": basics"}`),
			ev(EventToken, `{"text":"default stage"}`),
			ev(EventToken, `{"stage":"assistant_response","text":42}`),
			ev(EventMeta, `{"type":"plan_generation_completed"}`),
		)

		if got := c.StageBuffer(StagePlan); got != "Week 1: basics" {
			t.Errorf("expected plan buffer, got %q", got)
		}
		if got := assistantMessages(c.Messages()); len(got) != 1 || got[0] != "default stage" {
			t.Errorf("plan tokens must not reach the answer, got %v", got)
		}

		loading := log.notices(NoticeLoading)
		if len(loading) != 1 || loading[0].Key != NoticeKeyPlan {
			t.Errorf("expected plan loading notice, got %v", loading)
		}
		dismissed := log.notices(NoticeDismiss)
		if len(dismissed) != 1 || dismissed[0].Key != NoticeKeyPlan {
			t.Errorf("expected plan notice to be dismissed, got %v", dismissed)
		}
		if len(log.notices(NoticeSuccess)) != 1 {
			t.Error("expected plan ready notice")
		}
	})

	t.Run("Tool Notices", func(t *testing.T) {
		_, log := run(t,
			ev(EventHeartbeat, `{"stage":"tool_call","tool":"commit_user_context"}`),
			ev(EventHeartbeat, `{"stage":"tool_call","tool":"commit_user_context"}`),
			ev(EventHeartbeat, `{"stage":"tool_call","tool":"search"}`),
			ev(EventHeartbeat, `{"stage":"thinking"}`),
			ev(EventMeta, `{"type":"context_committed"}`),
		)

		loading := log.notices(NoticeLoading)
		if len(loading) != 2 {
			t.Fatalf("expected one loading notice per tool, got %v", loading)
		}
		if loading[0].Title != "Saving user context..." || loading[0].Key != ToolNoticeKey("commit_user_context") {
			t.Errorf("unexpected tool notice %+v", loading[0])
		}
		if got := log.notices(NoticeDismiss); len(got) != 2 {
			t.Errorf("expected both tool notices to be dismissed, got %v", got)
		}
		if got := log.notices(NoticeSuccess); len(got) != 1 || got[0].Title != "Context saved" {
			t.Errorf("expected context saved notice, got %v", got)
		}
	})

	t.Run("Error Event", func(t *testing.T) {
		_, log := run(t,
			ev(EventError, `{"stage":"tool_call","message":"tool crashed"}`),
			ev(EventMeta, `{"type":"session_finished","error":"tool crashed"}`),
		)

		errs := log.notices(NoticeError)
		if len(errs) != 1 {
			t.Fatalf("expected a single error notice, got %v", errs)
		}
		if errs[0].Detail != "tool crashed" {
			t.Errorf("unexpected detail %q", errs[0].Detail)
		}
	})

	t.Run("Error Event Detail", func(t *testing.T) {
		_, log := run(t, ev(EventError, `{"detail":{"code":"rate_limited"}}`))

		errs := log.notices(NoticeError)
		if len(errs) != 1 || errs[0].Detail != `{"code":"rate_limited"}` {
			t.Errorf("expected detail to be rendered, got %v", errs)
		}
	})

	t.Run("Session Finished With Error", func(t *testing.T) {
		_, log := run(t, ev(EventMeta, `{"type":"session_finished","error":"model unavailable"}`))

		errs := log.notices(NoticeError)
		if len(errs) != 1 || errs[0].Title != "Session finished with an error" || errs[0].Detail != "model unavailable" {
			t.Errorf("expected session error notice, got %v", errs)
		}
	})

	t.Run("Session Finished Without Error", func(t *testing.T) {
		_, log := run(t, ev(EventMeta, `{"type":"session_finished","error":null}`))

		if errs := log.notices(NoticeError); len(errs) != 0 {
			t.Errorf("expected no error notice, got %v", errs)
		}
	})

	t.Run("Unknown Events Ignored", func(t *testing.T) {
		c, log := run(t, ev("progress", `{"pct":50}`), ev(EventMeta, `{"type":"something_else"}`))

		if len(log.notices(NoticeError)) != 0 || len(assistantMessages(c.Messages())) != 0 {
			t.Error("unknown events should have no effect")
		}
	})
}
