package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/services"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/sse"
)

// DefaultInterval is the polling interval used when [Options.Interval] is not set.
const DefaultInterval = 4000 * time.Millisecond

// Strategy selects how a [Monitor] follows a job.
type Strategy string

const (
	StrategyAuto    Strategy = "auto"
	StrategySSE     Strategy = "sse"
	StrategyPolling Strategy = "polling"
)

// ParseStrategy parses a strategy name. An empty name is [StrategyAuto].
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategySSE:
		return StrategySSE, nil
	case StrategyPolling:
		return StrategyPolling, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", shared.ErrInvalidArgument, s)
	}
}

// Transport is the mechanism currently following the job.
type Transport string

const (
	TransportNone    Transport = "none"
	TransportStream  Transport = "stream"
	TransportPolling Transport = "polling"
)

// Status messages.
const (
	MessageMonitoring  = "Monitoring job..."
	MessageGenerating  = "Generating with AI..."
	MessageProcessing  = "Processing..."
	MessageSucceeded   = "Job completed"
	MessageFailed      = "Job failed"
	MessageCheckFailed = "unable to check job status"
)

// State is a snapshot of the monitored job.
type State struct {
	JobID   string
	Status  models.JobStatus
	Message string
	Error   string
	Result  json.RawMessage
}

// Record converts the state into a job history record of the given kind.
func (s State) Record(kind string) *models.JobRecord {
	rec := models.NewJobRecord(0, s.JobID, kind)
	rec.SetStatus(s.Status)
	rec.SetMessage(s.Message)
	rec.SetError(s.Error)
	rec.SetResult(s.Result)
	return rec
}

// Options configures a [Monitor].
type Options struct {
	Strategy         Strategy
	Interval         time.Duration
	DisableStreaming bool

	// OnSuccess receives the job result once, when the job succeeds.
	OnSuccess func(result json.RawMessage)
	// OnError receives the failure message once, when the job fails.
	OnError func(message string)
	// OnUpdate receives every state change.
	OnUpdate func(State)
}

// Monitor follows one job at a time.
//
// Callbacks are invoked outside the monitor's lock, on the goroutine that observed the change,
// and may call [Monitor.Stop] or [Monitor.Start].
type Monitor struct {
	poller   services.JobPoller
	streamer services.JobStreamer
	opts     Options
	logger   *log.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	transport Transport
}

// New creates an idle [Monitor]. A nil streamer restricts the monitor to polling.
func New(poller services.JobPoller, streamer services.JobStreamer, opts Options, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}

	return &Monitor{
		poller:    poller,
		streamer:  streamer,
		opts:      opts,
		logger:    shared.WithLogger(logger, "component", "jobs"),
		state:     State{Status: models.JobIdle},
		transport: TransportNone,
	}
}

// Start tears down any active transport and begins following jobID.
//
// Monitoring stops when the job reaches a terminal state, when [Monitor.Stop] is called or
// when ctx is done.
func (m *Monitor) Start(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	useStream := false
	switch m.opts.Strategy {
	case StrategyPolling:
	case StrategySSE:
		useStream = m.streamer != nil
	case StrategyAuto:
		useStream = m.streamer != nil && !m.opts.DisableStreaming
	default:
		return fmt.Errorf("%w: unknown strategy %q", shared.ErrInvalidArgument, m.opts.Strategy)
	}

	m.mu.Lock()
	prev := m.endLocked()
	gen := m.gen
	tctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	message := MessageMonitoring
	m.transport = TransportPolling
	if useStream {
		message = MessageGenerating
		m.transport = TransportStream
	}
	m.state = State{JobID: jobID, Status: models.JobRunning, Message: message}
	snapshot, transport := m.state, m.transport
	m.mu.Unlock()

	closeDone(prev)
	m.logger.Debug("monitoring job", "job", jobID, "transport", transport)
	m.notify(snapshot)

	go func() {
		if useStream {
			m.stream(tctx, gen, jobID)
		} else {
			m.poll(tctx, gen, jobID)
		}
		m.release(gen)
	}()
	return nil
}

// Stop aborts the active transport. It is safe to call at any time and more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	done := m.endLocked()
	m.mu.Unlock()

	closeDone(done)
}

// Refresh performs one status check outside the transport's schedule.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	jobID, gen := m.state.JobID, m.gen
	m.mu.Unlock()

	if jobID == "" {
		return nil
	}
	_, err := m.check(ctx, gen, jobID)
	return err
}

// State returns a snapshot of the job state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transport reports which transport is active.
func (m *Monitor) Transport() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// Wait blocks until monitoring ends and returns the final state.
func (m *Monitor) Wait(ctx context.Context) (State, error) {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
	return m.State(), nil
}

// endLocked invalidates the current generation and releases its transport.
// The returned channel must be closed by the caller once the generation's callbacks have run.
func (m *Monitor) endLocked() chan struct{} {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.transport = TransportNone

	done := m.done
	m.done = nil
	return done
}

func closeDone(done chan struct{}) {
	if done != nil {
		close(done)
	}
}

// release ends gen when its transport goroutine returns without a terminal state.
func (m *Monitor) release(gen uint64) {
	m.mu.Lock()
	var done chan struct{}
	if m.gen == gen {
		done = m.endLocked()
	}
	m.mu.Unlock()

	closeDone(done)
}

func (m *Monitor) stream(ctx context.Context, gen uint64, jobID string) {
	finished := false
	err := m.streamer.StreamJob(ctx, jobID, sse.Handler{
		OnEvent: func(e sse.Event) {
			if finished {
				return
			}
			status := e.Data.Get("status")
			if status.Type != gjson.String || status.Str == "" {
				return
			}
			finished = m.handle(gen, &models.JobStatusResponse{
				JobID:  jobID,
				Status: status.Str,
				Error:  e.Data.Get("error").String(),
				Result: rawResult(e.Data.Get("result")),
			})
		},
		OnError: func(err error) {
			if !errors.Is(err, context.Canceled) {
				m.logger.Debug("job stream error", "job", jobID, "error", err)
			}
		},
	})
	if finished || ctx.Err() != nil {
		return
	}

	m.logger.Info("job stream ended, falling back to polling", "job", jobID, "error", err)
	if !m.switchToPolling(gen) {
		return
	}
	m.poll(ctx, gen, jobID)
}

func (m *Monitor) switchToPolling(gen uint64) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.transport = TransportPolling
	m.state.Message = MessageMonitoring
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
	return true
}

// poll checks immediately, then on every interval tick until the job is finished.
func (m *Monitor) poll(ctx context.Context, gen uint64, jobID string) {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		if finished, _ := m.check(ctx, gen, jobID); finished {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check fetches the job status once. It reports whether following the job should stop.
func (m *Monitor) check(ctx context.Context, gen uint64, jobID string) (bool, error) {
	resp, err := m.poller.JobStatus(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return true, err
		}
		m.logger.Warn("job status check failed", "job", jobID, "error", err)
		m.fail(gen, MessageCheckFailed)
		return true, err
	}
	return m.handle(gen, resp), nil
}

// handle applies a status payload. It reports whether following the job should stop.
func (m *Monitor) handle(gen uint64, resp *models.JobStatusResponse) bool {
	switch models.JobStatus(resp.Status) {
	case models.JobSucceeded:
		m.succeed(gen, resp.Result)
		return true
	case models.JobFailed:
		m.fail(gen, resp.Error)
		return true
	}

	message := resp.Error
	if message == "" {
		message = MessageProcessing
	}
	return !m.running(gen, message)
}

func (m *Monitor) running(gen uint64, message string) bool {
	m.mu.Lock()
	if m.gen != gen || m.state.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	m.state.Status = models.JobRunning
	m.state.Message = message
	snapshot := m.state
	m.mu.Unlock()

	m.notify(snapshot)
	return true
}

func (m *Monitor) succeed(gen uint64, result json.RawMessage) {
	snapshot, done, ok := m.terminate(gen, func(s *State) {
		s.Status = models.JobSucceeded
		s.Message = MessageSucceeded
		s.Result = result
	})
	if !ok {
		return
	}
	defer closeDone(done)

	m.logger.Info("job succeeded", "job", snapshot.JobID)
	m.notify(snapshot)
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(snapshot.Result)
	}
}

func (m *Monitor) fail(gen uint64, message string) {
	snapshot, done, ok := m.terminate(gen, func(s *State) {
		s.Status = models.JobFailed
		s.Error = message
		s.Message = message
		if message == "" {
			s.Message = MessageFailed
		}
	})
	if !ok {
		return
	}
	defer closeDone(done)

	m.logger.Warn("job failed", "job", snapshot.JobID, "error", message)
	m.notify(snapshot)
	if m.opts.OnError != nil {
		m.opts.OnError(message)
	}
}

// terminate applies the single terminal transition of a job and stops its transport.
func (m *Monitor) terminate(gen uint64, fn func(*State)) (State, chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status.Terminal() || m.gen != gen {
		return State{}, nil, false
	}
	fn(&m.state)
	return m.state, m.endLocked(), true
}

func (m *Monitor) notify(s State) {
	if m.opts.OnUpdate != nil {
		m.opts.OnUpdate(s)
	}
}

func rawResult(v gjson.Result) json.RawMessage {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(v.Raw)
}
