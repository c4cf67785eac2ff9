package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/waspdev/waspd/ai/metrics"
	"github.com/waspdev/waspd/internal/profile"
)

// ErrNoExecutorAvailable is returned when a task's route has no backing
// executor. The task fails, it is never silently rerouted.
var ErrNoExecutorAvailable = errors.New("no executor available for route")

// ErrStopped is returned by Submit after the router has shut down.
var ErrStopped = errors.New("router stopped")

// Memory is the slice of the memory engine the router needs: context
// assembly before dispatch and turn recording after completion. The
// router holds the memory engine, never the reverse.
type Memory interface {
	AssembleContext(ctx context.Context, query string) (string, error)
	RecordTurn(ctx context.Context, channelID, userID, role, content string) error
}

// Executor produces the token stream for one task. The local inference
// engine and the cloud provider layer both sit behind this contract.
type Executor interface {
	Stream(ctx context.Context, task *Task) (<-chan string, <-chan error)
}

// CancelResult reports the outcome of a cancel call.
type CancelResult string

const (
	CancelOK             CancelResult = "cancelled"
	CancelNotFound       CancelResult = "not_found"
	CancelAlreadyRunning CancelResult = "already_running"
)

// Ack acknowledges a submission. Position 0 means the task was
// dispatched immediately; otherwise it is the queue length after the
// task was enqueued.
type Ack struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// TaskInfo is the observable slice of a task.
type TaskInfo struct {
	ID         string `json:"id"`
	Priority   string `json:"priority"`
	Route      Route  `json:"route,omitempty"`
	Complexity int    `json:"complexity"`
}

// Snapshot is a point-in-time copy of the router state.
type Snapshot struct {
	QueueLen        int            `json:"queueLen"`
	Current         *TaskInfo      `json:"current,omitempty"`
	UrgentCount     int            `json:"urgentCount"`
	NormalCount     int            `json:"normalCount"`
	BackgroundCount int            `json:"backgroundCount"`
	Config          Config         `json:"config"`
	Executors       ExecutorStatus `json:"executors"`
}

// Router accepts tasks and runs the scheduling loop. The queue and the
// current-task slot are owned by that single loop; all access goes
// through channels.
type Router struct {
	memory   Memory
	local    Executor
	cloud    Executor
	exporter *metrics.Exporter
	bus      *Bus

	submitCh chan submitReq
	opsCh    chan func()
	doneCh   chan doneMsg
	stopped  chan struct{}

	// Loop-owned state. Never touched outside the scheduling loop.
	queue   *taskQueue
	cfg     Config
	status  ExecutorStatus
	current *running
	runSeq  uint64
	baseCtx context.Context
}

type running struct {
	task   *Task
	cancel context.CancelFunc
	runID  uint64
}

type doneMsg struct {
	runID    uint64
	task     *Task
	response string
	err      error
}

type submitReq struct {
	task  *Task
	reply chan submitResp
}

type submitResp struct {
	ack *Ack
	err error
}

// Option configures the router.
type Option func(*Router)

// WithMetrics attaches a metrics exporter.
func WithMetrics(e *metrics.Exporter) Option {
	return func(r *Router) { r.exporter = e }
}

// New creates a router. Either executor may be nil; tasks routed to a
// missing executor fail with ErrNoExecutorAvailable.
func New(p *profile.Profile, memory Memory, local, cloud Executor, opts ...Option) *Router {
	cfg := Config{Mode: ModeAuto, Threshold: 6}
	maxDepth := DefaultMaxDepth
	if p != nil {
		if p.RoutingMode != "" {
			cfg.Mode = p.RoutingMode
		}
		cfg.Threshold = p.RoutingThreshold
		cfg.PrivacyMode = p.PrivacyMode
		if p.QueueMaxDepth > 0 {
			maxDepth = p.QueueMaxDepth
		}
	}

	r := &Router{
		memory:   memory,
		local:    local,
		cloud:    cloud,
		bus:      NewBus(),
		submitCh: make(chan submitReq),
		opsCh:    make(chan func()),
		doneCh:   make(chan doneMsg, 16),
		stopped:  make(chan struct{}),
		queue:    newTaskQueue(maxDepth),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers an event stream subscriber.
func (r *Router) Subscribe() (<-chan Event, func()) {
	return r.bus.Subscribe()
}

// Start runs the scheduling loop until ctx is cancelled.
func (r *Router) Start(ctx context.Context) {
	r.baseCtx = ctx
	go r.loop(ctx)
}

func (r *Router) loop(ctx context.Context) {
	defer close(r.stopped)
	r.bus.Publish(Event{Type: EventReady})

	for {
		select {
		case req := <-r.submitCh:
			req.reply <- r.handleSubmit(req.task)
		case op := <-r.opsCh:
			op()
		case msg := <-r.doneCh:
			r.handleDone(msg)
		case <-ctx.Done():
			if r.current != nil {
				r.current.cancel()
			}
			return
		}
	}
}

// Submit scores the task synchronously and either dispatches it at once
// or enqueues it. A full queue with no background victim rejects with
// ErrQueueFull.
func (r *Router) Submit(t *Task) (*Ack, error) {
	req := submitReq{task: t, reply: make(chan submitResp, 1)}
	select {
	case r.submitCh <- req:
	case <-r.stopped:
		return nil, ErrStopped
	}
	resp := <-req.reply
	return resp.ack, resp.err
}

// UpdateConfig atomically swaps the routing configuration used by
// subsequent scoring decisions.
func (r *Router) UpdateConfig(cfg Config) {
	r.do(func() { r.cfg = cfg })
}

// GetConfig returns the active routing configuration.
func (r *Router) GetConfig() Config {
	var cfg Config
	r.do(func() { cfg = r.cfg })
	return cfg
}

// SetExecutorStatus updates availability flags. Nil leaves a flag
// unchanged.
func (r *Router) SetExecutorStatus(localLoaded, cloudAvailable *bool) {
	r.do(func() {
		if localLoaded != nil {
			r.status.LocalLoaded = *localLoaded
		}
		if cloudAvailable != nil {
			r.status.CloudAvailable = *cloudAvailable
		}
		snapshot := r.snapshotLocked()
		r.bus.Publish(Event{Type: EventStatus, Status: &snapshot})
	})
}

// Cancel cancels a task. A queued task is removed; the currently-running
// task is cancelled cooperatively and reported as already_running.
func (r *Router) Cancel(id string) CancelResult {
	result := CancelNotFound
	r.do(func() {
		if r.current != nil && r.current.task.ID == id {
			t := r.current.task
			r.current.cancel()
			r.current = nil
			r.bus.Publish(Event{Type: EventCancelled, TaskID: id})
			r.recordTask(t, "cancelled")
			r.advance()
			result = CancelAlreadyRunning
			return
		}
		if t := r.queue.remove(id); t != nil {
			r.bus.Publish(Event{Type: EventCancelled, TaskID: id})
			r.recordTask(t, "cancelled")
			r.updateQueueGauge()
			result = CancelOK
		}
	})
	return result
}

// ClearQueue drops every queued task. The currently-running task is
// unaffected.
func (r *Router) ClearQueue() int {
	dropped := 0
	r.do(func() {
		for _, t := range r.queue.drain() {
			r.bus.Publish(Event{Type: EventDropped, TaskID: t.ID, Reason: ReasonQueueCleared})
			r.recordTask(t, "dropped")
			dropped++
		}
		r.updateQueueGauge()
	})
	return dropped
}

// Status returns a snapshot of the queue and the current task.
func (r *Router) Status() Snapshot {
	var s Snapshot
	r.do(func() { s = r.snapshotLocked() })
	return s
}

// do runs op inside the scheduling loop and waits for it.
func (r *Router) do(op func()) {
	done := make(chan struct{})
	wrapped := func() {
		op()
		close(done)
	}
	select {
	case r.opsCh <- wrapped:
		<-done
	case <-r.stopped:
	}
}

func (r *Router) handleSubmit(t *Task) submitResp {
	scoreTask(t, r.cfg)

	// Idle scheduler: dispatch immediately, do not enqueue.
	if r.current == nil {
		r.dispatch(t)
		return submitResp{ack: &Ack{ID: t.ID, Position: 0}}
	}

	// An urgent arrival preempts lower-priority running work.
	if t.Priority == PriorityUrgent && r.current.task.Priority < PriorityUrgent {
		preempted := r.current.task
		r.current.cancel()
		r.current = nil
		r.bus.Publish(Event{Type: EventPreempted, TaskID: preempted.ID})
		r.queue.pushFront(preempted)
		r.dispatch(t)
		r.updateQueueGauge()
		return submitResp{ack: &Ack{ID: t.ID, Position: 0}}
	}

	victim, err := r.queue.push(t)
	if err != nil {
		return submitResp{err: err}
	}
	if victim != nil {
		r.bus.Publish(Event{Type: EventDropped, TaskID: victim.ID, Reason: ReasonQueueOverflow})
		r.recordTask(victim, "dropped")
	}

	position := r.queue.len()
	r.bus.Publish(Event{Type: EventQueued, TaskID: t.ID, Position: position})
	r.updateQueueGauge()
	return submitResp{ack: &Ack{ID: t.ID, Position: position}}
}

// dispatch decides the route and hands the task to its executor.
func (r *Router) dispatch(t *Task) {
	t.Route = DecideRoute(t, r.cfg, r.status)

	r.bus.Publish(Event{
		Type:       EventRouted,
		TaskID:     t.ID,
		Route:      t.Route,
		Complexity: t.Complexity,
		Priority:   t.Priority.String(),
		Realtime:   t.Realtime,
		Privacy:    t.Privacy,
	})
	if r.exporter != nil {
		r.exporter.RecordDispatchLatency(string(t.Route), time.Since(t.CreatedAt))
	}

	exec := r.executorFor(t.Route)
	if exec == nil || !r.routeReady(t.Route) {
		slog.Warn("no executor for route", "task", t.ID, "route", t.Route)
		r.bus.Publish(Event{Type: EventError, TaskID: t.ID, Error: ErrNoExecutorAvailable.Error()})
		r.recordTask(t, "error")
		r.advance()
		return
	}

	r.runSeq++
	runCtx, cancel := context.WithCancel(r.baseCtx)
	r.current = &running{task: t, cancel: cancel, runID: r.runSeq}
	go r.execute(runCtx, t, exec, r.runSeq)
}

func (r *Router) executorFor(route Route) Executor {
	if route == RouteLocal {
		return r.local
	}
	return r.cloud
}

// routeReady reports whether the route's executor is usable: local
// needs a loaded model, cloud needs a reachable provider. A wired but
// unready executor counts as unavailable.
func (r *Router) routeReady(route Route) bool {
	if route == RouteLocal {
		return r.status.LocalLoaded
	}
	return r.status.CloudAvailable
}

// execute runs outside the scheduling loop: it assembles context, drives
// the executor stream, forwards tokens and reports completion.
func (r *Router) execute(ctx context.Context, t *Task, exec Executor, runID uint64) {
	r.recordTurn(t.ChannelID, t.UserID, "user", t.Message)

	assembled, err := r.memory.AssembleContext(ctx, t.Message)
	if err != nil {
		slog.Warn("context assembly failed, using raw message", "task", t.ID, "error", err)
		assembled = t.Message
	}
	t.Context = assembled

	tokens, errCh := exec.Stream(ctx, t)

	var response strings.Builder
	for token := range tokens {
		response.WriteString(token)
		r.bus.Publish(Event{Type: EventStream, TaskID: t.ID, Token: token})
		if r.exporter != nil {
			r.exporter.RecordStreamToken(string(t.Route))
		}
	}
	streamErr := <-errCh

	select {
	case r.doneCh <- doneMsg{runID: runID, task: t, response: response.String(), err: streamErr}:
	case <-r.stopped:
	}
}

func (r *Router) handleDone(msg doneMsg) {
	// A done message from a preempted or cancelled run: that slot was
	// already released and its terminal event emitted.
	if r.current == nil || r.current.runID != msg.runID {
		return
	}
	t := msg.task
	r.current = nil

	switch {
	case msg.err == nil:
		r.bus.Publish(Event{Type: EventComplete, TaskID: t.ID, Response: msg.response})
		r.recordTask(t, "completed")
		r.recordTurn(t.ChannelID, t.UserID, "assistant", msg.response)
	case errors.Is(msg.err, context.Canceled):
		// Shutdown took the base context down mid-stream.
		slog.Debug("task cancelled by shutdown", "task", t.ID)
	default:
		r.bus.Publish(Event{Type: EventError, TaskID: t.ID, Error: msg.err.Error()})
		r.recordTask(t, "error")
	}

	r.advance()
}

// advance dispatches queued tasks until one sticks or the queue is
// empty.
func (r *Router) advance() {
	for r.current == nil {
		next := r.queue.pop()
		if next == nil {
			break
		}
		r.dispatch(next)
	}
	r.updateQueueGauge()
}

// recordTurn persists one conversation turn in the background. Store
// failures are logged, never surfaced to the submitter.
func (r *Router) recordTurn(channelID, userID, role, content string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.memory.RecordTurn(ctx, channelID, userID, role, content); err != nil {
			slog.Error("failed to record turn", "channel", channelID, "role", role, "error", err)
		}
	}()
}

func (r *Router) recordTask(t *Task, status string) {
	if r.exporter == nil {
		return
	}
	route := string(t.Route)
	if route == "" {
		route = "none"
	}
	r.exporter.RecordTask(route, t.Priority.String(), status)
}

func (r *Router) updateQueueGauge() {
	if r.exporter != nil {
		r.exporter.SetQueueDepth(r.queue.len())
	}
}

func (r *Router) snapshotLocked() Snapshot {
	urgent, normal, background := r.queue.counts()
	s := Snapshot{
		QueueLen:        r.queue.len(),
		UrgentCount:     urgent,
		NormalCount:     normal,
		BackgroundCount: background,
		Config:          r.cfg,
		Executors:       r.status,
	}
	if r.current != nil {
		t := r.current.task
		s.Current = &TaskInfo{
			ID:         t.ID,
			Priority:   t.Priority.String(),
			Route:      t.Route,
			Complexity: t.Complexity,
		}
	}
	return s
}
