package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/vk/modgate/internal/relay"
	"github.com/vk/modgate/internal/statestore"
)

// State is a worker's lifecycle state.
type State int

const (
	Starting State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	outboxSize      = 256
	shutdownTimeout = 5 * time.Second
	spawnRetryDelay = time.Second
)

// Bus replaces the pipe relay for updates. *relay.RedisBus satisfies it.
type Bus interface {
	Publish(ctx context.Context, env *relay.Envelope) error
	Subscribe(ctx context.Context, logger *slog.Logger) (<-chan *relay.Envelope, error)
}

// Config tunes a Supervisor.
type Config struct {
	Workers int
	// Resync is a cron schedule for periodic snapshot pushes. Empty disables it.
	Resync string
	// StatusKey, when set, is the state key the pool status is published
	// under after every worker state change.
	StatusKey string
	// Bus, when set, carries updates instead of the pipes.
	Bus Bus
}

// WorkerStatus describes one worker slot.
type WorkerStatus struct {
	ID          string    `json:"id"`
	Incarnation string    `json:"incarnation"`
	PID         int       `json:"pid"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	Restarts    int       `json:"restarts"`
}

type worker struct {
	id          string
	incarnation string
	proc        Process
	state       State
	startedAt   time.Time
	restarts    int
	outbox      chan *relay.Envelope
}

type inbound struct {
	w   *worker
	env *relay.Envelope
}

type exitEvent struct {
	w   *worker
	err error
}

// respawn asks the Run loop to start a replacement in a worker slot.
type respawn struct {
	id       string
	restarts int
}

// Supervisor owns the worker pool.
type Supervisor struct {
	cfg     Config
	spawner Spawner
	logger  *slog.Logger
	state   *statestore.Replica

	mu      sync.Mutex
	workers map[string]*worker
	spawns  int

	inbox    chan inbound
	exits    chan exitEvent
	respawns chan respawn
	resync   chan struct{}
	ready    chan struct{}
	once     sync.Once
}

// New creates a supervisor that will seed workers with initial.
func New(cfg Config, spawner Spawner, initial statestore.Snapshot, logger *slog.Logger) *Supervisor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	s := &Supervisor{
		cfg:      cfg,
		spawner:  spawner,
		logger:   logger,
		workers:  make(map[string]*worker),
		inbox:    make(chan inbound, outboxSize),
		exits:    make(chan exitEvent, 2*cfg.Workers),
		respawns: make(chan respawn, cfg.Workers),
		resync:   make(chan struct{}, 1),
		ready:    make(chan struct{}),
	}
	s.state = statestore.NewReplica("master", statestore.ForwarderFunc(s.forward))
	s.state.Load(initial)
	return s
}

// Ready is closed once every initial worker has completed its handshake.
func (s *Supervisor) Ready() <-chan struct{} { return s.ready }

// Run spawns the pool and supervises it until ctx is cancelled. It returns
// an error only if the initial workers cannot be started.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("👷 Starting worker pool.", "workers", s.cfg.Workers)

	var busUpdates <-chan *relay.Envelope
	if s.cfg.Bus != nil {
		ch, err := s.cfg.Bus.Subscribe(ctx, s.logger)
		if err != nil {
			return fmt.Errorf("failed to subscribe to relay bus: %w", err)
		}
		busUpdates = ch
	}

	for i := 1; i <= s.cfg.Workers; i++ {
		if err := s.start(ctx, slotID(i), 0); err != nil {
			s.shutdown()
			return err
		}
	}
	s.publishStatus()

	if s.cfg.Resync != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.cfg.Resync, s.requestResync); err != nil {
			s.shutdown()
			return fmt.Errorf("invalid resync schedule %q: %w", s.cfg.Resync, err)
		}
		c.Start()
		defer c.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case in := <-s.inbox:
			s.handle(in)
		case ev := <-s.exits:
			s.onExit(ctx, ev)
		case r := <-s.respawns:
			s.respawn(ctx, r)
		case env, ok := <-busUpdates:
			if !ok {
				busUpdates = nil
				s.logger.Warn("Relay bus subscription closed.")
				continue
			}
			if env.Kind == relay.KindUpdate {
				s.state.Apply(env.Update())
			}
		case <-s.resync:
			s.pushSnapshots()
		}
	}
}

// Relay applies an update to the supervisor's replica and queues it to every
// live worker, including its originator.
func (s *Supervisor) Relay(env *relay.Envelope) {
	s.state.Apply(env.Update())
	s.broadcast(env)
}

// Status lists every worker slot ordered by id.
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, WorkerStatus{
			ID:          w.id,
			Incarnation: w.incarnation,
			PID:         w.proc.PID(),
			State:       w.state.String(),
			StartedAt:   w.startedAt,
			Restarts:    w.restarts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Live counts workers that have not exited.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.workers {
		if w.state != Exited {
			n++
		}
	}
	return n
}

// Spawns returns how many processes have been started in total.
func (s *Supervisor) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns
}

// Snapshot returns the supervisor's view of the shared state.
func (s *Supervisor) Snapshot() statestore.Snapshot { return s.state.Snapshot() }

func (s *Supervisor) start(ctx context.Context, id string, restarts int) error {
	proc, err := s.spawner.Spawn(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to spawn worker %s: %w", id, err)
	}

	w := &worker{
		id:          id,
		incarnation: newIncarnation(),
		proc:        proc,
		state:       Starting,
		startedAt:   time.Now().UTC(),
		restarts:    restarts,
		outbox:      make(chan *relay.Envelope, outboxSize),
	}
	s.mu.Lock()
	s.workers[id] = w
	s.spawns++
	s.mu.Unlock()

	s.logger.Info("Worker spawned.", "worker_id", id, "pid", proc.PID(), "incarnation", w.incarnation, "restarts", restarts)

	w.outbox <- relay.NewSnapshot(s.state.Snapshot())
	go s.write(w)
	go s.read(ctx, w)
	go func() {
		err := proc.Wait()
		s.exits <- exitEvent{w: w, err: err}
	}()
	return nil
}

// write drains a worker's outbox onto its pipe.
func (s *Supervisor) write(w *worker) {
	for env := range w.outbox {
		if err := w.proc.Conn().Send(env); err != nil {
			s.logger.Debug("Failed to send to worker.", "worker_id", w.id, "kind", env.Kind, "error", err)
		}
	}
}

// read forwards a worker's frames to the Run goroutine.
func (s *Supervisor) read(ctx context.Context, w *worker) {
	for {
		env, err := w.proc.Conn().Receive()
		if err != nil {
			s.logger.Debug("Worker relay closed.", "worker_id", w.id, "error", err)
			return
		}
		select {
		case s.inbox <- inbound{w: w, env: env}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) handle(in inbound) {
	switch in.env.Kind {
	case relay.KindReady:
		s.mu.Lock()
		if in.w.state == Starting {
			in.w.state = Running
		}
		s.mu.Unlock()
		s.logger.Info("Worker ready.", "worker_id", in.w.id, "pid", in.w.proc.PID())
		s.publishStatus()
		s.checkReady()
	case relay.KindUpdate:
		s.Relay(in.env)
	default:
		s.logger.Warn("Unexpected relay message from worker.", "worker_id", in.w.id, "kind", in.env.Kind)
	}
}

func (s *Supervisor) onExit(ctx context.Context, ev exitEvent) {
	s.mu.Lock()
	current := s.workers[ev.w.id] == ev.w
	ev.w.state = Exited
	s.mu.Unlock()
	close(ev.w.outbox)

	if !current {
		return
	}
	if ctx.Err() != nil {
		s.logger.Debug("Worker exited during shutdown.", "worker_id", ev.w.id)
		return
	}

	s.logger.Warn("Worker exited, respawning.", "worker_id", ev.w.id, "pid", ev.w.proc.PID(), "error", ev.err)
	s.respawn(ctx, respawn{id: ev.w.id, restarts: ev.w.restarts + 1})
}

// respawn starts a replacement. A failed start is retried after
// spawnRetryDelay through the respawns channel so the Run loop keeps
// relaying in the meantime.
func (s *Supervisor) respawn(ctx context.Context, r respawn) {
	if ctx.Err() != nil {
		return
	}
	if err := s.start(ctx, r.id, r.restarts); err != nil {
		s.logger.Error("Respawn failed, retrying.", "worker_id", r.id, "error", err, "retry_in", spawnRetryDelay)
		time.AfterFunc(spawnRetryDelay, func() {
			select {
			case s.respawns <- r:
			case <-ctx.Done():
			}
		})
		return
	}
	s.publishStatus()
}

// forward is the supervisor replica's Forwarder: writes originating here
// (the pool status) go out like any relayed update.
func (s *Supervisor) forward(u statestore.Update) error {
	env := relay.NewUpdate(u)
	if s.cfg.Bus != nil {
		return s.cfg.Bus.Publish(context.Background(), env)
	}
	s.broadcast(env)
	return nil
}

func (s *Supervisor) broadcast(env *relay.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.state == Exited {
			continue
		}
		select {
		case w.outbox <- env:
		default:
			s.logger.Warn("Worker outbox full, update dropped until next resync.", "worker_id", w.id, "module", env.Module)
		}
	}
}

func (s *Supervisor) publishStatus() {
	if s.cfg.StatusKey == "" {
		return
	}
	if err := s.state.Set(s.cfg.StatusKey, s.Status()); err != nil {
		s.logger.Warn("Failed to publish pool status.", "error", err)
	}
}

func (s *Supervisor) requestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

func (s *Supervisor) pushSnapshots() {
	env := relay.NewSnapshot(s.state.Snapshot())
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.workers {
		if w.state != Running {
			continue
		}
		select {
		case w.outbox <- env:
			n++
		default:
		}
	}
	s.logger.Debug("Snapshot resync pushed.", "workers", n)
}

func (s *Supervisor) checkReady() {
	s.mu.Lock()
	running := 0
	for _, w := range s.workers {
		if w.state == Running {
			running++
		}
	}
	s.mu.Unlock()
	if running >= s.cfg.Workers {
		s.once.Do(func() { close(s.ready) })
	}
}

// shutdown stops every live worker, escalating to kill after a timeout.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	var live []*worker
	for _, w := range s.workers {
		if w.state != Exited {
			live = append(live, w)
		}
	}
	s.mu.Unlock()
	if len(live) == 0 {
		return
	}

	s.logger.Info("🛑 Stopping worker pool.", "workers", len(live))
	for _, w := range live {
		if err := w.proc.Stop(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Debug("Failed to stop worker.", "worker_id", w.id, "error", err)
		}
	}

	deadline := time.After(shutdownTimeout)
	for remaining := len(live); remaining > 0; {
		select {
		case ev := <-s.exits:
			s.mu.Lock()
			ev.w.state = Exited
			s.mu.Unlock()
			close(ev.w.outbox)
			remaining--
		case <-deadline:
			s.logger.Warn("Workers did not stop in time, killing.", "remaining", remaining)
			for _, w := range live {
				_ = w.proc.Kill()
			}
			return
		}
	}
	s.logger.Debug("Worker pool stopped.")
}

func slotID(i int) string { return fmt.Sprintf("worker-%d", i) }

func newIncarnation() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
