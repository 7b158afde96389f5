package system

import (
	"context"
	"os"
	"time"

	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/registry"
)

// Name is the registry key of this module. The supervisor publishes the
// worker pool status under the same key.
const Name = "system"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Exit terminates the worker. Defaults to os.Exit.
	Exit func(code int)
	// RecycleDelay is how long a recycled worker keeps running so the
	// response can be flushed.
	RecycleDelay time.Duration

	started time.Time
}

// Self describes the worker answering a request.
type Self struct {
	WorkerID string `json:"worker_id"`
	PID      int    `json:"pid"`
	Uptime   string `json:"uptime"`
}

// Whoami echoes the caller identity as the router resolved it.
type Whoami struct {
	Who        string `json:"who"`
	Privileged bool   `json:"privileged"`
}

// Workers returns the pool status last published by the supervisor.
func (m *Module) Workers(ctx context.Context, call *module.Call) (any, error) {
	return call.State(), nil
}

// Self reports this worker's identity and uptime.
func (m *Module) Self(ctx context.Context, call *module.Call) (any, error) {
	return Self{
		WorkerID: call.WorkerID,
		PID:      os.Getpid(),
		Uptime:   time.Since(m.started).Round(time.Second).String(),
	}, nil
}

// Whoami reports how the caller was identified.
func (m *Module) Whoami(ctx context.Context, call *module.Call) (any, error) {
	return Whoami{Who: call.Who, Privileged: call.Privileged}, nil
}

// Recycle exits the worker after answering, so the supervisor replaces it.
func (m *Module) Recycle(ctx context.Context, call *module.Call) (any, error) {
	call.Audit("Worker recycle requested.")
	exit := m.Exit
	if exit == nil {
		exit = os.Exit
	}
	time.AfterFunc(m.RecycleDelay, func() { exit(0) })
	return true, nil
}

// RecycleDenied refuses read-only callers explicitly.
func (m *Module) RecycleDenied(ctx context.Context, call *module.Call) (any, error) {
	return nil, module.Unauthorized("RO_recycle", "identity %q may not recycle workers", call.Who)
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	m.started = time.Now()
	if m.RecycleDelay == 0 {
		m.RecycleDelay = 100 * time.Millisecond
	}
	r.Add(module.NewHandle(Name).
		Telemetry("workers", m.Workers).
		Telemetry("self", m.Self).
		ReadOnly("whoami", m.Whoami).
		ReadWrite("recycle", m.Recycle).
		ReadOnly("recycle", m.RecycleDenied))
}
