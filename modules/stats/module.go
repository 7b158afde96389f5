package stats

import (
	"context"
	"runtime"
	"time"

	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/registry"
)

const Name = "stats"

// Module implements the registry.Module interface for this package.
type Module struct{}

// State is the module's shared state.
type State struct {
	Hits   int `json:"hits"`
	Resets int `json:"resets"`
}

// Sample is the result of GET_sample.
type Sample struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	WorkerID   string `json:"worker_id"`
	SampledAt  string `json:"sampled_at"`
}

// Hit counts a visit. Anyone may call it; the counter is shared by all
// workers.
func Hit(ctx context.Context, call *module.Call) (any, error) {
	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("RO_hit", err)
	}
	st.Hits++
	call.SetState(st)
	return st.Hits, nil
}

// Reset zeroes the hit counter.
func Reset(ctx context.Context, call *module.Call) (any, error) {
	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("RW_reset", err)
	}
	call.Audit("Hit counter reset.", "hits", st.Hits)
	call.SetState(State{Resets: st.Resets + 1})
	return true, nil
}

// Hits returns the current counter.
func Hits(ctx context.Context, call *module.Call) (any, error) {
	var st State
	if err := call.BindState(&st); err != nil {
		return nil, module.Internal("GET_hits", err)
	}
	return st.Hits, nil
}

// SampleRuntime answers asynchronously after reading the worker's memory
// statistics off the dispatch loop.
func SampleRuntime(ctx context.Context, call *module.Call) (any, error) {
	done := call.Async()
	workerID := call.WorkerID
	go func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		done.Data(Sample{
			Goroutines: runtime.NumGoroutine(),
			HeapAlloc:  ms.HeapAlloc,
			WorkerID:   workerID,
			SampledAt:  time.Now().UTC().Format(time.RFC3339),
		})
		done.End()
	}()
	return nil, nil
}

// Register registers the handlers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Add(module.NewHandle(Name).
		ReadOnly("hit", Hit).
		ReadWrite("reset", Reset).
		Telemetry("hits", Hits).
		Telemetry("sample", SampleRuntime))
}
