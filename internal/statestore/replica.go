package statestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Replica is one process's copy of the shared state.
type Replica struct {
	origin string
	fwd    Forwarder

	mu        sync.RWMutex
	values    map[string]json.RawMessage
	seq       uint64
	observers []Observer
}

var _ Store = (*Replica)(nil)

// NewReplica creates an empty replica. origin identifies this process in the
// updates it produces; fwd may be nil for a replica that never writes.
func NewReplica(origin string, fwd Forwarder) *Replica {
	return &Replica{
		origin: origin,
		fwd:    fwd,
		values: make(map[string]json.RawMessage),
	}
}

// Observe registers fn to be called after every change to the replica.
func (r *Replica) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Get returns a freshly decoded copy of the module's value, so callers may
// modify it without affecting the replica.
func (r *Replica) Get(module string) any {
	raw := r.Raw(module)
	if raw == nil {
		return nil
	}
	v, err := decode(raw)
	if err != nil {
		return nil
	}
	return v
}

// Raw returns the module's stored JSON encoding, or nil.
func (r *Replica) Raw(module string) json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[module]
}

// Set stores value locally and forwards it. The local write happens even if
// forwarding fails; the error is returned for logging.
func (r *Replica) Set(module string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state for module '%s' is not JSON-serializable: %w", module, err)
	}

	r.mu.Lock()
	r.seq++
	u := Update{Module: module, Value: raw, Origin: r.origin, Seq: r.seq}
	r.values[module] = raw
	observers := r.observers
	r.mu.Unlock()

	notify(observers, module, raw)

	if r.fwd == nil {
		return nil
	}
	if err := r.fwd.Forward(u); err != nil {
		return fmt.Errorf("failed to forward state for module '%s': %w", module, err)
	}
	return nil
}

// Apply installs an update received from the relay. It reports whether the
// stored value changed.
func (r *Replica) Apply(u Update) bool {
	r.mu.Lock()
	if prev, ok := r.values[u.Module]; ok && bytes.Equal(prev, u.Value) {
		r.mu.Unlock()
		return false
	}
	r.values[u.Module] = u.Value
	observers := r.observers
	r.mu.Unlock()

	notify(observers, u.Module, u.Value)
	return true
}

// Load replaces the whole replica with a snapshot.
func (r *Replica) Load(s Snapshot) {
	values := make(map[string]json.RawMessage, len(s))
	for k, v := range s {
		values[k] = v
	}

	r.mu.Lock()
	r.values = values
	observers := r.observers
	r.mu.Unlock()

	for k, v := range values {
		notify(observers, k, v)
	}
}

// Snapshot returns a copy of every module's stored value.
func (r *Replica) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Snapshot, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Seed encodes plain Go values into a snapshot.
func Seed(values map[string]any) (Snapshot, error) {
	out := make(Snapshot, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("initial state for module '%s' is not JSON-serializable: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

func notify(observers []Observer, module string, raw json.RawMessage) {
	if len(observers) == 0 {
		return
	}
	v, err := decode(raw)
	if err != nil {
		return
	}
	for _, fn := range observers {
		fn(module, v)
	}
}

func decode(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
