package relay

import (
	"fmt"

	"github.com/vk/modgate/internal/statestore"
)

// Kind identifies what an Envelope carries.
type Kind uint8

const (
	KindSnapshot Kind = iota + 1
	KindReady
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindReady:
		return "ready"
	case KindUpdate:
		return "update"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Envelope is the unit exchanged on the relay.
type Envelope struct {
	Kind   Kind              `msgpack:"kind"`
	Worker string            `msgpack:"worker,omitempty"`
	Module string            `msgpack:"module,omitempty"`
	Value  []byte            `msgpack:"value,omitempty"`
	State  map[string][]byte `msgpack:"state,omitempty"`
	Origin string            `msgpack:"origin,omitempty"`
	Seq    uint64            `msgpack:"seq,omitempty"`
}

// NewUpdate wraps a replica write.
func NewUpdate(u statestore.Update) *Envelope {
	return &Envelope{
		Kind:   KindUpdate,
		Module: u.Module,
		Value:  u.Value,
		Origin: u.Origin,
		Seq:    u.Seq,
	}
}

// NewSnapshot wraps a full state snapshot.
func NewSnapshot(s statestore.Snapshot) *Envelope {
	state := make(map[string][]byte, len(s))
	for k, v := range s {
		state[k] = v
	}
	return &Envelope{Kind: KindSnapshot, State: state}
}

// NewReady is a worker's answer to its first snapshot.
func NewReady(workerID string) *Envelope {
	return &Envelope{Kind: KindReady, Worker: workerID}
}

// Update extracts the replica write from an update envelope.
func (e *Envelope) Update() statestore.Update {
	return statestore.Update{
		Module: e.Module,
		Value:  e.Value,
		Origin: e.Origin,
		Seq:    e.Seq,
	}
}

// Snapshot extracts the state from a snapshot envelope.
func (e *Envelope) Snapshot() statestore.Snapshot {
	out := make(statestore.Snapshot, len(e.State))
	for k, v := range e.State {
		out[k] = v
	}
	return out
}
