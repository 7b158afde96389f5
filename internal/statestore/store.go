package statestore

import "encoding/json"

// Store is the narrow interface handlers and the router see.
type Store interface {
	// Get returns the module's value as decoded JSON, or nil if unset.
	Get(module string) any
	// Set replaces the module's value locally and forwards it for
	// replication.
	Set(module string, value any) error
}

// Update is one replicated write.
type Update struct {
	Module string
	Value  json.RawMessage
	Origin string
	Seq    uint64
}

// Snapshot is the full state keyed by module name.
type Snapshot map[string]json.RawMessage

// Forwarder delivers a local write toward the supervising process.
type Forwarder interface {
	Forward(u Update) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(u Update) error

func (f ForwarderFunc) Forward(u Update) error { return f(u) }

// Observer is notified after a module's value changes in a replica.
type Observer func(module string, value any)
