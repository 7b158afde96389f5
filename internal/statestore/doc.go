// Package statestore implements the replicated per-module state shared by
// all workers.
//
// Every process holds a Replica: a map from module name to that module's
// current value. Values are normalized to their JSON encoding on write, so a
// value read back on the writing worker is indistinguishable from the same
// value delivered to a peer through the relay.
//
// # Consistency
//
// Writes are last-write-wins per module. Set updates the local replica
// immediately and hands an Update to a Forwarder without waiting for an
// acknowledgement. The supervising process applies updates in the order it
// receives them and rebroadcasts each one to every live worker, the
// originator included, so all replicas converge on the supervisor's order.
// A reader on another worker may observe the previous value until the
// rebroadcast arrives; that staleness is accepted.
//
// No lock is ever held across processes. Within a process the replica guards
// its map with a mutex so the relay reader and request handlers can share it.
package statestore
