// Package supervisor runs the master side of the worker pool.
//
// The supervisor spawns a fixed number of worker processes, hands each of
// them the current shared state, relays state updates between them, and
// replaces any worker that exits. It never serves HTTP itself; the listening
// sockets are created by the caller and passed to the workers by the Spawner.
//
// # Worker lifecycle
//
//	Starting --(ready)--> Running --(exit)--> Exited
//	    \___________________(exit)__________/
//
// A worker is Starting from the moment it is spawned until it acknowledges
// its first snapshot. An exited worker is replaced immediately in the same
// slot. There is no backoff and no crash-loop detection: a worker that dies
// on every start is restarted for as long as the supervisor runs.
//
// # Relay
//
// All relay traffic is handled on the supervisor's Run goroutine, which gives
// every update a single total order. Each update is applied to the
// supervisor's own replica (used for handshakes and resyncs) and then queued
// to every live worker, the originator included. Queues are bounded; a worker
// whose queue is full misses the update until the next resync.
package supervisor
