// Package relay carries state messages between the supervisor and its
// workers.
//
// The default transport is the worker's stdin/stdout pair. Each message is
// an Envelope encoded with msgpack and prefixed with its length as a 4-byte
// big-endian integer:
//
//	+----------------+---------------------------+
//	| length (4B BE) | msgpack-encoded Envelope  |
//	+----------------+---------------------------+
//
// Three kinds of envelope exist. The supervisor sends a Snapshot when a
// worker starts (and again on every resync); the worker answers the first
// snapshot with Ready; after that both directions exchange Update envelopes,
// one per module write.
//
// RedisBus is an alternative path for Update envelopes that uses Redis
// pub/sub instead of the supervisor's pipes.
package relay
