// Package module defines the contract between the request router and the
// capability modules it dispatches to.
//
// A module is described by a Handle: a unique name plus a registration table
// of handlers, each tagged with one of three variants.
//
//   - ReadOnly (RO_) handlers may be called by any client.
//   - ReadWrite (RW_) handlers mutate hardware or shared state and are only
//     reachable by privileged callers.
//   - Telemetry (GET_) handlers answer anonymous GET requests with a view of
//     the module's shared state.
//
// Handlers receive a *Call and either return a value to be serialized as
// JSON, or switch the call into asynchronous mode with Call.Async and deliver
// the result later through the returned Completion.
//
// Failures are reported as *Error values carrying a Kind. The router treats
// KindUnauthorized as "respond with null", KindNotImplemented as "try the
// read-only variant", and anything else as an internal failure.
//
// An optional InitFunc runs exactly once, in the supervising process, before
// any worker exists. Its result seeds the module's entry in the shared state.
package module
