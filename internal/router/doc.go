// Package router maps HTTP requests onto module handlers.
//
// A request path is split into a module name (first segment) and a function
// name (the rest). Unknown modules get a 404. Otherwise:
//
//   - POST calls the module's RW_ handler when the caller is privileged and
//     such a handler exists, falling back to RO_ otherwise.
//   - GET or HEAD with a file extension serves a static asset from the
//     module's client directory, honouring Range requests.
//   - GET or HEAD without an extension calls the GET_ telemetry handler
//     with the module's shared state.
//
// Handlers run on the worker's dispatch loop. A successful RW_ call, or any
// call that changed its state, pushes the module's new value into the state
// store. Authorization failures are answered with a JSON null and status 200
// so that an unprivileged caller cannot tell "forbidden" from "no result".
package router
