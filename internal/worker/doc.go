// Package worker runs one worker process: it completes the relay handshake
// with the master, keeps a state replica current, and serves module
// requests on the listeners it inherited.
//
// A worker lives exactly as long as its relay. When the master closes the
// pipe the worker drains its HTTP servers and returns.
package worker
