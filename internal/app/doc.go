// Package app contains the core application logic. It defines the main App
// struct and the two process lifecycles built on it: the master, which owns
// the listening sockets and supervises the worker pool, and the worker,
// which serves module requests on sockets inherited from the master. Both
// are decoupled from any specific entrypoint like a CLI.
package app
