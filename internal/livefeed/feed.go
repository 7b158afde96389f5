// Package livefeed pushes shared-state changes to dashboards over socket.io.
package livefeed

import (
	"log/slog"
	"net/http"

	"github.com/zishang520/socket.io/v2/socket"
)

const (
	// Path is where the socket.io endpoint is mounted.
	Path = "/socket.io/"
	// StateEvent is emitted for every replica change.
	StateEvent = "state"
)

// Change is the payload of a StateEvent.
type Change struct {
	Module string `json:"module"`
	Value  any    `json:"value"`
}

// Feed is a socket.io server that broadcasts state changes.
type Feed struct {
	io     *socket.Server
	logger *slog.Logger
}

// New creates a feed. Clients only listen; anything they emit is ignored.
func New(logger *slog.Logger) *Feed {
	f := &Feed{io: socket.NewServer(nil, nil), logger: logger}
	f.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		f.logger.Debug("Live feed client connected.", "sid", client.Id(), "clients", f.Clients())
		client.On("disconnect", func(reason ...any) {
			f.logger.Debug("Live feed client disconnected.", "sid", client.Id(), "reason", reason)
		})
	})
	return f
}

// Handler serves the socket.io protocol.
func (f *Feed) Handler() http.Handler {
	return f.io.ServeHandler(nil)
}

// Clients reports how many clients are connected to the default namespace.
func (f *Feed) Clients() int {
	return f.io.Sockets().Sockets().Len()
}

// Publish broadcasts a change to every connected client. It matches
// statestore.Observer.
func (f *Feed) Publish(module string, value any) {
	if err := f.io.Sockets().Emit(StateEvent, Change{Module: module, Value: value}); err != nil {
		f.logger.Warn("Failed to emit state change.", "module", module, "error", err)
	}
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.io.Close(nil)
}
