package livefeed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/modgate/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const connectTimeout = 15 * time.Second

// WatchOptions locates a worker's live feed.
type WatchOptions struct {
	// URL is the worker's base address, e.g. http://localhost:8080.
	URL                string
	InsecureSkipVerify bool
	// Module, when set, filters changes to one module.
	Module string
}

// Watch connects to a live feed and calls fn for every state change until
// ctx ends. fn runs on the socket's event goroutine.
func Watch(ctx context.Context, opts WatchOptions, fn func(Change)) error {
	logger := ctxlog.FromContext(ctx).With("url", opts.URL)

	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("feed URL %q needs a scheme and host", opts.URL)
	}

	sopts := socket.DefaultOptions()
	sopts.SetPath(Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), sopts)
	io := manager.Socket("/", sopts)
	defer io.Disconnect()

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to live feed.", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.On(types.EventName(StateEvent), func(data ...any) {
		if len(data) == 0 {
			return
		}
		change, err := decodeChange(data[0])
		if err != nil {
			logger.Warn("Ignoring malformed state event.", "error", err)
			return
		}
		if opts.Module != "" && change.Module != opts.Module {
			return
		}
		fn(change)
	})

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		return nil
	case <-time.After(connectTimeout):
		return fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}

	<-ctx.Done()
	logger.Debug("Disconnecting from live feed.")
	return nil
}

// decodeChange converts the generic payload the client hands to event
// listeners back into a Change.
func decodeChange(payload any) (Change, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Change{}, err
	}
	var c Change
	if err := json.Unmarshal(raw, &c); err != nil {
		return Change{}, err
	}
	if c.Module == "" {
		return Change{}, errors.New("state event without module")
	}
	return c, nil
}
