package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vk/modgate/internal/access"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/dispatch"
	"github.com/vk/modgate/internal/livefeed"
	"github.com/vk/modgate/internal/relay"
	"github.com/vk/modgate/internal/router"
	"github.com/vk/modgate/internal/statestore"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	queueSize       = 1024
)

// ErrHandshake is returned when the master's first frame is not a snapshot.
var ErrHandshake = errors.New("relay handshake failed")

// Bus is the optional broker carrying updates instead of the relay pipe.
// *relay.RedisBus satisfies it.
type Bus interface {
	Forwarder(ctx context.Context) statestore.Forwarder
	Subscribe(ctx context.Context, logger *slog.Logger) (<-chan *relay.Envelope, error)
}

// Options wires a Worker.
type Options struct {
	ID      string
	Modules router.Modules
	Relay   *relay.Conn
	Bus     Bus

	Plain     net.Listener
	Secure    net.Listener
	TLSConfig *tls.Config

	Access         *access.AllowList
	Audit          *slog.Logger
	StrictFallback bool
	LiveFeed       bool
}

// Worker is one serving process.
type Worker struct {
	opts    Options
	replica *statestore.Replica
	loop    *dispatch.Loop
}

// New prepares a worker. Nothing runs until Run.
func New(opts Options) *Worker {
	return &Worker{opts: opts}
}

// Replica exposes the worker's state replica once Run has started.
func (w *Worker) Replica() *statestore.Replica { return w.replica }

// Run completes the handshake and serves until ctx ends or the relay
// closes. A closed relay is a normal shutdown.
func (w *Worker) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("worker_id", w.opts.ID)
	ctx = ctxlog.WithLogger(ctx, logger)
	w.loop = dispatch.NewLoop(queueSize, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fwd := w.opts.Relay.Forwarder()
	if w.opts.Bus != nil {
		fwd = w.opts.Bus.Forwarder(ctx)
	}
	w.replica = statestore.NewReplica(w.opts.ID, fwd)

	if err := w.handshake(); err != nil {
		return err
	}
	logger.Debug("Relay handshake complete.", "modules", len(w.replica.Snapshot()))

	var feed *livefeed.Feed
	if w.opts.LiveFeed {
		feed = livefeed.New(logger)
		defer feed.Close()
		w.replica.Observe(feed.Publish)
	}

	go w.readRelay(ctx, cancel, logger)

	g, gctx := errgroup.WithContext(ctx)

	if w.opts.Bus != nil {
		updates, err := w.opts.Bus.Subscribe(gctx, logger)
		if err != nil {
			return fmt.Errorf("failed to subscribe to relay bus: %w", err)
		}
		g.Go(func() error {
			for env := range updates {
				if env.Kind == relay.KindUpdate {
					w.replica.Apply(env.Update())
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		w.loop.Run(gctx)
		return nil
	})

	ropts := router.Options{
		Modules:        w.opts.Modules,
		Store:          w.replica,
		Access:         w.opts.Access,
		Executor:       w.loop,
		Logger:         logger,
		Audit:          w.opts.Audit,
		WorkerID:       w.opts.ID,
		StrictFallback: w.opts.StrictFallback,
	}
	if feed != nil {
		ropts.Feed = feed.Handler()
	}
	handler := router.New(ropts).Handler()

	var servers []*http.Server
	serve := func(name string, l net.Listener) {
		srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, srv)
		g.Go(func() error {
			logger.Info("Worker listening.", "listener", name, "address", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server failed: %w", name, err)
			}
			return nil
		})
	}

	if w.opts.Plain != nil {
		serve("plain", w.opts.Plain)
	}
	if w.opts.Secure != nil && w.opts.TLSConfig != nil {
		serve("tls", tls.NewListener(w.opts.Secure, w.opts.TLSConfig))
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Debug("Shutting down worker servers...")
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				logger.Error("Server shutdown failed", "error", err)
			}
		}
		return nil
	})

	err := g.Wait()
	logger.Info("Worker stopped.")
	return err
}

func (w *Worker) handshake() error {
	env, err := w.opts.Relay.Receive()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if env.Kind != relay.KindSnapshot {
		return fmt.Errorf("%w: expected %s, got %s", ErrHandshake, relay.KindSnapshot, env.Kind)
	}
	w.replica.Load(env.Snapshot())
	if err := w.opts.Relay.Send(relay.NewReady(w.opts.ID)); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return nil
}

// readRelay applies frames from the master until the pipe closes, then
// stops the worker.
func (w *Worker) readRelay(ctx context.Context, stop context.CancelFunc, logger *slog.Logger) {
	defer stop()
	for {
		env, err := w.opts.Relay.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				logger.Info("Relay closed by master, shutting down.")
			} else if ctx.Err() == nil {
				logger.Error("Relay read failed, shutting down.", "error", err)
			}
			return
		}
		switch env.Kind {
		case relay.KindUpdate:
			w.replica.Apply(env.Update())
		case relay.KindSnapshot:
			w.replica.Load(env.Snapshot())
		default:
			logger.Warn("Ignoring unexpected relay frame.", "kind", env.Kind)
		}
	}
}
