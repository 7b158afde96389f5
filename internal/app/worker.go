package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"github.com/vk/modgate/internal/access"
	"github.com/vk/modgate/internal/audit"
	"github.com/vk/modgate/internal/config"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/relay"
	"github.com/vk/modgate/internal/supervisor"
	"github.com/vk/modgate/internal/worker"
)

// WorkerIO is the relay end a worker talks to the master over.
type WorkerIO struct {
	In  io.Reader
	Out io.Writer
}

// StdioRelay is the relay of a worker started by the master.
func StdioRelay() WorkerIO {
	return WorkerIO{In: os.Stdin, Out: os.Stdout}
}

// RunWorker serves requests on the inherited listeners until the relay
// closes or ctx is cancelled.
func (a *App) RunWorker(ctx context.Context, rio WorkerIO) error {
	id := os.Getenv(supervisor.WorkerIDEnv)
	if id == "" {
		return fmt.Errorf("%s is not set; workers are started by the master", supervisor.WorkerIDEnv)
	}
	logger := a.logger.With("worker_id", id, "pid", os.Getpid())
	ctx = ctxlog.WithLogger(ctx, logger)

	plain, secure, err := worker.InheritedListeners(a.config.TLSEnabled())
	if err != nil {
		return err
	}

	var tlsConfig *tls.Config
	if secure != nil {
		t := a.config.TLS
		tlsConfig, err = worker.ServerTLSConfig(t.Cert, t.Key, t.ClientCA)
		if err != nil {
			return err
		}
	}

	allow, err := access.LoadAllowList(a.config.AllowList)
	if err != nil {
		return err
	}
	logger.Debug("Allow list loaded.", "identities", allow.Len())

	activity, err := audit.Open(a.config.AuditLog)
	if err != nil {
		return err
	}
	defer activity.Close()

	opts := worker.Options{
		ID:             id,
		Modules:        a.registry,
		Relay:          relay.NewConn(rio.In, rio.Out),
		Plain:          plain,
		Secure:         secure,
		TLSConfig:      tlsConfig,
		Access:         allow,
		Audit:          activity.Logger(),
		StrictFallback: a.config.StrictFallback,
		LiveFeed:       a.config.LiveFeed,
	}
	if a.config.Relay.Backend == config.BackendRedis {
		bus, err := a.redisBus(ctx)
		if err != nil {
			return err
		}
		opts.Bus = bus
	}

	return worker.New(opts).Run(ctx)
}
