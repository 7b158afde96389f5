package app

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/vk/modgate/internal/config"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/relay"
	"github.com/vk/modgate/internal/statestore"
	"github.com/vk/modgate/internal/supervisor"
	"github.com/vk/modgate/modules/system"
)

// WorkerCommand is the argument that re-executes the binary as a worker.
const WorkerCommand = "worker"

// RunMaster binds the listeners, seeds the shared state and supervises the
// worker pool until ctx is cancelled. The master never serves HTTP itself.
func (a *App) RunMaster(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.printBanner()

	snap, err := a.initialState(ctx)
	if err != nil {
		return err
	}

	files, err := a.bindListeners()
	if err != nil {
		return err
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	encoded, err := a.config.Encode()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}

	spawner := &supervisor.ExecSpawner{
		Path:       exe,
		Args:       []string{WorkerCommand},
		Env:        []string{config.WorkerConfigEnv + "=" + encoded},
		ExtraFiles: files,
		Stderr:     os.Stderr,
	}
	return a.supervise(ctx, spawner, snap)
}

func (a *App) printBanner() {
	fig := figure.NewFigure("modgate", "", true)
	fmt.Fprintln(a.outW, fig.String())
}

// initialState runs every module's init hook and encodes the result.
func (a *App) initialState(ctx context.Context) (statestore.Snapshot, error) {
	values, err := a.registry.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize modules: %w", err)
	}
	return statestore.Seed(values)
}

// bindListeners opens the listening sockets and returns them as files in
// the descriptor order workers expect.
func (a *App) bindListeners() ([]*os.File, error) {
	addrs := []string{a.config.PlainAddr()}
	if a.config.TLSEnabled() {
		addrs = append(addrs, a.config.TLSAddr())
	} else {
		a.logger.Warn("TLS not configured, privileged port disabled.")
	}

	var files []*os.File
	for _, addr := range addrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
		}
		f, err := l.(*net.TCPListener).File()
		l.Close()
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return nil, fmt.Errorf("failed to share listener %s: %w", addr, err)
		}
		a.logger.Info("Listening.", "address", addr)
		files = append(files, f)
	}
	return files, nil
}

func (a *App) supervise(ctx context.Context, spawner supervisor.Spawner, snap statestore.Snapshot) error {
	cfg := supervisor.Config{
		Workers: a.config.WorkerCount(),
		Resync:  a.config.Relay.Resync,
	}
	if _, ok := a.registry.Lookup(system.Name); ok {
		cfg.StatusKey = system.Name
	}

	if a.config.Relay.Backend == config.BackendRedis {
		bus, err := a.redisBus(ctx)
		if err != nil {
			return err
		}
		cfg.Bus = bus
	}

	sup := supervisor.New(cfg, spawner, snap, a.logger)
	go func() {
		select {
		case <-sup.Ready():
			a.logger.Info("🚀 All workers ready.", "workers", cfg.Workers)
		case <-ctx.Done():
		}
	}()

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor failed: %w", err)
	}
	a.logger.Info("🏁 Master stopped.")
	return nil
}

func (a *App) redisBus(ctx context.Context) (*relay.RedisBus, error) {
	r := a.config.Relay
	client, err := relay.NewRedisClient(ctx, r.RedisAddr, r.RedisPassword, r.RedisDB)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Relay using redis.", "address", r.RedisAddr, "channel", r.Channel)
	return relay.NewRedisBus(client, r.Channel), nil
}
