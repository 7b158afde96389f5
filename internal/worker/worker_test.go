package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/relay"
	"github.com/vk/modgate/internal/statestore"
)

type moduleSet map[string]*module.Handle

func (m moduleSet) Lookup(name string) (*module.Handle, bool) {
	h, ok := m[name]
	return h, ok
}

func counterModule() *module.Handle {
	return module.NewHandle("counter").
		ReadOnly("hit", func(_ context.Context, call *module.Call) (any, error) {
			var st struct {
				Hits int `json:"hits"`
			}
			if err := call.BindState(&st); err != nil {
				return nil, module.Internal("RO_hit", err)
			}
			st.Hits++
			call.SetState(st)
			return st.Hits, nil
		}).
		Telemetry("hits", func(_ context.Context, call *module.Call) (any, error) {
			return call.State(), nil
		})
}

type harness struct {
	master   *relay.Conn
	toWorker *io.PipeWriter
	addr     string
	done     chan error
	cancel   context.CancelFunc
}

func startWorker(t *testing.T) *harness {
	t.Helper()

	fromMaster, toWorker := io.Pipe()
	fromWorker, toMaster := io.Pipe()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	w := New(Options{
		ID:      "worker-1",
		Modules: moduleSet{"counter": counterModule()},
		Relay:   relay.NewConn(fromMaster, toMaster),
		Plain:   l,
	})

	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.WithLogger(ctx, slog.New(slog.DiscardHandler))

	h := &harness{
		master:   relay.NewConn(fromWorker, toWorker),
		toWorker: toWorker,
		addr:     "http://" + l.Addr().String(),
		done:     make(chan error, 1),
		cancel:   cancel,
	}
	go func() { h.done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		toWorker.Close()
		fromWorker.Close()
	})
	return h
}

func (h *harness) handshake(t *testing.T, snap statestore.Snapshot) {
	t.Helper()
	require.NoError(t, h.master.Send(relay.NewSnapshot(snap)))
	env, err := h.master.Receive()
	require.NoError(t, err)
	require.Equal(t, relay.KindReady, env.Kind)
	assert.Equal(t, "worker-1", env.Worker)
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(body))
}

func TestWorker_HandshakeAndServe(t *testing.T) {
	// --- Arrange ---
	h := startWorker(t)

	// --- Act ---
	h.handshake(t, statestore.Snapshot{"counter": json.RawMessage(`{"hits":2}`)})

	// --- Assert ---
	assert.JSONEq(t, `{"hits":2}`, get(t, h.addr+"/counter/hits"))
}

func TestWorker_AppliesRelayedUpdatesAndSnapshots(t *testing.T) {
	// --- Arrange ---
	h := startWorker(t)
	h.handshake(t, statestore.Snapshot{"counter": json.RawMessage(`{"hits":0}`)})

	// --- Act ---
	require.NoError(t, h.master.Send(relay.NewUpdate(statestore.Update{
		Module: "counter", Value: json.RawMessage(`{"hits":7}`), Origin: "worker-2", Seq: 1,
	})))

	// --- Assert ---
	require.Eventually(t, func() bool {
		return get(t, h.addr+"/counter/hits") == `{"hits":7}`
	}, 2*time.Second, 10*time.Millisecond)

	// --- Act ---
	require.NoError(t, h.master.Send(relay.NewSnapshot(statestore.Snapshot{
		"counter": json.RawMessage(`{"hits":9}`),
	})))

	// --- Assert ---
	require.Eventually(t, func() bool {
		return get(t, h.addr+"/counter/hits") == `{"hits":9}`
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_ForwardsLocalWritesToMaster(t *testing.T) {
	// --- Arrange ---
	h := startWorker(t)
	h.handshake(t, statestore.Snapshot{"counter": json.RawMessage(`{"hits":0}`)})

	// --- Act ---
	type result struct {
		body string
		err  error
	}
	res := make(chan result, 1)
	go func() {
		resp, err := http.Post(h.addr+"/counter/hit", "application/json", strings.NewReader(`{}`))
		if err != nil {
			res <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		res <- result{body: strings.TrimSpace(string(body)), err: err}
	}()
	env, err := h.master.Receive()

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, relay.KindUpdate, env.Kind)
	assert.Equal(t, "counter", env.Module)
	assert.Equal(t, "worker-1", env.Origin)
	assert.JSONEq(t, `{"hits":1}`, string(env.Value))

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, "1", r.body)
}

func TestWorker_StopsWhenRelayCloses(t *testing.T) {
	// --- Arrange ---
	h := startWorker(t)
	h.handshake(t, statestore.Snapshot{})

	// --- Act ---
	require.NoError(t, h.toWorker.Close())

	// --- Assert ---
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the relay closed")
	}
}

func TestWorker_RejectsBadHandshake(t *testing.T) {
	// --- Arrange ---
	h := startWorker(t)

	// --- Act ---
	require.NoError(t, h.master.Send(relay.NewReady("master")))

	// --- Assert ---
	select {
	case err := <-h.done:
		require.ErrorIs(t, err, ErrHandshake)
	case <-time.After(5 * time.Second):
		t.Fatal("worker accepted a handshake without a snapshot")
	}
}

func TestServerTLSConfig_MissingFiles(t *testing.T) {
	_, err := ServerTLSConfig("missing.pem", "missing.key", "missing-ca.pem")
	require.ErrorContains(t, err, "failed to load server certificate")
}
