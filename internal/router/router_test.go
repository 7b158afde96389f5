package router

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/access"
	"github.com/vk/modgate/internal/dispatch"
	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/statestore"
)

type moduleSet map[string]*module.Handle

func (m moduleSet) Lookup(name string) (*module.Handle, bool) {
	h, ok := m[name]
	return h, ok
}

type harness struct {
	router *Router
	store  *statestore.Replica
	calls  map[string]*atomic.Int32
}

func (h *harness) count(name string) int32 { return h.calls[name].Load() }

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.Handler().ServeHTTP(rec, req)
	return rec
}

func counted(calls map[string]*atomic.Int32, name string, fn module.HandlerFunc) module.HandlerFunc {
	calls[name] = &atomic.Int32{}
	return func(ctx context.Context, call *module.Call) (any, error) {
		calls[name].Add(1)
		return fn(ctx, call)
	}
}

func setupRouter(t *testing.T, strict bool) *harness {
	t.Helper()

	clientDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "index.html"), []byte("<h1>demo</h1>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(clientDir, "data.bin"), []byte("0123456789"), 0o600))

	calls := map[string]*atomic.Int32{}
	demo := module.NewHandle("demo").
		ReadWrite("setFlag", counted(calls, "RW_setFlag", func(_ context.Context, call *module.Call) (any, error) {
			var in struct {
				Value int `json:"value"`
			}
			if err := call.Bind(&in); err != nil {
				return nil, module.Internal("RW_setFlag", err)
			}
			call.SetState(map[string]any{"flag": in.Value})
			call.Audit("flag set", "value", in.Value)
			return true, nil
		})).
		Telemetry("getFlag", counted(calls, "GET_getFlag", func(_ context.Context, call *module.Call) (any, error) {
			var st struct {
				Flag int `json:"flag"`
			}
			if err := call.BindState(&st); err != nil {
				return nil, err
			}
			return st.Flag, nil
		})).
		ReadWrite("broken", counted(calls, "RW_broken", func(context.Context, *module.Call) (any, error) {
			return nil, errors.New("i2c bus timeout")
		})).
		ReadOnly("broken", counted(calls, "RO_broken", func(context.Context, *module.Call) (any, error) {
			return "read-only result", nil
		})).
		ReadWrite("draft", counted(calls, "RW_draft", func(context.Context, *module.Call) (any, error) {
			return nil, module.NotImplemented("RW_draft")
		})).
		ReadOnly("draft", counted(calls, "RO_draft", func(context.Context, *module.Call) (any, error) {
			return "draft", nil
		})).
		ReadOnly("secret", counted(calls, "RO_secret", func(context.Context, *module.Call) (any, error) {
			return nil, module.Unauthorized("RO_secret", "needs privilege")
		})).
		ReadOnly("hit", counted(calls, "RO_hit", func(_ context.Context, call *module.Call) (any, error) {
			call.SetState(map[string]any{"flag": 7})
			return "ok", nil
		})).
		ReadOnly("panic", counted(calls, "RO_panic", func(context.Context, *module.Call) (any, error) {
			panic("nil pointer in driver")
		})).
		Telemetry("slow", counted(calls, "GET_slow", func(_ context.Context, call *module.Call) (any, error) {
			done := call.Async()
			go func() {
				time.Sleep(5 * time.Millisecond)
				done.Data(map[string]any{"temp": 21.5})
				done.End()
			}()
			return nil, nil
		}))
	demo.SetClientDir(clientDir)

	store := statestore.NewReplica("w1", nil)
	require.NoError(t, store.Set("demo", map[string]any{"flag": 0}))

	loop := dispatch.NewLoop(8, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loop.Run(ctx)

	r := New(Options{
		Modules:        moduleSet{"demo": demo},
		Store:          store,
		Access:         access.NewAllowList("lab-admin"),
		Executor:       loop,
		Logger:         slog.New(slog.DiscardHandler),
		WorkerID:       "w1",
		StrictFallback: strict,
	})
	return &harness{router: r, store: store, calls: calls}
}

func privileged(req *http.Request, cn string) *http.Request {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
	req.TLS = &tls.ConnectionState{VerifiedChains: [][]*x509.Certificate{{cert}}}
	return req
}

func postForm(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestPrivilegedPostThenTelemetry(t *testing.T) {
	// --- Arrange ---
	h := setupRouter(t, false)

	// --- Act ---
	post := h.do(privileged(postForm("/demo/setFlag", "value=1"), "lab-admin"))
	get := h.do(httptest.NewRequest(http.MethodGet, "/demo/getFlag", nil))

	// --- Assert ---
	assert.Equal(t, http.StatusOK, post.Code)
	assert.Equal(t, "true", post.Body.String())
	assert.Equal(t, map[string]any{"flag": float64(1)}, h.store.Get("demo"))
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "1", get.Body.String())
	assert.NotEmpty(t, post.Header().Get("X-Request-Id"))
}

func TestAnonymousPostGetsNull(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(postForm("/demo/setFlag", "value=1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
	assert.Equal(t, int32(0), h.count("RW_setFlag"))
	assert.Equal(t, map[string]any{"flag": float64(0)}, h.store.Get("demo"))
}

func TestVerifiedButNotAllowedIsReadOnly(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(privileged(postForm("/demo/setFlag", "value=1"), "visitor"))

	assert.Equal(t, "null", rec.Body.String())
	assert.Equal(t, int32(0), h.count("RW_setFlag"))
}

func TestUnknownModule(t *testing.T) {
	h := setupRouter(t, false)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/nosuch/thing", nil),
		privileged(postForm("/nosuch/setFlag", "value=1"), "lab-admin"),
		httptest.NewRequest(http.MethodGet, "/nosuch/logo.png", nil),
	} {
		rec := h.do(req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Error", rec.Body.String())
	}
	for name, c := range h.calls {
		assert.Equal(t, int32(0), c.Load(), name)
	}
}

func TestMissingAsset(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/demo/logo.png", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File Not Found.", rec.Body.String())
}

func TestAssetServing(t *testing.T) {
	h := setupRouter(t, false)

	t.Run("full file", func(t *testing.T) {
		rec := h.do(httptest.NewRequest(http.MethodGet, "/demo/data.bin", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0123456789", rec.Body.String())
	})

	t.Run("byte range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/demo/data.bin", nil)
		req.Header.Set("Range", "bytes=0-3")
		rec := h.do(req)
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "4", rec.Header().Get("Content-Length"))
		assert.Equal(t, "0123", rec.Body.String())
	})

	t.Run("module index", func(t *testing.T) {
		rec := h.do(httptest.NewRequest(http.MethodGet, "/demo/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>demo</h1>", rec.Body.String())
	})
}

func TestResolveAsset(t *testing.T) {
	got, ok := resolveAsset("/srv/demo/client", "../../etc/passwd.txt")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/srv/demo/client", "etc", "passwd.txt"), got)

	_, ok = resolveAsset("", "logo.png")
	assert.False(t, ok)
}

func TestTelemetryIsIdempotent(t *testing.T) {
	h := setupRouter(t, false)

	first := h.do(httptest.NewRequest(http.MethodGet, "/demo/getFlag", nil))
	second := h.do(httptest.NewRequest(http.MethodGet, "/demo/getFlag", nil))

	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "0", first.Body.String())
}

func TestShell(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")
}

func TestPrivilegedFallback(t *testing.T) {
	t.Run("internal error falls back by default", func(t *testing.T) {
		h := setupRouter(t, false)
		rec := h.do(privileged(postForm("/demo/broken", ""), "lab-admin"))
		assert.Equal(t, `"read-only result"`, rec.Body.String())
		assert.Equal(t, int32(1), h.count("RW_broken"))
		assert.Equal(t, int32(1), h.count("RO_broken"))
	})

	t.Run("internal error is a failure in strict mode", func(t *testing.T) {
		h := setupRouter(t, true)
		rec := h.do(privileged(postForm("/demo/broken", ""), "lab-admin"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, int32(0), h.count("RO_broken"))
	})

	t.Run("not implemented falls back in strict mode", func(t *testing.T) {
		h := setupRouter(t, true)
		rec := h.do(privileged(postForm("/demo/draft", ""), "lab-admin"))
		assert.Equal(t, `"draft"`, rec.Body.String())
	})

	t.Run("missing privileged handler uses read-only", func(t *testing.T) {
		h := setupRouter(t, true)
		rec := h.do(privileged(postForm("/demo/hit", ""), "lab-admin"))
		assert.Equal(t, `"ok"`, rec.Body.String())
	})
}

func TestUnauthorizedIsNull(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(postForm("/demo/secret", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

func TestReadOnlyStateChangeIsPushed(t *testing.T) {
	h := setupRouter(t, false)

	h.do(postForm("/demo/hit", ""))

	assert.Equal(t, map[string]any{"flag": float64(7)}, h.store.Get("demo"))
}

func TestHandlerPanicIsContained(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(postForm("/demo/panic", ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	again := h.do(httptest.NewRequest(http.MethodGet, "/demo/getFlag", nil))
	assert.Equal(t, "0", again.Body.String())
}

func TestAsyncTelemetry(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/demo/slow", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"temp":21.5}`, rec.Body.String())
}

func TestUnmappedTelemetryIsNull(t *testing.T) {
	h := setupRouter(t, false)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/demo/nothing", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}
