package router

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/vk/modgate/internal/access"
	"github.com/vk/modgate/internal/module"
	"github.com/vk/modgate/internal/statestore"
)

//go:embed shell.html
var shellHTML []byte

const (
	identityKey  = "modgate.identity"
	requestIDKey = "modgate.request_id"
)

// Modules resolves module names. *registry.Registry satisfies it.
type Modules interface {
	Lookup(name string) (*module.Handle, bool)
}

// Executor runs handler work on the worker's dispatch loop.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Options wires a Router.
type Options struct {
	Modules  Modules
	Store    statestore.Store
	Access   *access.AllowList
	Executor Executor
	Logger   *slog.Logger
	// Audit receives module activity entries. Nil disables auditing.
	Audit    *slog.Logger
	WorkerID string
	// StrictFallback limits the privileged-to-read-only fallback to
	// handlers that are missing or report KindNotImplemented.
	StrictFallback bool
	// Feed, when set, is mounted at /socket.io/.
	Feed http.Handler
}

// Router is the HTTP surface of a worker.
type Router struct {
	opts Options
	echo *echo.Echo
}

// New builds the router and its routes.
func New(opts Options) *Router {
	if opts.Access == nil {
		opts.Access = access.NewAllowList()
	}
	if opts.Audit == nil {
		opts.Audit = slog.New(slog.DiscardHandler)
	}

	r := &Router{opts: opts, echo: echo.New()}
	e := r.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(r.identify)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			id := identityOf(c)
			r.opts.Logger.Debug("Request served.",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"who", id.Name,
				"privileged", id.Privileged,
				"request_id", requestIDOf(c),
			)
			return nil
		},
	}))

	if opts.Feed != nil {
		e.Any("/socket.io/*", echo.WrapHandler(opts.Feed))
	}

	methods := []string{http.MethodGet, http.MethodHead, http.MethodPost}
	e.Match([]string{http.MethodGet, http.MethodHead}, "/", r.shell)
	e.Match(methods, "/:module", r.serve)
	e.Match(methods, "/:module/*", r.serve)
	return r
}

// Handler returns the http.Handler serving every route.
func (r *Router) Handler() http.Handler { return r.echo }

// identify resolves the caller's identity and assigns a request id.
func (r *Router) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := r.opts.Access.Resolve(c.Request().TLS)
		reqID := newRequestID()
		c.Set(identityKey, id)
		c.Set(requestIDKey, reqID)
		c.Response().Header().Set(echo.HeaderXRequestID, reqID)
		return next(c)
	}
}

func (r *Router) shell(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, shellHTML)
}

func identityOf(c echo.Context) access.Identity {
	if id, ok := c.Get(identityKey).(access.Identity); ok {
		return id
	}
	return access.Identity{Name: access.Anonymous}
}

func requestIDOf(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
