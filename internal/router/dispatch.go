package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/vk/modgate/internal/access"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/module"
)

var nullBody = []byte("null")

func (r *Router) serve(c echo.Context) error {
	h, ok := r.opts.Modules.Lookup(c.Param("module"))
	if !ok {
		return c.String(http.StatusNotFound, "Error")
	}
	fn := c.Param("*")

	if c.Request().Method == http.MethodPost {
		return r.post(c, h, fn)
	}
	if fn == "" || path.Ext(path.Base(fn)) != "" || fn[len(fn)-1] == '/' {
		return r.asset(c, h, fn)
	}
	return r.telemetry(c, h, fn)
}

// post runs RW_<fn> for privileged callers and RO_<fn> for everyone else,
// or when the privileged handler is absent or declines.
func (r *Router) post(c echo.Context, h *module.Handle, fn string) error {
	params, err := c.FormParams()
	if err != nil {
		r.opts.Logger.Warn("Failed to decode form body.", "module", h.Name(), "function", fn, "error", err)
		return c.String(http.StatusBadRequest, "Error")
	}
	id := identityOf(c)
	ctx := r.requestContext(c, h, fn, id)
	logger := ctxlog.FromContext(ctx)

	if id.Privileged {
		if handler, ok := h.Lookup(module.ReadWrite, fn); ok {
			value, err := r.invoke(ctx, c, h, fn, module.ReadWrite, handler, params, id)
			if err == nil {
				return respond(c, value)
			}
			switch kind := module.KindOf(err); {
			case kind == module.KindUnauthorized:
				logger.Warn("Privileged handler refused the caller.", "error", err)
				return respond(c, nil)
			case kind == module.KindNotImplemented:
				logger.Debug("Privileged handler not implemented, trying read-only.", "error", err)
			case r.opts.StrictFallback:
				logger.Error("Privileged handler failed.", "error", err)
				return c.String(http.StatusInternalServerError, "Error")
			default:
				logger.Error("Privileged handler failed, trying read-only.", "error", err)
			}
		}
	}

	handler, ok := h.Lookup(module.ReadOnly, fn)
	if !ok {
		logger.Debug("No read-only handler for request.")
		return respond(c, nil)
	}
	value, err := r.invoke(ctx, c, h, fn, module.ReadOnly, handler, params, id)
	if err != nil {
		return r.fail(c, logger, err)
	}
	return respond(c, value)
}

func (r *Router) telemetry(c echo.Context, h *module.Handle, fn string) error {
	id := identityOf(c)
	ctx := r.requestContext(c, h, fn, id)
	logger := ctxlog.FromContext(ctx)

	handler, ok := h.Lookup(module.Telemetry, fn)
	if !ok {
		logger.Debug("No telemetry handler for request.")
		return respond(c, nil)
	}
	value, err := r.invoke(ctx, c, h, fn, module.Telemetry, handler, c.QueryParams(), id)
	if err != nil {
		return r.fail(c, logger, err)
	}
	return respond(c, value)
}

// fail answers a read-only or telemetry failure.
func (r *Router) fail(c echo.Context, logger *slog.Logger, err error) error {
	switch module.KindOf(err) {
	case module.KindUnauthorized, module.KindNotImplemented:
		logger.Warn("Handler declined the request.", "error", err)
		return respond(c, nil)
	}
	logger.Error("Handler failed.", "error", err)
	return c.String(http.StatusInternalServerError, "Error")
}

// invoke runs handler on the dispatch loop, pushes any state change, and
// waits for an asynchronous result outside the loop.
func (r *Router) invoke(ctx context.Context, c echo.Context, h *module.Handle, fn string, v module.Variant, handler module.HandlerFunc, params url.Values, id access.Identity) (any, error) {
	var (
		call  *module.Call
		value any
		err   error
	)
	loopErr := r.opts.Executor.Do(ctx, func() {
		call = module.NewCall(h.Name(), fn, v, r.opts.Store.Get(h.Name())).WithAudit(r.opts.Audit)
		if params != nil {
			call.Params = params
		}
		call.Who = id.Name
		call.Privileged = id.Privileged
		call.WorkerID = r.opts.WorkerID
		call.RequestID = requestIDOf(c)

		value, err = safeCall(ctx, handler, call)
		if err != nil {
			return
		}
		if v == module.ReadWrite || call.StateChanged() {
			if serr := r.opts.Store.Set(h.Name(), call.State()); serr != nil {
				ctxlog.FromContext(ctx).Warn("State update was not forwarded.", "error", serr)
			}
		}
	})
	if loopErr != nil {
		return nil, module.Internal(v.Prefix()+fn, loopErr)
	}
	if err != nil {
		return nil, err
	}
	if completion := call.Completion(); completion != nil {
		return completion.Wait(ctx)
	}
	return value, nil
}

func safeCall(ctx context.Context, handler module.HandlerFunc, call *module.Call) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = module.Internal(call.Variant.Prefix()+call.Function, fmt.Errorf("handler panicked: %v", rec))
		}
	}()
	return handler(ctx, call)
}

func (r *Router) requestContext(c echo.Context, h *module.Handle, fn string, id access.Identity) context.Context {
	logger := r.opts.Logger.With(
		"request_id", requestIDOf(c),
		"module", h.Name(),
		"function", fn,
		"who", id.Name,
	)
	return ctxlog.WithLogger(c.Request().Context(), logger)
}

func respond(c echo.Context, value any) error {
	if value == nil {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, nullBody)
	}
	body, err := json.Marshal(value)
	if err != nil {
		return c.String(http.StatusInternalServerError, "Error")
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
}
