package module

import (
	"log/slog"
	"net/url"
)

// Call is the per-request context handed to a handler.
type Call struct {
	Module     string
	Function   string
	Variant    Variant
	Params     url.Values
	Who        string
	Privileged bool
	WorkerID   string
	RequestID  string

	state      any
	dirty      bool
	audit      *slog.Logger
	completion *Completion
}

// NewCall builds a call for module/function. state is the module's current
// value in the local replica.
func NewCall(moduleName, function string, v Variant, state any) *Call {
	return &Call{
		Module:   moduleName,
		Function: function,
		Variant:  v,
		Params:   url.Values{},
		state:    state,
	}
}

// WithAudit attaches the activity log the call's Audit method writes to.
func (c *Call) WithAudit(logger *slog.Logger) *Call {
	c.audit = logger
	return c
}

// State returns the module's shared state as seen by this worker.
func (c *Call) State() any { return c.state }

// SetState replaces the module's shared state. The router forwards it after
// the handler returns.
func (c *Call) SetState(v any) {
	c.state = v
	c.dirty = true
}

// StateChanged reports whether SetState was called.
func (c *Call) StateChanged() bool { return c.dirty }

// Param returns the first form value for name.
func (c *Call) Param(name string) string { return c.Params.Get(name) }

// Bind decodes the form parameters into out.
func (c *Call) Bind(out any) error {
	return Decode(flattenValues(c.Params), out)
}

// BindState decodes the module's shared state into out.
func (c *Call) BindState(out any) error {
	if c.state == nil {
		return nil
	}
	return Decode(c.state, out)
}

// Audit appends an entry to the activity log, tagged with the caller identity.
func (c *Call) Audit(msg string, args ...any) {
	if c.audit == nil {
		return
	}
	c.audit.With(
		"who", c.Who,
		"module", c.Module,
		"function", c.Variant.Prefix()+c.Function,
		"worker_id", c.WorkerID,
		"request_id", c.RequestID,
	).Info(msg, args...)
}

// Async switches the call into asynchronous mode. The handler's return value
// is ignored and the response is produced from the Completion.
func (c *Call) Async() *Completion {
	if c.completion == nil {
		c.completion = newCompletion()
	}
	return c.completion
}

// Completion returns the pending completion, or nil for a synchronous call.
func (c *Call) Completion() *Completion { return c.completion }

func flattenValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = v
	}
	return out
}
