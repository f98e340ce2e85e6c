package adapter

import "context"

// ToolFunc is an arbitrary callback an integrator supplies.
type ToolFunc func(ctx context.Context, input map[string]any) (any, error)

// ToolAdapter passes an invocation straight through to a callback. It is
// the escape hatch for integrations too small to deserve a client.
type ToolAdapter struct {
	fn    ToolFunc
	ready bool
}

// NewToolAdapter wraps a callback.
func NewToolAdapter(fn ToolFunc) *ToolAdapter {
	return &ToolAdapter{fn: fn}
}

// Initialize implements Adapter.
func (a *ToolAdapter) Initialize(context.Context, map[string]any) error {
	a.ready = a.fn != nil
	return nil
}

// Execute runs the callback.
func (a *ToolAdapter) Execute(ctx context.Context, req Request) Response {
	if a.fn == nil {
		return Response{Success: false, Error: "no callback configured"}
	}
	out, err := a.fn(ctx, req.Input)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	return Response{Success: true, Output: out}
}

// IsReady implements Adapter.
func (a *ToolAdapter) IsReady() bool { return a.ready }

// Shutdown implements Adapter.
func (a *ToolAdapter) Shutdown(context.Context) error {
	a.ready = false
	return nil
}
