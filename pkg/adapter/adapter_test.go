package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/govlegible/civitas/pkg/core"
	"github.com/govlegible/civitas/pkg/llm"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	tool := NewToolAdapter(func(ctx context.Context, input map[string]any) (any, error) {
		return "ok", nil
	})
	if err := reg.Register("tool", tool); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("tool", tool); err == nil {
		t.Fatal("duplicate registration must fail")
	}
	if _, err := reg.Resolve("tool"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := reg.Resolve("ghost"); err == nil {
		t.Fatal("unknown adapter must not resolve")
	}
}

func TestToolAdapter(t *testing.T) {
	a := NewToolAdapter(func(ctx context.Context, input map[string]any) (any, error) {
		if input["fail"] == true {
			return nil, errors.New("callback failed")
		}
		return input["echo"], nil
	})
	a.Initialize(context.Background(), nil)
	if !a.IsReady() {
		t.Fatal("adapter should be ready")
	}

	resp := a.Execute(context.Background(), Request{Input: map[string]any{"echo": "hello"}})
	if !resp.Success || resp.Output != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	resp = a.Execute(context.Background(), Request{Input: map[string]any{"fail": true}})
	if resp.Success || resp.Error != "callback failed" {
		t.Fatalf("failure must preserve the error message: %+v", resp)
	}
}

func TestLLMAdapter(t *testing.T) {
	mock := &llm.MockProvider{Response: "Here is your guidance."}
	a := NewLLMAdapter(mock)
	a.Initialize(context.Background(), map[string]any{"model": "test-model"})

	resp := a.Execute(context.Background(), Request{
		Input:   map[string]any{"prompt": "Explain eligibility."},
		Context: core.InvocationContext{TraceID: "t1"},
	})
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	if resp.Output != "Here is your guidance." {
		t.Fatalf("unexpected output: %v", resp.Output)
	}
	if mock.Calls != 1 {
		t.Fatalf("expected one provider call, got %d", mock.Calls)
	}

	resp = a.Execute(context.Background(), Request{Input: map[string]any{}})
	if resp.Success {
		t.Fatal("missing prompt must fail")
	}
}

func TestLLMAdapterPropagatesProviderError(t *testing.T) {
	a := NewLLMAdapter(&llm.FailingMockProvider{Err: errors.New("provider down")})
	a.Initialize(context.Background(), nil)
	resp := a.Execute(context.Background(), Request{Input: map[string]any{"prompt": "x"}})
	if resp.Success || resp.Error != "provider down" {
		t.Fatalf("provider error must surface verbatim: %+v", resp)
	}
}

func TestContentAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/guidance/benefits" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"title":"Benefits guidance"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := NewContentAdapter(srv.URL)
	a.Initialize(context.Background(), nil)

	resp := a.Execute(context.Background(), Request{Input: map[string]any{"path": "guidance/benefits"}})
	if !resp.Success {
		t.Fatalf("unexpected failure: %s", resp.Error)
	}
	doc, ok := resp.Output.(map[string]any)
	if !ok || doc["title"] != "Benefits guidance" {
		t.Fatalf("unexpected output: %v", resp.Output)
	}

	resp = a.Execute(context.Background(), Request{Input: map[string]any{"path": "missing"}})
	if resp.Success {
		t.Fatal("non-200 must fail")
	}
}
