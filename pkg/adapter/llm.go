package adapter

import (
	"context"
	"fmt"

	"github.com/govlegible/civitas/pkg/llm"
)

// LLMAdapter reaches a language-model provider. The runtime uses it for
// templated guidance generation; no model inference happens anywhere else.
type LLMAdapter struct {
	provider llm.Provider
	model    string
	ready    bool
}

// NewLLMAdapter wraps a provider.
func NewLLMAdapter(provider llm.Provider) *LLMAdapter {
	return &LLMAdapter{provider: provider}
}

// Initialize reads the model name from config.
func (a *LLMAdapter) Initialize(_ context.Context, config map[string]any) error {
	if model, ok := config["model"].(string); ok {
		a.model = model
	}
	a.ready = a.provider != nil
	return nil
}

// Execute sends input["prompt"] to the provider.
func (a *LLMAdapter) Execute(ctx context.Context, req Request) Response {
	prompt, _ := req.Input["prompt"].(string)
	if prompt == "" {
		return Response{Success: false, Error: "prompt is required"}
	}
	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Model:    a.model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	return Response{
		Success: true,
		Output:  resp.Content,
		Metadata: map[string]string{
			"tokens": fmt.Sprintf("%d", resp.Usage.TotalTokens),
		},
	}
}

// IsReady implements Adapter.
func (a *LLMAdapter) IsReady() bool { return a.ready }

// Shutdown implements Adapter.
func (a *LLMAdapter) Shutdown(context.Context) error {
	a.ready = false
	return nil
}
