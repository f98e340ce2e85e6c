// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/govlegible/civitas/pkg/adapter"
	"github.com/govlegible/civitas/pkg/config"
	"github.com/govlegible/civitas/pkg/llm"
)

// buildAdapters wires the configured external integrations into a registry.
// Each adapter is initialized once at startup; handlers resolve them by name.
func buildAdapters(ctx context.Context, cfg config.AdaptersConfig) (*adapter.Registry, error) {
	registry := adapter.NewRegistry()

	provider, err := buildLLMProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		a := adapter.NewLLMAdapter(provider)
		if err := a.Initialize(ctx, map[string]any{"model": cfg.LLM.Model}); err != nil {
			return nil, err
		}
		if err := registry.Register("llm", a); err != nil {
			return nil, err
		}
	}

	if cfg.Content.BaseURL != "" {
		a := adapter.NewContentAdapter(cfg.Content.BaseURL)
		if err := a.Initialize(ctx, nil); err != nil {
			return nil, err
		}
		if err := registry.Register("content", a); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func buildLLMProvider(cfg config.LLMAdapterConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "mock":
		return &llm.MockProvider{Response: "This is a plain-language explanation."}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
