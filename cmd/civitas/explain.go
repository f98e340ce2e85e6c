// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/govlegible/civitas/pkg/adapter"
	"github.com/govlegible/civitas/pkg/artefact"
	cerr "github.com/govlegible/civitas/pkg/errors"
	"github.com/govlegible/civitas/pkg/evidence"
	"github.com/govlegible/civitas/pkg/invoker"
	"github.com/govlegible/civitas/pkg/surface"
)

const explainCapability = "explain_verdict"

// registerExplainTool exposes a runtime-level tool that turns an eligibility
// verdict into plain language via the configured language model. Skipped
// when no llm adapter is configured; the templated explanation in the
// verdict itself is always available without it.
func registerExplainTool(srv *surface.Server, inv *invoker.Invoker, sink evidence.Sink, store *artefact.Store, registry *adapter.Registry, logger *slog.Logger) error {
	llmAdapter, err := registry.Resolve("llm")
	if err != nil {
		return nil
	}

	err = inv.RegisterHandler(explainCapability, func(ctx context.Context, iv *invoker.Invocation) (any, error) {
		serviceID, _ := iv.Input["service_id"].(string)
		serviceName := serviceID
		if svc, ok := store.Get(serviceID); ok {
			serviceName = svc.Manifest.Name
		}

		verdict, err := json.Marshal(iv.Input["verdict"])
		if err != nil || string(verdict) == "null" {
			return nil, cerr.Newf(cerr.CodeInput, "verdict is required")
		}

		prompt := fmt.Sprintf(
			"A citizen checked their eligibility for the government service %q and received this verdict:\n\n%s\n\nExplain the verdict in plain, non-technical language. Cover every failed requirement and what the citizen could do next.",
			serviceName, verdict)

		resp := llmAdapter.Execute(ctx, adapter.Request{
			Input:   map[string]any{"prompt": prompt},
			Context: iv.Context,
		})
		if !resp.Success {
			return nil, cerr.Newf(cerr.CodeAdapter, "language model call failed: %s", resp.Error)
		}
		return map[string]any{"explanation": resp.Output}, nil
	})
	if err != nil {
		return err
	}

	tool := mcp.NewTool(explainCapability,
		mcp.WithDescription("Explain an eligibility verdict in plain language using the configured language model."),
		mcp.WithString("service_id", mcp.Required(),
			mcp.Description("The service the verdict belongs to.")),
		mcp.WithObject("verdict", mcp.Required(),
			mcp.Description("The verdict returned by a check_eligibility tool.")),
		mcp.WithString("user_id", mcp.Description("Optional citizen identifier for the audit trail.")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	srv.AddTool(tool, dispatchTool(inv, sink, logger, explainCapability))
	return nil
}
