// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/govlegible/civitas/pkg/adapter"
	"github.com/govlegible/civitas/pkg/artefact"
	"github.com/govlegible/civitas/pkg/cases"
	"github.com/govlegible/civitas/pkg/core"
	cerr "github.com/govlegible/civitas/pkg/errors"
	"github.com/govlegible/civitas/pkg/evidence"
	"github.com/govlegible/civitas/pkg/invoker"
	"github.com/govlegible/civitas/pkg/policy"
	"github.com/govlegible/civitas/pkg/surface"
)

// toolRegistrar is the slice of the surface server the submit tools need.
type toolRegistrar interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
	DeleteTools(names ...string)
}

// submitTools maintains one {slug}_submit tool per service. Each tool runs
// the whole front door in one call: record consent decisions, check
// eligibility, report the case position, and enrich the result with
// published guidance when a content adapter is configured. State advances
// stay with the advance_state tools; submission never moves the case.
//
// The tools sit outside the generated surface, so the tracker owns their
// refresh lifecycle: Sync after an artefact reload re-registers tools for
// the current services and deletes the ones whose service went away.
type submitTools struct {
	mu    sync.Mutex
	names []string
}

func (s *submitTools) Sync(reg toolRegistrar, inv *invoker.Invoker, sink evidence.Sink, store *artefact.Store, caseStore cases.Store, registry *adapter.Registry, logger *slog.Logger) error {
	var content adapter.Adapter
	if a, err := registry.Resolve("content"); err == nil && a.IsReady() {
		content = a
	}

	current := make([]string, 0, len(store.ListServices()))
	for _, id := range store.ListServices() {
		svc, ok := store.Get(id)
		if !ok {
			continue
		}
		name := surface.Slug(id) + "_submit"
		if err := inv.RegisterHandler(name, submitHandler(svc, caseStore, content)); err != nil {
			return err
		}

		tool := mcp.NewTool(name,
			mcp.WithDescription(fmt.Sprintf(
				"Submit an interaction with %q: record consent decisions, check eligibility, and report the case position.",
				svc.Manifest.Name)),
			mcp.WithString("user_id", mcp.Required(),
				mcp.Description("Citizen identifier; the case is keyed by it.")),
			mcp.WithObject("facts",
				mcp.Description("Fact bag of citizen attributes for the eligibility check.")),
			mcp.WithObject("consent",
				mcp.Description("Consent decisions keyed by grant id, e.g. {\"share-income-data\": true}.")),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		)
		reg.AddTool(tool, dispatchTool(inv, sink, logger, name))
		current = append(current, name)
	}

	s.mu.Lock()
	previous := s.names
	s.names = current
	s.mu.Unlock()

	if stale := staleNames(previous, current); len(stale) > 0 {
		reg.DeleteTools(stale...)
		logger.Info("removed submit tools for dropped services", "tools", stale)
	}
	return nil
}

// staleNames returns the names in previous that are absent from current.
func staleNames(previous, current []string) []string {
	kept := make(map[string]struct{}, len(current))
	for _, name := range current {
		kept[name] = struct{}{}
	}
	var stale []string
	for _, name := range previous {
		if _, ok := kept[name]; !ok {
			stale = append(stale, name)
		}
	}
	return stale
}

func submitHandler(svc *artefact.Service, caseStore cases.Store, content adapter.Adapter) invoker.Handler {
	return func(ctx context.Context, iv *invoker.Invocation) (any, error) {
		if iv.Context.UserID == "" {
			return nil, cerr.Newf(cerr.CodeInput, "user_id is required")
		}
		facts, _ := iv.Input["facts"].(map[string]any)
		decisions, _ := iv.Input["consent"].(map[string]any)

		c, err := caseStore.Get(ctx, iv.Context.UserID, svc.ID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			opened := cases.NewCase(iv.Context.UserID, svc)
			c = &opened
		}
		machine, manager, err := cases.Resume(c, svc)
		if err != nil {
			return nil, err
		}

		report := map[string]any{"serviceId": svc.ID}

		if manager != nil {
			for grantID, raw := range decisions {
				granted, _ := raw.(bool)
				previouslyGranted := manager.HasConsent(grantID)
				if _, err := manager.RecordDecision(grantID, granted, "recorded at submission"); err != nil {
					return nil, err
				}
				var eventType core.TraceEventType
				switch {
				case granted:
					eventType = core.EventConsentGranted
					iv.ShareData(manager.DataShared(grantID)...)
				case previouslyGranted:
					eventType = core.EventConsentRevoked
				default:
					eventType = core.EventConsentDenied
				}
				iv.Emit(eventType, map[string]any{"grant": grantID})
			}
			c.Decisions = manager.Decisions()

			if !manager.AllRequiredGranted() {
				pending := make([]string, 0)
				for _, grant := range manager.PendingGrants() {
					if grant.Required {
						pending = append(pending, grant.ID)
						iv.Emit(core.EventConsentRequested, map[string]any{"grant": grant.ID})
					}
				}
				iv.SetOutcome(core.OutcomePartial, map[string]any{
					"reason":        "required consent missing",
					"pendingGrants": pending,
				})
				report["pendingGrants"] = pending
				if err := caseStore.Put(ctx, *c); err != nil {
					return nil, err
				}
				return report, nil
			}
		}

		if svc.Policy != nil {
			verdict := policy.Evaluate(svc.Policy, facts)
			iv.Emit(core.EventPolicyEvaluated, map[string]any{
				"eligible":  verdict.Eligible,
				"failed":    len(verdict.Failed),
				"edgeCases": len(verdict.EdgeCases),
			})
			report["verdict"] = verdict
			switch {
			case !verdict.Eligible:
				iv.SetOutcome(core.OutcomePartial, map[string]any{"reason": "not eligible"})
			case len(verdict.EdgeCases) > 0 && svc.Manifest.Handoff.To != "":
				iv.SetOutcome(core.OutcomeHandoff, map[string]any{
					"to":   svc.Manifest.Handoff.To,
					"when": svc.Manifest.Handoff.When,
				})
			}
		}

		if machine != nil {
			report["currentState"] = machine.CurrentState()
			report["allowedTransitions"] = machine.AllowedTransitions()
		}

		if content != nil {
			resp := content.Execute(ctx, adapter.Request{
				Input:   map[string]any{"path": "/guidance/" + svc.ID},
				Context: iv.Context,
			})
			if resp.Success {
				report["guidance"] = resp.Output
			}
		}

		if err := caseStore.Put(ctx, *c); err != nil {
			return nil, err
		}
		return report, nil
	}
}

// dispatchTool adapts an invoker capability into an MCP tool handler,
// forwarding the evidence trail to the sink after each call.
func dispatchTool(inv *invoker.Invoker, sink evidence.Sink, logger *slog.Logger, capabilityID string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		userID, _ := args["user_id"].(string)
		ictx := core.NewInvocationContext(userID)

		result := inv.Invoke(ctx, capabilityID, args, ictx)
		if sink != nil {
			if err := sink.Append(ctx, result.TraceEvents); err != nil {
				logger.Warn("evidence append failed", "error", err)
			}
			if result.Receipt != nil {
				if err := sink.Record(ctx, *result.Receipt); err != nil {
					logger.Warn("receipt record failed", "error", err)
				}
			}
		}
		if !result.Success {
			return mcp.NewToolResultError(result.Error), nil
		}
		payload := map[string]any{
			"output":  result.Output,
			"traceId": ictx.TraceID,
		}
		if result.Receipt != nil {
			payload["receiptId"] = result.Receipt.ID
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}
