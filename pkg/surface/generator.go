// SPDX-License-Identifier: Apache-2.0
// Package surface projects every loaded service into a protocol-level
// surface an agent can call without bespoke integration code: resources
// (read-only artefact views), tools (policy check, state advance), and
// prompts (templated guidance). Generation is pure: the same store
// contents always produce the same set of primitives, built by iterating
// the closed artefact set — never by runtime code generation.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/govlegible/civitas/pkg/artefact"
	"github.com/govlegible/civitas/pkg/cases"
	"github.com/govlegible/civitas/pkg/core"
	cerr "github.com/govlegible/civitas/pkg/errors"
	"github.com/govlegible/civitas/pkg/evidence"
	"github.com/govlegible/civitas/pkg/invoker"
	"github.com/govlegible/civitas/pkg/policy"
	"github.com/govlegible/civitas/pkg/statemachine"
)

// PrimitiveKind distinguishes the generated protocol primitives.
type PrimitiveKind string

const (
	KindResource PrimitiveKind = "resource"
	KindTool     PrimitiveKind = "tool"
	KindPrompt   PrimitiveKind = "prompt"
)

// Primitive describes one generated protocol element. The descriptor list
// is immutable once generated; regenerating from an unchanged store yields
// an identical list.
type Primitive struct {
	Kind       PrimitiveKind `json:"kind"`
	Name       string        `json:"name"`
	ServiceID  string        `json:"serviceId"`
	ReadOnly   bool          `json:"readOnly"`
	Idempotent bool          `json:"idempotent"`
}

type resourceEntry struct {
	resource mcp.Resource
	handler  server.ResourceHandlerFunc
}

type toolEntry struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

type promptEntry struct {
	prompt  mcp.Prompt
	handler server.PromptHandlerFunc
}

// Surface is the generated primitive set plus its dispatch handlers.
type Surface struct {
	Primitives []Primitive

	resources []resourceEntry
	tools     []toolEntry
	prompts   []promptEntry
}

// Generator builds a Surface from an artefact store. Invocations raised by
// generated tools go through the invoker so every call is traced and
// receipted; evidence is forwarded to the sink after each invoke returns.
type Generator struct {
	store  *artefact.Store
	inv    *invoker.Invoker
	sink   evidence.Sink
	cases  cases.Store
	logger *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSink forwards invocation evidence to sink.
func WithSink(sink evidence.Sink) GeneratorOption {
	return func(g *Generator) { g.sink = sink }
}

// WithCaseStore lets advance tools resume and persist cases keyed by
// (user, service) when the caller supplies user_id without current_state.
func WithCaseStore(store cases.Store) GeneratorOption {
	return func(g *Generator) { g.cases = store }
}

// WithGeneratorLogger sets the generator's logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a generator over the given store and invoker.
func NewGenerator(store *artefact.Store, inv *invoker.Invoker, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store:  store,
		inv:    inv,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate walks the loaded services in sorted order and produces their
// primitives. It also registers the tool capabilities' handlers with the
// invoker, keyed by tool name.
func (g *Generator) Generate() (*Surface, error) {
	if !g.store.Loaded() {
		return nil, cerr.Newf(cerr.CodeConfiguration, "artefact store is not loaded")
	}

	surf := &Surface{}
	for _, id := range g.store.ListServices() {
		svc, ok := g.store.Get(id)
		if !ok {
			continue
		}
		if err := g.generateService(surf, svc); err != nil {
			return nil, err
		}
	}
	g.logger.Info("protocol surface generated", "primitives", len(surf.Primitives))
	return surf, nil
}

func (g *Generator) generateService(surf *Surface, svc *artefact.Service) error {
	slug := Slug(svc.ID)

	if err := addResource(surf, svc.ID, "manifest", svc.Manifest); err != nil {
		return err
	}
	if svc.Policy != nil {
		if err := addResource(surf, svc.ID, "policy", svc.Policy); err != nil {
			return err
		}
	}
	if svc.StateModel != nil {
		if err := addResource(surf, svc.ID, "state-model", svc.StateModel); err != nil {
			return err
		}
	}
	if svc.Consent != nil {
		if err := addResource(surf, svc.ID, "consent", svc.Consent); err != nil {
			return err
		}
	}

	if svc.Policy != nil {
		if err := g.addEligibilityTool(surf, svc, slug); err != nil {
			return err
		}
	}
	if svc.StateModel != nil {
		if err := g.addAdvanceTool(surf, svc, slug); err != nil {
			return err
		}
	}

	addPrompts(surf, svc, slug)
	return nil
}

// addResource exposes one artefact verbatim at its canonical address
// service://{id}/{kind}. The body is RFC 8785 canonical JSON so repeated
// reads of an unchanged artefact are byte-identical.
func addResource(surf *Surface, serviceID, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return cerr.New(cerr.CodeInternal, fmt.Sprintf("serialize %s for %q", kind, serviceID), err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return cerr.New(cerr.CodeInternal, fmt.Sprintf("canonicalize %s for %q", kind, serviceID), err)
	}

	uri := fmt.Sprintf("service://%s/%s", serviceID, kind)
	body := string(canonical)
	resource := mcp.NewResource(uri, fmt.Sprintf("%s %s", serviceID, kind),
		mcp.WithResourceDescription(fmt.Sprintf("The %s artefact for service %s.", kind, serviceID)),
		mcp.WithMIMEType("application/json"),
	)
	surf.resources = append(surf.resources, resourceEntry{
		resource: resource,
		handler: func(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: body},
			}, nil
		},
	})
	surf.Primitives = append(surf.Primitives, Primitive{
		Kind: KindResource, Name: uri, ServiceID: serviceID, ReadOnly: true, Idempotent: true,
	})
	return nil
}

func (g *Generator) addEligibilityTool(surf *Surface, svc *artefact.Service, slug string) error {
	name := slug + "_check_eligibility"
	ruleset := svc.Policy

	err := g.inv.RegisterHandler(name, func(_ context.Context, iv *invoker.Invocation) (any, error) {
		facts, _ := iv.Input["facts"].(map[string]any)
		if facts == nil {
			facts = map[string]any{}
		}
		verdict := policy.Evaluate(ruleset, facts)
		iv.Emit(core.EventPolicyEvaluated, map[string]any{
			"eligible":  verdict.Eligible,
			"failed":    len(verdict.Failed),
			"edgeCases": len(verdict.EdgeCases),
		})
		return verdict, nil
	})
	if err != nil {
		return err
	}

	tool := mcp.NewTool(name,
		mcp.WithDescription(fmt.Sprintf(
			"Check a citizen's eligibility for %q against its published policy. Repeated calls with the same facts always return the same verdict.",
			svc.Manifest.Name)),
		mcp.WithObject("facts",
			mcp.Required(),
			mcp.Description("Fact bag of citizen attributes, e.g. {\"age\": 30, \"jurisdiction\": \"England\"}."),
		),
		mcp.WithString("user_id", mcp.Description("Optional citizen identifier for the audit trail.")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	surf.tools = append(surf.tools, toolEntry{tool: tool, handler: g.toolHandler(name)})
	surf.Primitives = append(surf.Primitives, Primitive{
		Kind: KindTool, Name: name, ServiceID: svc.ID, ReadOnly: true, Idempotent: true,
	})
	return nil
}

func (g *Generator) addAdvanceTool(surf *Surface, svc *artefact.Service, slug string) error {
	name := slug + "_advance_state"
	def := svc.StateModel

	err := g.inv.RegisterHandler(name, func(ctx context.Context, iv *invoker.Invocation) (any, error) {
		current, _ := iv.Input["current_state"].(string)
		trigger, _ := iv.Input["trigger"].(string)
		facts, _ := iv.Input["facts"].(map[string]any)

		var persisted *cases.Case
		if current == "" && g.cases != nil {
			if iv.Context.UserID == "" {
				return nil, cerr.Newf(cerr.CodeInput, "current_state or user_id is required")
			}
			c, err := g.cases.Get(ctx, iv.Context.UserID, svc.ID)
			if err != nil {
				return nil, err
			}
			if c == nil {
				opened := cases.NewCase(iv.Context.UserID, svc)
				c = &opened
			}
			persisted = c
			current = c.State
		}

		machine, err := statemachine.Resume(def, current)
		if err != nil {
			return nil, err
		}
		result := machine.Transition(trigger, facts)
		iv.Emit(core.EventStateTransition, map[string]any{
			"success":   result.Success,
			"fromState": result.FromState,
			"toState":   result.ToState,
			"trigger":   result.Trigger,
		})
		if !result.Success {
			// A disallowed transition is a normal, reportable outcome the
			// caller must branch on, not a fault.
			iv.SetOutcome(core.OutcomePartial, map[string]any{"reason": result.Error})
			return result, nil
		}
		if persisted != nil {
			persisted.State = result.ToState
			persisted.UpdatedAt = time.Now().UTC()
			if err := g.cases.Put(ctx, *persisted); err != nil {
				return nil, err
			}
		}
		return result, nil
	})
	if err != nil {
		return err
	}

	tool := mcp.NewTool(name,
		mcp.WithDescription(fmt.Sprintf(
			"Advance a case for %q by firing a trigger from its current state. Not idempotent: once the case has advanced, repeating the call fails.",
			svc.Manifest.Name)),
		mcp.WithString("current_state",
			mcp.Description("The case's current state id. When omitted, the case persisted for user_id is resumed.")),
		mcp.WithString("trigger", mcp.Required(),
			mcp.Description("The transition trigger to fire.")),
		mcp.WithObject("facts",
			mcp.Description("Facts evaluated against any condition on the transition.")),
		mcp.WithString("user_id", mcp.Description("Optional citizen identifier for the audit trail.")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
	surf.tools = append(surf.tools, toolEntry{tool: tool, handler: g.toolHandler(name)})
	surf.Primitives = append(surf.Primitives, Primitive{
		Kind: KindTool, Name: name, ServiceID: svc.ID, ReadOnly: false, Idempotent: false,
	})
	return nil
}

// toolHandler adapts a generated capability into an MCP tool call routed
// through the invoker, forwarding evidence to the sink afterwards.
func (g *Generator) toolHandler(capabilityID string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		userID, _ := args["user_id"].(string)
		ictx := core.NewInvocationContext(userID)

		result := g.inv.Invoke(ctx, capabilityID, args, ictx)
		g.forwardEvidence(ctx, result)

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

func (g *Generator) forwardEvidence(ctx context.Context, result invoker.Result) {
	if g.sink == nil {
		return
	}
	if err := g.sink.Append(ctx, result.TraceEvents); err != nil {
		g.logger.Warn("evidence append failed", "error", err)
	}
	if result.Receipt != nil {
		if err := g.sink.Record(ctx, *result.Receipt); err != nil {
			g.logger.Warn("receipt record failed", "error", err)
		}
	}
}

func addPrompts(surf *Surface, svc *artefact.Service, slug string) {
	journeyName := slug + "_journey"
	journeyBody := renderJourneyPrompt(svc)
	journey := mcp.NewPrompt(journeyName,
		mcp.WithPromptDescription(fmt.Sprintf("A narrative walkthrough of the %q journey.", svc.Manifest.Name)),
	)
	surf.prompts = append(surf.prompts, promptEntry{
		prompt: journey,
		handler: func(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult("Service journey guidance", []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(journeyBody)),
			}), nil
		},
	})
	surf.Primitives = append(surf.Primitives, Primitive{
		Kind: KindPrompt, Name: journeyName, ServiceID: svc.ID, ReadOnly: true, Idempotent: true,
	})

	eligibilityName := slug + "_eligibility_check"
	eligibility := mcp.NewPrompt(eligibilityName,
		mcp.WithPromptDescription(fmt.Sprintf("Guidance for checking eligibility for %q.", svc.Manifest.Name)),
		mcp.WithArgument("facts", mcp.ArgumentDescription("The citizen's facts, as JSON or plain text.")),
	)
	surf.prompts = append(surf.prompts, promptEntry{
		prompt: eligibility,
		handler: func(_ context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			body := renderEligibilityPrompt(svc, request.Params.Arguments["facts"])
			return mcp.NewGetPromptResult("Eligibility check guidance", []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(body)),
			}), nil
		},
	})
	surf.Primitives = append(surf.Primitives, Primitive{
		Kind: KindPrompt, Name: eligibilityName, ServiceID: svc.ID, ReadOnly: true, Idempotent: true,
	})
}
