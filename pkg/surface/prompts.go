package surface

import (
	"fmt"
	"strings"

	"github.com/govlegible/civitas/pkg/artefact"
)

// Prompt bodies are rendered by plain string substitution into fixed
// templates. No model inference happens here: the output is guidance text
// for the calling agent to use however it wants.

const journeyTemplate = `You are helping a citizen use the service "{name}" ({id}), run by {department}.

{description}

{states}
{rules}
Walk the citizen through this journey step by step. Check eligibility with
the {slug}_check_eligibility tool before advancing any state, and use the
{slug}_advance_state tool only when the citizen has confirmed the step.`

const eligibilityTemplate = `Check whether a citizen is eligible for "{name}" ({id}).

The citizen has supplied these facts:
{facts}

Call the {slug}_check_eligibility tool with these facts and explain the
verdict in plain language, including every failed requirement and any
edge cases the policy flags.`

func renderJourneyPrompt(svc *artefact.Service) string {
	var states strings.Builder
	if svc.StateModel != nil && len(svc.StateModel.States) > 0 {
		states.WriteString("The case moves through these states:\n")
		for _, s := range svc.StateModel.States {
			suffix := ""
			switch s.Type {
			case artefact.StateTypeInitial:
				suffix = " (start)"
			case artefact.StateTypeTerminal:
				suffix = " (end)"
			}
			fmt.Fprintf(&states, "- %s%s\n", s.ID, suffix)
		}
		for _, tr := range svc.StateModel.Transitions {
			fmt.Fprintf(&states, "- %q moves the case from %s to %s\n", tr.Trigger, tr.From, tr.To)
		}
	}

	var rules strings.Builder
	if svc.Policy != nil && len(svc.Policy.Rules) > 0 {
		rules.WriteString("Eligibility depends on:\n")
		for _, rule := range svc.Policy.Rules {
			desc := rule.Description
			if desc == "" {
				desc = rule.ID
			}
			fmt.Fprintf(&rules, "- %s\n", desc)
		}
	}

	return strings.NewReplacer(
		"{name}", svc.Manifest.Name,
		"{id}", svc.ID,
		"{department}", svc.Manifest.Department,
		"{description}", svc.Manifest.Description,
		"{states}", states.String(),
		"{rules}", rules.String(),
		"{slug}", Slug(svc.ID),
	).Replace(journeyTemplate)
}

func renderEligibilityPrompt(svc *artefact.Service, facts string) string {
	if strings.TrimSpace(facts) == "" {
		facts = "(no facts supplied yet; ask the citizen for them)"
	}
	return strings.NewReplacer(
		"{name}", svc.Manifest.Name,
		"{id}", svc.ID,
		"{facts}", facts,
		"{slug}", Slug(svc.ID),
	).Replace(eligibilityTemplate)
}
