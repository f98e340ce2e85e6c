// SPDX-License-Identifier: Apache-2.0
// Package policy evaluates eligibility rulesets against caller-supplied
// facts. Evaluation is stateless and deterministic: the same ruleset and
// facts always produce the same verdict, and malformed input is reported
// inside the verdict rather than aborting the caller's flow.
package policy

import (
	"fmt"
	"strings"

	"github.com/govlegible/civitas/pkg/artefact"
)

// Verdict is the outcome of evaluating one ruleset against one fact bag.
// Edge-case matches are informational only: they never change Eligible.
type Verdict struct {
	Eligible    bool                `json:"eligible"`
	Passed      []artefact.Rule     `json:"passed"`
	Failed      []artefact.Rule     `json:"failed"`
	EdgeCases   []artefact.EdgeCase `json:"edgeCases,omitempty"`
	Notes       []string            `json:"notes,omitempty"`
	Explanation string              `json:"explanation"`
}

// Evaluate applies every rule in definition order. Eligible is true iff
// every rule passes: a single failing rule blocks eligibility regardless
// of the others. A condition on an absent field or with a non-numeric
// operand fails its rule and adds a note; evaluation itself never errors.
func Evaluate(ruleset *artefact.PolicyRuleset, facts map[string]any) Verdict {
	verdict := Verdict{Eligible: true}
	if ruleset == nil {
		verdict.Explanation = "No policy applies."
		return verdict
	}

	for _, rule := range ruleset.Rules {
		ok, note := rule.Condition.Eval(facts)
		if note != "" {
			verdict.Notes = append(verdict.Notes, fmt.Sprintf("rule %s: %s", rule.ID, note))
		}
		if ok {
			verdict.Passed = append(verdict.Passed, rule)
		} else {
			verdict.Failed = append(verdict.Failed, rule)
			verdict.Eligible = false
		}
	}

	// Edge cases match independently of rule pass/fail and may co-occur
	// with either outcome.
	for _, ec := range ruleset.EdgeCases {
		if ok, _ := ec.Condition.Eval(facts); ok {
			verdict.EdgeCases = append(verdict.EdgeCases, ec)
		}
	}

	verdict.Explanation = explain(ruleset, verdict)
	return verdict
}

// explain renders the verdict's human-readable explanation from the
// ruleset's template. Failed reasons appear in rule-definition order so
// the output is reproducible.
func explain(ruleset *artefact.PolicyRuleset, verdict Verdict) string {
	outcome := "You appear to be eligible."
	if !verdict.Eligible {
		outcome = "You do not appear to be eligible."
	}

	var reasons []string
	for _, rule := range verdict.Failed {
		reason := rule.ReasonIfFailed
		if reason == "" {
			reason = fmt.Sprintf("Requirement %q was not met.", rule.ID)
		}
		reasons = append(reasons, reason)
	}
	reasonText := strings.Join(reasons, " ")

	template := ruleset.ExplanationTemplate
	if template == "" {
		if reasonText == "" {
			return outcome
		}
		return outcome + " " + reasonText
	}
	replacer := strings.NewReplacer(
		"{outcome}", outcome,
		"{reasons}", reasonText,
	)
	return strings.TrimSpace(replacer.Replace(template))
}
