package gate

import (
	"fmt"

	"github.com/provara/provara/pkg/types"
)

// Evaluate matches a gate's checks against a ledger evidence snapshot.
// It is a pure function: a new GateResult is produced on every call and
// nothing is mutated.
//
// Per check: the first evidence item matching the check's evidence type
// (and must_match name, if set) is consulted. No match marks the check
// "missing". A named validator maps its outcome onto the check; no
// validator means presence alone passes. An unregistered validator name
// is a configuration error: the check is marked "error" and an
// UnknownValidatorError is returned alongside the result.
func Evaluate(g types.Gate, evidence []types.SignedEvidence, registry *Registry, createdAt string) (types.GateResult, error) {
	result := types.GateResult{
		GateID:    g.GateID,
		Phase:     g.Phase,
		Checks:    make([]types.CheckResult, 0, len(g.Checks)),
		CreatedAt: createdAt,
	}

	var firstErr error
	consulted := map[string]struct{}{}
	anyFailed := false
	anyError := false

	for _, check := range g.Checks {
		matched, ok := findEvidence(evidence, check)
		if !ok {
			anyFailed = true
			msg := fmt.Sprintf("no evidence of type %q found", check.EvidenceType)
			if check.MustMatch != "" {
				msg = fmt.Sprintf("no evidence of type %q matching %q found", check.EvidenceType, check.MustMatch)
			}
			result.Checks = append(result.Checks, types.CheckResult{
				CheckID: check.CheckID,
				Status:  types.CheckMissing,
				Message: msg,
			})
			continue
		}

		if _, seen := consulted[matched.EvidenceID]; !seen {
			consulted[matched.EvidenceID] = struct{}{}
			result.EvidenceIDs = append(result.EvidenceIDs, matched.EvidenceID)
		}

		if check.Validator == "" {
			result.Checks = append(result.Checks, types.CheckResult{
				CheckID: check.CheckID,
				Status:  types.CheckPassed,
				Message: fmt.Sprintf("evidence %s present", matched.EvidenceID),
			})
			continue
		}

		fn, found := registry.Lookup(check.Validator)
		if !found {
			anyError = true
			if firstErr == nil {
				firstErr = &UnknownValidatorError{Name: check.Validator}
			}
			result.Checks = append(result.Checks, types.CheckResult{
				CheckID: check.CheckID,
				Status:  types.CheckError,
				Message: fmt.Sprintf("unknown validator: %s", check.Validator),
			})
			continue
		}

		outcome := fn(matched, check.Params)
		switch outcome.Status {
		case types.CheckFailed, types.CheckMissing:
			anyFailed = true
		case types.CheckError:
			anyError = true
		}
		result.Checks = append(result.Checks, types.CheckResult{
			CheckID: check.CheckID,
			Status:  outcome.Status,
			Message: outcome.Message,
		})
	}

	switch {
	case anyError:
		result.Status = types.GateError
	case anyFailed:
		result.Status = types.GateFailed
	default:
		result.Status = types.GatePassed
	}
	return result, firstErr
}

// findEvidence returns the first item matching the check's type and
// must_match filter, in ledger insertion order.
func findEvidence(evidence []types.SignedEvidence, check types.GateCheck) (types.SignedEvidence, bool) {
	for _, ev := range evidence {
		if ev.Type != check.EvidenceType {
			continue
		}
		if check.MustMatch != "" && !matchesName(ev, check.MustMatch) {
			continue
		}
		return ev, true
	}
	return types.SignedEvidence{}, false
}

// matchesName filters by the evidence's metadata name, falling back to
// the evidence ID.
func matchesName(ev types.SignedEvidence, name string) bool {
	if ev.Metadata["name"] == name {
		return true
	}
	return ev.EvidenceID == name
}

// Find resolves a gate by ID from a loaded gate set.
func Find(gates []types.Gate, gateID string) (types.Gate, error) {
	for _, g := range gates {
		if g.GateID == gateID {
			return g, nil
		}
	}
	return types.Gate{}, &UnknownGateError{GateID: gateID}
}

// ForPhase returns the gates guarding a target phase.
func ForPhase(gates []types.Gate, phase string) []types.Gate {
	out := []types.Gate{}
	for _, g := range gates {
		if g.Phase == phase {
			out = append(out, g)
		}
	}
	return out
}
