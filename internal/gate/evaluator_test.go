package gate

import (
	"errors"
	"testing"

	"github.com/provara/provara/pkg/types"
)

func testEvidence(id string, evType types.EvidenceType, content map[string]any, meta map[string]string) types.SignedEvidence {
	return types.SignedEvidence{
		Evidence: types.Evidence{
			EvidenceID: id,
			ProjectID:  "proj-1",
			Source:     "ci",
			Type:       evType,
			CreatedAt:  "2026-08-31T10:00:00Z",
			Content:    content,
			Metadata:   meta,
		},
	}
}

func TestEvaluateGatePasses(t *testing.T) {
	g := types.Gate{
		GateID: "tests-green",
		Phase:  "security_review",
		Checks: []types.GateCheck{
			{CheckID: "unit-tests", EvidenceType: types.EvidenceTestReport, Validator: "tests_passed"},
		},
	}
	evidence := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceTestReport, map[string]any{"passed": 12, "failed": 0}, nil),
	}

	result, err := Evaluate(g, evidence, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GatePassed {
		t.Fatalf("expected passed, got %s", result.Status)
	}
	if len(result.Checks) != 1 || result.Checks[0].Status != types.CheckPassed {
		t.Fatalf("unexpected checks: %+v", result.Checks)
	}
	if len(result.EvidenceIDs) != 1 || result.EvidenceIDs[0] != "ev-1" {
		t.Fatalf("unexpected evidence ids: %v", result.EvidenceIDs)
	}
}

func TestEvaluateGateFailsOnFailedTests(t *testing.T) {
	g := types.Gate{
		GateID: "tests-green",
		Phase:  "security_review",
		Checks: []types.GateCheck{
			{CheckID: "unit-tests", EvidenceType: types.EvidenceTestReport, Validator: "tests_passed"},
		},
	}
	evidence := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceTestReport, map[string]any{"passed": 10, "failed": 2}, nil),
	}

	result, err := Evaluate(g, evidence, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GateFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Checks[0].Message != "2 tests failed" {
		t.Fatalf("unexpected message: %q", result.Checks[0].Message)
	}
}

func TestEvaluateMissingEvidence(t *testing.T) {
	g := types.Gate{
		GateID: "tests-green",
		Phase:  "security_review",
		Checks: []types.GateCheck{
			{CheckID: "unit-tests", EvidenceType: types.EvidenceTestReport, Validator: "tests_passed"},
		},
	}

	result, err := Evaluate(g, nil, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GateFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Checks[0].Status != types.CheckMissing {
		t.Fatalf("expected missing check, got %s", result.Checks[0].Status)
	}
	if len(result.EvidenceIDs) != 0 {
		t.Fatalf("expected no evidence consulted, got %v", result.EvidenceIDs)
	}
}

func TestEvaluateUnknownValidator(t *testing.T) {
	g := types.Gate{
		GateID: "custom",
		Phase:  "release",
		Checks: []types.GateCheck{
			{CheckID: "custom-check", EvidenceType: types.EvidenceArtifact, Validator: "not_registered"},
		},
	}
	evidence := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceArtifact, map[string]any{"path": "dist/app.tar.gz"}, nil),
	}

	result, err := Evaluate(g, evidence, Builtins(), "2026-08-31T10:05:00Z")
	if err == nil {
		t.Fatalf("expected error for unknown validator")
	}
	var unknownErr *UnknownValidatorError
	if !errors.As(err, &unknownErr) || unknownErr.Name != "not_registered" {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != types.GateError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if result.Checks[0].Status != types.CheckError {
		t.Fatalf("expected error check, got %s", result.Checks[0].Status)
	}
}

func TestEvaluateErrorOutranksFailed(t *testing.T) {
	g := types.Gate{
		GateID: "mixed",
		Phase:  "release",
		Checks: []types.GateCheck{
			{CheckID: "broken", EvidenceType: types.EvidenceArtifact, Validator: "not_registered"},
			{CheckID: "absent", EvidenceType: types.EvidenceVulnReport},
		},
	}
	evidence := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceArtifact, nil, nil),
	}

	result, _ := Evaluate(g, evidence, Builtins(), "2026-08-31T10:05:00Z")
	if result.Status != types.GateError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
}

func TestEvaluatePresenceOnlyCheck(t *testing.T) {
	g := types.Gate{
		GateID: "artifact-present",
		Phase:  "released",
		Checks: []types.GateCheck{
			{CheckID: "artifact", EvidenceType: types.EvidenceArtifact},
		},
	}
	evidence := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceArtifact, map[string]any{"path": "dist/app.tar.gz"}, nil),
	}

	result, err := Evaluate(g, evidence, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GatePassed {
		t.Fatalf("expected passed, got %s", result.Status)
	}
}

func TestEvaluateMustMatch(t *testing.T) {
	g := types.Gate{
		GateID: "design-complete",
		Phase:  "implementation",
		Checks: []types.GateCheck{
			{CheckID: "design-doc", EvidenceType: types.EvidenceFile, MustMatch: "design-doc"},
		},
	}

	// A file of the right type but the wrong name does not satisfy the check.
	wrongName := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceFile, nil, map[string]string{"name": "readme"}),
	}
	result, err := Evaluate(g, wrongName, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GateFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}

	byMeta := []types.SignedEvidence{
		testEvidence("ev-2", types.EvidenceFile, nil, map[string]string{"name": "design-doc"}),
	}
	result, err = Evaluate(g, byMeta, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GatePassed {
		t.Fatalf("expected passed via metadata name, got %s", result.Status)
	}

	byID := []types.SignedEvidence{
		testEvidence("design-doc", types.EvidenceFile, nil, nil),
	}
	result, err = Evaluate(g, byID, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GatePassed {
		t.Fatalf("expected passed via evidence id, got %s", result.Status)
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	g := types.Gate{
		GateID: "tests-green",
		Phase:  "security_review",
		Checks: []types.GateCheck{
			{CheckID: "unit-tests", EvidenceType: types.EvidenceTestReport, Validator: "tests_passed"},
		},
	}
	// The passing report came first in ledger order, so the later failing
	// report is never consulted.
	evidence := []types.SignedEvidence{
		testEvidence("ev-1", types.EvidenceTestReport, map[string]any{"passed": 12, "failed": 0}, nil),
		testEvidence("ev-2", types.EvidenceTestReport, map[string]any{"passed": 0, "failed": 5}, nil),
	}

	result, err := Evaluate(g, evidence, Builtins(), "2026-08-31T10:05:00Z")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != types.GatePassed {
		t.Fatalf("expected passed, got %s", result.Status)
	}
	if len(result.EvidenceIDs) != 1 || result.EvidenceIDs[0] != "ev-1" {
		t.Fatalf("unexpected evidence ids: %v", result.EvidenceIDs)
	}
}

func TestFindGate(t *testing.T) {
	gates := []types.Gate{
		{GateID: "a", Phase: "design"},
		{GateID: "b", Phase: "release"},
	}

	g, err := Find(gates, "b")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if g.GateID != "b" {
		t.Fatalf("unexpected gate: %+v", g)
	}

	_, err = Find(gates, "missing")
	var unknownErr *UnknownGateError
	if !errors.As(err, &unknownErr) || unknownErr.GateID != "missing" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestForPhase(t *testing.T) {
	gates := []types.Gate{
		{GateID: "a", Phase: "release"},
		{GateID: "b", Phase: "design"},
		{GateID: "c", Phase: "release"},
	}

	got := ForPhase(gates, "release")
	if len(got) != 2 || got[0].GateID != "a" || got[1].GateID != "c" {
		t.Fatalf("unexpected gates: %+v", got)
	}
	if len(ForPhase(gates, "released")) != 0 {
		t.Fatalf("expected no gates for released")
	}
}
