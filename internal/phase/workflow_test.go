package phase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

func TestDefaultWorkflowValidates(t *testing.T) {
	w := DefaultWorkflow()
	if err := w.Validate(); err != nil {
		t.Fatalf("default workflow invalid: %v", err)
	}
	if w.Initial != types.PhaseIdle {
		t.Fatalf("unexpected initial phase: %s", w.Initial)
	}
}

func TestLoadWorkflowMatchesDefault(t *testing.T) {
	loaded, err := LoadWorkflow("../../workflows/default.yaml")
	if err != nil {
		t.Fatalf("load workflow: %v", err)
	}

	def := DefaultWorkflow()
	if loaded.Workflow.Initial != def.Initial {
		t.Fatalf("initial mismatch: %s vs %s", loaded.Workflow.Initial, def.Initial)
	}
	if len(loaded.Workflow.Phases) != len(def.Phases) {
		t.Fatalf("phase count mismatch: %d vs %d", len(loaded.Workflow.Phases), len(def.Phases))
	}
	if len(loaded.Workflow.Transitions) != len(def.Transitions) {
		t.Fatalf("transition count mismatch: %d vs %d", len(loaded.Workflow.Transitions), len(def.Transitions))
	}
	if len(loaded.Workflow.Parallel) != 3 {
		t.Fatalf("expected three monitors, got %d", len(loaded.Workflow.Parallel))
	}

	data, err := os.ReadFile("../../workflows/default.yaml")
	if err != nil {
		t.Fatalf("read workflow: %v", err)
	}
	if loaded.Hash != crypto.DigestWithPrefix(data) {
		t.Fatalf("workflow hash mismatch")
	}
}

func TestValidateRejectsBadWorkflows(t *testing.T) {
	cases := []struct {
		name string
		w    Workflow
	}{
		{"no phases", Workflow{}},
		{"unknown initial", Workflow{
			Phases:  []types.Phase{types.PhaseIdle},
			Initial: types.PhaseRelease,
		}},
		{"transition from unknown phase", Workflow{
			Phases:  []types.Phase{types.PhaseIdle},
			Initial: types.PhaseIdle,
			Transitions: []Transition{
				{From: types.PhaseDesign, Event: "X", To: types.PhaseIdle},
			},
		}},
		{"transition to unknown phase", Workflow{
			Phases:  []types.Phase{types.PhaseIdle},
			Initial: types.PhaseIdle,
			Transitions: []Transition{
				{From: types.PhaseIdle, Event: "X", To: types.PhaseDesign},
			},
		}},
		{"missing event", Workflow{
			Phases:  []types.Phase{types.PhaseIdle},
			Initial: types.PhaseIdle,
			Transitions: []Transition{
				{From: types.PhaseIdle, To: types.PhaseIdle},
			},
		}},
		{"duplicate event", Workflow{
			Phases:  []types.Phase{types.PhaseIdle, types.PhaseDesign},
			Initial: types.PhaseIdle,
			Transitions: []Transition{
				{From: types.PhaseIdle, Event: "X", To: types.PhaseDesign},
				{From: types.PhaseIdle, Event: "X", To: types.PhaseIdle},
			},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.w.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWorkflowRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	content := []byte("phases: [idle]\ninitial: release\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write workflow: %v", err)
	}

	if _, err := LoadWorkflow(path); err == nil {
		t.Fatalf("expected invalid workflow error")
	}
}
