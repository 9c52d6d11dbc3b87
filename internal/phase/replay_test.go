package phase

import (
	"errors"
	"testing"

	"github.com/provara/provara/pkg/types"
)

func TestRestoreResumesAtLastPhase(t *testing.T) {
	m, led := newTestMachine(t, nil)
	advanceTo(t, m, types.PhaseDesign)

	// A refused transition is audited but must not move the replay.
	if _, err := m.Dispatch(EventPublish, "orchestrator"); err == nil {
		t.Fatalf("expected invalid transition")
	}

	restored, err := Restore(Config{
		ProjectID: "proj-1",
		RunID:     "run-1",
		Workflow:  DefaultWorkflow(),
		Ledger:    led,
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.Current() != types.PhaseDesign {
		t.Fatalf("expected design, got %s", restored.Current())
	}
	history := restored.History()
	if len(history) != 2 {
		t.Fatalf("expected two transitions, got %d", len(history))
	}
	if history[0].Event != EventInitProject || history[1].Event != EventStartDesign {
		t.Fatalf("unexpected replayed events: %+v", history)
	}

	// The restored machine keeps enforcing the transition table.
	_, err = restored.Dispatch(EventRunGates, "orchestrator")
	var invErr *InvalidTransitionError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := restored.Dispatch(EventStartBuild, "orchestrator"); err != nil {
		t.Fatalf("dispatch after restore: %v", err)
	}
	if restored.Current() != types.PhaseImplementation {
		t.Fatalf("expected implementation, got %s", restored.Current())
	}
}

func TestRestoreFreshProjectStartsAtInitial(t *testing.T) {
	_, led := newTestMachine(t, nil)

	restored, err := Restore(Config{
		ProjectID: "proj-2",
		Workflow:  DefaultWorkflow(),
		Ledger:    led,
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Current() != types.PhaseIdle {
		t.Fatalf("expected idle, got %s", restored.Current())
	}
	if len(restored.History()) != 0 {
		t.Fatalf("unexpected history: %+v", restored.History())
	}
}
