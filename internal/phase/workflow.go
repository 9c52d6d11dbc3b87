package phase

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

// Events understood by the default workflow.
const (
	EventInitProject    = "INIT_PROJECT"
	EventStartDesign    = "START_DESIGN"
	EventStartBuild     = "START_IMPLEMENTATION"
	EventRunGates       = "RUN_GATES"
	EventApproveRelease = "APPROVE_RELEASE"
	EventPublish        = "PUBLISH_RELEASE"
	EventFail           = "FAIL_PROJECT"
)

// Transition is one row of the declarative transition table.
type Transition struct {
	From  types.Phase `yaml:"from" json:"from"`
	Event string      `yaml:"event" json:"event"`
	To    types.Phase `yaml:"to" json:"to"`
}

// ParallelSpec declares an always-on monitor and the event topics that
// refresh it. An event refreshes a monitor when the event name contains
// any of the topics as a substring.
type ParallelSpec struct {
	Name   string   `yaml:"name" json:"name"`
	Topics []string `yaml:"topics" json:"topics"`
}

// Workflow is the static configuration of a state machine: the phase
// set, the transition table, and the parallel monitors.
type Workflow struct {
	Phases      []types.Phase  `yaml:"phases" json:"phases"`
	Initial     types.Phase    `yaml:"initial" json:"initial"`
	Transitions []Transition   `yaml:"transitions" json:"transitions"`
	Parallel    []ParallelSpec `yaml:"parallel" json:"parallel"`
}

// DefaultWorkflow is the delivery workflow shipped with the CLI:
// idle through released, with a terminal failed phase reachable from
// every working phase.
func DefaultWorkflow() Workflow {
	working := []types.Phase{
		types.PhaseIdle,
		types.PhaseDiscovery,
		types.PhaseDesign,
		types.PhaseImplementation,
		types.PhaseSecurityReview,
		types.PhaseRelease,
	}

	transitions := []Transition{
		{From: types.PhaseIdle, Event: EventInitProject, To: types.PhaseDiscovery},
		{From: types.PhaseDiscovery, Event: EventStartDesign, To: types.PhaseDesign},
		{From: types.PhaseDesign, Event: EventStartBuild, To: types.PhaseImplementation},
		{From: types.PhaseImplementation, Event: EventRunGates, To: types.PhaseSecurityReview},
		{From: types.PhaseSecurityReview, Event: EventApproveRelease, To: types.PhaseRelease},
		{From: types.PhaseRelease, Event: EventPublish, To: types.PhaseReleased},
	}
	for _, p := range working {
		transitions = append(transitions, Transition{From: p, Event: EventFail, To: types.PhaseFailed})
	}

	return Workflow{
		Phases: append(append([]types.Phase{}, working...),
			types.PhaseReleased, types.PhaseFailed),
		Initial:     types.PhaseIdle,
		Transitions: transitions,
		Parallel: []ParallelSpec{
			{Name: "security_monitoring", Topics: []string{"SECURITY", "GATE"}},
			{Name: "compliance_monitoring", Topics: []string{"COMPLIANCE", "AUDIT", "GATE"}},
			{Name: "observability", Topics: []string{"OBSERV", "METRIC"}},
		},
	}
}

// Validate checks the workflow for internal consistency: a declared
// initial phase and a transition table that only references declared
// phases.
func (w Workflow) Validate() error {
	if len(w.Phases) == 0 {
		return fmt.Errorf("workflow has no phases")
	}
	known := make(map[types.Phase]struct{}, len(w.Phases))
	for _, p := range w.Phases {
		known[p] = struct{}{}
	}
	if _, ok := known[w.Initial]; !ok {
		return fmt.Errorf("initial phase %q not in phase set", w.Initial)
	}
	seen := map[string]struct{}{}
	for _, tr := range w.Transitions {
		if _, ok := known[tr.From]; !ok {
			return fmt.Errorf("transition from unknown phase %q", tr.From)
		}
		if _, ok := known[tr.To]; !ok {
			return fmt.Errorf("transition to unknown phase %q", tr.To)
		}
		if tr.Event == "" {
			return fmt.Errorf("transition from %q has no event", tr.From)
		}
		key := string(tr.From) + "/" + tr.Event
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate transition for event %s from %s", tr.Event, tr.From)
		}
		seen[key] = struct{}{}
	}
	return nil
}

type LoadedWorkflow struct {
	Workflow Workflow
	Hash     string
	Bytes    []byte
}

// LoadWorkflow loads a YAML workflow and computes its hash from raw bytes.
func LoadWorkflow(path string) (LoadedWorkflow, error) {
	// #nosec G304 -- path comes from operator-configured workflow path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedWorkflow{}, err
	}

	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return LoadedWorkflow{}, err
	}
	if err := w.Validate(); err != nil {
		return LoadedWorkflow{}, err
	}

	return LoadedWorkflow{
		Workflow: w,
		Hash:     crypto.DigestWithPrefix(data),
		Bytes:    data,
	}, nil
}
