package phase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/provara/provara/internal/gate"
	"github.com/provara/provara/internal/ledger"
	"github.com/provara/provara/pkg/types"
)

var nowFn = func() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Audit actions appended to the ledger by the machine.
const (
	ActionTransition        = "phase_transition"
	ActionTransitionRefused = "transition_refused"
	ActionGateEvaluated     = "gate_evaluated"
)

// Config assembles a machine. Ledger is required: dispatch is not
// complete until its audit record is durably appended. A nil Registry
// defaults to the builtin validators.
type Config struct {
	ProjectID string
	RunID     string
	Workflow  Workflow
	Gates     []types.Gate
	Registry  *gate.Registry
	Ledger    *ledger.Ledger
}

// Machine serializes phase progression for one project run. It owns the
// current phase and the parallel monitor map; gate evaluation is
// delegated to stateless functions over a ledger evidence snapshot.
type Machine struct {
	mu       sync.Mutex
	cfg      Config
	table    map[types.Phase]map[string]types.Phase
	current  types.Phase
	history  []types.StateTransition
	parallel map[string]types.ParallelState
	topics   map[string][]string
	subs     []func(types.StateTransition)
}

func New(cfg Config) (*Machine, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("machine requires a project id")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("machine requires a ledger")
	}
	if err := cfg.Workflow.Validate(); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		cfg.Registry = gate.Builtins()
	}

	table := make(map[types.Phase]map[string]types.Phase)
	for _, tr := range cfg.Workflow.Transitions {
		if table[tr.From] == nil {
			table[tr.From] = make(map[string]types.Phase)
		}
		table[tr.From][tr.Event] = tr.To
	}

	parallel := make(map[string]types.ParallelState, len(cfg.Workflow.Parallel))
	topics := make(map[string][]string, len(cfg.Workflow.Parallel))
	for _, spec := range cfg.Workflow.Parallel {
		parallel[spec.Name] = types.ParallelState{Name: spec.Name, Status: types.ParallelActive}
		topics[spec.Name] = spec.Topics
	}

	return &Machine{
		cfg:      cfg,
		table:    table,
		current:  cfg.Workflow.Initial,
		parallel: parallel,
		topics:   topics,
	}, nil
}

func (m *Machine) Current() types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the transition log, oldest first.
func (m *Machine) History() []types.StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.StateTransition, len(m.history))
	copy(out, m.history)
	return out
}

// ParallelStates returns the monitor map as a name-sorted slice.
func (m *Machine) ParallelStates() []types.ParallelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ParallelState, 0, len(m.parallel))
	for _, st := range m.parallel {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Can reports whether event has a transition from the current phase.
func (m *Machine) Can(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table[m.current][event]
	return ok
}

// AvailableTransitions lists the events valid from the current phase,
// sorted for stable output.
func (m *Machine) AvailableTransitions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]string, 0, len(m.table[m.current]))
	for ev := range m.table[m.current] {
		events = append(events, ev)
	}
	sort.Strings(events)
	return events
}

// Subscribe registers a callback invoked synchronously after each
// successful transition.
func (m *Machine) Subscribe(fn func(types.StateTransition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Dispatch applies event from the current phase. The gates guarding the
// target phase are evaluated against the project's ledger evidence;
// every evaluation is appended to the ledger as a durable audit record,
// but only a blocking gate's failure refuses the transition. Refusals
// (policy or invalid event) are audited too and leave the phase
// unchanged.
func (m *Machine) Dispatch(event, actor string) (types.StateTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.table[m.current][event]
	if !ok {
		invErr := &InvalidTransitionError{From: m.current, Event: event}
		if _, err := m.appendRefusal(event, actor, "invalid_transition", invErr.Error()); err != nil {
			return types.StateTransition{}, err
		}
		return types.StateTransition{}, invErr
	}

	evidence, err := m.cfg.Ledger.Evidence(m.cfg.ProjectID)
	if err != nil {
		return types.StateTransition{}, err
	}

	var evidenceIDs []string
	seen := map[string]struct{}{}
	for _, g := range gate.ForPhase(m.cfg.Gates, string(target)) {
		result, evalErr := gate.Evaluate(g, evidence, m.cfg.Registry, nowFn())
		if err := m.appendGateResult(result, actor); err != nil {
			return types.StateTransition{}, err
		}
		if evalErr != nil {
			if _, err := m.appendRefusal(event, actor, "gate_error", evalErr.Error()); err != nil {
				return types.StateTransition{}, err
			}
			return types.StateTransition{}, evalErr
		}
		for _, id := range result.EvidenceIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			evidenceIDs = append(evidenceIDs, id)
		}
		if g.Blocking && result.Status != types.GatePassed {
			violation := &PolicyViolationError{GateID: g.GateID, Phase: target, Result: result}
			if _, err := m.appendRefusal(event, actor, "policy_violation", violation.Error()); err != nil {
				return types.StateTransition{}, err
			}
			return types.StateTransition{}, violation
		}
	}

	tr := types.StateTransition{
		From:        m.current,
		To:          target,
		Event:       event,
		Actor:       actor,
		EvidenceIDs: evidenceIDs,
		CreatedAt:   nowFn(),
	}
	if err := m.appendTransition(tr); err != nil {
		return types.StateTransition{}, err
	}

	m.current = target
	m.history = append(m.history, tr)
	m.refreshParallel(event, tr.CreatedAt)
	for _, fn := range m.subs {
		fn(tr)
	}
	return tr, nil
}

// refreshParallel touches every monitor whose topic list matches the
// event name. Monitors never gate the transition itself.
func (m *Machine) refreshParallel(event, at string) {
	for name, topicList := range m.topics {
		for _, topic := range topicList {
			if !strings.Contains(event, topic) {
				continue
			}
			st := m.parallel[name]
			st.LastCheckAt = at
			m.parallel[name] = st
			break
		}
	}
}

// SetParallelStatus updates one monitor's status, for operators pausing
// a monitor or surfacing a monitor-side error.
func (m *Machine) SetParallelStatus(name string, status types.ParallelStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.parallel[name]
	if !ok {
		return fmt.Errorf("unknown parallel state: %s", name)
	}
	st.Status = status
	st.LastCheckAt = nowFn()
	m.parallel[name] = st
	return nil
}

func (m *Machine) appendTransition(tr types.StateTransition) error {
	_, err := m.cfg.Ledger.AppendAudit(m.cfg.ProjectID, m.cfg.RunID, types.AuditEvent{
		Actor:    tr.Actor,
		Action:   ActionTransition,
		Resource: tr.Event,
		Phase:    string(tr.To),
		Metadata: map[string]string{
			"from": string(tr.From),
			"to":   string(tr.To),
		},
	})
	return err
}

func (m *Machine) appendRefusal(event, actor, reason, detail string) (ledger.Record, error) {
	return m.cfg.Ledger.AppendAudit(m.cfg.ProjectID, m.cfg.RunID, types.AuditEvent{
		Actor:    actor,
		Action:   ActionTransitionRefused,
		Resource: event,
		Phase:    string(m.current),
		Metadata: map[string]string{
			"reason": reason,
			"detail": detail,
		},
	})
}

func (m *Machine) appendGateResult(result types.GateResult, actor string) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = m.cfg.Ledger.AppendAudit(m.cfg.ProjectID, m.cfg.RunID, types.AuditEvent{
		Actor:    actor,
		Action:   ActionGateEvaluated,
		Resource: result.GateID,
		Phase:    result.Phase,
		Metadata: map[string]string{
			"status": string(result.Status),
			"result": string(encoded),
		},
	})
	return err
}
