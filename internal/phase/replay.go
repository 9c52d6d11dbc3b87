package phase

import (
	"github.com/provara/provara/internal/ledger"
	"github.com/provara/provara/pkg/types"
)

// Restore builds a machine and replays the project's recorded
// transitions from the ledger, so a fresh process resumes at the phase
// the last one reached. Refused transitions are audit-only and do not
// move the replayed machine.
func Restore(cfg Config) (*Machine, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}

	records, err := cfg.Ledger.List(cfg.ProjectID, nil)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if rec.PayloadKind != ledger.PayloadAudit {
			continue
		}
		event, err := rec.DecodeAudit()
		if err != nil {
			return nil, err
		}
		if event.Action != ActionTransition {
			continue
		}
		tr := types.StateTransition{
			From:      types.Phase(event.Metadata["from"]),
			To:        types.Phase(event.Metadata["to"]),
			Event:     event.Resource,
			Actor:     event.Actor,
			CreatedAt: rec.CreatedAt,
		}
		m.current = tr.To
		m.history = append(m.history, tr)
		m.refreshParallel(tr.Event, tr.CreatedAt)
	}
	return m, nil
}
