package boot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/lifeline/internal/domain"
	"github.com/bft-labs/lifeline/internal/ports"
)

type missingInputsRequest struct {
	InstanceID string              `json:"instance_id"`
	Missing    map[string][]string `json:"missing"`
}

// inputsWaiter polls the coordinator until every executable of the boot
// bundle has its inputs resolved.
//
// A "waiting" audit line is written when the set of missing inputs changed or
// when window elapsed since the last one, so an unchanged wait does not flood
// the audit.
type inputsWaiter struct {
	seq      *Sequencer
	audit    domain.Audit
	interval time.Duration
	window   time.Duration

	lastAudit time.Time
	lastKey   string
	polls     int
}

func (w *inputsWaiter) wait(ctx context.Context, bundle *domain.Bundle) error {
	clk := w.seq.deps.Clock
	for !bundle.Ready() {
		missing := bundle.MissingInputs()
		w.report(missing)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(w.interval):
		}

		w.polls++
		resolutions, err := request[[]domain.InputResolution](w.seq, ports.TargetMissingInputs, missingInputsRequest{
			InstanceID: w.seq.cfg.InstanceID,
			Missing:    missing,
		}, w.seq.bounded()).Result(ctx)
		if err != nil {
			return fmt.Errorf("fetch missing inputs: %w", err)
		}
		bundle.Apply(resolutions)
	}

	if w.polls > 0 {
		w.audit.Info("all inputs resolved")
	}
	return nil
}

func (w *inputsWaiter) report(missing map[string][]string) {
	now := w.seq.deps.Clock.Now()
	key := missingKey(missing)
	if !w.lastAudit.IsZero() && key == w.lastKey && now.Sub(w.lastAudit) < w.window {
		return
	}
	w.lastAudit = now
	w.lastKey = key

	w.seq.deps.Logger.Info("waiting for missing inputs", ports.String("missing", key))
	w.audit.Info("waiting for inputs: " + key)
}

// missingKey renders the missing set deterministically, e.g.
// "db: host, port; web: url".
func missingKey(missing map[string][]string) string {
	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+strings.Join(missing[id], ", "))
	}
	return strings.Join(parts, "; ")
}
