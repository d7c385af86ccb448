package persistence

import (
	"context"

	"github.com/aristath/foreman/internal/events"
	"github.com/aristath/foreman/internal/logging"
)

// Relay copies health alerts off the event bus into the store as they
// happen, so alerts survive even when a run is interrupted before its
// summary is written.
type Relay struct {
	runID string
	store Store
	log   logging.Logger
}

// NewRelay creates a Relay for one run.
func NewRelay(runID string, store Store, log logging.Logger) *Relay {
	if log == nil {
		log = logging.Nop{}
	}
	return &Relay{runID: runID, store: store, log: log}
}

// Run consumes the subscription until it closes or the context is
// cancelled. Store errors are logged and skipped; persistence never
// stalls the run.
func (r *Relay) Run(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			alert, isAlert := ev.(events.HealthAlertEvent)
			if !isAlert {
				continue
			}
			record := &Alert{
				RunID:     r.runID,
				AgentID:   alert.AgentID,
				AgentName: alert.AgentName,
				Reason:    alert.Reason,
				CreatedAt: alert.Timestamp,
			}
			if err := r.store.SaveAlert(ctx, record); err != nil {
				r.log.Error("persist alert for agent %d: %v", alert.AgentID, err)
			}
		}
	}
}
