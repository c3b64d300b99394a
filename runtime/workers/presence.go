package workers

import (
	"context"
	"log/slog"
	"time"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/domain/event"
	"society-connect/internal/metrics"
	"society-connect/runtime"
)

// snapshotter is the slice of the registry the presence worker needs:
// a copied list of sinks to fan out to, taken without holding any lock
// during delivery.
type snapshotter interface {
	TenantSinks(tenant domain.TenantID, except domain.PrincipalID) []contract.EventSink
}

// PresenceWorker turns registry 0/1-edge transitions into tenant-scoped
// PresenceChanged events. The registry already suppresses transitions
// when other sessions remain, so every received transition is fanned out.
// Presence is never persisted.
type PresenceWorker struct {
	log         *slog.Logger
	registry    snapshotter
	transitions <-chan runtime.Transition
	sinkTimeout time.Duration
}

func NewPresenceWorker(log *slog.Logger, registry snapshotter,
	transitions <-chan runtime.Transition, sinkTimeout time.Duration) *PresenceWorker {
	return &PresenceWorker{
		log:         log,
		registry:    registry,
		transitions: transitions,
		sinkTimeout: sinkTimeout,
	}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence fan-out")
			return nil
		case t, ok := <-w.transitions:
			if !ok {
				return nil
			}
			w.broadcast(ctx, t)
		}
	}
}

// broadcast fans one transition out to every other connected principal
// of the same tenant. The snapshot is taken before any send, so a slow
// sink never blocks the registry.
func (w *PresenceWorker) broadcast(ctx context.Context, t runtime.Transition) {
	sinks := w.registry.TenantSinks(t.TenantID, t.PrincipalID)
	if len(sinks) == 0 {
		return
	}
	metrics.PresenceEvents.Inc()

	evt := event.PresenceChanged{
		PrincipalID: t.PrincipalID,
		Online:      t.Online,
		At:          t.At,
	}
	for _, sink := range sinks {
		sendCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sendCtx, evt); err != nil {
			w.log.Debug("presence event lost for one sink",
				"principal_id", string(t.PrincipalID),
				"error", err)
		}
		cancel()
	}
}
