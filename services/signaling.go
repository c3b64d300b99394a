package services

import (
	"context"
	"log/slog"
	"time"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/domain/event"
	"society-connect/errors"
	"society-connect/internal/metrics"
)

type ISignalingService interface {
	Relay(ctx context.Context, from domain.Identity, signal domain.Signal) error
}

// SignalingService relays call-setup packets between two tenant-matched
// principals. Unlike chat messages, signaling has no "deliver later"
// semantics: a stale offer or ICE candidate is meaningless once the call
// attempt has lapsed, so nothing is ever persisted.
type SignalingService struct {
	directory   contract.Directory
	registry    contract.Registry
	log         *slog.Logger
	sinkTimeout time.Duration
}

func NewSignalingService(directory contract.Directory, registry contract.Registry,
	log *slog.Logger, sinkTimeout time.Duration) *SignalingService {
	return &SignalingService{
		directory:   directory,
		registry:    registry,
		log:         log,
		sinkTimeout: sinkTimeout,
	}
}

// Relay forwards one signaling packet to every live session of the callee.
// offer/answer/ice with no live peer fail synchronously with ErrPeerOffline.
// end is fire-and-forget: delivered if the peer is connected, silently
// dropped otherwise — the caller has already hung up.
func (s *SignalingService) Relay(ctx context.Context, from domain.Identity, signal domain.Signal) error {
	peer, err := s.directory.Lookup(ctx, signal.To)
	if err != nil {
		if signal.Kind == domain.SignalEnd {
			return nil
		}
		return errors.ErrReceiverNotFound
	}
	if peer.TenantID != from.TenantID {
		// Tenant isolation holds for every kind, end included.
		return errors.ErrCrossTenant
	}

	sinks := s.registry.SinksFor(from.TenantID, signal.To)
	if len(sinks) == 0 {
		if signal.Kind == domain.SignalEnd {
			return nil
		}
		metrics.SignalsPeerOffline.Inc()
		return errors.ErrPeerOffline
	}

	evt := event.CallSignal{
		From:    from.PrincipalID,
		Kind:    signal.Kind,
		Payload: signal.Payload,
	}
	for _, sk := range sinks {
		sendCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
		if err := sk.Consume(sendCtx, evt); err != nil {
			s.log.Debug("call signal lost for one sink",
				"kind", string(signal.Kind), "error", err)
		}
		cancel()
	}
	metrics.SignalsRelayed.Inc()
	return nil
}
