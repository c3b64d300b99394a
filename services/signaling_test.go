package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/domain/event"
	"society-connect/errors"
	"society-connect/mocks"
)

func offer(to domain.PrincipalID) domain.Signal {
	return domain.Signal{
		From:    alice.PrincipalID,
		To:      to,
		Kind:    domain.SignalOffer,
		Payload: json.RawMessage(`{"sdp":"v=0"}`),
	}
}

func TestSignalingService_Relay(t *testing.T) {
	t.Run("should forward an offer to every session of the callee", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewSignalingService(directory, registry, slog.Default(), time.Second)

		bobSink := &captureSink{}
		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		registry.EXPECT().SinksFor(tenantA, bobID).Return([]contract.EventSink{bobSink})

		err := svc.Relay(context.Background(), alice, offer(bobID))

		req.NoError(err)
		req.Len(bobSink.Events(), 1)
		signal, ok := bobSink.Events()[0].(event.CallSignal)
		req.True(ok)
		req.Equal(domain.SignalOffer, signal.Kind)
		req.Equal(alice.PrincipalID, signal.From)
	})

	t.Run("should reject an offer synchronously when the peer is offline", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewSignalingService(directory, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		registry.EXPECT().SinksFor(tenantA, bobID).Return(nil)

		err := svc.Relay(context.Background(), alice, offer(bobID))

		// Signaling has no deliver-later semantics: nothing is queued
		req.ErrorIs(err, errors.ErrPeerOffline)
	})

	t.Run("should enforce the tenant boundary for every kind", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewSignalingService(directory, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantB), nil).Times(2)
		registry.EXPECT().SinksFor(gomock.Any(), gomock.Any()).Times(0)

		req.ErrorIs(svc.Relay(context.Background(), alice, offer(bobID)), errors.ErrCrossTenant)

		end := offer(bobID)
		end.Kind = domain.SignalEnd
		req.ErrorIs(svc.Relay(context.Background(), alice, end), errors.ErrCrossTenant)
	})

	t.Run("should silently drop an end event for an offline peer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewSignalingService(directory, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		registry.EXPECT().SinksFor(tenantA, bobID).Return(nil)

		end := offer(bobID)
		end.Kind = domain.SignalEnd
		err := svc.Relay(context.Background(), alice, end)

		// The caller has already hung up; no error is surfaced
		req.NoError(err)
	})
}
