package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/domain/event"
	"society-connect/errors"
	"society-connect/mocks"
)

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureSink) Consume(_ context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

var (
	tenantA = domain.TenantID("tenant-a")
	tenantB = domain.TenantID("tenant-b")
	alice   = domain.Identity{PrincipalID: "alice", TenantID: tenantA}
	bobID   = domain.PrincipalID("bob")
)

func bobPrincipal(tenant domain.TenantID) domain.Principal {
	return domain.Principal{ID: bobID, TenantID: tenant, DisplayName: "Bob"}
}

func TestDeliveryService_Send(t *testing.T) {
	t.Run("should deliver to every live session of the receiver", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		phone := &captureSink{}
		laptop := &captureSink{}

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
		registry.EXPECT().SinksFor(tenantA, bobID).
			Return([]contract.EventSink{phone, laptop})
		store.EXPECT().UpdateStatus(gomock.Any(), tenantA, gomock.Any(), domain.StatusDelivered).Return(nil)
		registry.EXPECT().SinksFor(tenantA, alice.PrincipalID).Return(nil)

		message, err := svc.Send(context.Background(), alice, SendCommand{To: bobID, Body: "Hello"})

		req.NoError(err)
		req.Equal(domain.StatusDelivered, message.Status)
		req.Equal(tenantA, message.TenantID)
		req.Len(phone.Events(), 1)
		req.Len(laptop.Events(), 1)

		received, ok := phone.Events()[0].(event.MessageReceived)
		req.True(ok)
		req.Equal(alice.PrincipalID, received.From)
		req.Equal("Hello", received.Body)
		req.Equal(domain.StatusDelivered, received.Status)
	})

	t.Run("should leave status at sent when receiver has no session", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
		registry.EXPECT().SinksFor(tenantA, bobID).Return(nil)
		// No delivered transition without a live session
		store.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		message, err := svc.Send(context.Background(), alice, SendCommand{To: bobID, Body: "Hi"})

		req.NoError(err)
		req.Equal(domain.StatusSent, message.Status)
	})

	t.Run("should reject cross tenant sends with zero side effects", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantB), nil)
		// The store is NEVER touched on a tenant violation
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Send(context.Background(), alice, SendCommand{To: bobID, Body: "leak?"})

		req.ErrorIs(err, errors.ErrCrossTenant)
	})

	t.Run("should reject unknown receivers before persistence", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).
			Return(domain.Principal{}, errors.ErrPrincipalNotFound)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Send(context.Background(), alice, SendCommand{To: bobID, Body: "hello?"})

		req.ErrorIs(err, errors.ErrReceiverNotFound)
	})

	t.Run("should surface persistence failure and never relay", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)
		registry.EXPECT().SinksFor(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Send(context.Background(), alice, SendCommand{To: bobID, Body: "lost?"})

		req.ErrorIs(err, errors.ErrPersistence)
	})

	t.Run("should keep status at sent when delivered update fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		bobSink := &captureSink{}
		directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantA), nil)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
		registry.EXPECT().SinksFor(tenantA, bobID).Return([]contract.EventSink{bobSink})
		store.EXPECT().UpdateStatus(gomock.Any(), tenantA, gomock.Any(), domain.StatusDelivered).
			Return(context.DeadlineExceeded)

		// Persistence already succeeded, so the caller sees no error:
		// the message is durably sent and recoverable via catch-up fetch.
		message, err := svc.Send(context.Background(), alice, SendCommand{To: bobID, Body: "Hello"})

		req.NoError(err)
		req.Equal(domain.StatusSent, message.Status)
	})
}

func TestDeliveryService_MarkRead(t *testing.T) {
	messageID := uuid.New()

	stored := func(status domain.MessageStatus) domain.Message {
		return domain.Message{
			ID:         messageID,
			TenantID:   tenantA,
			SenderID:   alice.PrincipalID,
			ReceiverID: bobID,
			Body:       "Hello",
			CreatedAt:  time.Now().UTC(),
			Status:     status,
		}
	}
	bob := domain.Identity{PrincipalID: bobID, TenantID: tenantA}

	t.Run("should mark read and notify a connected sender", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		aliceSink := &captureSink{}
		store.EXPECT().Get(gomock.Any(), tenantA, messageID).Return(stored(domain.StatusDelivered), nil)
		store.EXPECT().UpdateStatus(gomock.Any(), tenantA, messageID, domain.StatusRead).Return(nil)
		registry.EXPECT().SinksFor(tenantA, alice.PrincipalID).
			Return([]contract.EventSink{aliceSink})

		message, err := svc.MarkRead(context.Background(), bob, messageID)

		req.NoError(err)
		req.Equal(domain.StatusRead, message.Status)
		req.Len(aliceSink.Events(), 1)
		statusEvt, ok := aliceSink.Events()[0].(event.MessageStatusChanged)
		req.True(ok)
		req.Equal(domain.StatusRead, statusEvt.Status)
	})

	t.Run("should refuse readers that are not the receiver", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		store.EXPECT().Get(gomock.Any(), tenantA, messageID).Return(stored(domain.StatusDelivered), nil)
		store.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.MarkRead(context.Background(), alice, messageID)

		req.ErrorIs(err, errors.ErrReadNotAllowed)
	})

	t.Run("should be a no-op when already read", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		req := require.New(t)

		directory := mocks.NewMockDirectory(ctrl)
		store := mocks.NewMockMessageStore(ctrl)
		registry := mocks.NewMockRegistry(ctrl)
		svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

		store.EXPECT().Get(gomock.Any(), tenantA, messageID).Return(stored(domain.StatusRead), nil)
		store.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		message, err := svc.MarkRead(context.Background(), bob, messageID)

		req.NoError(err)
		req.Equal(domain.StatusRead, message.Status)
	})
}

func TestDeliveryService_NotifyTyping_Honors_Tenancy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	req := require.New(t)

	directory := mocks.NewMockDirectory(ctrl)
	store := mocks.NewMockMessageStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

	// Bob lives in another tenant: no sink is ever consulted
	directory.EXPECT().Lookup(gomock.Any(), bobID).Return(bobPrincipal(tenantB), nil)
	registry.EXPECT().SinksFor(gomock.Any(), gomock.Any()).Times(0)

	svc.NotifyTyping(context.Background(), alice, bobID, true)
	req.True(true) // the mock controller asserts the absence of calls
}

func TestDeliveryService_History_Delegates_To_Store(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	req := require.New(t)

	directory := mocks.NewMockDirectory(ctrl)
	store := mocks.NewMockMessageStore(ctrl)
	registry := mocks.NewMockRegistry(ctrl)
	svc := NewDeliveryService(directory, store, registry, slog.Default(), time.Second)

	since := time.Now().Add(-time.Hour).UTC()
	expected := []domain.Message{{ID: uuid.New(), Body: "Hi"}}
	store.EXPECT().FetchSince(gomock.Any(), tenantA, alice.PrincipalID, bobID, since).
		Return(expected, nil)

	messages, err := svc.History(context.Background(), alice, bobID, since)

	req.NoError(err)
	req.Equal(expected, messages)
}
