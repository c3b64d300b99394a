package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"society-connect/contract"
	"society-connect/domain"
	"society-connect/domain/event"
	"society-connect/errors"
	"society-connect/internal/metrics"
)

type IDeliveryService interface {
	Send(ctx context.Context, sender domain.Identity, cmd SendCommand) (domain.Message, error)
	MarkRead(ctx context.Context, reader domain.Identity, messageID uuid.UUID) (domain.Message, error)
	History(ctx context.Context, reader domain.Identity, counterpart domain.PrincipalID, since time.Time) ([]domain.Message, error)
	NotifyTyping(ctx context.Context, sender domain.Identity, to domain.PrincipalID, typing bool)
}

// SendCommand carries one message sending intent. MediaData, when the
// client inlines a small attachment preview, is only sniffed for its
// content type and never stored by the relay.
type SendCommand struct {
	To        domain.PrincipalID
	Body      string
	Media     *domain.MediaRef
	MediaData []byte
}

// DeliveryService is the message delivery pipeline: validate tenancy,
// persist first, then best-effort relay to the receiver's live sessions.
type DeliveryService struct {
	directory   contract.Directory
	store       contract.MessageStore
	registry    contract.Registry
	log         *slog.Logger
	sinkTimeout time.Duration
}

func NewDeliveryService(directory contract.Directory, store contract.MessageStore,
	registry contract.Registry, log *slog.Logger, sinkTimeout time.Duration) *DeliveryService {
	return &DeliveryService{
		directory:   directory,
		store:       store,
		registry:    registry,
		log:         log,
		sinkTimeout: sinkTimeout,
	}
}

// Send persists and relays one chat message.
//
// Validation happens before any side effect: an unknown receiver or a
// cross-tenant attempt is rejected with nothing written anywhere.
// Durability precedes delivery: the message is saved at status=sent
// before any relay, so a crash mid-relay can lose an event but never a
// message. Relay failures after a successful save are logged, not
// surfaced — the receiver recovers via the catch-up fetch.
func (s *DeliveryService) Send(ctx context.Context, sender domain.Identity, cmd SendCommand) (domain.Message, error) {
	receiver, err := s.directory.Lookup(ctx, cmd.To)
	if err != nil {
		return domain.Message{}, errors.ErrReceiverNotFound
	}
	if receiver.TenantID != sender.TenantID {
		return domain.Message{}, errors.ErrCrossTenant
	}

	media := cmd.Media
	if media != nil && media.ContentType == "" && len(cmd.MediaData) > 0 {
		media.ContentType = mimetype.Detect(cmd.MediaData).String()
	}

	message := domain.Message{
		ID:         uuid.New(),
		TenantID:   sender.TenantID,
		SenderID:   sender.PrincipalID,
		ReceiverID: receiver.ID,
		Body:       cmd.Body,
		Media:      media,
		CreatedAt:  time.Now().UTC(),
		Status:     domain.StatusSent,
	}

	if err := s.store.Save(ctx, message); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	metrics.MessagesPersisted.Inc()

	// Snapshot first, then act: the registry lock is already released
	// by the time any sink send happens.
	sinks := s.registry.SinksFor(message.TenantID, message.ReceiverID)
	if len(sinks) == 0 {
		metrics.MessagesOffline.Inc()
		return message, nil
	}

	received := event.MessageReceived{
		ID:        message.ID,
		From:      message.SenderID,
		Body:      message.Body,
		Media:     message.Media,
		Status:    domain.StatusDelivered,
		CreatedAt: message.CreatedAt,
	}
	for _, sk := range sinks {
		s.consume(ctx, sk, received, "chat message")
	}

	// "Delivered once any session receives it": the relay attempt to a
	// live connection set is what flips the status, not per-device acks.
	if err := s.store.UpdateStatus(ctx, message.TenantID, message.ID, domain.StatusDelivered); err != nil {
		// The message stays durably at sent; never an error to the caller
		// once persistence already succeeded.
		s.log.Error("failed to record delivered status",
			"message_id", message.ID.String(), "error", err)
		return message, nil
	}
	message.Status = domain.StatusDelivered
	metrics.MessagesDelivered.Inc()

	// The sender's other devices learn about the delivery asynchronously.
	statusEvt := event.MessageStatusChanged{ID: message.ID, Status: domain.StatusDelivered}
	for _, sk := range s.registry.SinksFor(message.TenantID, message.SenderID) {
		s.consume(ctx, sk, statusEvt, "delivered status")
	}

	return message, nil
}

// MarkRead transitions a message to read on behalf of its receiver.
// Marking an already-read message again is a no-op. If the original
// sender is connected it receives the status event immediately;
// otherwise it discovers the transition on its own next fetch.
func (s *DeliveryService) MarkRead(ctx context.Context, reader domain.Identity, messageID uuid.UUID) (domain.Message, error) {
	message, err := s.store.Get(ctx, reader.TenantID, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if message.ReceiverID != reader.PrincipalID {
		return domain.Message{}, errors.ErrReadNotAllowed
	}
	if message.Status == domain.StatusRead {
		return message, nil
	}

	if err := s.store.UpdateStatus(ctx, reader.TenantID, messageID, domain.StatusRead); err != nil {
		return domain.Message{}, err
	}
	message.Status = domain.StatusRead

	statusEvt := event.MessageStatusChanged{ID: messageID, Status: domain.StatusRead}
	for _, sk := range s.registry.SinksFor(message.TenantID, message.SenderID) {
		s.consume(ctx, sk, statusEvt, "read status")
	}
	return message, nil
}

// History is the catch-up fetch used after a reconnect to reconcile
// messages missed while offline. CreatedAt order is authoritative.
func (s *DeliveryService) History(ctx context.Context, reader domain.Identity,
	counterpart domain.PrincipalID, since time.Time) ([]domain.Message, error) {
	return s.store.FetchSince(ctx, reader.TenantID, reader.PrincipalID, counterpart, since)
}

// NotifyTyping relays a transient typing indicator. Nothing is validated
// beyond tenancy and nothing is stored; a dropped indicator is harmless.
func (s *DeliveryService) NotifyTyping(ctx context.Context, sender domain.Identity, to domain.PrincipalID, typing bool) {
	receiver, err := s.directory.Lookup(ctx, to)
	if err != nil || receiver.TenantID != sender.TenantID {
		return
	}
	evt := event.TypingNotice{From: sender.PrincipalID, Typing: typing}
	for _, sk := range s.registry.SinksFor(sender.TenantID, to) {
		s.consume(ctx, sk, evt, "typing notice")
	}
}

func (s *DeliveryService) consume(ctx context.Context, sk contract.EventSink, e event.Event, what string) {
	sendCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()
	if err := sk.Consume(sendCtx, e); err != nil {
		s.log.Debug(fmt.Sprintf("Relay of %s lost for one sink", what), "error", err)
	}
}
