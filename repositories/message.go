package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"society-connect/domain"
	"society-connect/errors"
)

// MessageRepository persists chat messages in BadgerDB.
//
// The primary key is "msg:{tenant}:{conversation}:{timestamp_padded}:{uuid}":
//  1. The tenant prefix keeps every scan inside one tenant.
//  2. The conversation segment is the ordered principal pair, so both
//     directions of a dialogue land under one prefix.
//  3. 19-digit zero padding makes lexicographic order chronological.
//  4. The UUID disambiguates two messages in the same nanosecond.
//
// A secondary "idx:{tenant}:{uuid}" record points at the primary key so
// status updates can locate a message by id alone.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	SenderID    string `json:"sender_id"`
	ReceiverID  string `json:"receiver_id"`
	Body        string `json:"body"`
	MediaURL    string `json:"media_url,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
	CreatedAtNs int64  `json:"created_at_ns"`
	Status      string `json:"status"`
}

// conversationKey orders the two principal ids so A->B and B->A share
// one conversation prefix.
func conversationKey(a, b domain.PrincipalID) string {
	if strings.Compare(string(a), string(b)) > 0 {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s", a, b)
}

func primaryKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s:%019d:%s",
		m.TenantID,
		conversationKey(m.SenderID, m.ReceiverID),
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func indexKey(tenant domain.TenantID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idx:%s:%s", tenant, id))
}

// Save persists the message and its id index in a single transaction.
func (m MessageRepository) Save(_ context.Context, message domain.Message) error {
	value, err := json.Marshal(fromDomain(message))
	if err != nil {
		return err
	}
	key := primaryKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(message.TenantID, message.ID), key)
	})
}

// Get resolves a message by id through the index record.
func (m MessageRepository) Get(_ context.Context, tenant domain.TenantID, id uuid.UUID) (domain.Message, error) {
	var raw []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(tenant, id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return unmarshalMessage(raw)
}

// UpdateStatus advances a message along the sent -> delivered -> read
// lattice. Writing the same status again is a no-op; any backwards move
// is rejected, so a late "delivered" can never undo a "read".
func (m MessageRepository) UpdateStatus(_ context.Context, tenant domain.TenantID, id uuid.UUID, status domain.MessageStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(tenant, id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var disk diskMessage
		if err := json.Unmarshal(raw, &disk); err != nil {
			return err
		}
		current := domain.MessageStatus(disk.Status)
		if current == status {
			return nil
		}
		if !current.CanAdvance(status) {
			return errors.ErrStatusRegression
		}
		disk.Status = string(status)
		value, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrMessageNotFound
	}
	return err
}

// FetchSince is the catch-up read: every message of the conversation
// strictly after the given instant, oldest first. Thanks to the padded
// timestamp in the key, a forward prefix scan returns them already sorted.
func (m MessageRepository) FetchSince(_ context.Context, tenant domain.TenantID,
	principal, counterpart domain.PrincipalID, since time.Time) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:%s:", tenant, conversationKey(principal, counterpart)))
	seekKey := append(append([]byte{}, prefix...),
		[]byte(fmt.Sprintf("%019d", since.UnixNano()+1))...)

	var rawMessages [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rawMessages = append(rawMessages, raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(rawMessages))
	for _, raw := range rawMessages {
		message, err := unmarshalMessage(raw)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func unmarshalMessage(raw []byte) (domain.Message, error) {
	var disk diskMessage
	if err := json.Unmarshal(raw, &disk); err != nil {
		return domain.Message{}, err
	}
	return toDomain(disk)
}

func fromDomain(m domain.Message) diskMessage {
	disk := diskMessage{
		ID:          m.ID.String(),
		TenantID:    string(m.TenantID),
		SenderID:    string(m.SenderID),
		ReceiverID:  string(m.ReceiverID),
		Body:        m.Body,
		CreatedAtNs: m.CreatedAt.UnixNano(),
		Status:      string(m.Status),
	}
	if m.Media != nil {
		disk.MediaURL = m.Media.URL
		disk.MediaType = m.Media.ContentType
	}
	return disk
}

func toDomain(disk diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:         parsedID,
		TenantID:   domain.TenantID(disk.TenantID),
		SenderID:   domain.PrincipalID(disk.SenderID),
		ReceiverID: domain.PrincipalID(disk.ReceiverID),
		Body:       disk.Body,
		CreatedAt:  time.Unix(0, disk.CreatedAtNs).UTC(),
		Status:     domain.MessageStatus(disk.Status),
	}
	if disk.MediaURL != "" || disk.MediaType != "" {
		message.Media = lo.ToPtr(domain.MediaRef{URL: disk.MediaURL, ContentType: disk.MediaType})
	}
	return message, nil
}
