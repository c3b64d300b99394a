package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"society-connect/domain"
	"society-connect/errors"
)

// PrincipalDirectory is a BadgerDB-backed implementation of the principal
// directory collaborator. The wider platform owns principal records; the
// relay reads identities and records last-seen transitions.
//
// Keys: "principal:{principal_id}".
type PrincipalDirectory struct {
	db  *badger.DB
	log *slog.Logger
}

func NewPrincipalDirectory(db *badger.DB, log *slog.Logger) PrincipalDirectory {
	return PrincipalDirectory{db: db, log: log}
}

type diskPrincipal struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Online      bool   `json:"online"`
	LastSeenNs  int64  `json:"last_seen_ns"`
}

func principalKey(id domain.PrincipalID) []byte {
	return []byte(fmt.Sprintf("principal:%s", id))
}

// Upsert writes a principal record. Used by platform seeding and tests.
func (d PrincipalDirectory) Upsert(_ context.Context, p domain.Principal) error {
	value, err := json.Marshal(diskPrincipal{
		ID:          string(p.ID),
		TenantID:    string(p.TenantID),
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
	})
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(principalKey(p.ID), value)
	})
}

func (d PrincipalDirectory) Lookup(_ context.Context, id domain.PrincipalID) (domain.Principal, error) {
	var raw []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(principalKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return domain.Principal{}, errors.ErrPrincipalNotFound
	}
	if err != nil {
		return domain.Principal{}, err
	}
	var disk diskPrincipal
	if err := json.Unmarshal(raw, &disk); err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{
		ID:          domain.PrincipalID(disk.ID),
		TenantID:    domain.TenantID(disk.TenantID),
		DisplayName: disk.DisplayName,
		AvatarRef:   disk.AvatarRef,
	}, nil
}

// SetOnline records the online flag and last-seen timestamp.
func (d PrincipalDirectory) SetOnline(_ context.Context, id domain.PrincipalID, online bool, at time.Time) error {
	return d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(principalKey(id))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var disk diskPrincipal
		if err := json.Unmarshal(raw, &disk); err != nil {
			return err
		}
		disk.Online = online
		disk.LastSeenNs = at.UnixNano()
		value, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(principalKey(id), value)
	})
}
