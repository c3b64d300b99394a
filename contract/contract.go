//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"society-connect/domain"
	"society-connect/domain/event"
)

// EventSink is one consumer of relayed events, usually the outbound side
// of a live transport session. Consume must not block indefinitely;
// implementations enforce their own timeout.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Registry tracks live transport sessions per principal and per tenant.
// It is the only shared mutable state in the relay.
type Registry interface {
	Register(c domain.Connection, sink EventSink) (newlyOnline bool)
	Unregister(tenant domain.TenantID, principal domain.PrincipalID, session domain.SessionID) (wentOffline bool)
	SessionsFor(tenant domain.TenantID, principal domain.PrincipalID) []domain.SessionID
	PrincipalsInTenant(tenant domain.TenantID) []domain.PrincipalID
	SinksFor(tenant domain.TenantID, principal domain.PrincipalID) []EventSink
	TenantSinks(tenant domain.TenantID, except domain.PrincipalID) []EventSink
}

// Directory is the principal directory collaborator. The relay only ever
// reads identities from it and records last-seen transitions.
type Directory interface {
	Lookup(ctx context.Context, id domain.PrincipalID) (domain.Principal, error)
	SetOnline(ctx context.Context, id domain.PrincipalID, online bool, at time.Time) error
}

// MessageStore is the persistence collaborator for chat messages.
// FetchSince is the catch-up read clients issue after a reconnect.
type MessageStore interface {
	Save(ctx context.Context, m domain.Message) error
	Get(ctx context.Context, tenant domain.TenantID, id uuid.UUID) (domain.Message, error)
	UpdateStatus(ctx context.Context, tenant domain.TenantID, id uuid.UUID, status domain.MessageStatus) error
	FetchSince(ctx context.Context, tenant domain.TenantID, principal, counterpart domain.PrincipalID, since time.Time) ([]domain.Message, error)
}

type WorkerName string

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type Supervisor interface {
	Add(worker ...Worker) Supervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without forcing a naming method on
// every Worker implementation.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
