// Package runtime owns the shared state of the relay: which sessions are
// live, and the workers that react to changes in that state.
package runtime

import (
	"log/slog"
	"sync"
	"time"

	"society-connect/contract"
	"society-connect/domain"
)

// Transition is emitted whenever a principal's connection count crosses
// the 0/1 edge. It is the only artifact that ever leaves the registry.
type Transition struct {
	PrincipalID domain.PrincipalID
	TenantID    domain.TenantID
	Online      bool
	At          time.Time
}

// bucket holds one tenant's live sessions. Each bucket carries its own
// lock so one tenant's churn never contends with another's.
type bucket struct {
	mu       sync.RWMutex
	sessions map[domain.PrincipalID]map[domain.SessionID]contract.EventSink
}

// Registry is the single authoritative owner of connection state.
// The 0/1-edge decision is taken under the bucket lock, so two concurrent
// unregisters of a principal's last sessions produce exactly one offline
// transition. No lock is ever held across I/O: every read returns a copy.
type Registry struct {
	mu          sync.RWMutex
	buckets     map[domain.TenantID]*bucket
	transitions chan Transition
	log         *slog.Logger
}

func NewRegistry(log *slog.Logger, transitionBuffer int) *Registry {
	return &Registry{
		buckets:     make(map[domain.TenantID]*bucket),
		transitions: make(chan Transition, transitionBuffer),
		log:         log,
	}
}

// Transitions exposes the 0/1-edge stream consumed by the presence worker.
func (r *Registry) Transitions() <-chan Transition {
	return r.transitions
}

func (r *Registry) tenant(id domain.TenantID) *bucket {
	r.mu.RLock()
	b, ok := r.buckets[id]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[id]; ok {
		return b
	}
	b = &bucket{sessions: make(map[domain.PrincipalID]map[domain.SessionID]contract.EventSink)}
	r.buckets[id] = b
	return b
}

// Register adds a live session. Registering an already-tracked
// (principal, session) pair is idempotent. Returns true only on the
// 0 -> 1 edge for the principal.
func (r *Registry) Register(c domain.Connection, sink contract.EventSink) bool {
	b := r.tenant(c.TenantID)

	b.mu.Lock()
	set, ok := b.sessions[c.PrincipalID]
	if !ok {
		set = make(map[domain.SessionID]contract.EventSink)
		b.sessions[c.PrincipalID] = set
	}
	wasOffline := len(set) == 0
	set[c.SessionID] = sink
	b.mu.Unlock()

	if wasOffline {
		r.emit(Transition{
			PrincipalID: c.PrincipalID,
			TenantID:    c.TenantID,
			Online:      true,
			At:          c.ConnectedAt,
		})
	}
	return wasOffline
}

// Unregister drops one session. Returns true only when the principal's
// last session was removed; removing an unknown session is a no-op.
func (r *Registry) Unregister(tenant domain.TenantID, principal domain.PrincipalID, session domain.SessionID) bool {
	b := r.tenant(tenant)

	b.mu.Lock()
	set, ok := b.sessions[principal]
	if !ok {
		b.mu.Unlock()
		return false
	}
	if _, tracked := set[session]; !tracked {
		b.mu.Unlock()
		return false
	}
	delete(set, session)
	wentOffline := len(set) == 0
	if wentOffline {
		// No empty sets left behind, so presence stays derivable
		// from map membership alone.
		delete(b.sessions, principal)
	}
	b.mu.Unlock()

	if wentOffline {
		r.emit(Transition{
			PrincipalID: principal,
			TenantID:    tenant,
			Online:      false,
			At:          time.Now().UTC(),
		})
	}
	return wentOffline
}

// SessionsFor returns a copy of the principal's live session ids.
func (r *Registry) SessionsFor(tenant domain.TenantID, principal domain.PrincipalID) []domain.SessionID {
	b := r.tenant(tenant)

	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.sessions[principal]
	if !ok {
		return nil
	}
	out := make([]domain.SessionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// PrincipalsInTenant returns every principal with at least one live session.
func (r *Registry) PrincipalsInTenant(tenant domain.TenantID) []domain.PrincipalID {
	b := r.tenant(tenant)

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.PrincipalID, 0, len(b.sessions))
	for id := range b.sessions {
		out = append(out, id)
	}
	return out
}

// SinksFor snapshots the principal's session sinks. Callers relay to the
// returned slice after the lock is released, never under it.
func (r *Registry) SinksFor(tenant domain.TenantID, principal domain.PrincipalID) []contract.EventSink {
	b := r.tenant(tenant)

	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.sessions[principal]
	if !ok {
		return nil
	}
	out := make([]contract.EventSink, 0, len(set))
	for _, sink := range set {
		out = append(out, sink)
	}
	return out
}

// TenantSinks snapshots every sink in the tenant except those belonging
// to the excluded principal. Used for tenant-wide presence fan-out.
func (r *Registry) TenantSinks(tenant domain.TenantID, except domain.PrincipalID) []contract.EventSink {
	b := r.tenant(tenant)

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []contract.EventSink
	for principal, set := range b.sessions {
		if principal == except {
			continue
		}
		for _, sink := range set {
			out = append(out, sink)
		}
	}
	return out
}

// emit hands a transition to the presence worker without blocking the
// registry. Presence is best-effort: under extreme backlog a transition
// is dropped rather than stalling connects and disconnects.
func (r *Registry) emit(t Transition) {
	select {
	case r.transitions <- t:
	default:
		r.log.Warn("presence transition dropped, channel full",
			"principal_id", string(t.PrincipalID),
			"tenant_id", string(t.TenantID),
			"online", t.Online)
	}
}
