// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package ticket

import (
	"context"
	"sync"
	"time"
)

// Requester is the external authentication collaborator: a single batched
// request returns one ticket per requested kind.
type Requester interface {
	RequestTickets(ctx context.Context, cred Credential, kinds []Kind) ([]Ticket, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, cred Credential, kinds []Kind) ([]Ticket, error)

// RequestTickets satisfies the Requester interface.
func (f RequesterFunc) RequestTickets(ctx context.Context, cred Credential, kinds []Kind) ([]Ticket, error) {
	return f(ctx, cred, kinds)
}

type entry struct {
	tickets  map[Kind]Ticket
	deadline time.Time
}

// Manager caches ticket bundles per credential. It is an explicitly owned
// object created at client startup and torn down at client shutdown; there is
// no process-wide cache.
//
// Two simultaneous Authenticate calls for the same credential may race and
// issue two external requests; the cache write is last-writer-wins. That
// wastes a request but is never incorrect, because expiry is always rechecked
// per kind on use.
type Manager struct {
	requester Requester

	mu    sync.Mutex
	cache map[string]*entry

	ttl time.Duration
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets how long a cache entry survives before the sweep may remove
// it. The sweep is advisory cleanup, not a correctness mechanism.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a manager backed by the given requester.
func NewManager(r Requester, opt ...Option) *Manager {
	m := &Manager{
		requester: r,
		cache:     make(map[string]*entry),
		ttl:       24 * time.Hour,
		now:       time.Now,
	}
	for _, o := range opt {
		o(m)
	}
	return m
}

// Authenticate obtains the requested ticket kinds for the credential.
//
// If every requested kind is cached and unexpired, onSuccess is invoked
// synchronously before Authenticate returns (the callback convention is kept
// uniform so call sites do not need two paths); kinds that are merely close
// to expiry additionally trigger a background renewal that does not block the
// caller. Otherwise one batched request covering only the expired kinds is
// issued asynchronously, the results are written back to the cache, and only
// then is onSuccess invoked with every requested ticket.
//
// An in-flight request is not cancelable; its callback may fire into a stale
// context and callers must check session validity before acting on it.
func (m *Manager) Authenticate(ctx context.Context, cred Credential, kinds []Kind, onSuccess func([]Ticket), onError func(error)) {
	now := m.now()
	key := cred.cacheKey()

	m.mu.Lock()
	e := m.cache[key]
	var expired, renewable []Kind
	for _, k := range kinds {
		switch t, ok := cached(e, k); {
		case !ok || t.State(now) == Expired:
			expired = append(expired, k)
		case t.State(now) == WillExpireSoon:
			renewable = append(renewable, k)
		}
	}
	var have []Ticket
	if len(expired) == 0 {
		have = collect(e, kinds)
	}
	m.mu.Unlock()

	if len(expired) == 0 {
		if len(renewable) != 0 {
			go m.renew(ctx, cred, renewable)
		}
		onSuccess(have)
		return
	}

	go func() {
		tickets, err := m.requester.RequestTickets(ctx, cred, expired)
		if err != nil {
			onError(err)
			return
		}
		m.store(cred, tickets)

		m.mu.Lock()
		all := collect(m.cache[cred.cacheKey()], kinds)
		m.mu.Unlock()
		onSuccess(all)
	}()
}

// renew refreshes kinds that are close to expiry. Failures are ignored: the
// tickets are still usable and the next Authenticate will retry once they
// actually expire.
func (m *Manager) renew(ctx context.Context, cred Credential, kinds []Kind) {
	tickets, err := m.requester.RequestTickets(ctx, cred, kinds)
	if err != nil {
		return
	}
	m.store(cred, tickets)
}

// Ticket returns the cached ticket of the given kind regardless of expiry.
func (m *Manager) Ticket(cred Credential, kind Kind) (Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := cached(m.cache[cred.cacheKey()], kind)
	return t, ok
}

func (m *Manager) store(cred Credential, tickets []Ticket) {
	now := m.now()
	m.mu.Lock()
	key := cred.cacheKey()
	e := m.cache[key]
	if e == nil {
		e = &entry{tickets: make(map[Kind]Ticket)}
		m.cache[key] = e
	}
	for _, t := range tickets {
		e.tickets[t.Kind] = t
	}
	e.deadline = now.Add(m.ttl)
	m.sweepLocked(now)
	m.mu.Unlock()
}

// Sweep removes cache entries past their deletion deadline and returns how
// many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

func (m *Manager) sweepLocked(now time.Time) int {
	var removed int
	for key, e := range m.cache {
		if now.After(e.deadline) {
			delete(m.cache, key)
			removed++
		}
	}
	return removed
}

// Reset drops every cached ticket. It is used on sign-off.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.cache = make(map[string]*entry)
	m.mu.Unlock()
}

func cached(e *entry, k Kind) (Ticket, bool) {
	if e == nil {
		return Ticket{}, false
	}
	t, ok := e.tickets[k]
	return t, ok
}

func collect(e *entry, kinds []Kind) []Ticket {
	tickets := make([]Ticket, 0, len(kinds))
	for _, k := range kinds {
		if t, ok := cached(e, k); ok {
			tickets = append(tickets, t)
		}
	}
	return tickets
}
