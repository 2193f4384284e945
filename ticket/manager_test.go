// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package ticket_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mellium.im/msnp/ticket"
)

var epoch = time.Date(2012, time.October, 1, 0, 0, 0, 0, time.UTC)

func TestExpiryState(t *testing.T) {
	for i, tc := range [...]struct {
		expires time.Duration
		state   ticket.ExpiryState
	}{
		0: {-time.Second, ticket.Expired},
		1: {0, ticket.Expired},
		2: {30 * time.Second, ticket.WillExpireSoon},
		3: {time.Hour, ticket.NotExpired},
		4: {time.Minute, ticket.NotExpired},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			tk := ticket.Ticket{Expires: epoch.Add(tc.expires)}
			if s := tk.State(epoch); s != tc.state {
				t.Errorf("Got state %v but expected %v", s, tc.state)
			}
		})
	}
}

type countingRequester struct {
	mu    sync.Mutex
	calls [][]ticket.Kind
	err   error
	ttl   time.Duration
	now   func() time.Time
}

func (r *countingRequester) RequestTickets(_ context.Context, _ ticket.Credential, kinds []ticket.Kind) ([]ticket.Ticket, error) {
	r.mu.Lock()
	r.calls = append(r.calls, kinds)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	tickets := make([]ticket.Ticket, 0, len(kinds))
	for _, k := range kinds {
		tickets = append(tickets, ticket.Ticket{
			Kind:    k,
			Token:   "t&p=" + k.Domain(),
			Secret:  "secret",
			Created: r.now(),
			Expires: r.now().Add(r.ttl),
		})
	}
	return tickets, nil
}

func (r *countingRequester) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestAuthenticateCachedSynchronous(t *testing.T) {
	cred := ticket.Credential{Account: "me@example.net", Password: "hunter2"}
	req := &countingRequester{ttl: time.Hour, now: func() time.Time { return epoch }}
	m := ticket.NewManager(req, ticket.WithClock(func() time.Time { return epoch }))

	kinds := []ticket.Kind{ticket.KindClear, ticket.KindContacts}
	done := make(chan []ticket.Ticket, 1)
	m.Authenticate(context.Background(), cred, kinds, func(tk []ticket.Ticket) { done <- tk }, func(err error) { t.Errorf("auth failed: %v", err) })
	select {
	case tickets := <-done:
		if len(tickets) != 2 {
			t.Fatalf("Got %d tickets but expected 2", len(tickets))
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the first authentication")
	}
	if req.callCount() != 1 {
		t.Fatalf("Got %d external calls but expected 1", req.callCount())
	}

	// All requested kinds are now cached and far from expiry: the success
	// callback must run synchronously with no further external calls.
	var sync bool
	m.Authenticate(context.Background(), cred, kinds, func([]ticket.Ticket) { sync = true }, func(err error) { t.Errorf("auth failed: %v", err) })
	if !sync {
		t.Error("Expected a synchronous success callback from the cache")
	}
	if req.callCount() != 1 {
		t.Errorf("Got %d external calls but expected the cache to answer", req.callCount())
	}
}

func TestAuthenticateRequestsOnlyExpired(t *testing.T) {
	now := epoch
	clock := func() time.Time { return now }
	cred := ticket.Credential{Account: "me@example.net", Password: "hunter2"}
	req := &countingRequester{ttl: time.Hour, now: clock}
	m := ticket.NewManager(req, ticket.WithClock(clock))

	// Prime the cache with a long lived clear ticket and a short lived
	// contacts ticket.
	req.ttl = 3 * time.Hour
	prime := make(chan struct{})
	m.Authenticate(context.Background(), cred, []ticket.Kind{ticket.KindClear},
		func([]ticket.Ticket) { close(prime) }, func(err error) { t.Errorf("auth failed: %v", err) })
	<-prime
	req.ttl = time.Hour
	prime = make(chan struct{})
	m.Authenticate(context.Background(), cred, []ticket.Kind{ticket.KindContacts},
		func([]ticket.Ticket) { close(prime) }, func(err error) { t.Errorf("auth failed: %v", err) })
	<-prime

	// Two hours later the contacts ticket is expired but the clear ticket is
	// still usable; the batched request must cover only the expired kind.
	now = now.Add(2 * time.Hour)
	renew := make(chan struct{})
	m.Authenticate(context.Background(), cred, []ticket.Kind{ticket.KindClear, ticket.KindContacts},
		func([]ticket.Ticket) { close(renew) }, func(err error) { t.Errorf("auth failed: %v", err) })
	<-renew

	req.mu.Lock()
	defer req.mu.Unlock()
	if len(req.calls) != 3 {
		t.Fatalf("Got %d external calls but expected 3", len(req.calls))
	}
	if len(req.calls[2]) != 1 || req.calls[2][0] != ticket.KindContacts {
		t.Fatalf("Got batched kinds %v but expected only the expired contacts kind", req.calls[2])
	}
}

func TestAuthenticateError(t *testing.T) {
	wantErr := errors.New("ticket_test: sso unavailable")
	req := &countingRequester{ttl: time.Hour, now: func() time.Time { return epoch }, err: wantErr}
	m := ticket.NewManager(req, ticket.WithClock(func() time.Time { return epoch }))

	done := make(chan error, 1)
	m.Authenticate(context.Background(), ticket.Credential{Account: "me@example.net"}, []ticket.Kind{ticket.KindClear},
		func([]ticket.Ticket) { t.Error("unexpected success") }, func(err error) { done <- err })
	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Got %v but expected %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the error callback")
	}
}

func TestSweep(t *testing.T) {
	now := epoch
	clock := func() time.Time { return now }
	cred := ticket.Credential{Account: "me@example.net", Password: "hunter2"}
	req := &countingRequester{ttl: time.Hour, now: clock}
	m := ticket.NewManager(req, ticket.WithClock(clock), ticket.WithTTL(time.Hour))

	done := make(chan struct{})
	m.Authenticate(context.Background(), cred, []ticket.Kind{ticket.KindClear},
		func([]ticket.Ticket) { close(done) }, func(err error) { t.Errorf("auth failed: %v", err) })
	<-done

	if removed := m.Sweep(); removed != 0 {
		t.Errorf("Got %d entries removed before the deadline", removed)
	}
	now = now.Add(2 * time.Hour)
	if removed := m.Sweep(); removed != 1 {
		t.Errorf("Got %d entries removed after the deadline but expected 1", removed)
	}
	// The sweep is advisory: a removed entry just means the next use issues a
	// fresh request.
	if _, ok := m.Ticket(cred, ticket.KindClear); ok {
		t.Error("Expected the swept entry to be gone")
	}
}

func TestReset(t *testing.T) {
	cred := ticket.Credential{Account: "me@example.net", Password: "hunter2"}
	req := &countingRequester{ttl: time.Hour, now: func() time.Time { return epoch }}
	m := ticket.NewManager(req, ticket.WithClock(func() time.Time { return epoch }))
	done := make(chan struct{})
	m.Authenticate(context.Background(), cred, []ticket.Kind{ticket.KindClear},
		func([]ticket.Ticket) { close(done) }, func(err error) { t.Errorf("auth failed: %v", err) })
	<-done
	m.Reset()
	if _, ok := m.Ticket(cred, ticket.KindClear); ok {
		t.Error("Expected an empty cache after reset")
	}
}
