// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package switchboard

import (
	"sync"

	"mellium.im/msnp/directory"
)

// State is the lifecycle position of one roster entry. Entries only ever
// move forward: None, Invited, Joined, Left. Left is terminal for an entry,
// but a fresh invitation replaces the entry so a departed contact can be
// invited back.
type State int

// The roster entry states, in lifecycle order.
const (
	None State = iota
	Invited
	Joined
	Left
)

// String satisfies fmt.Stringer.
func (s State) String() string {
	switch s {
	case None:
		return "None"
	case Invited:
		return "Invited"
	case Joined:
		return "Joined"
	case Left:
		return "Left"
	}
	return "invalid"
}

type rosterEntry struct {
	contact *directory.Contact
	state   State
}

// Roster tracks the participants of one conversation and their entry
// states. All methods are safe for concurrent use.
type Roster struct {
	owner string

	mu      sync.Mutex
	entries map[string]*rosterEntry
}

// NewRoster returns a roster whose owner entry is excluded from the
// all-contacts-left determination.
func NewRoster(ownerAccount string) *Roster {
	return &Roster{
		owner:   ownerAccount,
		entries: make(map[string]*rosterEntry),
	}
}

// State returns the entry state for the account, None if the account has
// never been on the roster.
func (r *Roster) State(account string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[account]; ok {
		return e.state
	}
	return None
}

// Contact returns the directory contact recorded for the account.
func (r *Roster) Contact(account string) (*directory.Contact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[account]
	if !ok {
		return nil, false
	}
	return e.contact, true
}

// Advance moves the account's entry to next and reports whether the entry
// changed. Backward transitions are refused: the observed state sequence of
// any entry is a subsequence of None, Invited, Joined, Left.
func (r *Roster) Advance(account string, c *directory.Contact, next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[account]
	if !ok {
		e = &rosterEntry{contact: c}
		r.entries[account] = e
	}
	if next <= e.state {
		return false
	}
	if c != nil {
		e.contact = c
	}
	e.state = next
	return true
}

// Invite marks the account Invited and reports whether the entry changed.
// Unlike Advance it replaces a Left entry with a fresh Invited one, so a
// departed participant can be invited back; state only moves forward within
// each entry's time on the roster.
func (r *Roster) Invite(account string, c *directory.Contact) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[account]
	if ok && c == nil {
		c = e.contact
	}
	if !ok || e.state == Left {
		r.entries[account] = &rosterEntry{contact: c, state: Invited}
		return true
	}
	if e.state >= Invited {
		return false
	}
	e.state = Invited
	return true
}

// AllContactsLeft reports whether every participant other than the owner
// has left. It is false while no participant has ever been on the roster.
func (r *Roster) AllContactsLeft() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var others int
	for account, e := range r.entries {
		if account == r.owner {
			continue
		}
		others++
		if e.state != Left {
			return false
		}
	}
	return others > 0
}

// Accounts returns every non-owner account currently in the given state.
func (r *Roster) Accounts(state State) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var accounts []string
	for account, e := range r.entries {
		if account == r.owner {
			continue
		}
		if e.state == state {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

// Joined reports whether any non-owner participant is currently joined.
func (r *Roster) Joined() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for account, e := range r.entries {
		if account == r.owner {
			continue
		}
		if e.state == Joined {
			return true
		}
	}
	return false
}
