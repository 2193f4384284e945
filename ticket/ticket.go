// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ticket obtains and caches per-credential authentication tickets.
//
// A single sign-on request covers several independent ticket kinds, each with
// its own expiry. The manager caches ticket bundles by credential, answers
// from the cache synchronously when every requested kind is still usable, and
// otherwise issues one batched request to the external authentication
// collaborator covering only the expired kinds.
package ticket // import "mellium.im/msnp/ticket"

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RenewMargin is how close to its expiry a ticket may get before use triggers
// proactive background renewal.
const RenewMargin = time.Minute

// Kind identifies one ticket domain.
type Kind int

// The ticket kinds requested over the lifetime of a session.
const (
	// KindClear is the main messenger ticket used to authenticate the
	// notification connection.
	KindClear Kind = iota

	// KindContacts authorizes address book and membership service calls.
	KindContacts

	// KindMessenger is the legacy messenger ticket used by some bridged
	// services.
	KindMessenger

	// KindMessengerSecure authorizes offline messaging and cross-network
	// sends.
	KindMessengerSecure

	// KindStorage authorizes profile storage service calls.
	KindStorage

	// KindWeb authorizes miscellaneous web surfaces.
	KindWeb
)

var kindDomains = map[Kind]string{
	KindClear:           "messengerclear.live.com",
	KindContacts:        "contacts.msn.com",
	KindMessenger:       "messenger.msn.com",
	KindMessengerSecure: "messengersecure.live.com",
	KindStorage:         "storage.msn.com",
	KindWeb:             "messenger.msn.com:62",
}

// Domain returns the authentication domain of the ticket kind.
func (k Kind) Domain() string {
	return kindDomains[k]
}

// ExpiryState classifies how usable a ticket is at a point in time.
type ExpiryState int

// The expiry states of a ticket.
const (
	NotExpired ExpiryState = iota
	WillExpireSoon
	Expired
)

// Ticket is one issued ticket: an opaque token plus the proof secret used to
// answer server challenges, bounded by its creation and expiry instants.
type Ticket struct {
	Kind    Kind
	Token   string
	Secret  string
	Created time.Time
	Expires time.Time
}

// State classifies the ticket at the given instant. A ticket is usable while
// now is strictly before its expiry and renewable ahead of time once it gets
// within RenewMargin of it.
func (t Ticket) State(now time.Time) ExpiryState {
	if !now.Before(t.Expires) {
		return Expired
	}
	if t.Expires.Sub(now) < RenewMargin {
		return WillExpireSoon
	}
	return NotExpired
}

// Credential is an account and password pair. Tickets are cached under a hash
// of the pair so that the password itself is not kept as a map key.
type Credential struct {
	Account  string
	Password string
}

func (c Credential) cacheKey() string {
	sum := sha256.Sum256([]byte(c.Account + "\x00" + c.Password))
	return hex.EncodeToString(sum[:])
}
