// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import "strings"

// SessionState is a bitmask that represents the current state of a session.
type SessionState uint8

const (
	// VersionNegotiated indicates that the protocol dialect has been agreed
	// on with the server.
	VersionNegotiated SessionState = 1 << iota

	// InfoExchanged indicates that client version information has been sent
	// and acknowledged.
	InfoExchanged

	// Authn indicates that the session has been authenticated.
	Authn

	// Ready indicates that initial presence has been published and the
	// session can send and receive messages.
	Ready

	// Closed indicates that the session is no longer valid and its
	// underlying connection should not be used.
	Closed
)

// String satisfies fmt.Stringer.
func (s SessionState) String() string {
	var states []string
	if s&VersionNegotiated == VersionNegotiated {
		states = append(states, "VersionNegotiated")
	}
	if s&InfoExchanged == InfoExchanged {
		states = append(states, "InfoExchanged")
	}
	if s&Authn == Authn {
		states = append(states, "Authn")
	}
	if s&Ready == Ready {
		states = append(states, "Ready")
	}
	if s&Closed == Closed {
		states = append(states, "Closed")
	}
	if len(states) == 0 {
		return "None"
	}
	return strings.Join(states, "|")
}
