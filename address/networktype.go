// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package address

import "strconv"

// NetworkType identifies the network a peer account belongs to.
// It should normally be one of the constants defined in this package.
type NetworkType int

const (
	// None is the zero value and does not identify any network.
	None NetworkType = 0

	// WindowsLive is the native network.
	WindowsLive NetworkType = 1

	// OfficeCommunicator identifies corporate communicator accounts.
	OfficeCommunicator NetworkType = 2

	// Telephone identifies mobile phone numbers reachable by SMS bridging.
	Telephone NetworkType = 4

	// MobileNetworkInterop identifies carrier-side interop accounts.
	MobileNetworkInterop NetworkType = 8

	// Circle identifies a persistent multi-user group. A circle account is a
	// GUID-shaped localpart at a well known domain.
	Circle NetworkType = 9

	// TemporaryGroup identifies an ad-hoc multi-user group that exists only
	// for the lifetime of one conversation.
	TemporaryGroup NetworkType = 10

	// CID identifies a peer by numeric contact id rather than account name.
	CID NetworkType = 11

	// Connect identifies a messenger-connect (third party application) peer.
	Connect NetworkType = 13

	// RemoteNetwork identifies a peer on a bridged foreign network that is
	// reached through a remote-network gateway.
	RemoteNetwork NetworkType = 14

	// SMTP identifies plain email peers.
	SMTP NetworkType = 16

	// Yahoo identifies peers on the bridged Yahoo network.
	Yahoo NetworkType = 32
)

// Well known remote-network gateway domains. Addresses on these networks are
// special cased by routing: the gateway itself is looked up in the directory
// and never created on the fly.
const (
	FacebookGateway = "facebook.com"
	LinkedInGateway = "linkedin.com"
)

// IsGroup reports whether the network type identifies a multi-user group
// rather than a single peer.
func (n NetworkType) IsGroup() bool {
	return n == Circle || n == TemporaryGroup
}

// String returns a human readable name for the network type.
func (n NetworkType) String() string {
	switch n {
	case None:
		return "none"
	case WindowsLive:
		return "windows-live"
	case OfficeCommunicator:
		return "office-communicator"
	case Telephone:
		return "telephone"
	case MobileNetworkInterop:
		return "mobile-network-interop"
	case Circle:
		return "circle"
	case TemporaryGroup:
		return "temporary-group"
	case CID:
		return "cid"
	case Connect:
		return "connect"
	case RemoteNetwork:
		return "remote-network"
	case SMTP:
		return "smtp"
	case Yahoo:
		return "yahoo"
	}
	return "unknown(" + strconv.Itoa(int(n)) + ")"
}
