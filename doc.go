// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package msnp implements the client side of the MSNP instant messaging
// protocol.
//
// A Session is an authenticated connection to a notification server: it
// negotiates a protocol dialect, signs the account in, publishes presence,
// and then routes every inbound command to the contact directory, the
// event subscriber registry, and the switchboard machinery. Conversations
// themselves are hosted on separate short lived switchboard connections;
// see the switchboard and conversation packages.
//
// Be advised that this module is based on the protocol dialects spoken by
// servers that Microsoft shut down in 2014 and is primarily useful against
// community revival servers.
package msnp // import "mellium.im/msnp"
