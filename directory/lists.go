// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

import "strings"

// Lists is a bitmask of the membership lists a contact appears on.
type Lists int

// The membership lists of the protocol.
const (
	// ListForward is the contact list proper: contacts whose presence the
	// owner subscribes to.
	ListForward Lists = 1 << iota

	// ListAllow contains contacts permitted to see the owner's presence.
	ListAllow

	// ListBlock contains contacts denied the owner's presence and messages.
	ListBlock

	// ListReverse contains contacts that have the owner on their forward
	// list.
	ListReverse

	// ListPending contains contacts awaiting a membership decision.
	ListPending
)

// Has reports whether every given list bit is set.
func (l Lists) Has(list Lists) bool {
	return l&list == list
}

// String returns a human readable form such as "forward|allow".
func (l Lists) String() string {
	if l == 0 {
		return "none"
	}
	var parts []string
	for _, e := range [...]struct {
		bit  Lists
		name string
	}{
		{ListForward, "forward"},
		{ListAllow, "allow"},
		{ListBlock, "block"},
		{ListReverse, "reverse"},
		{ListPending, "pending"},
	} {
		if l.Has(e.bit) {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}
