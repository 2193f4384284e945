// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

import "mellium.im/msnp/address"

// Circle is a persistent multi-user group or a temporary group. It is a
// contact in its own right and additionally owns a nested directory holding
// its membership roster, keyed the same way as the top level directory.
type Circle struct {
	*Contact

	roster *Directory
}

// Roster returns the circle's membership directory.
func (c *Circle) Roster() *Directory {
	return c.roster
}

// MemberAccounts returns the set of member accounts currently on the roster.
func (c *Circle) MemberAccounts() map[string]bool {
	members := make(map[string]bool, c.roster.Len())
	c.roster.Range(func(m *Contact) bool {
		members[m.Account()] = true
		return true
	})
	return members
}

// SyncMembers replaces the roster with the given member identities and
// returns the accounts that joined and left relative to the previous roster.
// Membership is diffed the same way owner endpoint sets are: present now but
// not before means joined, present before but absent now means left.
func (c *Circle) SyncMembers(members []address.Address) (joined, left []string) {
	previous := c.MemberAccounts()
	next := make(map[string]bool, len(members))
	for _, m := range members {
		next[m.Account()] = true
	}
	joined, left = DiffSet(previous, next)

	for _, account := range left {
		var stale []*Contact
		c.roster.Range(func(m *Contact) bool {
			if m.Account() == account {
				stale = append(stale, m)
			}
			return true
		})
		for _, m := range stale {
			c.roster.Remove(m.Account(), m.NetworkType())
		}
	}
	for _, m := range members {
		member := c.roster.GetOrCreate(m.Account(), m.NetworkType())
		member.SetVia(c.Contact)
	}
	return joined, left
}

// DiffSet compares two identity sets and returns the keys that were added and
// removed. It is used for owner endpoint reconciliation and group membership
// alike.
func DiffSet(previous, next map[string]bool) (added, removed []string) {
	for k := range next {
		if !previous[k] {
			added = append(added, k)
		}
	}
	for k := range previous {
		if !next[k] {
			removed = append(removed, k)
		}
	}
	return added, removed
}
