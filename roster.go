// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
	"mellium.im/msnp/event"
)

// handleListPush processes a server initiated membership list change, such
// as a contact adding the local user to their list.
func (s *Session) handleListPush(cmd command.Command) {
	ml, err := command.ParseContactList(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed list payload dropped", err)
		return
	}
	add := cmd.Verb == command.ADL
	for _, d := range ml.Domains {
		for _, lc := range d.Contacts {
			account := lc.Name
			if d.Name != "" {
				account = lc.Name + "@" + d.Name
			}
			network := address.NetworkType(lc.Type)
			if network == address.None {
				network = address.WindowsLive
			}
			lists := directory.Lists(lc.Lists)
			// Group entries register the circle itself so that roster
			// pushes and group messages naming it resolve.
			if network.IsGroup() {
				if add {
					s.dir.GetOrCreateCircle(account, network).AddLists(lists)
				} else if circle, ok := s.dir.Circle(account); ok {
					circle.RemoveLists(lists)
				}
				continue
			}
			if add {
				s.dir.GetOrCreate(account, network).AddLists(lists)
				continue
			}
			if c, ok := s.dir.Get(account, network); ok {
				c.RemoveLists(lists)
			}
		}
	}
}

// handleRosterPush processes a circle or temporary group roster
// notification. The payload is a MIME envelope whose From header names the
// group and whose body is the roster snapshot.
//
// A push for a group the directory has never seen is dropped; the directory
// recovers through the next membership list synchronization.
func (s *Session) handleRosterPush(cmd command.Command) {
	op := cmd.Verb
	if op == command.NFY {
		switch cmd.Arg(0) {
		case "PUT":
			op = command.PUT
		case "DEL":
			op = command.DEL
		default:
			s.logger.Warn("roster notification with unknown operation dropped", cmd.String())
			return
		}
	}

	m, err := command.ReadMessage(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed roster notification dropped", err)
		return
	}
	from := command.ParseMIMEValue(m.Header.Get(command.HeaderFrom))
	a, err := address.Parse(from.Value)
	if err != nil || !a.NetworkType().IsGroup() {
		s.logger.Warn("roster notification without group sender dropped", m.Header.Get(command.HeaderFrom))
		return
	}
	circle, ok := s.dir.Circle(a.Account())
	if !ok {
		s.logger.Warn("roster notification for unknown group dropped", a.String())
		return
	}

	roster, err := command.ParseCircleRoster(m.Body)
	if err != nil {
		s.logger.Warn("malformed roster snapshot dropped", err)
		return
	}
	members, bad := roster.Members()
	for _, id := range bad {
		s.logger.Warn("roster member with bad address skipped", id)
	}

	switch op {
	case command.PUT:
		joined, left := circle.SyncMembers(members)
		s.fireMembership(circle, joined, left)
	case command.DEL:
		if len(roster.Users) == 0 {
			// The group itself went away.
			_, left := circle.SyncMembers(nil)
			s.fireMembership(circle, nil, left)
			return
		}
		var left []string
		for _, member := range members {
			if _, ok := circle.Roster().Get(member.Account(), member.NetworkType()); ok {
				circle.Roster().Remove(member.Account(), member.NetworkType())
				left = append(left, member.Account())
			}
		}
		s.fireMembership(circle, nil, left)
	}
}

func (s *Session) fireMembership(circle *directory.Circle, joined, left []string) {
	for _, account := range joined {
		s.handlers.GroupMemberJoined(event.GroupMemberJoined{Group: circle, Account: account})
	}
	for _, account := range left {
		s.handlers.GroupMemberLeft(event.GroupMemberLeft{Group: circle, Account: account})
	}
}
