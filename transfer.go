// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"strings"

	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
)

// handleTransfer binds a switchboard assignment to the oldest waiting
// request. Assignments are server replies, but they are matched by arrival
// order rather than transaction id so that the binding discipline is the
// same as for inbound invitations.
func (s *Session) handleTransfer(cmd command.Command) {
	if cmd.Arg(1) != "SB" {
		s.logger.Debug("transfer for unsupported referral dropped", cmd.String())
		return
	}
	a := SwitchboardAssignment{Addr: cmd.Arg(2), Ticket: cmd.Arg(4)}

	s.sbM.Lock()
	var ch chan SwitchboardAssignment
	if len(s.sbQueue) > 0 {
		ch = s.sbQueue[0]
		s.sbQueue = s.sbQueue[1:]
	}
	s.sbM.Unlock()

	if ch == nil {
		s.logger.Warn("switchboard assignment with no waiting request dropped", cmd.String())
		return
	}
	ch <- a
}

// handleRing surfaces an inbound switchboard invitation.
func (s *Session) handleRing(cmd command.Command) {
	if s.onRing == nil {
		s.logger.Debug("switchboard invitation dropped", cmd.String())
		return
	}
	spec := cmd.Arg(4)
	if !strings.Contains(spec, ":") {
		spec = "1:" + spec
	}
	caller, err := address.Parse(spec)
	if err != nil {
		s.logger.Warn("invitation with bad caller address dropped", err)
		return
	}
	s.onRing(Ring{
		SessionID: cmd.Arg(0),
		Addr:      cmd.Arg(1),
		Ticket:    cmd.Arg(3),
		Caller:    caller,
	})
}
