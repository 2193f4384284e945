// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"errors"
	"fmt"
	"strconv"

	"mellium.im/msnp/command"
	"mellium.im/msnp/event"
	"mellium.im/msnp/internal/challenge"
)

// Serve processes inbound commands until the connection fails or the
// session is closed. Commands are dispatched synchronously in arrival
// order.
//
// Commands the session does not consume itself are passed to h when it is
// non-nil; a handler error or panic tears down the connection, matching the
// policy for any other unexpected dispatch failure. Per-message parse and
// resolution failures are logged and the message dropped without affecting
// the connection.
//
// Serve must be called once, after NewClientSession returns.
func (s *Session) Serve(h Handler) error {
	for {
		cmd, err := s.conn.ReadCommand()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, command.ErrEmptyCommand) {
				s.logger.Debug("empty command line dropped")
				continue
			}
			s.teardown(event.SignOutConnectionLost, err, false)
			return err
		}
		if err := s.route(cmd, h); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			s.teardown(event.SignOutProtocolError, err, false)
			return err
		}
	}
}

// route dispatches one inbound command. A non-nil return is fatal to the
// connection.
func (s *Session) route(cmd command.Command, h Handler) error {
	switch cmd.Verb {
	case command.Err:
		e := command.FromCommand(cmd)
		if s.deliverPending(cmd) {
			return nil
		}
		s.handlers.ServerError(event.ServerError{Err: &e})
		if !e.Recoverable() {
			return e
		}
	case command.VER, command.CVR, command.USR, command.CHG, command.UUX,
		command.ADG, command.RMG, command.QRY, command.UUN:
		if !s.deliverPending(cmd) {
			s.logger.Debug("unmatched reply dropped", cmd.String())
		}
	case command.ADL, command.RML:
		if s.deliverPending(cmd) {
			return nil
		}
		s.handleListPush(cmd)
	case command.NLN:
		s.handleOnline(cmd)
	case command.FLN:
		s.handleOffline(cmd)
	case command.UBX:
		s.handleProfile(cmd)
	case command.MSG:
		s.handleServerMessage(cmd)
	case command.UBM:
		s.handlePeerMessage(cmd)
	case command.SDG:
		s.handleGroupMessage(cmd)
	case command.NFY, command.PUT, command.DEL:
		s.handleRosterPush(cmd)
	case command.GCF:
		s.gcfM.Lock()
		s.gcf = cmd.Payload
		s.gcfM.Unlock()
	case command.NOT:
		s.logger.Debug("server notification", string(cmd.Payload))
	case command.UBN:
		s.logger.Debug("direct notification dropped", cmd.String())
	case command.CHL:
		s.handleChallenge(cmd)
	case command.QNG:
		s.pingM.Lock()
		s.pingInFlight = false
		s.pingM.Unlock()
	case command.XFR:
		s.handleTransfer(cmd)
	case command.RNG:
		s.handleRing(cmd)
	case command.OUT:
		return s.handleSignOut(cmd)
	default:
		if h != nil {
			return s.handleExternal(h, cmd)
		}
		s.logger.Warn("unknown command dropped", cmd.String())
	}
	return nil
}

// handleExternal invokes the external handler, converting a panic into a
// connection-fatal error rather than letting it unwind past the read loop.
func (s *Session) handleExternal(h Handler, cmd command.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("msnp: handler panic: %v", r)
			s.logger.Error("handler panic", r)
		}
	}()
	return h.HandleCommand(s, cmd)
}

// handleChallenge answers the server's periodic client verification
// challenge. The answer is fire and forget; the acknowledgment is dropped by
// the reply matcher.
func (s *Session) handleChallenge(cmd command.Command) {
	// The challenge string is the final argument; servers prefix a zero
	// transaction id.
	chl := cmd.Arg(len(cmd.Args) - 1)
	id := s.NextTrID()
	reply := command.New(command.QRY, strconv.FormatUint(uint64(id), 10), challenge.ProductID)
	reply.Payload = []byte(challenge.Response(chl))
	if err := s.WriteCommand(reply); err != nil {
		s.logger.Error("challenge answer write failed", err)
	}
}

func (s *Session) handleSignOut(cmd command.Command) error {
	reason := event.SignOutOtherPlace
	if cmd.Arg(0) == "SSD" {
		reason = event.SignOutServerShutdown
	}
	s.teardown(reason, nil, false)
	return ErrSessionClosed
}
