// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"strings"

	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/event"
	"mellium.im/msnp/routing"
)

// handleServerMessage processes a message delivered over the notification
// channel. Service messages from non-contact senders (mailbox status and the
// like) are not surfaced.
func (s *Session) handleServerMessage(cmd command.Command) {
	m, err := command.ReadMessage(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed message payload dropped", err)
		return
	}
	a, err := address.Parse(cmd.Arg(0))
	if err != nil {
		s.logger.Debug("service message ignored", m.ContentType())
		return
	}
	c := s.contactFor(a)
	s.handlers.Message(event.Message{From: a, Sender: c, Message: m})
}

// handlePeerMessage processes a message from a cross-network peer. Older
// dialects put the network id in a separate argument; newer ones use a
// composite address.
func (s *Session) handlePeerMessage(cmd command.Command) {
	spec := cmd.Arg(0)
	if n := cmd.Arg(1); isDigits(n) && !strings.Contains(spec, ":") {
		spec = n + ":" + spec
	}
	a, err := address.Parse(spec)
	if err != nil {
		s.logger.Warn("message with bad sender address dropped", err)
		return
	}
	m, err := command.ReadMessage(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed message payload dropped", err)
		return
	}
	c := s.contactFor(a)
	s.handlers.Message(event.Message{From: a, Sender: c, Message: m})
}

// handleGroupMessage processes a message delivered through a circle or
// temporary group. The envelope's MIME routing headers decide sender,
// receiver, and group; an unresolvable route drops the one message and the
// connection survives.
func (s *Session) handleGroupMessage(cmd command.Command) {
	envelope, err := command.ReadMessage(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed message envelope dropped", err)
		return
	}
	from := command.ParseMIMEValue(envelope.Header.Get(command.HeaderFrom))
	to := command.ParseMIMEValue(envelope.Header.Get(command.HeaderTo))
	info, err := routing.Resolve(from, to, envelope.Header.Get(command.HeaderVia), s.dir, s.owner)
	if err != nil {
		s.logger.Warn("message routing failed, dropped", err)
		return
	}
	inner, err := command.ReadMessage(envelope.Body)
	if err != nil {
		s.logger.Warn("malformed message body dropped", err)
		return
	}

	var convID string
	if info.MessageGateway != nil {
		convID = info.MessageGateway.Account()
	}
	s.handlers.Message(event.Message{
		From:           info.Sender.Address(),
		Sender:         info.Sender,
		Message:        inner,
		ConversationID: convID,
	})
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
