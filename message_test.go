// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp_test

import (
	"net/textproto"
	"testing"
	"time"

	"mellium.im/msnp"
	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/event"
	"mellium.im/msnp/internal/msnptest"
)

func TestPeerMessage(t *testing.T) {
	messages := make(chan event.Message, 4)
	h := &event.Handlers{
		HandleMessage: func(e event.Message) { messages <- e },
	}
	s, server, cleanup := msnptest.NewClientSession(t, msnp.WithHandlers(h))
	defer cleanup()
	go s.Serve(nil)

	// Older dialects carry the network id in a separate argument.
	cmd := command.New(command.UBM, "bob@yahoo.example", "32", "1")
	cmd.Payload = command.NewText("hi from the bridge").Bytes()
	if err := server.WriteCommand(cmd); err != nil {
		t.Fatalf("message write failed: %v", err)
	}

	select {
	case e := <-messages:
		if e.From.NetworkType() != address.Yahoo || e.From.Account() != "bob@yahoo.example" {
			t.Errorf("message attributed to %v", e.From)
		}
		if e.Message.Class() != command.ClassText || string(e.Message.Body) != "hi from the bridge" {
			t.Errorf("message body did not survive: %q", e.Message.Body)
		}
		if e.ConversationID != "" {
			t.Errorf("bridged message carries conversation id %q", e.ConversationID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("message event did not fire")
	}
}

func TestServiceMessageIgnored(t *testing.T) {
	messages := make(chan event.Message, 4)
	h := &event.Handlers{
		HandleMessage: func(e event.Message) { messages <- e },
	}
	s, server, cleanup := msnptest.NewClientSession(t, msnp.WithHandlers(h))
	defer cleanup()
	go s.Serve(nil)

	svc := command.New(command.MSG, "Hotmail", "Hotmail")
	svc.Payload = []byte("Content-Type: text/x-msmsgsprofile\r\n\r\n")
	if err := server.WriteCommand(svc); err != nil {
		t.Fatalf("message write failed: %v", err)
	}

	// A contact message after the service message still comes through, which
	// also proves the service message did not kill the connection.
	chat := command.New(command.MSG, "1:bob@example.com", "Bob")
	chat.Payload = command.NewText("still here").Bytes()
	if err := server.WriteCommand(chat); err != nil {
		t.Fatalf("message write failed: %v", err)
	}

	select {
	case e := <-messages:
		if e.From.Account() != "bob@example.com" {
			t.Errorf("first surfaced message is from %v", e.From)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("message event did not fire")
	}
	select {
	case e := <-messages:
		t.Fatalf("unexpected extra message event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGroupMessage(t *testing.T) {
	const group = "f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e@live.com"

	messages := make(chan event.Message, 4)
	h := &event.Handlers{
		HandleMessage: func(e event.Message) { messages <- e },
	}
	s, server, cleanup := msnptest.NewClientSession(t, msnp.WithHandlers(h))
	defer cleanup()
	s.Directory().GetOrCreateCircle(group, address.Circle)
	go s.Serve(nil)

	write := func(via string) {
		t.Helper()
		envelope := command.Message{
			Header: textproto.MIMEHeader{
				command.HeaderFrom: {"1:bob@example.com"},
				command.HeaderTo:   {"1:" + msnptest.Credential.Account},
				command.HeaderVia:  {via},
			},
			Body: command.NewText("hello group").Bytes(),
		}
		cmd := command.New(command.SDG, "0")
		cmd.Payload = envelope.Bytes()
		if err := server.WriteCommand(cmd); err != nil {
			t.Fatalf("message write failed: %v", err)
		}
	}

	// A message routed through a group the directory has never seen is
	// dropped without killing the connection.
	write("9:00000000-0000-0000-0000-000000000000@live.com")
	write("9:" + group)

	select {
	case e := <-messages:
		if e.ConversationID != group {
			t.Errorf("conversation id %q, want the group account", e.ConversationID)
		}
		if e.Sender == nil || e.Sender.Account() != "bob@example.com" {
			t.Errorf("sender %v", e.Sender)
		}
		if string(e.Message.Body) != "hello group" {
			t.Errorf("message body did not survive: %q", e.Message.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("message event did not fire")
	}
	select {
	case e := <-messages:
		t.Fatalf("dropped message surfaced anyway: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
