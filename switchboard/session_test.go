// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package switchboard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
	"mellium.im/msnp/internal/msnptest"
	"mellium.im/msnp/switchboard"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOpenQueueReplay(t *testing.T) {
	client, server := msnptest.NewConnPair()
	owner := directory.NewOwner("me@example.com", "epid-1")
	dir := &directory.Directory{}
	sb := switchboard.NewSession(client, owner, dir)

	wait := msnptest.Serve(t, server, []msnptest.Step{
		{Verb: command.USR, Reply: msnptest.Reply(command.USR, "OK", "me@example.com", "Me")},
	})
	if err := sb.Open(testContext(t), "ticket"); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	wait()

	// Queued while nobody has joined yet.
	if err := sb.Send(command.NewText("one")); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}
	if err := sb.Send(command.NewNudge()); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}
	if err := sb.Send(command.NewText("two")); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}

	go sb.Serve()
	if err := server.WriteCommand(command.New(command.JOI, "1:bob@example.com", "Bob", "0:0")); err != nil {
		t.Fatalf("join write failed: %v", err)
	}

	want := []struct {
		class command.Class
		body  string
	}{
		{command.ClassText, "one"},
		{command.ClassNudge, "ID: 1\r\n"},
		{command.ClassText, "two"},
	}
	for i, w := range want {
		cmd, err := server.ReadCommand()
		if err != nil {
			t.Fatalf("message %d: read failed: %v", i, err)
		}
		if cmd.Verb != command.MSG || cmd.Arg(1) != "N" {
			t.Fatalf("message %d: unexpected command %s", i, cmd.String())
		}
		m, err := command.ReadMessage(cmd.Payload)
		if err != nil {
			t.Fatalf("message %d: bad payload: %v", i, err)
		}
		if m.Class() != w.class {
			t.Errorf("message %d: got class %d, want %d", i, m.Class(), w.class)
		}
		if string(m.Body) != w.body {
			t.Errorf("message %d: got body %q, want %q", i, m.Body, w.body)
		}
	}

	if got := sb.Roster().State("bob@example.com"); got != switchboard.Joined {
		t.Errorf("joined participant has roster state %v", got)
	}
	server.Close()
	sb.Close()
}

func TestAnswerRecordsRoster(t *testing.T) {
	client, server := msnptest.NewConnPair()
	owner := directory.NewOwner("me@example.com", "epid-1")
	dir := &directory.Directory{}
	sb := switchboard.NewSession(client, owner, dir)

	wait := msnptest.Serve(t, server, []msnptest.Step{
		{Verb: command.ANS, Reply: func(cmd command.Command) []command.Command {
			return []command.Command{
				command.New(command.IRO, cmd.Arg(0), "1", "2", "1:bob@example.com", "Bob", "0:0"),
				// Unprefixed participants default to the Windows Live
				// network.
				command.New(command.IRO, cmd.Arg(0), "2", "2", "carol@example.com", "Carol", "0:0"),
				command.New(command.ANS, cmd.Arg(0), "OK"),
			}
		}},
	})
	if err := sb.Answer(testContext(t), "11752013", "ticket"); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	wait()

	for _, account := range []string{"bob@example.com", "carol@example.com"} {
		if got := sb.Roster().State(account); got != switchboard.Joined {
			t.Errorf("initial participant %s has roster state %v", account, got)
		}
	}
	c, ok := sb.Roster().Contact("bob@example.com")
	if !ok || c.DisplayName() != "Bob" {
		t.Errorf("display name not recorded for initial participant")
	}
	server.Close()
	sb.Close()
}

func TestInviteQueuedUntilHandshake(t *testing.T) {
	client, server := msnptest.NewConnPair()
	owner := directory.NewOwner("me@example.com", "epid-1")
	sb := switchboard.NewSession(client, owner, &directory.Directory{})

	if err := sb.Invite("bob@example.com"); err != nil {
		t.Fatalf("queueing invitation failed: %v", err)
	}
	if got := sb.Roster().State("bob@example.com"); got != switchboard.Invited {
		t.Errorf("invited contact has roster state %v", got)
	}

	var cal command.Command
	wait := msnptest.Serve(t, server, []msnptest.Step{
		{Verb: command.USR, Reply: msnptest.Reply(command.USR, "OK", "me@example.com", "Me")},
		{Verb: command.CAL, Reply: func(cmd command.Command) []command.Command {
			cal = cmd
			return nil
		}},
	})
	if err := sb.Open(testContext(t), "ticket"); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	wait()
	if cal.Arg(1) != "bob@example.com" {
		t.Errorf("queued invitation named %q, want bob@example.com", cal.Arg(1))
	}
	server.Close()
	sb.Close()
}

func waitForState(t *testing.T, sb *switchboard.Session, account string, want switchboard.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sb.Roster().State(account) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("roster state for %s is %v, want %v", account, sb.Roster().State(account), want)
}

func TestReinviteAfterLeave(t *testing.T) {
	client, server := msnptest.NewConnPair()
	owner := directory.NewOwner("me@example.com", "epid-1")
	sb := switchboard.NewSession(client, owner, &directory.Directory{})

	wait := msnptest.Serve(t, server, []msnptest.Step{
		{Verb: command.USR, Reply: msnptest.Reply(command.USR, "OK", "me@example.com", "Me")},
	})
	if err := sb.Open(testContext(t), "ticket"); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	wait()

	go sb.Serve()
	for _, account := range []string{"1:bob@example.com", "1:carol@example.com"} {
		if err := server.WriteCommand(command.New(command.JOI, account, "X", "0:0")); err != nil {
			t.Fatalf("join write failed: %v", err)
		}
	}
	if err := server.WriteCommand(command.New(command.BYE, "1:bob@example.com")); err != nil {
		t.Fatalf("leave write failed: %v", err)
	}
	waitForState(t, sb, "bob@example.com", switchboard.Left)

	calDone := make(chan command.Command, 1)
	go func() {
		cmd, err := server.ReadCommand()
		if err != nil {
			t.Errorf("reading invitation failed: %v", err)
		}
		calDone <- cmd
	}()
	if err := sb.Invite("bob@example.com"); err != nil {
		t.Fatalf("re-inviting departed participant failed: %v", err)
	}
	cal := <-calDone
	if cal.Verb != command.CAL || cal.Arg(1) != "bob@example.com" {
		t.Fatalf("got %s, want a CAL for bob@example.com", cal.String())
	}
	if got := sb.Roster().State("bob@example.com"); got != switchboard.Invited {
		t.Errorf("re-invited participant has roster state %v, want Invited", got)
	}

	if err := server.WriteCommand(command.New(command.JOI, "1:bob@example.com", "Bob", "0:0")); err != nil {
		t.Fatalf("rejoin write failed: %v", err)
	}
	waitForState(t, sb, "bob@example.com", switchboard.Joined)

	// The other participant leaving must not expire the conversation while
	// the re-invited one is joined.
	if err := server.WriteCommand(command.New(command.BYE, "1:carol@example.com")); err != nil {
		t.Fatalf("leave write failed: %v", err)
	}
	waitForState(t, sb, "carol@example.com", switchboard.Left)
	if sb.Expired() || sb.Closed() {
		t.Errorf("expired=%t closed=%t with a rejoined participant, want neither", sb.Expired(), sb.Closed())
	}
	server.Close()
	sb.Close()
}

func TestQueuedInviteBypassesBlockedMessage(t *testing.T) {
	client, server := msnptest.NewConnPair()
	owner := directory.NewOwner("me@example.com", "epid-1")
	sb := switchboard.NewSession(client, owner, &directory.Directory{})

	// A message queued ahead of the invitation must not hold it back while
	// nobody is joined.
	if err := sb.Send(command.NewText("held")); err != nil {
		t.Fatalf("queueing failed: %v", err)
	}
	if err := sb.Invite("bob@example.com"); err != nil {
		t.Fatalf("queueing invitation failed: %v", err)
	}

	var cal command.Command
	wait := msnptest.Serve(t, server, []msnptest.Step{
		{Verb: command.USR, Reply: msnptest.Reply(command.USR, "OK", "me@example.com", "Me")},
		{Verb: command.CAL, Reply: func(cmd command.Command) []command.Command {
			cal = cmd
			return nil
		}},
	})
	if err := sb.Open(testContext(t), "ticket"); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	wait()
	if cal.Arg(1) != "bob@example.com" {
		t.Fatalf("queued invitation named %q, want bob@example.com", cal.Arg(1))
	}

	go sb.Serve()
	if err := server.WriteCommand(command.New(command.JOI, "1:bob@example.com", "Bob", "0:0")); err != nil {
		t.Fatalf("join write failed: %v", err)
	}
	cmd, err := server.ReadCommand()
	if err != nil {
		t.Fatalf("reading held message failed: %v", err)
	}
	m, err := command.ReadMessage(cmd.Payload)
	if err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if cmd.Verb != command.MSG || string(m.Body) != "held" {
		t.Errorf("got %s body %q, want the held message", cmd.String(), m.Body)
	}
	server.Close()
	sb.Close()
}

func TestExpiresWhenAllLeave(t *testing.T) {
	client, server := msnptest.NewConnPair()
	owner := directory.NewOwner("me@example.com", "epid-1")
	var allLeft bool
	sb := switchboard.NewSession(client, owner, &directory.Directory{},
		switchboard.WithAllLeft(func() { allLeft = true }))

	wait := msnptest.Serve(t, server, []msnptest.Step{
		{Verb: command.USR, Reply: msnptest.Reply(command.USR, "OK", "me@example.com", "Me")},
	})
	if err := sb.Open(testContext(t), "ticket"); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	wait()

	serveDone := make(chan error, 1)
	go func() { serveDone <- sb.Serve() }()
	if err := server.WriteCommand(command.New(command.JOI, "1:bob@example.com", "Bob", "0:0")); err != nil {
		t.Fatalf("join write failed: %v", err)
	}
	if err := server.WriteCommand(command.New(command.BYE, "1:bob@example.com")); err != nil {
		t.Fatalf("leave write failed: %v", err)
	}

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("serve returned error after conversation ended: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after the last participant left")
	}
	if !allLeft {
		t.Errorf("all-left callback did not fire")
	}
	if !sb.Expired() || !sb.Closed() {
		t.Errorf("expired=%t closed=%t after last participant left, want both", sb.Expired(), sb.Closed())
	}

	if err := sb.Send(command.NewText("too late")); !errors.Is(err, switchboard.ErrClosed) {
		t.Errorf("send on closed session: got err %v, want ErrClosed", err)
	}
	server.Close()
}
