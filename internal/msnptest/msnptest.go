// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package msnptest provides in-memory connections and scripted servers for
// testing sessions.
package msnptest // import "mellium.im/msnp/internal/msnptest"

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"testing"
	"time"

	"mellium.im/reader"

	"mellium.im/msnp"
	"mellium.im/msnp/command"
	"mellium.im/msnp/ticket"
)

// NewConnPair returns two connected in-memory connections.
func NewConnPair() (client, server *msnp.Conn) {
	c, s := net.Pipe()
	return msnp.NewConn(c), msnp.NewConn(s)
}

// ErrorConn returns a connection whose reads always fail with err and whose
// writes are discarded.
func ErrorConn(err error) *msnp.Conn {
	return msnp.NewConn(struct {
		io.Reader
		io.Writer
	}{
		Reader: reader.Error(err),
		Writer: io.Discard,
	})
}

// A Step is one exchange of a scripted server: the command it expects next
// and the replies it sends back.
type Step struct {
	Verb  command.Verb
	Reply func(cmd command.Command) []command.Command
}

// Reply builds a reply that echoes the incoming command's transaction id
// before the given arguments.
func Reply(verb command.Verb, args ...string) func(command.Command) []command.Command {
	return func(cmd command.Command) []command.Command {
		all := append([]string{cmd.Arg(0)}, args...)
		return []command.Command{command.New(verb, all...)}
	}
}

// Serve runs the script against conn on a new goroutine. The returned
// function blocks until every step has run or the script aborted.
func Serve(t *testing.T, conn *msnp.Conn, steps []Step) (wait func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, step := range steps {
			cmd, err := conn.ReadCommand()
			if err != nil {
				t.Errorf("script step %d: read failed: %v", i, err)
				return
			}
			if cmd.Verb != step.Verb {
				t.Errorf("script step %d: expected %s, got %s", i, step.Verb, cmd.String())
				return
			}
			if step.Reply == nil {
				continue
			}
			for _, reply := range step.Reply(cmd) {
				if err := conn.WriteCommand(reply); err != nil {
					t.Errorf("script step %d: write failed: %v", i, err)
					return
				}
			}
		}
	}()
	return func() { <-done }
}

// Credential is the test account used by scripted sessions.
var Credential = ticket.Credential{
	Account:  "me@example.com",
	Password: "hunter2",
}

// testSecret is a valid base64 ticket secret.
var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdefghij"))

// Tickets returns a ticket manager that issues static unexpired tickets
// without any external calls.
func Tickets() *ticket.Manager {
	return ticket.NewManager(ticket.RequesterFunc(func(_ context.Context, _ ticket.Credential, kinds []ticket.Kind) ([]ticket.Ticket, error) {
		now := time.Now()
		tickets := make([]ticket.Ticket, 0, len(kinds))
		for _, k := range kinds {
			tickets = append(tickets, ticket.Ticket{
				Kind:    k,
				Token:   "t=testtoken",
				Secret:  testSecret,
				Created: now,
				Expires: now.Add(8 * time.Hour),
			})
		}
		return tickets, nil
	}))
}

// LoginScript returns the scripted server side of a successful sign-in.
// The final keep-alive probe is consumed without an answer so that the
// script completes before the session's read loop starts.
func LoginScript() []Step {
	return []Step{
		{Verb: command.VER, Reply: Reply(command.VER, "MSNP21")},
		{Verb: command.CVR, Reply: Reply(command.CVR, "15.4.3508.1109", "15.4.3508.1109", "15.4.3508.1109", "http://example.net/dl", "http://example.net")},
		{Verb: command.USR, Reply: Reply(command.USR, "SSO", "S", "MBI_KEY_OLD", "E5gHnBDzMpTqlPFNaqiqYyvYBFsGWDQ9")},
		{Verb: command.USR, Reply: Reply(command.USR, "OK", Credential.Account, "1", "0")},
		{Verb: command.CHG, Reply: Reply(command.CHG, "NLN", "0:0")},
		{Verb: command.PNG},
	}
}

// NewClientSession signs a test session in over an in-memory connection and
// returns it together with the server side of the pipe. The caller drives
// Serve; Close on the cleanup function tears the session down.
func NewClientSession(t *testing.T, opts ...msnp.Option) (*msnp.Session, *msnp.Conn, func()) {
	t.Helper()
	client, server := NewConnPair()
	wait := Serve(t, server, LoginScript())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := msnp.NewClientSession(ctx, client, Credential, Tickets(), opts...)
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	wait()
	return s, server, func() {
		// Closing the server first makes the session's parting write fail
		// fast instead of waiting out its deadline.
		server.Close()
		s.Close()
	}
}
