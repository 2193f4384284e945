// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"mellium.im/msnp/command"
)

// A CommandWriter is the portion of a session that handlers may write
// replies to.
type CommandWriter interface {
	// WriteCommand writes a single command. It is safe for concurrent use.
	WriteCommand(cmd command.Command) error

	// NextTrID allocates a fresh transaction id.
	NextTrID() uint32
}

// A Handler responds to inbound commands that the session does not consume
// itself.
//
// Handlers are called synchronously from the session's read loop; no other
// command is processed until the handler returns. A handler error tears
// down the connection it was called from.
type Handler interface {
	HandleCommand(w CommandWriter, cmd command.Command) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(w CommandWriter, cmd command.Command) error

// HandleCommand satisfies the Handler interface.
func (f HandlerFunc) HandleCommand(w CommandWriter, cmd command.Command) error {
	return f(w, cmd)
}
