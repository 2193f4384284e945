// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"io"
	"net"
	"sync"
	"time"

	"mellium.im/msnp/command"
)

// Conn is a command oriented connection to a notification or switchboard
// server. Reads must come from a single goroutine; writes are serialized by
// an internal lock so that any goroutine may send.
type Conn struct {
	rw io.ReadWriter
	d  *command.Decoder

	writeLock sync.Mutex
	e         *command.Encoder
}

// NewConn wraps an existing connection (or any io.ReadWriter) in the command
// codec.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw: rw,
		d:  command.NewDecoder(rw),
		e:  command.NewEncoder(rw),
	}
}

// ReadCommand reads the next command, blocking until one arrives.
func (c *Conn) ReadCommand() (command.Command, error) {
	return c.d.Decode()
}

// WriteCommand writes a single command. It is safe for concurrent use.
func (c *Conn) WriteCommand(cmd command.Command) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.e.Encode(cmd)
}

// Close closes the underlying connection if it is closeable.
// Disconnecting the transport is the only cancellation primitive: a blocked
// ReadCommand is unblocked by closing.
func (c *Conn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SetDeadline sets the read and write deadline of the underlying connection
// when it is a net.Conn; otherwise it is a no-op.
func (c *Conn) SetDeadline(t time.Time) error {
	if conn, ok := c.rw.(net.Conn); ok {
		return conn.SetDeadline(t)
	}
	return nil
}

// LocalAddr returns the local address of the underlying connection when it is
// a net.Conn.
func (c *Conn) LocalAddr() net.Addr {
	if conn, ok := c.rw.(net.Conn); ok {
		return conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address of the underlying connection when it
// is a net.Conn.
func (c *Conn) RemoteAddr() net.Addr {
	if conn, ok := c.rw.(net.Conn); ok {
		return conn.RemoteAddr()
	}
	return nil
}
