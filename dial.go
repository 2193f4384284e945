// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"context"
	"crypto/tls"
	"net"
)

// DefaultServer is the address dialed when none is configured.
const DefaultServer = "messenger.hotmail.com:1863"

// DialNotification connects to the notification server at addr (or
// DefaultServer when addr is empty).
//
// For more information see the Dialer type.
func DialNotification(ctx context.Context, addr string) (*Conn, error) {
	var d Dialer
	return d.Dial(ctx, "tcp", addr)
}

// A Dialer contains options for connecting to a notification or switchboard
// server. After a connection is established the Dial method does not attempt
// to negotiate a session on it.
//
// The zero value is a valid configuration.
type Dialer struct {
	net.Dialer

	// TLSConfig enables implicit TLS when set. The protocol predates
	// ubiquitous TLS and most deployments use plain TCP with ticket based
	// authentication on top.
	TLSConfig *tls.Config
}

// Dial connects to the address on the named network.
//
// If the context expires before the connection is complete an error is
// returned. Once successfully connected, any expiration of the context will
// not affect the connection.
func (d *Dialer) Dial(ctx context.Context, network, addr string) (*Conn, error) {
	if addr == "" {
		addr = DefaultServer
	}
	if d.TLSConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: &d.Dialer, Config: d.TLSConfig}
		conn, err := tlsDialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return NewConn(conn), nil
	}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}
