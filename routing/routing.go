// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package routing resolves wire addresses to directory entities.
//
// Every inbound message derives a fresh Info from its From/To headers and an
// optional Via routing header. Resolution is deterministic: the same inputs
// against the same directory state always yield the same contact objects; the
// get-or-create semantics of the directory guarantee reference identity.
package routing // import "mellium.im/msnp/routing"

import (
	"errors"
	"fmt"

	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
)

// Errors surfaced by resolution. A message whose addresses fail to resolve is
// dropped by the caller; recovery happens only through an out-of-band
// directory re-synchronization.
var (
	ErrUnknownGateway = errors.New("routing: referenced circle or group is not in the directory")
)

// ParseError wraps an address parse failure with the header it came from.
type ParseError struct {
	Header string
	Err    error
}

// Error satisfies the error interface.
func (e ParseError) Error() string {
	return fmt.Sprintf("routing: bad %s address: %v", e.Header, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e ParseError) Unwrap() error {
	return e.Err
}

// Info is the resolved routing information of one inbound message. It is
// derived per message and never stored.
type Info struct {
	Sender   *directory.Contact
	Receiver *directory.Contact

	// SenderGateway and ReceiverGateway are set when the respective side is
	// reached through a circle, temporary group, or remote-network gateway.
	SenderGateway   *directory.Contact
	ReceiverGateway *directory.Contact

	// MessageGateway is the circle a Via routing header addressed, when any.
	MessageGateway *directory.Circle

	SenderEndpoint   string
	ReceiverEndpoint string
}

// Resolve derives routing information from the wire From/To header values and
// an optional Via routing header. The explicit Via header takes precedence
// over an inline via segment on the from/to addresses.
func Resolve(from, to command.MIMEValue, via string, dir *directory.Directory, owner *directory.Owner) (Info, error) {
	fromAddr, err := parseHeader("From", from)
	if err != nil {
		return Info{}, err
	}
	toAddr, err := parseHeader("To", to)
	if err != nil {
		return Info{}, err
	}

	var info Info
	info.SenderEndpoint = fromAddr.Endpoint()
	info.ReceiverEndpoint = toAddr.Endpoint()

	var viaAddr address.Address
	var hasVia bool
	if via != "" {
		viaAddr, err = address.Parse(via)
		if err != nil {
			return Info{}, ParseError{Header: "Via", Err: err}
		}
		hasVia = true
		if viaAddr.NetworkType().IsGroup() {
			gateway, ok := dir.Circle(viaAddr.Account())
			if !ok {
				return Info{}, ErrUnknownGateway
			}
			info.MessageGateway = gateway
		}
	}

	info.Sender, info.SenderGateway, err = resolveSide(fromAddr, viaAddr, hasVia, dir, owner)
	if err != nil {
		return Info{}, err
	}
	info.Receiver, info.ReceiverGateway, err = resolveSide(toAddr, viaAddr, hasVia, dir, owner)
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// resolveSide resolves one side of the message.
func resolveSide(addr, viaAddr address.Address, hasVia bool, dir *directory.Directory, owner *directory.Owner) (*directory.Contact, *directory.Contact, error) {
	// A side that is itself a circle or temporary group resolves to the
	// gateway object directly; an unknown group is an error, never created on
	// the fly.
	if addr.NetworkType().IsGroup() {
		circle, ok := dir.Circle(addr.Account())
		if !ok {
			return nil, nil, ErrUnknownGateway
		}
		return circle.Contact, circle.Contact, nil
	}

	// The explicit Via routing header wins over an inline via segment.
	gatewayAddr, hasGateway := addr.Via()
	if hasVia {
		gatewayAddr, hasGateway = viaAddr, true
	}

	if !hasGateway {
		if owner != nil && owner.Is(addr.Account(), addr.NetworkType()) {
			return owner.Contact, nil, nil
		}
		c := dir.GetOrCreate(addr.Account(), addr.NetworkType())
		return c, nil, nil
	}

	switch {
	case gatewayAddr.NetworkType().IsGroup():
		circle, ok := dir.Circle(gatewayAddr.Account())
		if !ok {
			return nil, nil, ErrUnknownGateway
		}
		if owner != nil && owner.Is(addr.Account(), addr.NetworkType()) {
			return owner.Contact, circle.Contact, nil
		}
		member := circle.Roster().GetOrCreate(addr.Account(), addr.NetworkType())
		member.SetVia(circle.Contact)
		return member, circle.Contact, nil
	case isRemoteGateway(gatewayAddr):
		gateway, ok := dir.Get(gatewayAddr.Account(), gatewayAddr.NetworkType())
		if !ok {
			return nil, nil, ErrUnknownGateway
		}
		c := dir.GetOrCreate(addr.Account(), addr.NetworkType())
		c.SetVia(gateway)
		return c, gateway, nil
	}

	// Gateways of other kinds are treated as plain contacts.
	gateway := dir.GetOrCreate(gatewayAddr.Account(), gatewayAddr.NetworkType())
	c := dir.GetOrCreate(addr.Account(), addr.NetworkType())
	c.SetVia(gateway)
	return c, gateway, nil
}

// isRemoteGateway reports whether the address names one of the special
// remote-network bridges.
func isRemoteGateway(a address.Address) bool {
	if a.NetworkType() != address.RemoteNetwork {
		return false
	}
	switch a.Account() {
	case address.FacebookGateway, address.LinkedInGateway:
		return true
	}
	return false
}

func parseHeader(name string, v command.MIMEValue) (address.Address, error) {
	addr, err := address.Parse(v.Value)
	if err != nil {
		return address.Address{}, ParseError{Header: name, Err: err}
	}
	if epid := v.Attr("epid"); epid != "" {
		addr, err = addr.WithEndpoint(epid)
		if err != nil {
			return address.Address{}, ParseError{Header: name, Err: err}
		}
	}
	return addr, nil
}
