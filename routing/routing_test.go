// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package routing_test

import (
	"errors"
	"testing"

	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
	"mellium.im/msnp/routing"
)

func value(s string) command.MIMEValue {
	return command.ParseMIMEValue(s)
}

func TestResolveOrdinary(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")

	info, err := routing.Resolve(
		value("1:alice@example.net;epid={f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e}"),
		value("1:me@example.net"),
		"", &dir, owner,
	)
	if err != nil {
		t.Fatal(err)
	}
	if info.Sender.Account() != "alice@example.net" {
		t.Errorf("Got sender %s", info.Sender.Account())
	}
	if info.Receiver != owner.Contact {
		t.Error("Expected the receiver to resolve to the owner singleton")
	}
	if info.SenderEndpoint != "f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e" {
		t.Errorf("Got sender endpoint %q", info.SenderEndpoint)
	}

	// Deterministic: resolving again yields the very same contact object.
	again, err := routing.Resolve(
		value("1:alice@example.net"), value("1:me@example.net"), "", &dir, owner,
	)
	if err != nil {
		t.Fatal(err)
	}
	if again.Sender != info.Sender {
		t.Error("Expected repeat resolution to return the same contact object")
	}
}

func TestResolveOwnerNotDuplicated(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	info, err := routing.Resolve(
		value("1:Me@Example.NET"), value("1:alice@example.net"), "", &dir, owner,
	)
	if err != nil {
		t.Fatal(err)
	}
	if info.Sender != owner.Contact {
		t.Error("Expected case-insensitive owner detection")
	}
	if _, ok := dir.Get("me@example.net", address.WindowsLive); ok {
		t.Error("The owner must not be duplicated into the directory")
	}
}

func TestResolveCircleMember(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	circle := dir.GetOrCreateCircle("group@live.com", address.Circle)

	info, err := routing.Resolve(
		value("1:alice@example.net;via=9:group@live.com"),
		value("1:me@example.net"),
		"", &dir, owner,
	)
	if err != nil {
		t.Fatal(err)
	}
	if info.SenderGateway != circle.Contact {
		t.Error("Expected the sender gateway to be the circle")
	}
	member, ok := circle.Roster().Get("alice@example.net", address.WindowsLive)
	if !ok || info.Sender != member {
		t.Error("Expected the sender to live in the circle roster")
	}
	if _, ok := dir.Get("alice@example.net", address.WindowsLive); ok {
		t.Error("Circle members must not be created in the top level directory")
	}
}

func TestResolveViaHeaderPrecedence(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	dir.GetOrCreateCircle("inline@live.com", address.Circle)
	header := dir.GetOrCreateCircle("header@live.com", address.Circle)

	info, err := routing.Resolve(
		value("1:alice@example.net;via=9:inline@live.com"),
		value("1:me@example.net"),
		"9:header@live.com", &dir, owner,
	)
	if err != nil {
		t.Fatal(err)
	}
	if info.SenderGateway != header.Contact {
		t.Error("Expected the explicit Via header to win over the inline via segment")
	}
	if info.MessageGateway != header {
		t.Error("Expected the message gateway to be the Via header circle")
	}
}

func TestResolveUnknownCircle(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	_, err := routing.Resolve(
		value("9:missing@live.com"), value("1:me@example.net"), "", &dir, owner,
	)
	if !errors.Is(err, routing.ErrUnknownGateway) {
		t.Errorf("Got %v but expected ErrUnknownGateway", err)
	}
	if _, ok := dir.Circle("missing@live.com"); ok {
		t.Error("An unknown circle must not be created on the fly")
	}
}

func TestResolveRemoteGateway(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	gateway := dir.GetOrCreate(address.FacebookGateway, address.RemoteNetwork)

	info, err := routing.Resolve(
		value("14:mercutio@facebook.example;via=14:facebook.com"),
		value("1:me@example.net"),
		"", &dir, owner,
	)
	if err != nil {
		t.Fatal(err)
	}
	if info.SenderGateway != gateway {
		t.Error("Expected the sender gateway to be the remote-network bridge")
	}
	if via, ok := info.Sender.Via(); !ok || via != gateway {
		t.Error("Expected the sender to back-reference the gateway")
	}
}

func TestResolveRemoteGatewayMissing(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	_, err := routing.Resolve(
		value("14:mercutio@facebook.example;via=14:facebook.com"),
		value("1:me@example.net"),
		"", &dir, owner,
	)
	if !errors.Is(err, routing.ErrUnknownGateway) {
		t.Errorf("Got %v but expected ErrUnknownGateway", err)
	}
}

func TestResolveParseError(t *testing.T) {
	var dir directory.Directory
	owner := directory.NewOwner("me@example.net", "")
	_, err := routing.Resolve(
		value("alice@example.net"), value("1:me@example.net"), "", &dir, owner,
	)
	var parseErr routing.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Got %v but expected a ParseError", err)
	}
	if parseErr.Header != "From" {
		t.Errorf("Got header %q but expected From", parseErr.Header)
	}
}
