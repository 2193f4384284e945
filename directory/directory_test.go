// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"mellium.im/msnp/address"
	"mellium.im/msnp/directory"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	var d directory.Directory
	for i, tc := range [...]struct {
		account string
		network address.NetworkType
	}{
		0: {"alice@example.net", address.WindowsLive},
		1: {"alice@example.net", address.Yahoo},
		2: {"+15555550199", address.Telephone},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			a := d.GetOrCreate(tc.account, tc.network)
			b := d.GetOrCreate(tc.account, tc.network)
			if a != b {
				t.Error("Expected repeat get-or-create to return the same contact object")
			}
		})
	}
	// Same account on a different network is a different contact.
	a := d.GetOrCreate("alice@example.net", address.WindowsLive)
	b := d.GetOrCreate("alice@example.net", address.Yahoo)
	if a == b {
		t.Error("Expected distinct contacts per network type")
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	var d directory.Directory
	contacts := make([]*directory.Contact, 16)
	var wg sync.WaitGroup
	for i := range contacts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			contacts[i] = d.GetOrCreate("alice@example.net", address.WindowsLive)
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(contacts); i++ {
		if contacts[i] != contacts[0] {
			t.Fatal("Concurrent get-or-create produced distinct contact objects")
		}
	}
}

func TestReset(t *testing.T) {
	var d directory.Directory
	before := d.GetOrCreate("alice@example.net", address.WindowsLive)
	d.GetOrCreateCircle("group@live.com", address.Circle)
	d.Reset()
	if d.Len() != 0 {
		t.Errorf("Got %d contacts after reset", d.Len())
	}
	if _, ok := d.Circle("group@live.com"); ok {
		t.Error("Expected circles to be cleared on reset")
	}
	after := d.GetOrCreate("alice@example.net", address.WindowsLive)
	if before == after {
		t.Error("Expected a fresh contact object after reset")
	}
}

func TestCircleRoster(t *testing.T) {
	var d directory.Directory
	circle := d.GetOrCreateCircle("f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e@live.com", address.Circle)
	if again := d.GetOrCreateCircle("f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e@live.com", address.Circle); again != circle {
		t.Error("Expected repeat circle get-or-create to return the same object")
	}
	member := circle.Roster().GetOrCreate("alice@example.net", address.WindowsLive)
	if _, ok := d.Get("alice@example.net", address.WindowsLive); ok {
		t.Error("Circle members must not leak into the top level directory")
	}
	if again := circle.Roster().GetOrCreate("alice@example.net", address.WindowsLive); again != member {
		t.Error("Expected nested get-or-create to be idempotent")
	}
}

func TestSyncMembers(t *testing.T) {
	var d directory.Directory
	circle := d.GetOrCreateCircle("group@live.com", address.Circle)
	circle.SyncMembers([]address.Address{
		address.MustParse("1:alice@example.net"),
		address.MustParse("1:bob@example.net"),
	})

	joined, left := circle.SyncMembers([]address.Address{
		address.MustParse("1:bob@example.net"),
		address.MustParse("32:romeo@yahoo.example"),
	})
	sort.Strings(joined)
	if len(joined) != 1 || joined[0] != "romeo@yahoo.example" {
		t.Errorf("Got joined %v but expected [romeo@yahoo.example]", joined)
	}
	if len(left) != 1 || left[0] != "alice@example.net" {
		t.Errorf("Got left %v but expected [alice@example.net]", left)
	}
	if _, ok := circle.Roster().Get("alice@example.net", address.WindowsLive); ok {
		t.Error("Expected departed member to be removed from the roster")
	}
	member, ok := circle.Roster().Get("romeo@yahoo.example", address.Yahoo)
	if !ok {
		t.Fatal("Expected new member on the roster")
	}
	if via, ok := member.Via(); !ok || via != circle.Contact {
		t.Error("Expected member to reference the circle as its gateway")
	}
}

func TestSetStatusReportsChange(t *testing.T) {
	var d directory.Directory
	c := d.GetOrCreate("alice@example.net", address.WindowsLive)
	if old, changed := c.SetStatus(directory.StatusOnline); !changed || old != directory.StatusUnknown {
		t.Errorf("Got old=%v changed=%t", old, changed)
	}
	if _, changed := c.SetStatus(directory.StatusOnline); changed {
		t.Error("Repeated identical status must not report a change")
	}
	if old, changed := c.SetStatus(directory.StatusOffline); !changed || old != directory.StatusOnline {
		t.Errorf("Got old=%v changed=%t", old, changed)
	}
}

func TestOwnerReconcileEndpoints(t *testing.T) {
	owner := directory.NewOwner("me@example.net", "11111111-1111-1111-1111-111111111111")
	owner.ReconcileEndpoints([]directory.Endpoint{
		{ID: "{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa}"},
		{ID: "{bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb}"},
	})
	signedIn, signedOut := owner.ReconcileEndpoints([]directory.Endpoint{
		{ID: "{bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb}"},
		{ID: "{cccccccc-cccc-cccc-cccc-cccccccccccc}"},
	})
	if len(signedIn) != 1 || signedIn[0] != "{cccccccc-cccc-cccc-cccc-cccccccccccc}" {
		t.Errorf("Got signed in %v", signedIn)
	}
	if len(signedOut) != 1 || signedOut[0] != "{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa}" {
		t.Errorf("Got signed out %v", signedOut)
	}
}

func TestOwnerOwnEndpointExempt(t *testing.T) {
	owner := directory.NewOwner("me@example.net", "11111111-1111-1111-1111-111111111111")
	owner.ReconcileEndpoints([]directory.Endpoint{
		{ID: "{11111111-1111-1111-1111-111111111111}"},
		{ID: "{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa}"},
	})
	// The server dropping our own endpoint from the payload must not produce
	// a signed-out-elsewhere report for this client.
	_, signedOut := owner.ReconcileEndpoints([]directory.Endpoint{
		{ID: "{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa}"},
	})
	if len(signedOut) != 0 {
		t.Errorf("Got signed out %v but expected none", signedOut)
	}
}

func TestOtherPlaces(t *testing.T) {
	owner := directory.NewOwner("me@example.net", "11111111-1111-1111-1111-111111111111")
	owner.ReconcileEndpoints([]directory.Endpoint{
		{ID: "{11111111-1111-1111-1111-111111111111}"},
		{ID: "{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa}"},
	})
	places := owner.OtherPlaces()
	if len(places) != 1 || places[0] != "{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa}" {
		t.Errorf("Got other places %v", places)
	}
}
