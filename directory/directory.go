// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package directory implements the in-memory registry of contacts, circles,
// and groups.
//
// A directory is keyed by composite identity (canonical account plus network
// type) and offers get-or-create semantics: resolving the same identity twice
// always yields the same contact object. Circles and temporary groups own a
// nested directory holding their membership roster.
package directory // import "mellium.im/msnp/directory"

import (
	"sync"

	"mellium.im/msnp/address"
)

type identity struct {
	account string
	network address.NetworkType
}

// Directory is a registry of contacts keyed by composite identity. The zero
// value is empty and ready for use. All methods are safe for concurrent use;
// the directory is shared between the notification connection and every
// switchboard connection.
type Directory struct {
	mu       sync.Mutex
	contacts map[identity]*Contact
	circles  map[identity]*Circle
}

// GetOrCreate returns the contact for the given identity, creating it on
// first reference. Repeated calls with the same identity return the same
// contact object.
func (d *Directory) GetOrCreate(account string, network address.NetworkType) *Contact {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := identity{account: account, network: network}
	if c, ok := d.contacts[id]; ok {
		return c
	}
	if d.contacts == nil {
		d.contacts = make(map[identity]*Contact)
	}
	c := newContact(account, network)
	d.contacts[id] = c
	return c
}

// Get returns the contact for the given identity without creating it.
func (d *Directory) Get(account string, network address.NetworkType) (*Contact, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.contacts[identity{account: account, network: network}]
	return c, ok
}

// GetOrCreateCircle returns the circle or temporary group with the given
// identity, creating it on first reference. The network type must be a group
// type.
func (d *Directory) GetOrCreateCircle(account string, network address.NetworkType) *Circle {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := identity{account: account, network: network}
	if c, ok := d.circles[id]; ok {
		return c
	}
	if d.circles == nil {
		d.circles = make(map[identity]*Circle)
	}
	c := &Circle{Contact: newContact(account, network), roster: &Directory{}}
	d.circles[id] = c
	return c
}

// Circle returns the circle or temporary group with the given account,
// regardless of which of the two group network types it has.
func (d *Directory) Circle(account string) (*Circle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.circles[identity{account: account, network: address.Circle}]; ok {
		return c, true
	}
	c, ok := d.circles[identity{account: account, network: address.TemporaryGroup}]
	return c, ok
}

// Remove removes the contact or circle with the given identity. Removing an
// unknown identity is not an error.
func (d *Directory) Remove(account string, network address.NetworkType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := identity{account: account, network: network}
	delete(d.contacts, id)
	delete(d.circles, id)
}

// Len returns the number of contacts (not circles) in the directory.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.contacts)
}

// Range calls f for every contact in the directory until f reports false.
// The directory lock is not held during the calls.
func (d *Directory) Range(f func(*Contact) bool) {
	d.mu.Lock()
	contacts := make([]*Contact, 0, len(d.contacts))
	for _, c := range d.contacts {
		contacts = append(contacts, c)
	}
	d.mu.Unlock()
	for _, c := range contacts {
		if !f(c) {
			return
		}
	}
}

// RangeCircles is like Range but over circles and temporary groups.
func (d *Directory) RangeCircles(f func(*Circle) bool) {
	d.mu.Lock()
	circles := make([]*Circle, 0, len(d.circles))
	for _, c := range d.circles {
		circles = append(circles, c)
	}
	d.mu.Unlock()
	for _, c := range circles {
		if !f(c) {
			return
		}
	}
}

// Reset clears all contacts and circles. It is used on sign-off.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.contacts = nil
	d.circles = nil
	d.mu.Unlock()
}
