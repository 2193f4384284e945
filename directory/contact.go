// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

import (
	"sync"

	"mellium.im/msnp/address"
)

// Endpoint is one signed in device of a contact, keyed by its endpoint id.
// Private is non-nil only for the owner's own endpoints.
type Endpoint struct {
	ID           string
	Capabilities Capabilities
	Private      *PrivateEndpoint
}

// PrivateEndpoint carries the owner-only attributes of an endpoint.
type PrivateEndpoint struct {
	Name       string
	Idle       bool
	ClientType int
	State      Status
}

// Contact is a peer known to the directory. A contact is identified by its
// canonical account and network type; everything else is mutable state fed by
// inbound presence and profile commands.
//
// Contacts are shared between the notification connection and every
// switchboard connection, so all mutation goes through the contact's own
// mutex.
type Contact struct {
	account string
	network address.NetworkType

	mu          sync.RWMutex
	displayName string
	status      Status
	psm         string
	media       string
	lists       Lists
	endpoints   map[string]Endpoint
	via         *Contact
}

func newContact(account string, network address.NetworkType) *Contact {
	return &Contact{account: account, network: network}
}

// Account returns the canonical account of the contact.
func (c *Contact) Account() string {
	return c.account
}

// NetworkType returns the network type of the contact.
func (c *Contact) NetworkType() address.NetworkType {
	return c.network
}

// Address returns the contact's composite address, including a via segment
// when the contact is reached through a gateway.
func (c *Contact) Address() address.Address {
	a, err := address.New(c.network, c.account)
	if err != nil {
		// The account was canonicalized when the contact was created, so it
		// cannot fail to parse again.
		panic("directory: invalid stored account: " + err.Error())
	}
	c.mu.RLock()
	via := c.via
	c.mu.RUnlock()
	if via != nil {
		a = a.WithVia(via.Address())
	}
	return a
}

// DisplayName returns the contact's display name, falling back to the account
// when none was received.
func (c *Contact) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.displayName == "" {
		return c.account
	}
	return c.displayName
}

// SetDisplayName updates the display name.
func (c *Contact) SetDisplayName(name string) {
	c.mu.Lock()
	c.displayName = name
	c.mu.Unlock()
}

// Status returns the contact's presence.
func (c *Contact) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus updates the contact's presence and returns the previous value and
// whether it changed. Callers use the report to avoid re-firing transition
// events for repeated identical notifications.
func (c *Contact) SetStatus(s Status) (old Status, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.status
	c.status = s
	return old, old != s
}

// PersonalMessage returns the personal status message.
func (c *Contact) PersonalMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.psm
}

// SetPersonalMessage updates the personal status message and the current
// media string.
func (c *Contact) SetPersonalMessage(psm, media string) {
	c.mu.Lock()
	c.psm = psm
	c.media = media
	c.mu.Unlock()
}

// CurrentMedia returns the "now playing" string.
func (c *Contact) CurrentMedia() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.media
}

// Lists returns the membership lists the contact appears on.
func (c *Contact) Lists() Lists {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lists
}

// AddLists sets the given membership list bits.
func (c *Contact) AddLists(l Lists) {
	c.mu.Lock()
	c.lists |= l
	c.mu.Unlock()
}

// RemoveLists clears the given membership list bits.
func (c *Contact) RemoveLists(l Lists) {
	c.mu.Lock()
	c.lists &^= l
	c.mu.Unlock()
}

// Blocked reports whether the contact is on the block list.
func (c *Contact) Blocked() bool {
	return c.Lists().Has(ListBlock)
}

// Endpoint returns the endpoint with the given id.
func (c *Contact) Endpoint(id string) (Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.endpoints[id]
	return ep, ok
}

// SetEndpoint adds or replaces an endpoint record.
func (c *Contact) SetEndpoint(ep Endpoint) {
	c.mu.Lock()
	if c.endpoints == nil {
		c.endpoints = make(map[string]Endpoint)
	}
	c.endpoints[ep.ID] = ep
	c.mu.Unlock()
}

// RemoveEndpoint removes an endpoint record.
func (c *Contact) RemoveEndpoint(id string) {
	c.mu.Lock()
	delete(c.endpoints, id)
	c.mu.Unlock()
}

// EndpointIDs returns the set of currently known endpoint ids.
func (c *Contact) EndpointIDs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make(map[string]bool, len(c.endpoints))
	for id := range c.endpoints {
		ids[id] = true
	}
	return ids
}

// ClearEndpoints removes every endpoint record, used when a contact goes
// fully offline.
func (c *Contact) ClearEndpoints() {
	c.mu.Lock()
	c.endpoints = nil
	c.mu.Unlock()
}

// Via returns the gateway contact this contact is reached through, if any.
func (c *Contact) Via() (*Contact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.via, c.via != nil
}

// SetVia records the gateway contact this contact is reached through.
func (c *Contact) SetVia(gateway *Contact) {
	c.mu.Lock()
	c.via = gateway
	c.mu.Unlock()
}
