// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

import (
	"github.com/google/uuid"

	"mellium.im/msnp/address"
)

// Owner is the contact representing the local user. It additionally knows the
// endpoint id of this client and owns the private endpoint records of every
// place the account is signed in at.
type Owner struct {
	*Contact

	epid string
}

// NewOwner creates the owner with the given canonical account. If epid is
// empty a fresh endpoint id is generated for this client.
func NewOwner(account, epid string) *Owner {
	if epid == "" {
		epid = uuid.New().String()
	}
	return &Owner{
		Contact: newContact(account, address.WindowsLive),
		epid:    epid,
	}
}

// EndpointID returns this client's own endpoint id.
func (o *Owner) EndpointID() string {
	return o.epid
}

// Is reports whether the given identity is the owner. The comparison is an
// exact account plus native network type match on canonical forms.
func (o *Owner) Is(account string, network address.NetworkType) bool {
	return network == o.NetworkType() && account == o.Account()
}

// ReconcileEndpoints replaces the owner's endpoint records with the ones in
// the given profile payload snapshot and returns which endpoint ids signed in
// and out between the two snapshots. The owner's own endpoint id is exempt
// from both reports: this client learns about its own sign-in and sign-out
// from the connection, not from a profile diff.
func (o *Owner) ReconcileEndpoints(next []Endpoint) (signedIn, signedOut []string) {
	previous := o.EndpointIDs()
	ids := make(map[string]bool, len(next))
	for _, ep := range next {
		ids[ep.ID] = true
	}
	signedIn, signedOut = DiffSet(previous, ids)

	own := canonicalEPID(o.epid)
	signedIn = dropEndpoint(signedIn, own)
	signedOut = dropEndpoint(signedOut, own)

	o.mu.Lock()
	o.endpoints = make(map[string]Endpoint, len(next))
	for _, ep := range next {
		o.endpoints[ep.ID] = ep
	}
	o.mu.Unlock()
	return signedIn, signedOut
}

// OtherPlaces returns the endpoint ids of every place other than this client
// where the account is signed in.
func (o *Owner) OtherPlaces() []string {
	own := canonicalEPID(o.epid)
	var places []string
	for id := range o.EndpointIDs() {
		if canonicalEPID(id) != own {
			places = append(places, id)
		}
	}
	return places
}

func dropEndpoint(ids []string, canonical string) []string {
	filtered := ids[:0]
	for _, id := range ids {
		if canonicalEPID(id) == canonical {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

// canonicalEPID strips braces and normalizes the GUID so that wire and
// generated spellings compare equal.
func canonicalEPID(id string) string {
	parsed, err := uuid.Parse(trimBraces(id))
	if err != nil {
		return id
	}
	return parsed.String()
}

func trimBraces(id string) string {
	if len(id) >= 2 && id[0] == '{' && id[len(id)-1] == '}' {
		return id[1 : len(id)-1]
	}
	return id
}
