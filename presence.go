// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"net/url"
	"strconv"

	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
	"mellium.im/msnp/event"
)

// handleOnline processes a status notification. Delivery is neither
// deduplicated nor monotonic on the wire, so transition events are derived
// by diffing against the previously stored status.
func (s *Session) handleOnline(cmd command.Command) {
	status := directory.ParseStatus(cmd.Arg(0))
	if status == directory.StatusUnknown {
		s.logger.Warn("presence with unknown status dropped", cmd.String())
		return
	}
	a, err := address.Parse(cmd.Arg(1))
	if err != nil {
		s.logger.Warn("presence with bad address dropped", err)
		return
	}
	c := s.contactFor(a)
	if display := cmd.Arg(2); display != "" {
		if unescaped, err := url.QueryUnescape(display); err == nil {
			display = unescaped
		}
		c.SetDisplayName(display)
	}
	if epid := a.Endpoint(); epid != "" {
		if caps, err := directory.ParseCapabilities(cmd.Arg(3)); err == nil {
			c.SetEndpoint(directory.Endpoint{ID: epid, Capabilities: caps})
		}
	}
	s.applyStatus(c, status)
}

// handleOffline processes an offline notification. An offline notification
// for a contact the directory has never seen carries no information and is
// dropped.
func (s *Session) handleOffline(cmd command.Command) {
	a, err := address.Parse(cmd.Arg(0))
	if err != nil {
		s.logger.Warn("presence with bad address dropped", err)
		return
	}
	c, ok := s.lookupContact(a)
	if !ok {
		s.logger.Debug("offline notification for unknown contact dropped", cmd.String())
		return
	}
	c.ClearEndpoints()
	s.applyStatus(c, directory.StatusOffline)
}

// applyStatus stores the new status and fires the derived events. A
// repeated notification with an unchanged status fires nothing.
func (s *Session) applyStatus(c *directory.Contact, status directory.Status) {
	old, changed := c.SetStatus(status)
	if !changed {
		return
	}
	s.handlers.StatusChanged(event.StatusChanged{Contact: c, Old: old, New: status})
	switch {
	case status.Online() && !old.Online():
		s.handlers.ContactOnline(event.ContactOnline{Contact: c})
	case !status.Online() && old.Online():
		s.handlers.ContactOffline(event.ContactOffline{Contact: c})
	}
}

// handleProfile processes a profile extension payload. For the owner it
// reconciles the signed-in endpoint set; for everyone else it updates the
// personal message and endpoint records.
func (s *Session) handleProfile(cmd command.Command) {
	a, err := address.Parse(cmd.Arg(0))
	if err != nil {
		s.logger.Warn("profile with bad address dropped", err)
		return
	}
	profile, err := command.ParseProfilePayload(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed profile payload dropped", err)
		return
	}

	if s.owner.Is(a.Account(), a.NetworkType()) {
		s.reconcileOwner(profile)
		return
	}

	c := s.contactFor(a)
	endpoints := make([]directory.Endpoint, 0, len(profile.Endpoints))
	c.ClearEndpoints()
	for _, ep := range profile.Endpoints {
		caps, _ := directory.ParseCapabilities(ep.Capabilities)
		endpoints = append(endpoints, directory.Endpoint{ID: ep.ID, Capabilities: caps})
	}
	for _, ep := range endpoints {
		c.SetEndpoint(ep)
	}
	if profile.PSM != c.PersonalMessage() || profile.CurrentMedia != c.CurrentMedia() {
		c.SetPersonalMessage(profile.PSM, profile.CurrentMedia)
		s.handlers.PersonalMessage(event.PersonalMessage{
			Contact: c,
			Message: profile.PSM,
			Media:   profile.CurrentMedia,
		})
	}
}

// reconcileOwner diffs the owner's signed-in places against the previous
// snapshot. In single place mode any newly signed-in place is told to sign
// out again.
func (s *Session) reconcileOwner(profile command.ProfilePayload) {
	s.owner.SetPersonalMessage(profile.PSM, profile.CurrentMedia)

	private := make(map[string]*directory.PrivateEndpoint, len(profile.PrivateEndpoints))
	for _, p := range profile.PrivateEndpoints {
		private[p.ID] = &directory.PrivateEndpoint{
			Name:       p.Name,
			Idle:       p.Idle,
			ClientType: p.ClientType,
			State:      directory.ParseStatus(p.State),
		}
	}
	endpoints := make([]directory.Endpoint, 0, len(profile.Endpoints))
	for _, ep := range profile.Endpoints {
		caps, _ := directory.ParseCapabilities(ep.Capabilities)
		endpoints = append(endpoints, directory.Endpoint{
			ID:           ep.ID,
			Capabilities: caps,
			Private:      private[ep.ID],
		})
	}

	signedIn, signedOut := s.owner.ReconcileEndpoints(endpoints)
	for _, id := range signedOut {
		s.handlers.SignedOutElsewhere(event.SignedOutElsewhere{EndpointID: id})
	}
	for _, id := range signedIn {
		s.handlers.SignedInElsewhere(event.SignedInElsewhere{EndpointID: id})
		if s.singlePlace {
			s.signOutPlace(id)
		}
	}
}

// signOutPlace asks another signed-in place of the owner's account to
// disconnect.
func (s *Session) signOutPlace(epid string) {
	id := s.NextTrID()
	cmd := command.New(command.UUN,
		strconv.FormatUint(uint64(id), 10),
		s.owner.Account()+";"+braced(epid), "4")
	cmd.Payload = []byte("goawyplzthxbye")
	if err := s.WriteCommand(cmd); err != nil {
		s.logger.Error("sign-out request write failed", err)
	}
}

// contactFor resolves an address to its directory contact, creating it on
// first reference. Addresses carrying an inline via resolve into the circle
// roster or through the gateway contact.
func (s *Session) contactFor(a address.Address) *directory.Contact {
	via, ok := a.Via()
	if !ok {
		return s.dir.GetOrCreate(a.Account(), a.NetworkType())
	}
	if via.NetworkType().IsGroup() {
		circle := s.dir.GetOrCreateCircle(via.Account(), via.NetworkType())
		c := circle.Roster().GetOrCreate(a.Account(), a.NetworkType())
		c.SetVia(circle.Contact)
		return c
	}
	gateway := s.dir.GetOrCreate(via.Account(), via.NetworkType())
	c := s.dir.GetOrCreate(a.Account(), a.NetworkType())
	c.SetVia(gateway)
	return c
}

// lookupContact is like contactFor but never creates anything.
func (s *Session) lookupContact(a address.Address) (*directory.Contact, bool) {
	via, ok := a.Via()
	if ok && via.NetworkType().IsGroup() {
		circle, found := s.dir.Circle(via.Account())
		if !found {
			return nil, false
		}
		return circle.Roster().Get(a.Account(), a.NetworkType())
	}
	return s.dir.Get(a.Account(), a.NetworkType())
}
