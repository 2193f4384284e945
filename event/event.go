// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package event contains the notifications surfaced to application code.
//
// Each notification is a small plain struct; subscribers register typed
// callbacks on a Handlers value instead of implementing a polymorphic
// listener interface.
package event // import "mellium.im/msnp/event"

import (
	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
)

// SignOutReason describes why a session ended.
type SignOutReason int

const (
	// SignOutLocal indicates that the local user ended the session.
	SignOutLocal SignOutReason = iota

	// SignOutOtherPlace indicates that the same account signed in from
	// another place and the server terminated this session (OUT OTH).
	SignOutOtherPlace

	// SignOutServerShutdown indicates that the server is shutting down
	// (OUT SSD).
	SignOutServerShutdown

	// SignOutConnectionLost indicates that the transport failed.
	SignOutConnectionLost

	// SignOutProtocolError indicates that a fatal protocol or dispatch error
	// tore the connection down.
	SignOutProtocolError
)

// StatusChanged is fired when a presence update changes a contact's stored
// status. Repeated notifications with an unchanged status fire nothing.
type StatusChanged struct {
	Contact *directory.Contact
	Old     directory.Status
	New     directory.Status
}

// ContactOnline is fired when a contact transitions from an offline status
// to an online one. Repeated online notifications with an unchanged status
// do not re-fire it.
type ContactOnline struct {
	Contact *directory.Contact
}

// ContactOffline is fired when a contact transitions to offline.
type ContactOffline struct {
	Contact *directory.Contact
}

// PersonalMessage is fired when a contact's personal status message or
// current media changes.
type PersonalMessage struct {
	Contact *directory.Contact
	Message string
	Media   string
}

// Message is fired for every chat message delivered to the local user,
// whatever transport carried it. The message class distinguishes text,
// typing notifications, nudges, and emoticon definitions.
type Message struct {
	From    address.Address
	Sender  *directory.Contact
	Message command.Message

	// ConversationID names the conversation the message belongs to. It is
	// empty for messages delivered over the notification channel.
	ConversationID string
}

// GroupMemberJoined is fired when a member appears in a group roster.
type GroupMemberJoined struct {
	Group   *directory.Circle
	Account string
}

// GroupMemberLeft is fired when a member disappears from a group roster.
type GroupMemberLeft struct {
	Group   *directory.Circle
	Account string
}

// SessionEstablished is fired once the notification session has
// authenticated and published initial presence.
type SessionEstablished struct {
	Owner *directory.Owner
}

// SessionClosed is fired when the notification session ends for any
// reason. Err is nil for clean local sign-out.
type SessionClosed struct {
	Reason SignOutReason
	Err    error
}

// ConversationCreated is fired when a conversation becomes usable, whether
// started locally or by a remote invitation.
type ConversationCreated struct {
	ID        string
	Initiator address.Address
}

// ConversationEnded is fired when a conversation is explicitly ended and
// will not be transparently re-established.
type ConversationEnded struct {
	ID string
}

// SignedInElsewhere is fired when another endpoint of the local account
// signs in.
type SignedInElsewhere struct {
	EndpointID string
}

// SignedOutElsewhere is fired when another endpoint of the local account
// signs out.
type SignedOutElsewhere struct {
	EndpointID string
}

// AuthenticationError is fired when ticket acquisition or the server-side
// authentication exchange fails.
type AuthenticationError struct {
	Err error
}

// ServerError is fired for numeric protocol errors that are recoverable
// and therefore do not terminate the session.
type ServerError struct {
	Err *command.Error
}

// Handlers is the subscriber registry. Any nil field is skipped; the zero
// value discards every notification.
//
// Callbacks are invoked from the session's read loop and must not block.
type Handlers struct {
	HandleStatusChanged       func(StatusChanged)
	HandleContactOnline       func(ContactOnline)
	HandleContactOffline      func(ContactOffline)
	HandlePersonalMessage     func(PersonalMessage)
	HandleMessage             func(Message)
	HandleGroupMemberJoined   func(GroupMemberJoined)
	HandleGroupMemberLeft     func(GroupMemberLeft)
	HandleSessionEstablished  func(SessionEstablished)
	HandleSessionClosed       func(SessionClosed)
	HandleConversationCreated func(ConversationCreated)
	HandleConversationEnded   func(ConversationEnded)
	HandleSignedInElsewhere   func(SignedInElsewhere)
	HandleSignedOutElsewhere  func(SignedOutElsewhere)
	HandleAuthenticationError func(AuthenticationError)
	HandleServerError         func(ServerError)
}

// StatusChanged dispatches e if a callback is registered.
func (h *Handlers) StatusChanged(e StatusChanged) {
	if h != nil && h.HandleStatusChanged != nil {
		h.HandleStatusChanged(e)
	}
}

// ContactOnline dispatches e if a callback is registered.
func (h *Handlers) ContactOnline(e ContactOnline) {
	if h != nil && h.HandleContactOnline != nil {
		h.HandleContactOnline(e)
	}
}

// ContactOffline dispatches e if a callback is registered.
func (h *Handlers) ContactOffline(e ContactOffline) {
	if h != nil && h.HandleContactOffline != nil {
		h.HandleContactOffline(e)
	}
}

// PersonalMessage dispatches e if a callback is registered.
func (h *Handlers) PersonalMessage(e PersonalMessage) {
	if h != nil && h.HandlePersonalMessage != nil {
		h.HandlePersonalMessage(e)
	}
}

// Message dispatches e if a callback is registered.
func (h *Handlers) Message(e Message) {
	if h != nil && h.HandleMessage != nil {
		h.HandleMessage(e)
	}
}

// GroupMemberJoined dispatches e if a callback is registered.
func (h *Handlers) GroupMemberJoined(e GroupMemberJoined) {
	if h != nil && h.HandleGroupMemberJoined != nil {
		h.HandleGroupMemberJoined(e)
	}
}

// GroupMemberLeft dispatches e if a callback is registered.
func (h *Handlers) GroupMemberLeft(e GroupMemberLeft) {
	if h != nil && h.HandleGroupMemberLeft != nil {
		h.HandleGroupMemberLeft(e)
	}
}

// SessionEstablished dispatches e if a callback is registered.
func (h *Handlers) SessionEstablished(e SessionEstablished) {
	if h != nil && h.HandleSessionEstablished != nil {
		h.HandleSessionEstablished(e)
	}
}

// SessionClosed dispatches e if a callback is registered.
func (h *Handlers) SessionClosed(e SessionClosed) {
	if h != nil && h.HandleSessionClosed != nil {
		h.HandleSessionClosed(e)
	}
}

// ConversationCreated dispatches e if a callback is registered.
func (h *Handlers) ConversationCreated(e ConversationCreated) {
	if h != nil && h.HandleConversationCreated != nil {
		h.HandleConversationCreated(e)
	}
}

// ConversationEnded dispatches e if a callback is registered.
func (h *Handlers) ConversationEnded(e ConversationEnded) {
	if h != nil && h.HandleConversationEnded != nil {
		h.HandleConversationEnded(e)
	}
}

// SignedInElsewhere dispatches e if a callback is registered.
func (h *Handlers) SignedInElsewhere(e SignedInElsewhere) {
	if h != nil && h.HandleSignedInElsewhere != nil {
		h.HandleSignedInElsewhere(e)
	}
}

// SignedOutElsewhere dispatches e if a callback is registered.
func (h *Handlers) SignedOutElsewhere(e SignedOutElsewhere) {
	if h != nil && h.HandleSignedOutElsewhere != nil {
		h.HandleSignedOutElsewhere(e)
	}
}

// AuthenticationError dispatches e if a callback is registered.
func (h *Handlers) AuthenticationError(e AuthenticationError) {
	if h != nil && h.HandleAuthenticationError != nil {
		h.HandleAuthenticationError(e)
	}
}

// ServerError dispatches e if a callback is registered.
func (h *Handlers) ServerError(e ServerError) {
	if h != nil && h.HandleServerError != nil {
		h.HandleServerError(e)
	}
}
