// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package conversation unifies switchboard backed and cross-network
// conversations behind one API.
//
// A conversation that every other participant has left is expired, not
// ended: the next operation transparently obtains a fresh switchboard,
// re-invites the parties that left, and proceeds. Only an explicit End
// makes further operations fail.
package conversation // import "mellium.im/msnp/conversation"

import (
	"context"
	"errors"
	"sync"

	"github.com/tryfix/log"

	"mellium.im/msnp"
	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/event"
	"mellium.im/msnp/switchboard"
)

// Errors returned by conversations.
var (
	// ErrEnded is returned by every operation on an explicitly ended
	// conversation.
	ErrEnded = errors.New("conversation: conversation ended")

	// ErrUnsupported is returned for operations the conversation's transport
	// cannot carry, such as custom emoticons on a cross-network
	// conversation.
	ErrUnsupported = errors.New("conversation: operation not supported on this conversation")
)

// A Conversation is one chat with one or more participants. Operations are
// safe for concurrent use.
type Conversation struct {
	id    string
	mgr   *Manager
	peer  address.Address // cross-network only
	cross bool

	mu      sync.Mutex
	ended   bool
	sb      *switchboard.Session
	parties map[string]bool // every non-owner account ever invited or joined
}

// ID returns the conversation id.
func (c *Conversation) ID() string {
	return c.id
}

// CrossNetwork reports whether the conversation runs over the notification
// channel bridge instead of a switchboard.
func (c *Conversation) CrossNetwork() bool {
	return c.cross
}

// Invite adds a contact to the conversation. Cross-network conversations
// are strictly one-to-one and reject invitations.
func (c *Conversation) Invite(ctx context.Context, account string) error {
	if c.cross {
		return ErrUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ErrEnded
	}
	if err := c.ensureLive(ctx); err != nil {
		return err
	}
	c.parties[account] = true
	return c.sb.Invite(account)
}

// SendText sends a plain text message.
func (c *Conversation) SendText(ctx context.Context, body string) error {
	return c.send(ctx, command.NewText(body))
}

// SendTyping sends a typing notification.
func (c *Conversation) SendTyping(ctx context.Context) error {
	return c.send(ctx, command.NewTyping(c.mgr.ns.Owner().Account()))
}

// SendNudge sends a nudge.
func (c *Conversation) SendNudge(ctx context.Context) error {
	return c.send(ctx, command.NewNudge())
}

// SendEmoticonDefinitions publishes custom emoticon definitions to the
// conversation. The cross-network bridge cannot carry them.
func (c *Conversation) SendEmoticonDefinitions(ctx context.Context, definitions string) error {
	if c.cross {
		return ErrUnsupported
	}
	return c.send(ctx, command.NewEmoticonDefinition(definitions))
}

func (c *Conversation) send(ctx context.Context, m command.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return ErrEnded
	}
	if c.cross {
		return c.mgr.ns.SendMessage(ctx, c.peer, m)
	}
	if err := c.ensureLive(ctx); err != nil {
		return err
	}
	return c.sb.Send(m)
}

// ensureLive revives an expired or torn down switchboard: a fresh
// assignment is requested, the new switchboard joined under the same
// conversation id, and every party that left is re-invited. Callers hold
// c.mu.
func (c *Conversation) ensureLive(ctx context.Context) error {
	if c.sb != nil && !c.sb.Closed() && !c.sb.Expired() {
		return nil
	}
	sb, err := c.mgr.openSwitchboard(ctx, c.id)
	if err != nil {
		return err
	}
	c.sb = sb
	for account := range c.parties {
		account := account
		c.mgr.ns.ScheduleInvite(func() {
			if err := sb.Invite(account); err != nil {
				c.mgr.logger.Error("re-invite failed", err)
			}
		})
	}
	return nil
}

// attach binds a switchboard session created for an inbound invitation.
func (c *Conversation) attach(sb *switchboard.Session, caller string) {
	c.mu.Lock()
	c.sb = sb
	c.parties[caller] = true
	c.mu.Unlock()
}

// End ends the conversation permanently and closes its transport. Further
// operations fail with ErrEnded.
func (c *Conversation) End() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	sb := c.sb
	c.mu.Unlock()

	var err error
	if sb != nil {
		err = sb.Close()
	}
	c.mgr.remove(c.id)
	c.mgr.handlers.ConversationEnded(event.ConversationEnded{ID: c.id})
	return err
}

// A Manager creates conversations, answers inbound invitations, and tracks
// the live set.
type Manager struct {
	ns       *msnp.Session
	dial     func(ctx context.Context, addr string) (*msnp.Conn, error)
	logger   log.Logger
	handlers *event.Handlers

	mu    sync.Mutex
	convs map[string]*Conversation
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for dropped invitations and failed
// revivals.
func WithLogger(l log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithHandlers sets the subscriber registry notified of conversation
// lifecycle events and delivered messages.
func WithHandlers(h *event.Handlers) ManagerOption {
	return func(m *Manager) {
		m.handlers = h
	}
}

// WithDialer sets the dialer used to reach assigned switchboard servers.
func WithDialer(d *msnp.Dialer) ManagerOption {
	return func(m *Manager) {
		m.dial = func(ctx context.Context, addr string) (*msnp.Conn, error) {
			return d.Dial(ctx, "tcp", addr)
		}
	}
}

// WithDialFunc sets the function used to reach assigned switchboard
// servers, replacing network dialing entirely.
func WithDialFunc(dial func(ctx context.Context, addr string) (*msnp.Conn, error)) ManagerOption {
	return func(m *Manager) {
		m.dial = dial
	}
}

// NewManager returns a manager answering invitations arriving on the
// notification session. It must be created before the session's Serve loop
// starts.
func NewManager(ns *msnp.Session, opts ...ManagerOption) *Manager {
	m := &Manager{
		ns:       ns,
		logger:   log.NewNoopLogger(),
		handlers: &event.Handlers{},
		convs:    make(map[string]*Conversation),
	}
	for _, o := range opts {
		o(m)
	}
	if m.dial == nil {
		var d msnp.Dialer
		m.dial = func(ctx context.Context, addr string) (*msnp.Conn, error) {
			return d.Dial(ctx, "tcp", addr)
		}
	}
	ns.HandleRings(m.handleRing)
	return m
}

// Start opens a conversation with the given contact. Peers on a bridged
// remote network get a cross-network conversation over the notification
// channel; everyone else gets a switchboard.
func (m *Manager) Start(ctx context.Context, to address.Address) (*Conversation, error) {
	c := &Conversation{
		mgr:     m,
		parties: make(map[string]bool),
	}
	if to.NetworkType() != m.ns.Owner().NetworkType() {
		c.cross = true
		c.peer = to
		c.id = "ubm-" + to.Account()
	} else {
		sb, err := m.openSwitchboard(ctx, "")
		if err != nil {
			return nil, err
		}
		c.id = sb.ID()
		c.sb = sb
		c.parties[to.Account()] = true
		if err := sb.Invite(to.Account()); err != nil {
			sb.Close()
			return nil, err
		}
	}
	m.mu.Lock()
	m.convs[c.id] = c
	m.mu.Unlock()
	m.handlers.ConversationCreated(event.ConversationCreated{ID: c.id, Initiator: m.ns.Owner().Address()})
	return c, nil
}

// Get returns the live conversation with the given id.
func (m *Manager) Get(id string) (*Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	return c, ok
}

// openSwitchboard requests an assignment from the notification session,
// dials the assigned server, and completes the join handshake. The
// session's read loop runs on its own goroutine.
func (m *Manager) openSwitchboard(ctx context.Context, id string) (*switchboard.Session, error) {
	assignment, err := m.ns.RequestSwitchboard(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := m.dial(ctx, assignment.Addr)
	if err != nil {
		return nil, err
	}
	opts := []switchboard.Option{
		switchboard.WithLogger(m.logger),
		switchboard.WithHandlers(m.handlers),
	}
	if id != "" {
		opts = append(opts, switchboard.WithID(id))
	}
	sb := switchboard.NewSession(conn, m.ns.Owner(), m.ns.Directory(), opts...)
	if err := sb.Open(ctx, assignment.Ticket); err != nil {
		conn.Close()
		return nil, err
	}
	go func() {
		if err := sb.Serve(); err != nil {
			m.logger.Error("switchboard read loop failed", err)
		}
	}()
	return sb, nil
}

// handleRing answers an inbound invitation: the assigned switchboard is
// dialed and joined, and a conversation wrapping it is published.
func (m *Manager) handleRing(r msnp.Ring) {
	conn, err := m.dial(context.Background(), r.Addr)
	if err != nil {
		m.logger.Error("invitation dial failed", err)
		return
	}
	sb := switchboard.NewSession(conn, m.ns.Owner(), m.ns.Directory(),
		switchboard.WithLogger(m.logger),
		switchboard.WithHandlers(m.handlers),
	)
	if err := sb.Answer(context.Background(), r.SessionID, r.Ticket); err != nil {
		m.logger.Error("invitation answer failed", err)
		conn.Close()
		return
	}
	go func() {
		if err := sb.Serve(); err != nil {
			m.logger.Error("switchboard read loop failed", err)
		}
	}()

	c := &Conversation{
		id:      sb.ID(),
		mgr:     m,
		parties: make(map[string]bool),
	}
	c.attach(sb, r.Caller.Account())
	m.mu.Lock()
	m.convs[c.id] = c
	m.mu.Unlock()
	m.handlers.ConversationCreated(event.ConversationCreated{ID: c.id, Initiator: r.Caller})
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.convs, id)
	m.mu.Unlock()
}
