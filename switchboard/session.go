// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package switchboard implements per-conversation sessions.
//
// A switchboard is a short lived server hosting exactly one conversation.
// The client reaches it either by asking the notification session for an
// assignment (outbound conversations) or by answering an invitation
// (inbound conversations). Participants join and leave over the life of the
// session; once every participant other than the owner has left, the
// conversation is expired and the transport is closed.
package switchboard // import "mellium.im/msnp/switchboard"

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tryfix/log"

	"mellium.im/msnp"
	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
	"mellium.im/msnp/event"
)

// Errors returned by switchboard sessions.
var (
	ErrClosed       = errors.New("switchboard: session closed")
	ErrBadHandshake = errors.New("switchboard: unexpected handshake reply")
)

type outItem struct {
	invite  string
	message *command.Message
}

// Session is one conversation hosted on a switchboard server.
//
// The session owns its connection's read loop: Serve processes inbound
// commands in arrival order, sharing the contact directory with the
// notification session that created it.
type Session struct {
	conn   *msnp.Conn
	owner  *directory.Owner
	dir    *directory.Directory
	logger log.Logger

	handlers *event.Handlers

	id string

	onJoined  func(account string)
	onLeft    func(account string)
	onAllLeft func()

	trid uint32

	mu    sync.Mutex
	ready bool
	queue []outItem

	roster *Roster
	reasm  *Reassembler

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a session.
type Option func(*Session)

// WithLogger sets the logger used for dropped messages.
func WithLogger(l log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithHandlers sets the subscriber registry notified of delivered messages
// and recoverable server errors.
func WithHandlers(h *event.Handlers) Option {
	return func(s *Session) {
		s.handlers = h
	}
}

// WithID sets the conversation id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithJoined sets a callback fired when a participant joins.
func WithJoined(f func(account string)) Option {
	return func(s *Session) {
		s.onJoined = f
	}
}

// WithLeft sets a callback fired when a participant leaves.
func WithLeft(f func(account string)) Option {
	return func(s *Session) {
		s.onLeft = f
	}
}

// WithAllLeft sets a callback fired when the last participant other than
// the owner leaves. The transport is closed right after the callback
// returns.
func WithAllLeft(f func()) Option {
	return func(s *Session) {
		s.onAllLeft = f
	}
}

// NewSession wraps an established connection to a switchboard server. The
// directory is shared with the notification session so that participants
// resolve to the same contact objects.
func NewSession(conn *msnp.Conn, owner *directory.Owner, dir *directory.Directory, opts ...Option) *Session {
	s := &Session{
		conn:     conn,
		owner:    owner,
		dir:      dir,
		logger:   log.NewNoopLogger(),
		handlers: &event.Handlers{},
		roster:   NewRoster(owner.Account()),
		reasm:    NewReassembler(),
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.New().String()
	}
	return s
}

// ID returns the conversation id.
func (s *Session) ID() string {
	return s.id
}

// Roster returns the participant roster.
func (s *Session) Roster() *Roster {
	return s.roster
}

// Expired reports whether every participant other than the owner has left.
func (s *Session) Expired() bool {
	return s.roster.AllContactsLeft()
}

// Closed reports whether the transport has been torn down.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Open performs the join handshake for a conversation this client started,
// using the one-time ticket from the switchboard assignment. It must be
// called before Serve.
func (s *Session) Open(ctx context.Context, ticket string) error {
	reply, err := s.roundTrip(ctx, command.New(command.USR,
		s.owner.Account()+";{"+s.owner.EndpointID()+"}", ticket))
	if err != nil {
		return err
	}
	if reply.Verb != command.USR || reply.Arg(1) != "OK" {
		return ErrBadHandshake
	}
	s.handshakeDone()
	return nil
}

// Answer performs the join handshake for an inbound invitation. The initial
// roster sent by the server is recorded before the handshake completes. It
// must be called before Serve.
func (s *Session) Answer(ctx context.Context, sessionID, ticket string) error {
	id := s.nextTrID()
	cmd := command.New(command.ANS,
		strconv.FormatUint(uint64(id), 10),
		s.owner.Account()+";{"+s.owner.EndpointID()+"}", ticket, sessionID)
	if err := s.conn.WriteCommand(cmd); err != nil {
		return err
	}
	for {
		in, err := s.conn.ReadCommand()
		if err != nil {
			return err
		}
		switch in.Verb {
		case command.IRO:
			s.handleRosterEntry(in)
		case command.ANS:
			if tr, ok := in.TrID(); !ok || tr != id || in.Arg(1) != "OK" {
				return ErrBadHandshake
			}
			s.handshakeDone()
			return nil
		case command.Err:
			return command.FromCommand(in)
		default:
			s.logger.Debug("command during handshake dropped", in.String())
		}
	}
}

// handshakeDone marks the session usable and flushes everything queued
// while the handshake was running, in original order.
func (s *Session) handshakeDone() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.flush()
}

func (s *Session) roundTrip(ctx context.Context, cmd command.Command) (command.Command, error) {
	id := s.nextTrID()
	cmd.Args = append([]string{strconv.FormatUint(uint64(id), 10)}, cmd.Args...)
	if err := s.conn.WriteCommand(cmd); err != nil {
		return command.Command{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
		defer func() {
			_ = s.conn.SetDeadline(time.Time{})
		}()
	}
	for {
		in, err := s.conn.ReadCommand()
		if err != nil {
			return command.Command{}, err
		}
		if tr, ok := in.TrID(); ok && tr == id {
			if in.Verb == command.Err {
				return command.Command{}, command.FromCommand(in)
			}
			return in, nil
		}
		s.logger.Debug("command during handshake dropped", in.String())
	}
}

func (s *Session) nextTrID() uint32 {
	return atomic.AddUint32(&s.trid, 1)
}

// Serve processes inbound commands until the conversation ends or the
// connection fails.
func (s *Session) Serve() error {
	for {
		cmd, err := s.conn.ReadCommand()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, command.ErrEmptyCommand) {
				continue
			}
			s.Close()
			return err
		}
		if err := s.route(cmd); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			s.Close()
			return err
		}
	}
}

func (s *Session) route(cmd command.Command) error {
	switch cmd.Verb {
	case command.JOI:
		s.handleJoin(cmd)
	case command.IRO:
		s.handleRosterEntry(cmd)
	case command.BYE:
		return s.handleLeave(cmd)
	case command.MSG:
		s.handleMessage(cmd)
	case command.CAL, command.USR, command.ANS:
		s.logger.Debug("handshake reply dropped", cmd.String())
	case command.OUT:
		s.Close()
		return ErrClosed
	case command.Err:
		e := command.FromCommand(cmd)
		s.handlers.ServerError(event.ServerError{Err: &e})
		if !e.Recoverable() {
			return e
		}
	default:
		s.logger.Warn("unknown command dropped", cmd.String())
	}
	return nil
}

// handleJoin records the new participant and, if messages were queued while
// the conversation had no participants, replays them in original order.
func (s *Session) handleJoin(cmd command.Command) {
	account, c, err := s.participant(cmd.Arg(0), cmd.Arg(1))
	if err != nil {
		s.logger.Warn("join with bad address dropped", err)
		return
	}
	if s.roster.Advance(account, c, Joined) && s.onJoined != nil {
		s.onJoined(account)
	}
	s.flush()
}

// handleRosterEntry records one initial roster entry of an answered
// conversation.
func (s *Session) handleRosterEntry(cmd command.Command) {
	// IRO carries index and total before the participant.
	account, c, err := s.participant(cmd.Arg(3), cmd.Arg(4))
	if err != nil {
		s.logger.Warn("roster entry with bad address dropped", err)
		return
	}
	if s.roster.Advance(account, c, Joined) && s.onJoined != nil {
		s.onJoined(account)
	}
}

func (s *Session) handleLeave(cmd command.Command) error {
	account, _, err := s.participant(cmd.Arg(0), "")
	if err != nil {
		s.logger.Warn("leave with bad address dropped", err)
		return nil
	}
	if s.roster.Advance(account, nil, Left) && s.onLeft != nil {
		s.onLeft(account)
	}
	if s.roster.AllContactsLeft() {
		if s.onAllLeft != nil {
			s.onAllLeft()
		}
		s.Close()
		return ErrClosed
	}
	return nil
}

func (s *Session) handleMessage(cmd command.Command) {
	m, err := command.ReadMessage(cmd.Payload)
	if err != nil {
		s.logger.Warn("malformed message payload dropped", err)
		return
	}
	_, c, err := s.participant(cmd.Arg(0), cmd.Arg(1))
	if err != nil {
		s.logger.Warn("message with bad sender dropped", err)
		return
	}
	full, done, err := s.reasm.Add(m)
	if err != nil {
		s.logger.Warn("chunked message dropped", err)
		return
	}
	if !done {
		return
	}
	s.handlers.Message(event.Message{
		From:           c.Address(),
		Sender:         c,
		Message:        full,
		ConversationID: s.id,
	})
}

// participant resolves a wire participant argument to its canonical account
// and shared directory contact.
func (s *Session) participant(spec, display string) (string, *directory.Contact, error) {
	if !hasNetworkPrefix(spec) {
		spec = "1:" + spec
	}
	a, err := address.Parse(spec)
	if err != nil {
		return "", nil, err
	}
	c := s.dir.GetOrCreate(a.Account(), a.NetworkType())
	if display != "" {
		if unescaped, err := url.QueryUnescape(display); err == nil {
			display = unescaped
		}
		c.SetDisplayName(display)
	}
	return a.Account(), c, nil
}

func hasNetworkPrefix(spec string) bool {
	for i := 0; i < len(spec); i++ {
		switch {
		case spec[i] == ':':
			return i > 0
		case spec[i] < '0' || spec[i] > '9':
			return false
		}
	}
	return false
}

// Invite asks the switchboard to add a contact to the conversation. Before
// the handshake completes the invitation is queued and sent on completion.
func (s *Session) Invite(account string) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	s.roster.Invite(account, nil)

	s.mu.Lock()
	if !s.ready {
		s.queue = append(s.queue, outItem{invite: account})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.sendInvite(account)
}

func (s *Session) sendInvite(account string) error {
	id := s.nextTrID()
	return s.conn.WriteCommand(command.New(command.CAL,
		strconv.FormatUint(uint64(id), 10), account))
}

// Send delivers a message to the conversation. While the handshake is
// running or no participant is joined, the message is queued and replayed
// in original order once a participant joins. Bodies larger than the chunk
// threshold are split.
func (s *Session) Send(m command.Message) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	s.mu.Lock()
	if !s.ready || !s.roster.Joined() {
		s.queue = append(s.queue, outItem{message: &m})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.write(m)
}

func (s *Session) write(m command.Message) error {
	for _, chunk := range command.Split(m, command.MaxChunkSize) {
		id := s.nextTrID()
		cmd := command.New(command.MSG, strconv.FormatUint(uint64(id), 10), "N")
		cmd.Payload = chunk.Bytes()
		if err := s.conn.WriteCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

// flush drains the queue in FIFO order. Messages stay queued while no
// participant is joined; invitations are always sent, ahead of any blocked
// message. Message order among messages is preserved either way.
func (s *Session) flush() {
	for {
		s.mu.Lock()
		if !s.ready || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		next := 0
		if !s.roster.Joined() {
			next = -1
			for i, item := range s.queue {
				if item.invite != "" {
					next = i
					break
				}
			}
			if next < 0 {
				s.mu.Unlock()
				return
			}
		}
		item := s.queue[next]
		s.queue = append(s.queue[:next], s.queue[next+1:]...)
		s.mu.Unlock()

		var err error
		if item.invite != "" {
			err = s.sendInvite(item.invite)
		} else {
			err = s.write(*item.message)
		}
		if err != nil {
			s.logger.Error("queued send failed", err)
			return
		}
	}
}

// Close leaves the conversation and closes the transport. It is safe to
// call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Best effort; the switchboard may already be gone.
		_ = s.conn.SetDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteCommand(command.New(command.OUT))
		err = s.conn.Close()
		close(s.closed)
	})
	return err
}
