// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tryfix/log"

	"mellium.im/msnp/address"
	"mellium.im/msnp/command"
	"mellium.im/msnp/directory"
	"mellium.im/msnp/event"
	"mellium.im/msnp/internal/rps"
	"mellium.im/msnp/ticket"
)

// Errors returned by sessions.
var (
	ErrSessionClosed  = errors.New("msnp: session closed")
	ErrVersionRefused = errors.New("msnp: server refused every offered protocol dialect")
	ErrBadHandshake   = errors.New("msnp: unexpected authentication reply")
)

// DefaultVersions are the protocol dialects offered during negotiation, in
// preference order.
var DefaultVersions = []string{"MSNP21", "MSNP18"}

// Client information sent during the version exchange when none is
// configured.
const (
	defaultClientName    = "MSNMSGR"
	defaultClientVersion = "15.4.3508.1109"
)

// schedulerInterval is the minimum spacing the server tolerates between
// throttled request kinds.
const schedulerInterval = 2 * time.Second

// SwitchboardAssignment is the server's answer to a switchboard request: the
// address of the assigned switchboard and the one-time ticket used in its
// join handshake.
type SwitchboardAssignment struct {
	Addr   string
	Ticket string
}

// Ring is an inbound invitation to join a switchboard that another contact
// opened.
type Ring struct {
	SessionID string
	Addr      string
	Ticket    string
	Caller    address.Address
}

// Session is an authenticated connection to a notification server.
//
// The session owns the connection's read loop; all inbound commands are
// processed strictly in arrival order on the goroutine that calls Serve.
type Session struct {
	conn    *Conn
	cred    ticket.Credential
	tickets *ticket.Manager
	dir     *directory.Directory
	owner   *directory.Owner

	handlers *event.Handlers
	logger   log.Logger

	versions      []string
	version       string
	clientName    string
	clientVersion string
	epid          string
	singlePlace   bool
	status        directory.Status
	caps          directory.Capabilities
	onRing        func(Ring)

	trid uint32

	stateM sync.Mutex
	state  SessionState

	closeOnce sync.Once
	closed    chan struct{}

	pendingM sync.Mutex
	pending  map[uint32]chan command.Command

	sbM     sync.Mutex
	sbQueue []chan SwitchboardAssignment

	sbScheduler     *scheduler
	inviteScheduler *scheduler

	pingM        sync.Mutex
	pingInFlight bool

	gcfM sync.Mutex
	gcf  []byte
}

// Option configures a session before negotiation starts.
type Option func(*Session)

// WithLogger sets the logger used for dropped messages and other
// non-surfaced conditions.
func WithLogger(l log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithHandlers sets the subscriber registry notified of session events.
func WithHandlers(h *event.Handlers) Option {
	return func(s *Session) {
		s.handlers = h
	}
}

// WithDirectory sets the contact directory the session feeds. If unset a
// fresh directory is created.
func WithDirectory(d *directory.Directory) Option {
	return func(s *Session) {
		s.dir = d
	}
}

// WithVersions overrides the protocol dialects offered during negotiation.
func WithVersions(versions ...string) Option {
	return func(s *Session) {
		s.versions = versions
	}
}

// WithEndpointID sets this client's endpoint id instead of generating one.
func WithEndpointID(epid string) Option {
	return func(s *Session) {
		s.epid = epid
	}
}

// WithClientInfo overrides the client name and version sent during the
// information exchange.
func WithClientInfo(name, version string) Option {
	return func(s *Session) {
		s.clientName = name
		s.clientVersion = version
	}
}

// WithSinglePlace makes the session proactively sign out any other place the
// account signs in at.
func WithSinglePlace() Option {
	return func(s *Session) {
		s.singlePlace = true
	}
}

// WithInitialStatus sets the presence published right after authentication.
// The default is online.
func WithInitialStatus(status directory.Status, caps directory.Capabilities) Option {
	return func(s *Session) {
		s.status = status
		s.caps = caps
	}
}

// WithRingHandler sets the callback invoked for inbound switchboard
// invitations. Without one, invitations are logged and dropped.
func WithRingHandler(f func(Ring)) Option {
	return func(s *Session) {
		s.onRing = f
	}
}

// NewClientSession negotiates a client session over conn: the protocol
// dialect is agreed on, client information exchanged, the connection
// authenticated with a ticket obtained through tickets, and initial presence
// published.
//
// Ticket acquisition blocks negotiation; its failure fires the
// authentication error event and closes the connection. After
// NewClientSession returns, Serve must be called to process inbound
// commands.
func NewClientSession(ctx context.Context, conn *Conn, cred ticket.Credential, tickets *ticket.Manager, opts ...Option) (*Session, error) {
	acct, err := address.New(address.WindowsLive, cred.Account)
	if err != nil {
		return nil, err
	}
	s := &Session{
		conn:          conn,
		cred:          cred,
		tickets:       tickets,
		handlers:      &event.Handlers{},
		logger:        log.NewNoopLogger(),
		versions:      DefaultVersions,
		clientName:    defaultClientName,
		clientVersion: defaultClientVersion,
		status:        directory.StatusOnline,
		closed:        make(chan struct{}),
		pending:       make(map[uint32]chan command.Command),
	}
	for _, o := range opts {
		o(s)
	}
	if s.dir == nil {
		s.dir = &directory.Directory{}
	}
	s.owner = directory.NewOwner(acct.Account(), s.epid)

	if err := s.negotiate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.signIn(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) negotiate(ctx context.Context) error {
	args := make([]string, 0, len(s.versions)+1)
	args = append(args, s.versions...)
	args = append(args, "CVR0")
	reply, err := s.roundTrip(ctx, command.New(command.VER, args...))
	if err != nil {
		return err
	}
	if d := reply.Arg(1); d == "" || d == "0" {
		return ErrVersionRefused
	} else {
		s.version = d
	}
	s.addState(VersionNegotiated)

	_, err = s.roundTrip(ctx, command.New(command.CVR,
		"0x0409", "winnt", "6.1", "i386",
		s.clientName, s.clientVersion, "MSMSGS", s.owner.Account()))
	if err != nil {
		return err
	}
	s.addState(InfoExchanged)

	reply, err = s.roundTrip(ctx, command.New(command.USR, "SSO", "I", s.owner.Account()))
	if err != nil {
		return s.authFailed(err)
	}
	if reply.Arg(1) != "SSO" || reply.Arg(2) != "S" {
		return s.authFailed(ErrBadHandshake)
	}
	nonce := reply.Arg(4)

	tkt, err := s.authTicket(ctx)
	if err != nil {
		return s.authFailed(err)
	}
	proof, err := rps.Response(tkt.Secret, nonce)
	if err != nil {
		return s.authFailed(err)
	}

	reply, err = s.roundTrip(ctx, command.New(command.USR,
		"SSO", "A", tkt.Token, proof, braced(s.owner.EndpointID())))
	if err != nil {
		return s.authFailed(err)
	}
	if reply.Arg(1) != "OK" {
		return s.authFailed(ErrBadHandshake)
	}
	s.addState(Authn)
	return nil
}

// authTicket blocks until the ticket manager produces the clear ticket used
// for the connection handshake. The manager's callback convention is adapted
// to a channel here because negotiation cannot proceed without the ticket.
func (s *Session) authTicket(ctx context.Context) (ticket.Ticket, error) {
	type result struct {
		tickets []ticket.Ticket
		err     error
	}
	ch := make(chan result, 1)
	s.tickets.Authenticate(ctx, s.cred, []ticket.Kind{ticket.KindClear},
		func(tickets []ticket.Ticket) {
			ch <- result{tickets: tickets}
		},
		func(err error) {
			ch <- result{err: err}
		},
	)
	select {
	case <-ctx.Done():
		return ticket.Ticket{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return ticket.Ticket{}, res.err
		}
		if len(res.tickets) == 0 {
			return ticket.Ticket{}, errors.New("msnp: ticket manager returned no clear ticket")
		}
		return res.tickets[0], nil
	}
}

func (s *Session) authFailed(err error) error {
	s.handlers.AuthenticationError(event.AuthenticationError{Err: err})
	return err
}

// signIn publishes initial presence and arms the session's background
// machinery.
func (s *Session) signIn(ctx context.Context) error {
	_, err := s.roundTrip(ctx, command.New(command.CHG, s.status.String(), s.caps.String()))
	if err != nil {
		return err
	}
	s.owner.SetStatus(s.status)

	s.sbScheduler = newScheduler(schedulerInterval)
	s.inviteScheduler = newScheduler(schedulerInterval)
	s.addState(Ready)

	if err := s.Ping(); err != nil {
		return err
	}
	s.handlers.SessionEstablished(event.SessionEstablished{Owner: s.owner})
	return nil
}

// roundTrip writes cmd with a fresh transaction id and reads commands
// directly until the reply arrives. It is only usable before Serve starts;
// unsolicited commands read along the way are routed as usual.
func (s *Session) roundTrip(ctx context.Context, cmd command.Command) (command.Command, error) {
	id := s.NextTrID()
	cmd.Args = append([]string{strconv.FormatUint(uint64(id), 10)}, cmd.Args...)
	if err := s.WriteCommand(cmd); err != nil {
		return command.Command{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		// Best effort: in-memory test connections have no deadlines.
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
		if tr, ok := in.TrID(); ok && tr == id && (isReply(in.Verb) || in.Verb == command.Err) {
			if in.Verb == command.Err {
				return command.Command{}, command.FromCommand(in)
			}
			return in, nil
		}
		if err := s.route(in, nil); err != nil {
			return command.Command{}, err
		}
	}
}

// transact writes cmd with a fresh transaction id and waits for the reply
// routed by the Serve loop. The context bounds only the wait; a command
// already written is not recalled.
func (s *Session) transact(ctx context.Context, cmd command.Command) (command.Command, error) {
	id := s.NextTrID()
	cmd.Args = append([]string{strconv.FormatUint(uint64(id), 10)}, cmd.Args...)

	ch := make(chan command.Command, 1)
	s.pendingM.Lock()
	s.pending[id] = ch
	s.pendingM.Unlock()
	defer func() {
		s.pendingM.Lock()
		delete(s.pending, id)
		s.pendingM.Unlock()
	}()

	if err := s.WriteCommand(cmd); err != nil {
		return command.Command{}, err
	}
	select {
	case <-ctx.Done():
		return command.Command{}, ctx.Err()
	case <-s.closed:
		return command.Command{}, ErrSessionClosed
	case in := <-ch:
		if in.Verb == command.Err {
			return command.Command{}, command.FromCommand(in)
		}
		return in, nil
	}
}

// deliverPending hands a reply to the transaction that is waiting for it.
func (s *Session) deliverPending(cmd command.Command) bool {
	id, ok := cmd.TrID()
	if !ok {
		return false
	}
	s.pendingM.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pendingM.Unlock()
	if ok {
		ch <- cmd
	}
	return ok
}

// isReply reports whether the verb only ever reaches the client as the
// answer to a transaction it started. Verbs like RNG carry a numeric first
// argument that is not a transaction id, so reply matching is restricted to
// this set.
func isReply(v command.Verb) bool {
	switch v {
	case command.VER, command.CVR, command.USR, command.CHG, command.UUX,
		command.ADG, command.RMG, command.QRY, command.UUN:
		return true
	}
	return false
}

// NextTrID allocates a fresh transaction id.
func (s *Session) NextTrID() uint32 {
	return atomic.AddUint32(&s.trid, 1)
}

// WriteCommand writes a single command to the connection. It is safe for
// concurrent use.
func (s *Session) WriteCommand(cmd command.Command) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	return s.conn.WriteCommand(cmd)
}

// State returns the current state of the session.
func (s *Session) State() SessionState {
	s.stateM.Lock()
	defer s.stateM.Unlock()
	return s.state
}

func (s *Session) addState(mask SessionState) {
	s.stateM.Lock()
	s.state |= mask
	s.stateM.Unlock()
}

// Owner returns the contact representing the local user.
func (s *Session) Owner() *directory.Owner {
	return s.owner
}

// Directory returns the contact directory the session feeds.
func (s *Session) Directory() *directory.Directory {
	return s.dir
}

// Version returns the negotiated protocol dialect.
func (s *Session) Version() string {
	return s.version
}

// Conn returns the underlying connection.
func (s *Session) Conn() *Conn {
	return s.conn
}

// LocalAddr returns the local network address of the underlying connection,
// if any.
func (s *Session) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr returns the remote network address of the underlying
// connection, if any.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// ServerConfig returns the most recent configuration payload pushed by the
// server, uninterpreted.
func (s *Session) ServerConfig() []byte {
	s.gcfM.Lock()
	defer s.gcfM.Unlock()
	return s.gcf
}

// Ping sends a keep-alive probe. At most one probe is in flight at a time;
// further calls before the server answers are no-ops. There is no local
// timeout: a missing answer surfaces as a transport error.
func (s *Session) Ping() error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	s.pingM.Lock()
	if s.pingInFlight {
		s.pingM.Unlock()
		return nil
	}
	s.pingInFlight = true
	s.pingM.Unlock()

	if err := s.WriteCommand(command.New(command.PNG)); err != nil {
		s.pingM.Lock()
		s.pingInFlight = false
		s.pingM.Unlock()
		return err
	}
	return nil
}

// SetStatus publishes a new presence status and capability flags for the
// local user.
func (s *Session) SetStatus(ctx context.Context, status directory.Status, caps directory.Capabilities) error {
	switch status {
	case directory.StatusUnknown, directory.StatusOffline:
		return fmt.Errorf("msnp: cannot publish status %s", status)
	}
	if _, err := s.transact(ctx, command.New(command.CHG, status.String(), caps.String())); err != nil {
		return err
	}
	s.owner.SetStatus(status)
	return nil
}

// SetPersonalMessage publishes the local user's personal status message and
// "now playing" string.
func (s *Session) SetPersonalMessage(ctx context.Context, psm, media string) error {
	body, err := command.ProfilePayload{PSM: psm, CurrentMedia: media}.Bytes()
	if err != nil {
		return err
	}
	cmd := command.New(command.UUX)
	cmd.Payload = body
	if _, err := s.transact(ctx, cmd); err != nil {
		return err
	}
	s.owner.SetPersonalMessage(psm, media)
	return nil
}

// SyncContactList publishes the initial membership list snapshot after
// signing in. The server answers presence for listed contacts only after
// the snapshot is acknowledged.
func (s *Session) SyncContactList(ctx context.Context, ml command.ContactList) error {
	ml.Initial = true
	body, err := ml.Bytes()
	if err != nil {
		return err
	}
	cmd := command.New(command.ADL)
	cmd.Payload = body
	_, err = s.transact(ctx, cmd)
	return err
}

// AddToLists adds the contact to the given membership lists.
func (s *Session) AddToLists(ctx context.Context, a address.Address, lists directory.Lists) error {
	var ml command.ContactList
	ml.Add(a.Account(), int(lists), int(a.NetworkType()))
	body, err := ml.Bytes()
	if err != nil {
		return err
	}
	cmd := command.New(command.ADL)
	cmd.Payload = body
	if _, err := s.transact(ctx, cmd); err != nil {
		return err
	}
	s.dir.GetOrCreate(a.Account(), a.NetworkType()).AddLists(lists)
	return nil
}

// RemoveFromLists removes the contact from the given membership lists.
func (s *Session) RemoveFromLists(ctx context.Context, a address.Address, lists directory.Lists) error {
	var ml command.ContactList
	ml.Add(a.Account(), int(lists), int(a.NetworkType()))
	body, err := ml.Bytes()
	if err != nil {
		return err
	}
	cmd := command.New(command.RML)
	cmd.Payload = body
	if _, err := s.transact(ctx, cmd); err != nil {
		return err
	}
	if c, ok := s.dir.Get(a.Account(), a.NetworkType()); ok {
		c.RemoveLists(lists)
	}
	return nil
}

// AddGroup creates a contact group with the given name and returns its
// server assigned id.
func (s *Session) AddGroup(ctx context.Context, name string) (string, error) {
	reply, err := s.transact(ctx, command.New(command.ADG, name))
	if err != nil {
		return "", err
	}
	return reply.Arg(2), nil
}

// RemoveGroup deletes the contact group with the given id.
func (s *Session) RemoveGroup(ctx context.Context, id string) error {
	_, err := s.transact(ctx, command.New(command.RMG, id))
	return err
}

// SendMessage delivers a message to a contact over the notification channel
// transport used for cross-network peers.
func (s *Session) SendMessage(ctx context.Context, to address.Address, m command.Message) error {
	cmd := command.New(command.UBM, to.String(), strconv.Itoa(int(to.NetworkType())), "1")
	cmd.Payload = m.Bytes()
	id := s.NextTrID()
	cmd.Args = append([]string{strconv.FormatUint(uint64(id), 10)}, cmd.Args...)
	return s.WriteCommand(cmd)
}

// RequestSwitchboard asks the server for a fresh switchboard and blocks
// until an assignment arrives. Requests are answered strictly in the order
// they were made; the outbound ask is rate limited by the session's
// switchboard scheduler.
func (s *Session) RequestSwitchboard(ctx context.Context) (SwitchboardAssignment, error) {
	if s.sbScheduler == nil {
		return SwitchboardAssignment{}, ErrSessionClosed
	}
	ch := make(chan SwitchboardAssignment, 1)
	s.sbM.Lock()
	s.sbQueue = append(s.sbQueue, ch)
	s.sbM.Unlock()

	ok := s.sbScheduler.submit(func() {
		id := s.NextTrID()
		cmd := command.New(command.XFR, strconv.FormatUint(uint64(id), 10), "SB")
		if err := s.WriteCommand(cmd); err != nil {
			s.logger.Error("switchboard request write failed", err)
		}
	})
	if !ok {
		s.dropSwitchboardWaiter(ch)
		return SwitchboardAssignment{}, ErrSessionClosed
	}

	select {
	case <-ctx.Done():
		s.dropSwitchboardWaiter(ch)
		return SwitchboardAssignment{}, ctx.Err()
	case <-s.closed:
		return SwitchboardAssignment{}, ErrSessionClosed
	case a := <-ch:
		return a, nil
	}
}

func (s *Session) dropSwitchboardWaiter(ch chan SwitchboardAssignment) {
	s.sbM.Lock()
	for i := range s.sbQueue {
		if s.sbQueue[i] == ch {
			s.sbQueue = append(s.sbQueue[:i], s.sbQueue[i+1:]...)
			break
		}
	}
	s.sbM.Unlock()
}

// HandleRings sets the callback invoked for inbound switchboard
// invitations, replacing any callback configured at construction. It must
// not be called after Serve starts.
func (s *Session) HandleRings(f func(Ring)) {
	s.onRing = f
}

// ScheduleInvite runs f on the invitation scheduler, serializing and rate
// limiting invitation bursts. It reports false if the session has been torn
// down and f will never run.
func (s *Session) ScheduleInvite(f func()) bool {
	if s.inviteScheduler == nil {
		return false
	}
	return s.inviteScheduler.submit(f)
}

// Close signs out and tears the session down. It is safe to call multiple
// times and from any goroutine.
func (s *Session) Close() error {
	return s.teardown(event.SignOutLocal, nil, true)
}

// teardown runs the session's teardown exactly once. The step order is
// load-bearing: each later step assumes the earlier ones already released
// their resources.
func (s *Session) teardown(reason event.SignOutReason, cause error, sendOut bool) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.addState(Closed)
		if sendOut {
			// Best effort; the server may already be gone.
			_ = s.conn.SetDeadline(time.Now().Add(time.Second))
			_ = s.conn.WriteCommand(command.New(command.OUT))
		}
		closeErr = s.conn.Close()
		close(s.closed)

		s.tickets.Reset()
		s.dir.Reset()

		s.sbM.Lock()
		s.sbQueue = nil
		s.sbM.Unlock()
		s.pendingM.Lock()
		s.pending = make(map[uint32]chan command.Command)
		s.pendingM.Unlock()

		if s.sbScheduler != nil {
			s.sbScheduler.stop()
		}
		if s.inviteScheduler != nil {
			s.inviteScheduler.stop()
		}
		s.handlers.SessionClosed(event.SessionClosed{Reason: reason, Err: cause})
	})
	return closeErr
}

// braced returns the endpoint id in its braced wire spelling.
func braced(epid string) string {
	if len(epid) > 0 && epid[0] == '{' {
		return epid
	}
	return "{" + epid + "}"
}
