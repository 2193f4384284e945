// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package address implements parsing of composite network addresses.
//
// A composite address identifies a peer by network type and account name and
// may carry an inline gateway ("via") segment when the peer is reachable
// through a circle, a temporary group, or a remote-network bridge:
//
//	1:alice@example.net
//	1:alice@example.net;via=9:f1aa0ebb-627c-4c30-9fa6-e6bc7a74d87e@live.com
//
// The endpoint identifier (a device GUID) is not part of the string form; it
// travels in a side-channel attribute of the wire value and is attached with
// WithEndpoint.
package address // import "mellium.im/msnp/address"

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Errors returned while parsing or constructing addresses.
var (
	ErrMissingNetwork = errors.New("address: leading segment is not an integer network type")
	ErrEmptyAccount   = errors.New("address: account must be larger than 0 bytes")
	ErrInvalidUTF8    = errors.New("address: account contains invalid UTF-8")
	ErrInvalidVia     = errors.New("address: malformed via segment")
	ErrInvalidEPID    = errors.New("address: endpoint id is not a valid GUID")
)

const viaPrefix = ";via="

// Address represents a composite peer address comprising a network type, an
// account, an optional gateway segment, and an optional endpoint id.
// The account is stored in its canonical (case-mapped) form which gives
// comparison the greatest chance of succeeding; the original spelling is
// retained for display.
type Address struct {
	network    NetworkType
	account    string
	display    string
	viaNetwork NetworkType
	viaAccount string
	endpoint   string
}

// Parse constructs a new Address from the given string representation.
// Parsing is deterministic: the same input always yields the same output.
func Parse(s string) (Address, error) {
	hasVia := strings.Contains(s, viaPrefix)
	network, account, rest, err := splitString(s)
	if err != nil {
		return Address{}, err
	}
	addr, err := New(network, account)
	if err != nil {
		return Address{}, err
	}
	if !hasVia {
		return addr, nil
	}
	if rest == "" {
		return Address{}, ErrInvalidVia
	}
	viaNetwork, viaAccount, tail, err := splitString(rest)
	if err != nil || tail != "" {
		return Address{}, ErrInvalidVia
	}
	via, err := New(viaNetwork, viaAccount)
	if err != nil {
		return Address{}, ErrInvalidVia
	}
	return addr.WithVia(via), nil
}

// MustParse is like Parse but panics if the address cannot be parsed.
// It simplifies safe initialization of addresses from known-good constant
// strings.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		if strconv.CanBackquote(s) {
			s = "`" + s + "`"
		} else {
			s = strconv.Quote(s)
		}
		panic(`address: Parse(` + s + `): ` + err.Error())
	}
	return a
}

// New constructs a new Address from a network type and an account string.
// The account is canonicalized for identity comparison; the original spelling
// is preserved and available from the Display method.
func New(network NetworkType, account string) (Address, error) {
	if account == "" {
		return Address{}, ErrEmptyAccount
	}
	if !utf8.ValidString(account) {
		return Address{}, ErrInvalidUTF8
	}
	canonical, err := prepare(account)
	if err != nil {
		return Address{}, err
	}
	return Address{
		network: network,
		account: canonical,
		display: account,
	}, nil
}

// prepare maps an account string to its canonical form. Accounts are email
// shaped for most network types, so the part before the final "@" gets the
// UsernameCaseMapped treatment and the domain is prepared with IDNA. Accounts
// with no "@" (telephone numbers, service ids) are case-mapped whole.
func prepare(account string) (string, error) {
	sep := strings.LastIndex(account, "@")
	if sep == -1 {
		mapped, err := precis.UsernameCaseMapped.String(account)
		if err != nil {
			// Telephone accounts may contain "+" and other codepoints that the
			// username profile rejects; fall back to simple lowercasing.
			return strings.ToLower(account), nil
		}
		return mapped, nil
	}
	local, domain := account[:sep], account[sep+1:]
	mappedLocal, err := precis.UsernameCaseMapped.String(local)
	if err != nil {
		mappedLocal = strings.ToLower(local)
	}
	domain, err = idna.ToUnicode(domain)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(domain) {
		return "", ErrInvalidUTF8
	}
	return mappedLocal + "@" + strings.ToLower(domain), nil
}

// splitString splits the leading "<int>:<account>" segment off s and returns
// the remainder (with any ";via=" prefix removed). The parts are not
// canonicalized.
func splitString(s string) (network NetworkType, account, rest string, err error) {
	sep := strings.Index(s, ":")
	if sep < 1 {
		return 0, "", "", ErrMissingNetwork
	}
	n, err := strconv.Atoi(s[:sep])
	if err != nil {
		return 0, "", "", ErrMissingNetwork
	}
	s = s[sep+1:]
	if idx := strings.Index(s, viaPrefix); idx != -1 {
		rest = s[idx+len(viaPrefix):]
		s = s[:idx]
	}
	if s == "" {
		return 0, "", "", ErrEmptyAccount
	}
	return NetworkType(n), s, rest, nil
}

// Network satisfies the net.Addr interface by returning the name of the
// network ("msnp").
func (Address) Network() string {
	return "msnp"
}

// NetworkType returns the network type of the address.
func (a Address) NetworkType() NetworkType {
	return a.network
}

// Account returns the canonical account of the address, used for identity
// comparison.
func (a Address) Account() string {
	return a.account
}

// Display returns the account with its original spelling preserved.
func (a Address) Display() string {
	if a.display == "" {
		return a.account
	}
	return a.display
}

// Via returns the gateway segment of the address and whether one was present.
func (a Address) Via() (Address, bool) {
	if a.viaAccount == "" {
		return Address{}, false
	}
	return Address{network: a.viaNetwork, account: a.viaAccount}, true
}

// Endpoint returns the endpoint id attached to the address, or the empty
// string.
func (a Address) Endpoint() string {
	return a.endpoint
}

// WithVia returns a copy of the address routed through the given gateway.
func (a Address) WithVia(gateway Address) Address {
	a.viaNetwork = gateway.network
	a.viaAccount = gateway.account
	return a
}

// WithEndpoint returns a copy of the address with the endpoint id set to the
// canonical form of epid. Braces around the GUID are accepted and stripped.
func (a Address) WithEndpoint(epid string) (Address, error) {
	if epid == "" {
		a.endpoint = ""
		return a, nil
	}
	id, err := uuid.Parse(strings.Trim(epid, "{}"))
	if err != nil {
		return a, ErrInvalidEPID
	}
	a.endpoint = id.String()
	return a, nil
}

// Bare returns a copy of the address without its gateway segment or endpoint
// id. Two addresses identify the same peer iff their bare forms are equal.
func (a Address) Bare() Address {
	a.viaNetwork = 0
	a.viaAccount = ""
	a.endpoint = ""
	return a
}

// String converts the address to its string representation. The endpoint id
// is a side-channel attribute and is never part of the string form.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(a.network)))
	b.WriteByte(':')
	b.WriteString(a.account)
	if a.viaAccount != "" {
		b.WriteString(viaPrefix)
		b.WriteString(strconv.Itoa(int(a.viaNetwork)))
		b.WriteByte(':')
		b.WriteString(a.viaAccount)
	}
	return b.String()
}

// Equal performs a canonical comparison of two addresses, including their
// gateway segments and endpoint ids.
func (a Address) Equal(a2 Address) bool {
	return a.network == a2.network && a.account == a2.account &&
		a.viaNetwork == a2.viaNetwork && a.viaAccount == a2.viaAccount &&
		a.endpoint == a2.endpoint
}
