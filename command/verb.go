// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

// Verb is the kind of a protocol command.
// The decoder maps each wire verb onto this closed set exactly once; verbs it
// does not recognize become Unknown (with the original spelling preserved on
// the command) and fully numeric verbs become Err.
type Verb int

// The closed set of command kinds understood by this module.
const (
	// Unknown marks a syntactically valid command whose verb is not part of
	// the protocol surface this module implements.
	Unknown Verb = iota

	// Err marks a numeric error code sent in the verb position.
	Err

	VER // protocol version negotiation
	CVR // client version/information exchange
	USR // authentication (notification) or session join (switchboard)
	OUT // server initiated sign-out
	CHG // presence change
	PNG // keep-alive probe
	QNG // keep-alive answer
	CHL // server challenge
	QRY // challenge response
	UUX // owner profile extension publication
	UBX // contact profile extension payload
	NLN // contact online/status notification
	FLN // contact offline notification
	MSG // message delivery
	SDG // circle and temporary group message delivery
	UBM // cross-network message delivery
	ADL // membership list addition
	RML // membership list removal
	ADG // group addition
	RMG // group removal
	GCF // configuration/censor payload
	NOT // server notification payload
	NFY // roster push notification envelope
	PUT // roster push payload publication
	DEL // roster push payload removal
	UUN // direct user-to-user notification (client to server)
	UBN // direct user-to-user notification (server to client)
	RNG // inbound switchboard invitation
	XFR // switchboard transfer/assignment
	ANS // switchboard answer (joining an inbound invitation)
	CAL // switchboard contact invitation
	JOI // switchboard contact joined
	IRO // switchboard initial roster entry
	BYE // switchboard contact left
)

var verbNames = map[Verb]string{
	VER: "VER", CVR: "CVR", USR: "USR", OUT: "OUT", CHG: "CHG",
	PNG: "PNG", QNG: "QNG", CHL: "CHL", QRY: "QRY", UUX: "UUX",
	UBX: "UBX", NLN: "NLN", FLN: "FLN", MSG: "MSG", SDG: "SDG",
	UBM: "UBM", ADL: "ADL", RML: "RML", ADG: "ADG", RMG: "RMG",
	GCF: "GCF", NOT: "NOT", NFY: "NFY", PUT: "PUT", DEL: "DEL",
	UUN: "UUN", UBN: "UBN",
	RNG: "RNG", XFR: "XFR", ANS: "ANS", CAL: "CAL", JOI: "JOI",
	IRO: "IRO", BYE: "BYE",
}

var verbValues = make(map[string]Verb, len(verbNames))

func init() {
	for v, name := range verbNames {
		verbValues[name] = v
	}
}

// ParseVerb maps a wire verb onto the closed Verb set.
// It reports false for verbs outside the set.
func ParseVerb(s string) (Verb, bool) {
	v, ok := verbValues[s]
	return v, ok
}

// String returns the wire spelling of the verb.
func (v Verb) String() string {
	if s, ok := verbNames[v]; ok {
		return s
	}
	if v == Err {
		return "ERR"
	}
	return "XXX"
}

// payloadVerbs is the set of verbs that may carry a trailing binary payload
// whose byte length is given by the command's final numeric argument. QRY is
// absent even though the client sends its answers with a payload: the
// server's acknowledgment is a bare "QRY <trid>" line whose transaction id
// must not be mistaken for a payload length.
var payloadVerbs = map[Verb]bool{
	MSG: true, SDG: true, UBM: true, UBX: true, UUX: true,
	ADL: true, RML: true, GCF: true, NOT: true, NFY: true,
	PUT: true, DEL: true, UUN: true, UBN: true,
}

// Payloaded reports whether the verb may carry a trailing payload.
func (v Verb) Payloaded() bool {
	return payloadVerbs[v]
}
