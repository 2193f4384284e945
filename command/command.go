// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package command implements the line and MIME based wire protocol.
//
// Commands are a single CRLF terminated line comprising a three letter verb
// and space separated arguments. A subset of verbs carries a trailing binary
// payload whose byte length is the command's final numeric argument. Numeric
// verbs are protocol level error codes.
package command // import "mellium.im/msnp/command"

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Errors returned by the codec.
var (
	ErrEmptyCommand   = errors.New("command: empty command line")
	ErrBadPayloadSize = errors.New("command: malformed payload length argument")
	ErrLineTooLong    = errors.New("command: command line too long")
	ErrPayloadTooBig  = errors.New("command: payload length exceeds limit")
)

// MaxLineLen is the longest command line the decoder accepts.
const MaxLineLen = 4096

// MaxPayloadSize is the largest trailing payload the decoder accepts.
const MaxPayloadSize = 1 << 20

// Command is a single protocol command.
type Command struct {
	// Verb is the kind of the command. For verbs outside the known protocol
	// surface Verb is Unknown and Raw carries the wire spelling; for numeric
	// error codes Verb is Err and Code carries the parsed code.
	Verb Verb
	Raw  string
	Code int

	// Args holds every space separated argument after the verb, including any
	// transaction id in first position.
	Args []string

	// Payload is the trailing binary payload for payloaded verbs, nil
	// otherwise.
	Payload []byte
}

// New constructs a command of the given kind.
func New(v Verb, args ...string) Command {
	return Command{Verb: v, Raw: v.String(), Args: args}
}

// TrID returns the command's leading transaction id argument. It reports
// false when the first argument is absent or not numeric.
func (c Command) TrID() (uint32, bool) {
	if len(c.Args) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(c.Args[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Arg returns argument i or the empty string if it is out of range.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// String returns the command line without its payload or trailing CRLF.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Raw
	}
	return c.Raw + " " + strings.Join(c.Args, " ")
}

// A Decoder reads commands from an input stream.
// It is not safe for concurrent use.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, MaxLineLen)}
}

// Decode reads the next command from the stream, including any trailing
// payload.
func (d *Decoder) Decode() (Command, error) {
	raw, err := d.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return Command{}, ErrLineTooLong
		}
		return Command{}, err
	}
	line := strings.TrimRight(string(raw), "\r\n")
	if line == "" {
		return Command{}, ErrEmptyCommand
	}

	fields := strings.Split(line, " ")
	c := Command{Raw: fields[0], Args: fields[1:]}

	switch verb, ok := ParseVerb(fields[0]); {
	case ok:
		c.Verb = verb
	case isNumeric(fields[0]):
		c.Verb = Err
		c.Code, _ = strconv.Atoi(fields[0])
	default:
		c.Verb = Unknown
	}

	if c.Verb.Payloaded() && len(c.Args) > 0 {
		if size, ok := payloadSize(c.Args[len(c.Args)-1]); ok {
			if size > MaxPayloadSize {
				return Command{}, ErrPayloadTooBig
			}
			c.Payload = make([]byte, size)
			if _, err := io.ReadFull(d.r, c.Payload); err != nil {
				return Command{}, err
			}
		}
	}
	return c, nil
}

// payloadSize interprets the final argument of a payloaded verb. A payloaded
// verb whose final argument is non numeric (for example an "OK" acknowledgment
// of a list change) carries no payload.
func payloadSize(arg string) (int, bool) {
	if !isNumeric(arg) {
		return 0, false
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// An Encoder writes commands to an output stream.
// It is not safe for concurrent use.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the command, appending the payload length argument and the
// payload itself for payloaded verbs.
func (e *Encoder) Encode(c Command) error {
	var b strings.Builder
	if c.Raw != "" {
		b.WriteString(c.Raw)
	} else {
		b.WriteString(c.Verb.String())
	}
	for _, arg := range c.Args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	if c.Payload != nil {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(len(c.Payload)))
	}
	b.WriteString("\r\n")
	if _, err := io.WriteString(e.w, b.String()); err != nil {
		return err
	}
	if len(c.Payload) > 0 {
		if _, err := e.w.Write(c.Payload); err != nil {
			return err
		}
	}
	return nil
}
