// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package command

import (
	"bufio"
	"bytes"
	"errors"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MaxChunkSize is the largest message body sent in a single command. Bodies
// above this size are split into chunks that the receiver reassembles by
// message id.
const MaxChunkSize = 1400

// Message headers used by this package.
const (
	HeaderContentType = "Content-Type"
	HeaderMessageID   = "Message-ID"
	HeaderChunks      = "Chunks"
	HeaderChunk       = "Chunk"
	HeaderTypingUser  = "TypingUser"
	HeaderFrom        = "From"
	HeaderTo          = "To"
	HeaderVia         = "Via"
)

// Content types carried by message payloads.
const (
	ContentText     = "text/plain"
	ContentTyping   = "text/x-msmsgscontrol"
	ContentDatacast = "text/x-msnmsgr-datacast"
	ContentEmoticon = "text/x-mms-emoticon"
	ContentP2P      = "application/x-msnmsgrp2p"
)

// ErrBadMessage is returned when a message payload is not a well formed MIME
// document.
var ErrBadMessage = errors.New("command: malformed message payload")

// Class is the application kind of a message payload, derived from its
// content type.
type Class int

// The message classes understood by this module.
const (
	ClassUnknown Class = iota
	ClassText
	ClassTyping
	ClassNudge
	ClassEmoticon
	ClassP2P
	ClassChunk
)

// Message is a MIME shaped message payload: a header block followed by an
// empty line and a body.
type Message struct {
	Header textproto.MIMEHeader
	Body   []byte
}

// ReadMessage parses a message payload.
func ReadMessage(p []byte) (Message, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(p)))
	header, err := r.ReadMIMEHeader()
	if err != nil {
		return Message{}, ErrBadMessage
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(r.R); err != nil {
		return Message{}, ErrBadMessage
	}
	return Message{Header: header, Body: body.Bytes()}, nil
}

// NewText builds a plain text message.
func NewText(body string) Message {
	h := make(textproto.MIMEHeader)
	h.Set(HeaderContentType, ContentText+"; charset=UTF-8")
	return Message{Header: h, Body: []byte(body)}
}

// NewTyping builds a typing notification from the given account.
func NewTyping(account string) Message {
	h := make(textproto.MIMEHeader)
	h.Set(HeaderContentType, ContentTyping)
	h.Set(HeaderTypingUser, account)
	return Message{Header: h}
}

// NewNudge builds a nudge datacast message.
func NewNudge() Message {
	h := make(textproto.MIMEHeader)
	h.Set(HeaderContentType, ContentDatacast)
	return Message{Header: h, Body: []byte("ID: 1\r\n")}
}

// NewEmoticonDefinition builds a custom emoticon definition message. The body
// is the tab separated shortcut/object list in its wire form.
func NewEmoticonDefinition(definitions string) Message {
	h := make(textproto.MIMEHeader)
	h.Set(HeaderContentType, ContentEmoticon)
	return Message{Header: h, Body: []byte(definitions)}
}

// ContentType returns the message content type with any parameters removed.
func (m Message) ContentType() string {
	ct := m.Header.Get(HeaderContentType)
	if idx := strings.IndexByte(ct, ';'); idx != -1 {
		ct = ct[:idx]
	}
	return strings.TrimSpace(ct)
}

// Class derives the application kind of the message. Continuation chunks
// (which have a chunk index in place of a content type) are ClassChunk.
func (m Message) Class() Class {
	if m.Header.Get(HeaderChunk) != "" {
		return ClassChunk
	}
	switch m.ContentType() {
	case ContentText:
		return ClassText
	case ContentTyping:
		return ClassTyping
	case ContentDatacast:
		if strings.HasPrefix(strings.TrimSpace(string(m.Body)), "ID: 1") {
			return ClassNudge
		}
		return ClassUnknown
	case ContentEmoticon:
		return ClassEmoticon
	case ContentP2P:
		return ClassP2P
	}
	return ClassUnknown
}

// Bytes serializes the message. Headers are written in sorted order so that
// serialization is deterministic.
func (m Message) Bytes() []byte {
	var b bytes.Buffer
	keys := make([]string, 0, len(m.Header))
	for k := range m.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range m.Header[k] {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	b.Write(m.Body)
	return b.Bytes()
}

// Split splits the message body into chunks no larger than size bytes. A
// message that fits in one chunk is returned unchanged. The first chunk
// carries the original headers plus a generated message id and the chunk
// count; continuation chunks carry only the message id and their index.
func Split(m Message, size int) []Message {
	if size <= 0 {
		size = MaxChunkSize
	}
	if len(m.Body) <= size {
		return []Message{m}
	}
	count := (len(m.Body) + size - 1) / size
	id := "{" + uuid.New().String() + "}"

	chunks := make([]Message, 0, count)
	for i := 0; i < count; i++ {
		end := (i + 1) * size
		if end > len(m.Body) {
			end = len(m.Body)
		}
		body := m.Body[i*size : end]
		var h textproto.MIMEHeader
		if i == 0 {
			h = make(textproto.MIMEHeader, len(m.Header)+2)
			for k, vs := range m.Header {
				h[k] = vs
			}
			h.Set(HeaderMessageID, id)
			h.Set(HeaderChunks, strconv.Itoa(count))
		} else {
			h = make(textproto.MIMEHeader, 2)
			h.Set(HeaderMessageID, id)
			h.Set(HeaderChunk, strconv.Itoa(i))
		}
		chunks = append(chunks, Message{Header: h, Body: body})
	}
	return chunks
}
