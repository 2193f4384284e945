// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package switchboard

import (
	"bytes"
	"errors"
	"strconv"
	"sync"

	"mellium.im/msnp/command"
)

// Errors returned by the reassembler.
var (
	ErrBadChunk     = errors.New("switchboard: malformed chunk sequence")
	ErrUnknownChunk = errors.New("switchboard: continuation chunk for unknown message")
)

type partial struct {
	first  command.Message
	bodies [][]byte
	count  int
	next   int
}

// A Reassembler rebuilds messages that were split into chunks by the
// sender. Buffers are keyed by the sender generated message id; chunks must
// arrive in index order. A malformed sequence discards only the affected
// message.
type Reassembler struct {
	mu      sync.Mutex
	pending map[string]*partial
}

// NewReassembler returns an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[string]*partial)}
}

// Add feeds one inbound message through the reassembler. Unchunked messages
// pass through unchanged with done set. For chunked messages done is false
// until the final chunk arrives, at which point the rebuilt message is
// returned with the first chunk's headers and the concatenated body.
func (r *Reassembler) Add(m command.Message) (out command.Message, done bool, err error) {
	id := m.Header.Get(command.HeaderMessageID)
	chunks := m.Header.Get(command.HeaderChunks)
	index := m.Header.Get(command.HeaderChunk)

	switch {
	case id == "" || (chunks == "" && index == ""):
		return m, true, nil
	case chunks != "":
		count, err := strconv.Atoi(chunks)
		if err != nil || count < 2 {
			return command.Message{}, false, ErrBadChunk
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, exists := r.pending[id]; exists {
			delete(r.pending, id)
			return command.Message{}, false, ErrBadChunk
		}
		p := &partial{first: m, bodies: make([][]byte, 0, count), count: count, next: 1}
		p.bodies = append(p.bodies, m.Body)
		r.pending[id] = p
		return command.Message{}, false, nil
	default:
		i, err := strconv.Atoi(index)
		if err != nil {
			return command.Message{}, false, ErrBadChunk
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		p, exists := r.pending[id]
		if !exists {
			return command.Message{}, false, ErrUnknownChunk
		}
		if i != p.next {
			// Out of order or duplicated; the whole message is lost.
			delete(r.pending, id)
			return command.Message{}, false, ErrBadChunk
		}
		p.bodies = append(p.bodies, m.Body)
		p.next++
		if p.next < p.count {
			return command.Message{}, false, nil
		}
		delete(r.pending, id)
		rebuilt := command.Message{Header: p.first.Header, Body: bytes.Join(p.bodies, nil)}
		rebuilt.Header.Del(command.HeaderMessageID)
		rebuilt.Header.Del(command.HeaderChunks)
		return rebuilt, true, nil
	}
}
