// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package msnp

import (
	"sync"
	"time"
)

// A scheduler serializes submitted tasks on one goroutine and enforces a
// minimum interval between them. The server throttles some outbound request
// kinds; funneling them through a scheduler keeps the client under the
// limit without spreading sleeps through call sites.
type scheduler struct {
	interval time.Duration
	tasks    chan func()

	once sync.Once
	done chan struct{}
}

func newScheduler(interval time.Duration) *scheduler {
	s := &scheduler{
		interval: interval,
		tasks:    make(chan func(), 16),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *scheduler) run() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.tasks:
			f()
			timer := time.NewTimer(s.interval)
			select {
			case <-s.done:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// submit queues f for execution. It reports false if the scheduler has been
// stopped, in which case f will never run.
func (s *scheduler) submit(f func()) bool {
	select {
	case <-s.done:
		return false
	case s.tasks <- f:
		return true
	}
}

// stop shuts the scheduler down. Queued tasks that have not started are
// dropped.
func (s *scheduler) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}
