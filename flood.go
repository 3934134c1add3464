// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Flood protector defaults, per IRC convention: a small burst allowance
// refilling at a conservative rate so a connection doesn't trip
// server-side excess-flood detection.
const (
	defaultMaxTokens      = 5
	defaultRefillRate     = 1
	defaultRefillInterval = time.Second
)

// floodWrite is the callback the flood protector delegates the actual
// wire write to, once a command has been dequeued and its token
// reservation honored.
type floodWrite func(event *Event) error

// pendingSend is a single queued command awaiting its turn, with a
// channel the enqueuing caller can wait on for completion.
type pendingSend struct {
	event *Event
	done  chan error
}

// floodControl is a single-consumer write queue rate-limited by a
// golang.org/x/time/rate token bucket: maxTokens can be spent
// immediately (burst), and thereafter refillRate tokens accrue every
// refillInterval. Writes are strictly FIFO regardless of whether they
// were queued via sendAsync or queueSend.
type floodControl struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	maxTokens      int
	refillRate     int
	refillInterval time.Duration

	enabled bool

	queue   []*pendingSend
	wake    chan struct{}
	stopCh  chan struct{}
	stopped bool

	write floodWrite
}

// newFloodControl constructs a flood protector with the given bucket
// parameters, delegating actual writes to write. The consumer goroutine
// must be started with run().
func newFloodControl(maxTokens, refillRate int, refillInterval time.Duration, write floodWrite) *floodControl {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if refillRate <= 0 {
		refillRate = defaultRefillRate
	}
	if refillInterval <= 0 {
		refillInterval = defaultRefillInterval
	}

	return &floodControl{
		limiter:        rate.NewLimiter(rate.Limit(float64(refillRate)/refillInterval.Seconds()), maxTokens),
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		refillInterval: refillInterval,
		enabled:        true,
		wake:           make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		write:          write,
	}
}

// setEnabled toggles flood protection. While disabled, sendAsync and
// queueSend bypass the queue and write immediately.
func (f *floodControl) setEnabled(v bool) {
	f.mu.Lock()
	f.enabled = v
	f.mu.Unlock()
	f.poke()
}

// sendAsync enqueues event and blocks until it has been written (or the
// protector is reset/stopped), returning the write's error.
func (f *floodControl) sendAsync(event *Event) error {
	f.mu.Lock()
	if !f.enabled {
		f.mu.Unlock()
		return f.write(event)
	}
	if f.stopped {
		f.mu.Unlock()
		return ErrNotConnected
	}

	p := &pendingSend{event: event, done: make(chan error, 1)}
	f.queue = append(f.queue, p)
	f.mu.Unlock()

	f.poke()

	return <-p.done
}

// queueSend enqueues event without waiting for it to be written.
func (f *floodControl) queueSend(event *Event) {
	f.mu.Lock()
	if !f.enabled {
		f.mu.Unlock()
		go func() { _ = f.write(event) }()
		return
	}
	if f.stopped {
		f.mu.Unlock()
		return
	}

	f.queue = append(f.queue, &pendingSend{event: event, done: make(chan error, 1)})
	f.mu.Unlock()

	f.poke()
}

func (f *floodControl) poke() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// reset cancels all pending sends with ErrNotConnected, drains the
// queue, and restores the limiter to a full burst allowance, without
// stopping the consumer loop.
func (f *floodControl) reset() {
	f.mu.Lock()
	pending := f.queue
	f.queue = nil
	f.limiter.SetBurstAt(time.Now(), f.maxTokens)
	f.mu.Unlock()

	for _, p := range pending {
		select {
		case p.done <- ErrNotConnected:
		default:
		}
	}

	f.poke()
}

// stop halts the consumer loop and drains any remaining queue entries
// with ErrNotConnected.
func (f *floodControl) stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	pending := f.queue
	f.queue = nil
	f.mu.Unlock()

	close(f.stopCh)

	for _, p := range pending {
		select {
		case p.done <- ErrNotConnected:
		default:
		}
	}
}

// run is the single-consumer task: it dequeues pending sends (strict
// FIFO), waits out each one's rate.Limiter reservation, and delegates
// the write to f.write. It returns once stop() is called.
func (f *floodControl) run() {
	for {
		waited := f.drain()
		if waited {
			// A reservation was being waited on and may have been woken
			// early by poke(); immediately re-check the queue instead of
			// blocking again.
			continue
		}

		select {
		case <-f.stopCh:
			return
		case <-f.wake:
		}
	}
}

// drain dequeues and writes pending sends in FIFO order, waiting out
// each one's token reservation before writing. Returns true if it had
// to wait on a reservation (so run's caller re-polls rather than
// blocking on an empty wake).
func (f *floodControl) drain() (waited bool) {
	for {
		f.mu.Lock()
		if f.stopped || len(f.queue) == 0 {
			f.mu.Unlock()
			return waited
		}

		p := f.queue[0]
		reservation := f.limiter.Reserve()
		delay := reservation.Delay()
		f.mu.Unlock()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-f.stopCh:
				timer.Stop()
				reservation.Cancel()
				return true
			case <-f.wake:
				timer.Stop()
				reservation.Cancel()
				return true
			}
			waited = true
		}

		f.mu.Lock()
		if f.stopped || len(f.queue) == 0 || f.queue[0] != p {
			// Queue mutated (reset/stop) while we waited; don't write a
			// reservation against a send we no longer own.
			f.mu.Unlock()
			reservation.Cancel()
			return true
		}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		err := f.write(p.event)
		select {
		case p.done <- err:
		default:
		}
	}
}
