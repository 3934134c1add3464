// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import "sync"

// batchEntry is an open BATCH block (§4.9), keyed by its reference tag.
type batchEntry struct {
	typ      string
	params   []string
	events   []*Event
	playback bool
}

// batchTracker tracks in-flight BATCH blocks by reference tag, so events
// carrying a matching "batch" client tag can be collected under it until
// the closing "-ref" line arrives.
type batchTracker struct {
	mu   sync.Mutex
	open map[string]*batchEntry
}

func newBatchTracker() *batchTracker {
	return &batchTracker{open: make(map[string]*batchEntry)}
}

// playbackTypes are BATCH types that represent a history replay rather
// than live traffic.
var playbackTypes = map[string]bool{
	"znc.in/playback":   true,
	"draft/chathistory": true,
	"chathistory":       true,
}

func (t *batchTracker) start(ref, typ string, params []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[ref] = &batchEntry{typ: typ, params: params, playback: playbackTypes[typ]}
}

// append records e as belonging to the open batch ref. Reports false if
// ref isn't a currently open batch.
func (t *batchTracker) append(ref string, e *Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.open[ref]
	if !ok {
		return false
	}
	entry.events = append(entry.events, e)
	return true
}

// finish closes and returns the batch ref, or nil if it wasn't open.
func (t *batchTracker) finish(ref string) *batchEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.open[ref]
	if !ok {
		return nil
	}
	delete(t.open, ref)
	return entry
}

// isPlayback reports whether ref is a currently open history-replay
// batch.
func (t *batchTracker) isPlayback(ref string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.open[ref]
	return ok && entry.playback
}

// handleBATCH opens or closes a BATCH block. Opening records the type
// and parameters; closing emits BATCH_COMPLETE with every event
// collected under the reference tag in arrival order.
func handleBATCH(c *Client, e Event) {
	if len(e.Params) < 1 || len(e.Params[0]) < 2 {
		return
	}

	op := e.Params[0][0]
	ref := e.Params[0][1:]

	switch op {
	case '+':
		var typ string
		var params []string
		if len(e.Params) > 1 {
			typ = e.Params[1]
		}
		if len(e.Params) > 2 {
			params = append([]string(nil), e.Params[2:]...)
		}
		c.batches.start(ref, typ, params)
	case '-':
		entry := c.batches.finish(ref)
		if entry == nil {
			return
		}
		c.RunHandlers(&Event{Command: BATCH_COMPLETE, Payload: &BatchComplete{
			Reference: ref,
			Type:      entry.typ,
			Params:    entry.params,
			Events:    entry.events,
		}})
	}
}

// collectBatchedEvent appends every tagged event (other than BATCH
// itself) to its open batch, if any.
func collectBatchedEvent(c *Client, e Event) {
	if e.Command == BATCH || e.Tags == nil {
		return
	}

	ref, ok := e.Tags.Get("batch")
	if !ok {
		return
	}

	ce := e
	c.batches.append(ref, &ce)
}
