// Package keystore provides a concurrent-safe per-peer encryption key
// table for the FiSH subsystem, keyed by (server identifier, lowercased
// target).
package keystore

import (
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
)

// cbcMarker prefixes a stored key when CBC (rather than the codec's
// default) should be used for that peer.
const cbcMarker = "cbc:"

// ChangeFunc is invoked after a key mutation (set/remove) becomes
// visible, with the affected server id, target, and whether a key is
// now present.
type ChangeFunc func(serverID, target string, hasKey bool)

// Store is a concurrent-safe table of FiSH keys, one per (server,
// target) pair. The zero value is not usable; use New.
type Store struct {
	entries cmap.ConcurrentMap

	mu        sync.Mutex
	listeners []ChangeFunc
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: cmap.New()}
}

func lookupKey(serverID, target string) string {
	return serverID + ":" + strings.ToLower(target)
}

// Set stores key for (serverID, target). An empty key removes the entry
// instead, per the invariant that the store never records an empty key.
func (s *Store) Set(serverID, target, key string) {
	lk := lookupKey(serverID, target)

	if key == "" {
		_, existed := s.entries.Get(lk)
		s.entries.Remove(lk)
		if existed {
			s.notify(serverID, target, false)
		}
		return
	}

	s.entries.Set(lk, key)
	s.notify(serverID, target, true)
}

// Get returns the raw stored key string (which may carry the "cbc:"
// prefix marker) for (serverID, target).
func (s *Store) Get(serverID, target string) (key string, ok bool) {
	v, ok := s.entries.Get(lookupKey(serverID, target))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// RawKey returns the key with any "cbc:" marker stripped, plus whether
// CBC mode was requested for this peer, ready to hand to the Blowfish
// codec.
func (s *Store) RawKey(serverID, target string) (key string, cbc bool, ok bool) {
	stored, ok := s.Get(serverID, target)
	if !ok {
		return "", false, false
	}

	if strings.HasPrefix(stored, cbcMarker) {
		return stored[len(cbcMarker):], true, true
	}

	return stored, false, true
}

// Has reports whether a key is stored for (serverID, target).
func (s *Store) Has(serverID, target string) bool {
	return s.entries.Has(lookupKey(serverID, target))
}

// Remove deletes the key for (serverID, target), if any.
func (s *Store) Remove(serverID, target string) {
	s.Set(serverID, target, "")
}

// OnChange registers fn to be called after every Set/Remove mutation
// becomes visible. Not safe to call concurrently with Set/Remove.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(serverID, target string, hasKey bool) {
	s.mu.Lock()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(serverID, target, hasKey)
	}
}

// ExportAll returns a snapshot of every stored lookup-key -> raw key
// entry, suitable for persistence by an external caller.
func (s *Store) ExportAll() map[string]string {
	out := make(map[string]string, len(s.entries.Keys()))
	for item := range s.entries.IterBuffered() {
		out[item.Key] = item.Val.(string)
	}
	return out
}

// LoadAll replaces the store's contents with entries, where each key is
// already in "serverID:lowercasedtarget" form (as produced by
// ExportAll). Empty values are skipped, preserving the no-empty-key
// invariant.
func (s *Store) LoadAll(entries map[string]string) {
	for lk, key := range entries {
		if key == "" {
			continue
		}
		s.entries.Set(lk, key)
	}
}
