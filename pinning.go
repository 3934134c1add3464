// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"crypto/sha256"
	"crypto/x509"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// PinResult reports the outcome of validating a server's certificate
// against the pin store.
type PinResult int

const (
	// PinValid means the fingerprint matches the one already on file.
	PinValid PinResult = iota
	// PinNewCertificate means no pin existed for this host; one was
	// just recorded.
	PinNewCertificate
	// PinChanged means a pin existed but the fingerprint no longer
	// matches.
	PinChanged
)

func (r PinResult) String() string {
	switch r {
	case PinValid:
		return "valid"
	case PinNewCertificate:
		return "new"
	case PinChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// CertificatePin records a server's SHA-256 certificate fingerprint as
// observed on first connection, and is updated on every subsequent
// successful handshake.
type CertificatePin struct {
	Host        string    `json:"host"`
	Fingerprint string    `json:"fingerprint"` // hex-encoded SHA-256 of the DER cert
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	NotAfter    time.Time `json:"not_after"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// PinVerifier is consulted with the computed validation result and the
// previous/new pin. Returning false vetoes the connection (only
// meaningful on PinChanged; PinValid/PinNewCertificate are never
// vetoable in practice since there's nothing to compare against yet).
// A nil PinVerifier means "always proceed" -- the default policy is
// advisory-only, per spec.
type PinVerifier func(result PinResult, previous, current *CertificatePin) bool

// PinStore is a concurrent-safe, first-seen-trust certificate pin table,
// keyed by host. It implements only the in-memory protocol; persisting
// pins to disk is left to the embedding application.
type PinStore struct {
	pins cmap.ConcurrentMap
	mu   sync.Mutex
}

// NewPinStore returns an empty pin store.
func NewPinStore() *PinStore {
	return &PinStore{pins: cmap.New()}
}

// Get returns the recorded pin for host, if any.
func (p *PinStore) Get(host string) (pin *CertificatePin, ok bool) {
	v, ok := p.pins.Get(host)
	if !ok {
		return nil, false
	}
	return v.(*CertificatePin), true
}

// Load seeds the store with previously-persisted pins.
func (p *PinStore) Load(pins []*CertificatePin) {
	for _, pin := range pins {
		p.pins.Set(pin.Host, pin)
	}
}

// All returns a snapshot of every pin currently recorded.
func (p *PinStore) All() []*CertificatePin {
	out := make([]*CertificatePin, 0, p.pins.Count())
	for item := range p.pins.IterBuffered() {
		out = append(out, item.Val.(*CertificatePin))
	}
	return out
}

// Validate computes the SHA-256 fingerprint of cert and checks it
// against the pin recorded for host, recording a new pin or updating
// LastSeen as appropriate. The returned pin is always the current
// (post-update) record.
func (p *PinStore) Validate(host string, cert *x509.Certificate) (PinResult, *CertificatePin) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sum := sha256.Sum256(cert.Raw)
	fingerprint := hexEncode(sum[:])
	now := time.Now()

	existing, ok := p.Get(host)
	if !ok {
		pin := &CertificatePin{
			Host:        host,
			Fingerprint: fingerprint,
			Subject:     cert.Subject.String(),
			Issuer:      cert.Issuer.String(),
			NotAfter:    cert.NotAfter,
			FirstSeen:   now,
			LastSeen:    now,
		}
		p.pins.Set(host, pin)
		return PinNewCertificate, pin
	}

	if existing.Fingerprint == fingerprint {
		existing.LastSeen = now
		return PinValid, existing
	}

	changed := &CertificatePin{
		Host:        host,
		Fingerprint: fingerprint,
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		NotAfter:    cert.NotAfter,
		FirstSeen:   existing.FirstSeen,
		LastSeen:    now,
	}
	p.pins.Set(host, changed)
	return PinChanged, changed
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
