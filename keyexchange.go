// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"strings"
	"sync"

	"github.com/muninirc/core/dh1080"
)

// DH1080 key exchange travels as plain-text NOTICE lines, in one of two
// historical dialects that differ only in how CBC mode is signaled:
//
//   - Irssi/fish.pl:   "DH1080_INIT <pub>[ CBC]" / "DH1080_FINISH <pub>[ CBC]"
//   - mIRC/FiSH10:     "DH1080_INIT_cbc <pub>"    / "DH1080_FINISH_cbc <pub>"
//
// A responder always replies using the same dialect the initiator used.
const (
	dh1080Init      = "DH1080_INIT"
	dh1080Finish    = "DH1080_FINISH"
	dh1080InitCBC   = "DH1080_INIT_cbc"
	dh1080FinishCBC = "DH1080_FINISH_cbc"
)

// pendingExchange is an outstanding DH1080 exchange we initiated,
// waiting on the peer's DH1080_FINISH.
type pendingExchange struct {
	kp     *dh1080.KeyPair
	cbc    bool
	mircFn bool // true if we used the "_cbc" suffix dialect
}

// keyExchangeTracker tracks outstanding DH1080 exchanges we've initiated,
// by peer (case-folded nick or channel).
type keyExchangeTracker struct {
	mu      sync.Mutex
	pending map[string]*pendingExchange
}

func newKeyExchangeTracker() *keyExchangeTracker {
	return &keyExchangeTracker{pending: make(map[string]*pendingExchange)}
}

func (t *keyExchangeTracker) start(peer string, pe *pendingExchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[peer] = pe
}

func (t *keyExchangeTracker) take(peer string) (*pendingExchange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pe, ok := t.pending[peer]
	if ok {
		delete(t.pending, peer)
	}
	return pe, ok
}

// InitiateKeyExchange begins a DH1080 key exchange with target (a
// nickname or channel), sending our public key as a DH1080_INIT NOTICE.
// If cbc is true, CBC mode is negotiated and signaled using the mIRC
// "_cbc" suffix dialect; otherwise the Irssi-style bare form is used.
func (cmd *Commands) InitiateKeyExchange(target string, cbc bool) error {
	kp, err := dh1080.Generate()
	if err != nil {
		return err
	}

	c := cmd.c
	c.exchanges.start(c.state.fold(target), &pendingExchange{kp: kp, cbc: cbc, mircFn: cbc})

	pub := dh1080.EncodePublic(kp.Public)

	var text string
	switch {
	case cbc:
		text = dh1080InitCBC + " " + pub
	default:
		text = dh1080Init + " " + pub
	}

	return c.Cmd.Notice(target, text)
}

// handleKeyExchangeNotice recognizes DH1080_INIT/FINISH NOTICE lines
// (in either dialect) and drives the key exchange state machine.
func handleKeyExchangeNotice(c *Client, e Event) {
	if len(e.Params) != 1 || e.Source == nil {
		return
	}

	fields := strings.Fields(e.Trailing)
	if len(fields) == 0 {
		return
	}

	peer := e.Source.Name
	folded := c.state.fold(peer)

	switch fields[0] {
	case dh1080Init, dh1080InitCBC:
		if len(fields) < 2 {
			return
		}
		cbc := fields[0] == dh1080InitCBC || (len(fields) >= 3 && strings.EqualFold(fields[2], "CBC"))
		respondToInit(c, peer, folded, fields[1], cbc, fields[0] == dh1080InitCBC)
	case dh1080Finish, dh1080FinishCBC:
		if len(fields) < 2 {
			return
		}
		finishExchange(c, peer, folded, fields[1])
	}
}

func respondToInit(c *Client, peer, folded, pubField string, cbc, mircDialect bool) {
	peerPub, err := dh1080.DecodePublic(pubField)
	if err != nil {
		c.RunHandlers(&Event{Command: KEY_EXCHANGE_FAILED, Payload: &KeyExchangeFailed{Peer: peer, Err: err}})
		return
	}

	kp, err := dh1080.Generate()
	if err != nil {
		c.RunHandlers(&Event{Command: KEY_EXCHANGE_FAILED, Payload: &KeyExchangeFailed{Peer: peer, Err: err}})
		return
	}

	secret, err := kp.SharedSecret(peerPub)
	if err != nil {
		c.RunHandlers(&Event{Command: KEY_EXCHANGE_FAILED, Payload: &KeyExchangeFailed{Peer: peer, Err: err}})
		return
	}

	_, encoded := dh1080.DeriveKey(secret)
	storeDerivedKey(c, folded, encoded, cbc)

	pub := dh1080.EncodePublic(kp.Public)
	var text string
	switch {
	case mircDialect:
		text = dh1080FinishCBC + " " + pub
	case cbc:
		text = dh1080Finish + " " + pub + " CBC"
	default:
		text = dh1080Finish + " " + pub
	}

	c.Cmd.Notice(peer, text)
	c.RunHandlers(&Event{Command: KEY_EXCHANGE_COMPLETE, Payload: &KeyExchangeComplete{Peer: peer, CBC: cbc}})
}

func finishExchange(c *Client, peer, folded, pubField string) {
	pe, ok := c.exchanges.take(folded)
	if !ok {
		return
	}

	peerPub, err := dh1080.DecodePublic(pubField)
	if err != nil {
		c.RunHandlers(&Event{Command: KEY_EXCHANGE_FAILED, Payload: &KeyExchangeFailed{Peer: peer, Err: err}})
		return
	}

	secret, err := pe.kp.SharedSecret(peerPub)
	if err != nil {
		c.RunHandlers(&Event{Command: KEY_EXCHANGE_FAILED, Payload: &KeyExchangeFailed{Peer: peer, Err: err}})
		return
	}

	_, encoded := dh1080.DeriveKey(secret)
	storeDerivedKey(c, folded, encoded, pe.cbc)

	c.RunHandlers(&Event{Command: KEY_EXCHANGE_COMPLETE, Payload: &KeyExchangeComplete{Peer: peer, CBC: pe.cbc}})
}

func storeDerivedKey(c *Client, target, encodedKey string, cbc bool) {
	key := encodedKey
	if cbc {
		key = "cbc:" + encodedKey
	}
	c.keys.store.Set(c.serverID(), target, key)
	c.RunHandlers(&Event{Command: KEY_CHANGED, Payload: &KeyChanged{Peer: target, HasKey: true}})
}
