// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"github.com/muninirc/core/fish"
	"github.com/muninirc/core/keystore"
)

// keystoreHandle scopes a shared keystore.Store to the client's current
// network, so the same underlying store can be reused across
// reconnects/network switches without key collisions between networks
// that happen to share a nickname/channel namespace.
type keystoreHandle struct {
	store *keystore.Store
}

// newKeystoreHandle returns a handle backed by a fresh, empty store. Use
// Client.SetKeystore to share a store (and its persisted keys) across
// multiple Client instances.
func newKeystoreHandle() *keystoreHandle {
	return &keystoreHandle{store: keystore.New()}
}

// SetKeystore replaces the client's FiSH key store, e.g. with one loaded
// from an external secret store. munin itself never persists keys to
// disk; see spec'd Non-goals around on-disk secrets.
func (c *Client) SetKeystore(store *keystore.Store) {
	c.keys.store = store
}

// Keystore returns the client's FiSH key store, for callers that want to
// seed, export, or watch it directly.
func (c *Client) Keystore() *keystore.Store {
	return c.keys.store
}

func (c *Client) serverID() string {
	if !c.Config.disableTracking {
		if n := c.NetworkName(); n != "" {
			return n
		}
	}
	return c.Config.Server
}

// EncryptFor encrypts plaintext for target (a channel or nickname) if a
// FiSH key is configured for it, returning the wire-ready ciphertext and
// true. If no key is configured, it returns the plaintext unchanged and
// false.
func (c *Client) EncryptFor(target, plaintext string) (out string, encrypted bool) {
	raw, cbc, ok := c.keys.store.RawKey(c.serverID(), target)
	if !ok {
		return plaintext, false
	}

	mode := fish.ModeCBC
	if cbc {
		mode = fish.ModeCBC
	} else {
		mode = fish.ModeECB
	}

	ct, err := fish.Encrypt(plaintext, []byte(raw), mode)
	if err != nil {
		return plaintext, false
	}
	return ct, true
}

// DecryptFrom decrypts an incoming wire payload from source (a channel or
// nickname) if it carries a recognized FiSH prefix and a key is
// configured. ok is false when the text isn't FiSH-encoded or no key is
// available; err is set when a key is available but decryption fails
// (bad padding, wrong key, invalid UTF-8) -- per the soft-failure
// contract the caller should still surface the original ciphertext with
// an "encrypted" flag rather than drop the message.
func (c *Client) DecryptFrom(source, text string) (out string, ok bool, err error) {
	if !fish.IsEncrypted(text) {
		return text, false, nil
	}

	raw, _, found := c.keys.store.RawKey(c.serverID(), source)
	if !found {
		return text, false, nil
	}

	pt, derr := fish.Decrypt(text, []byte(raw))
	if derr != nil {
		return text, true, derr
	}
	return pt, true, nil
}
