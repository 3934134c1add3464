// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

// Package munin provides a high level, flexible IRC client engine:
// connection lifecycle (dial, TLS, optional relay tunnel, reconnect),
// the IRC/IRCv3 protocol (capability negotiation, SASL, message tags,
// batches), channel/user tracking, and transparent FiSH end-to-end
// message encryption bootstrapped over DH1080 key exchange.
//
// The engine is event-oriented: callers subscribe to typed events via
// Callback registration, keyed per event kind, and drive the connection
// with Client.Connect. Encryption, capability negotiation, and
// reconnection are handled internally; none of it needs to be driven by
// the caller.
//
// See cmd/muninclient for a small, complete example.
package munin
