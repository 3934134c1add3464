// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import "time"

// Synthesized pseudo-commands delivered through the same Handlers/Caller
// surface as wire events (see numerics.go for the CLIENT_* ones). Each
// carries its detail in Event.Payload, typed as the struct named in its
// doc comment, so a consumer can register a single handler per kind
// instead of re-deriving structured data from Params/Trailing/Tags.
const (
	// CHANNEL_MESSAGE carries a *ChannelMessage.
	CHANNEL_MESSAGE = "MUNIN_CHANNEL_MESSAGE"
	// PRIVATE_MESSAGE carries a *PrivateMessage.
	PRIVATE_MESSAGE = "MUNIN_PRIVATE_MESSAGE"
	// SERVER_MESSAGE carries a *ServerMessage, for numerics/notices that
	// aren't targeted at a channel or the client directly (MOTD lines,
	// server NOTICEs before registration, etc).
	SERVER_MESSAGE = "MUNIN_SERVER_MESSAGE"
	// LATENCY_UPDATED carries a *LatencyUpdated, emitted after every PONG.
	LATENCY_UPDATED = "MUNIN_LATENCY_UPDATED"
	// BATCH_COMPLETE carries a *BatchComplete, emitted when a BATCH's
	// closing "-REF" line is seen.
	BATCH_COMPLETE = "MUNIN_BATCH_COMPLETE"
	// KEY_EXCHANGE_COMPLETE carries a *KeyExchangeComplete.
	KEY_EXCHANGE_COMPLETE = "MUNIN_KEY_EXCHANGE_COMPLETE"
	// KEY_EXCHANGE_FAILED carries a *KeyExchangeFailed.
	KEY_EXCHANGE_FAILED = "MUNIN_KEY_EXCHANGE_FAILED"
	// KEY_CHANGED carries a *KeyChanged, emitted whenever a consumer or
	// key exchange updates a stored FiSH key.
	KEY_CHANGED = "MUNIN_KEY_CHANGED"
	// TYPING_NOTIFICATION carries a *TypingNotification.
	TYPING_NOTIFICATION = "MUNIN_TYPING_NOTIFICATION"
	// REACTION_RECEIVED carries a *ReactionReceived.
	REACTION_RECEIVED = "MUNIN_REACTION_RECEIVED"
	// READ_MARKER_RECEIVED carries a *ReadMarkerReceived.
	READ_MARKER_RECEIVED = "MUNIN_READ_MARKER_RECEIVED"
)

// ChannelMessage is the decoded/decrypted form of a PRIVMSG or NOTICE
// targeting a channel.
type ChannelMessage struct {
	Channel      string
	Source       *Source
	Text         string
	Notice       bool
	Action       bool
	Encrypted    bool
	DecryptError error
	Highlighted  bool
	FromPlayback bool
	Echo         bool
	MsgID        string
	Tags         Tags
	Timestamp    time.Time
}

// PrivateMessage is the decoded/decrypted form of a PRIVMSG or NOTICE
// targeting the client directly.
type PrivateMessage struct {
	Source       *Source
	Text         string
	Notice       bool
	Action       bool
	Encrypted    bool
	DecryptError error
	FromPlayback bool
	Echo         bool
	MsgID        string
	Tags         Tags
	Timestamp    time.Time
}

// ServerMessage wraps an untargeted informational message from the
// server (MOTD lines, pre-registration NOTICEs, and similar).
type ServerMessage struct {
	Source  *Source
	Command string
	Text    string
}

// LatencyUpdated reports a fresh round-trip-time sample, derived from the
// nanosecond timestamp token embedded in outgoing PING payloads.
type LatencyUpdated struct {
	RTT time.Duration
}

// BatchComplete summarizes a finished BATCH block (§4.9): its reference
// tag, type (e.g. "znc.in/playback", "draft/chathistory", "netsplit"),
// the parameters that followed the type, and every event that was
// delivered as part of it, in arrival order.
type BatchComplete struct {
	Reference string
	Type      string
	Params    []string
	Events    []*Event
}

// KeyExchangeComplete reports a successfully negotiated DH1080 FiSH key
// with Peer (a nickname or channel).
type KeyExchangeComplete struct {
	Peer string
	CBC  bool
}

// KeyExchangeFailed reports a DH1080 exchange that could not be
// completed (malformed peer key, out-of-range value, or similar).
type KeyExchangeFailed struct {
	Peer string
	Err  error
}

// KeyChanged reports that the stored FiSH key for Peer was set, changed,
// or removed.
type KeyChanged struct {
	Peer   string
	HasKey bool
}

// TypingNotification reports an incoming "+typing"/"+draft/typing"
// TAGMSG client tag (§4.9).
type TypingNotification struct {
	Source *Source
	Target string
	State  string
}

// ReactionReceived reports an incoming "+draft/react" TAGMSG, optionally
// replying to a prior message via "+draft/reply".
type ReactionReceived struct {
	Source   *Source
	Target   string
	MsgID    string
	Reaction string
}

// ReadMarkerReceived reports an incoming MARKREAD notification of a
// peer's read position.
type ReadMarkerReceived struct {
	Source *Source
	Target string
	// MsgID is set when the marker names a specific message
	// ("timestamp=msgid=<id>"); Timestamp is set when the server instead
	// sent a plain ISO-8601 read position. Exactly one is non-empty.
	MsgID     string
	Timestamp string
}
