// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"strings"
	"sync"
	"time"
)

// echoRetention is how long a sent (target, text) pair is remembered for
// echo-message dedup before it's evicted as stale.
const echoRetention = 5 * time.Minute

// echoTracker remembers messages we've just sent so the echo-message
// reflection the server sends back can be recognized as "already known
// to the consumer" rather than re-delivered as a fresh message.
type echoTracker struct {
	mu      sync.Mutex
	sent    map[string]time.Time
	cleaned time.Time
}

func newEchoTracker() *echoTracker {
	return &echoTracker{sent: make(map[string]time.Time)}
}

func echoKey(target, text string) string {
	return target + "\x00" + text
}

// track records that we just sent text to target.
func (t *echoTracker) track(target, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[echoKey(target, text)] = time.Now()
	t.sweep()
}

// consume reports whether (target, text) was sent by us recently, and if
// so removes the record (an echo is only ever consumed once; a second
// identical message is treated as new).
func (t *echoTracker) consume(target, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := echoKey(target, text)
	if ts, ok := t.sent[key]; ok && time.Since(ts) < echoRetention {
		delete(t.sent, key)
		return true
	}
	return false
}

// sweep evicts stale entries. Called with the lock already held; cheap
// enough to run on every track() since the map only grows with traffic
// we ourselves generated.
func (t *echoTracker) sweep() {
	if time.Since(t.cleaned) < time.Minute {
		return
	}
	t.cleaned = time.Now()
	for k, ts := range t.sent {
		if time.Since(ts) >= echoRetention {
			delete(t.sent, k)
		}
	}
}

// highlighted reports whether text mentions our own nickname or any of
// the consumer-configured highlight words, case-insensitively.
func (c *Client) highlighted(text string) bool {
	lower := strings.ToLower(text)

	if nick := c.Config.Nick; nick != "" && strings.Contains(lower, strings.ToLower(nick)) {
		return true
	}
	for _, word := range c.Config.HighlightWords {
		if word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

// decryptText decrypts text from source via the FiSH keystore if it
// carries a recognized wire prefix and a key is configured. It returns
// the plaintext (or the original ciphertext on soft failure), whether
// the message was recognized as encrypted, and any decryption error.
func (c *Client) decryptText(source, text string) (out string, encrypted bool, err error) {
	return c.DecryptFrom(source, text)
}

// fromPlayback reports whether e was delivered as part of a recognized
// history-replay batch (znc.in/playback or draft/chathistory).
func (c *Client) fromPlayback(e *Event) bool {
	label, ok := e.Tags.Get("batch")
	if !ok {
		return false
	}
	return c.batches.isPlayback(label)
}

// handlePRIVMSG implements the full incoming PRIVMSG pipeline: CTCP
// ACTION, decryption, highlighting, echo dedup, and dispatch to the
// typed ChannelMessage/PrivateMessage event surface.
func handlePRIVMSG(c *Client, e Event) {
	dispatchMessage(c, e, false)
}

// handleNOTICE mirrors handlePRIVMSG for NOTICE, which never triggers
// highlighting (notices are informational, not addressed chat) and is
// never treated as a CTCP ACTION.
func handleNOTICE(c *Client, e Event) {
	dispatchMessage(c, e, true)
}

func dispatchMessage(c *Client, e Event, notice bool) {
	if len(e.Params) != 1 || e.Source == nil {
		return
	}
	if e.IsCTCP() && !e.IsAction() {
		// A genuine CTCP request/reply, not an ACTION; the CTCP subsystem
		// (wired generically in RunHandlers) already handles the reply.
		// Nothing further to surface as a chat message.
		return
	}

	target := e.Params[0]
	text := e.Trailing
	action := e.IsAction()
	if action {
		text = e.StripAction()
	}

	// Channel messages key the FiSH store by channel name; private
	// messages key it by the sender's nick, since that's the peer we
	// actually share a key with (target is our own nick for those).
	keyPeer := target
	if !IsValidChannel(target) {
		keyPeer = e.Source.Name
	}
	plain, encrypted, decErr := c.decryptText(keyPeer, text)

	msgid, _ := e.MsgID()
	playback := c.fromPlayback(&e)

	if e.Echo && c.echo.consume(target, e.Trailing) {
		// We tracked sending this exact message ourselves; the consumer
		// already knows about it from the Send() call, so the server's
		// echo-message reflection is dropped rather than re-delivered.
		return
	}

	if IsValidChannel(target) {
		cm := &ChannelMessage{
			Channel:      target,
			Source:       e.Source,
			Text:         plain,
			Notice:       notice,
			Action:       action,
			Encrypted:    encrypted,
			DecryptError: decErr,
			Highlighted:  !notice && c.highlighted(plain),
			FromPlayback: playback,
			Echo:         e.Echo,
			MsgID:        msgid,
			Tags:         e.Tags,
			Timestamp:    e.Timestamp(time.Now()),
		}
		c.RunHandlers(&Event{Command: CHANNEL_MESSAGE, Payload: cm})
		return
	}

	pm := &PrivateMessage{
		Source:       e.Source,
		Text:         plain,
		Notice:       notice,
		Action:       action,
		Encrypted:    encrypted,
		DecryptError: decErr,
		FromPlayback: playback,
		Echo:         e.Echo,
		MsgID:        msgid,
		Tags:         e.Tags,
		Timestamp:    e.Timestamp(time.Now()),
	}
	c.RunHandlers(&Event{Command: PRIVATE_MESSAGE, Payload: pm})
}

// handleTAGMSG dispatches IRCv3 client-only tag messages: typing
// indicators and message reactions (§4.9).
func handleTAGMSG(c *Client, e Event) {
	if len(e.Params) != 1 || e.Source == nil || e.Tags == nil {
		return
	}
	target := e.Params[0]

	if state, ok := e.Tags.Get(TagDraftTyping); ok {
		c.RunHandlers(&Event{Command: TYPING_NOTIFICATION, Payload: &TypingNotification{
			Source: e.Source, Target: target, State: state,
		}})
		return
	}
	if state, ok := e.Tags.Get(TagTyping); ok {
		c.RunHandlers(&Event{Command: TYPING_NOTIFICATION, Payload: &TypingNotification{
			Source: e.Source, Target: target, State: state,
		}})
		return
	}

	if reaction, ok := e.Tags.Get(TagDraftReact); ok {
		msgid, _ := e.Tags.Get(TagDraftReply)
		c.RunHandlers(&Event{Command: REACTION_RECEIVED, Payload: &ReactionReceived{
			Source: e.Source, Target: target, MsgID: msgid, Reaction: reaction,
		}})
	}
}

// handleMARKREAD dispatches incoming MARKREAD read-position updates. The
// position value is always "timestamp="-prefixed, carrying either
// "msgid=<id>" (a specific message) or a plain ISO-8601 timestamp.
func handleMARKREAD(c *Client, e Event) {
	if len(e.Params) < 2 {
		return
	}

	target := e.Params[0]
	value := strings.TrimPrefix(e.Params[1], "timestamp=")

	rm := &ReadMarkerReceived{Source: e.Source, Target: target}
	if msgid := strings.TrimPrefix(value, "msgid="); msgid != value {
		rm.MsgID = msgid
	} else {
		rm.Timestamp = value
	}

	c.RunHandlers(&Event{Command: READ_MARKER_RECEIVED, Payload: rm})
}
