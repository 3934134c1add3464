package munin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoTrackerTrackAndConsume(t *testing.T) {
	et := newEchoTracker()

	et.track("#channel", "hello there")
	assert.True(t, et.consume("#channel", "hello there"), "tracked send should be consumable once")
	assert.False(t, et.consume("#channel", "hello there"), "a second consume of the same entry must fail")
}

func TestEchoTrackerConsumeUnknownIsFalse(t *testing.T) {
	et := newEchoTracker()
	assert.False(t, et.consume("#channel", "never sent"))
}

func TestEchoTrackerSweepEvictsStale(t *testing.T) {
	et := newEchoTracker()
	et.sent[echoKey("#channel", "old")] = time.Now().Add(-echoRetention - time.Minute)
	et.cleaned = time.Now().Add(-2 * time.Minute)

	et.sweep()

	_, ok := et.sent[echoKey("#channel", "old")]
	assert.False(t, ok, "entries older than the retention window should be evicted")
}

func newTestClient() *Client {
	return New(Config{Server: "irc.example.net", Nick: "bob", Name: "Bob Bobson"})
}

func TestDispatchChannelMessage(t *testing.T) {
	c := newTestClient()

	var got *ChannelMessage
	c.Handlers.Add(CHANNEL_MESSAGE, func(client *Client, e Event) {
		got = e.Payload.(*ChannelMessage)
	})

	c.RunHandlers(&Event{
		Source:  &Source{Name: "alice", Ident: "a", Host: "h"},
		Command: PRIVMSG,
		Params:  []string{"#channel"},
		Trailing: "hello bob",
	})

	require.NotNil(t, got)
	assert.Equal(t, "#channel", got.Channel)
	assert.Equal(t, "hello bob", got.Text)
	assert.True(t, got.Highlighted, "message mentioning our nick should be highlighted")
	assert.False(t, got.Notice)
	assert.False(t, got.Encrypted)
}

func TestDispatchPrivateMessage(t *testing.T) {
	c := newTestClient()

	var got *PrivateMessage
	c.Handlers.Add(PRIVATE_MESSAGE, func(client *Client, e Event) {
		got = e.Payload.(*PrivateMessage)
	})

	c.RunHandlers(&Event{
		Source:   &Source{Name: "alice", Ident: "a", Host: "h"},
		Command:  NOTICE,
		Params:   []string{"bob"},
		Trailing: "psst",
	})

	require.NotNil(t, got)
	assert.Equal(t, "psst", got.Text)
	assert.True(t, got.Notice)
}

func TestDispatchActionMessage(t *testing.T) {
	c := newTestClient()

	var got *ChannelMessage
	c.Handlers.Add(CHANNEL_MESSAGE, func(client *Client, e Event) {
		got = e.Payload.(*ChannelMessage)
	})

	c.RunHandlers(&Event{
		Source:   &Source{Name: "alice", Ident: "a", Host: "h"},
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: "\x01ACTION waves\x01",
	})

	require.NotNil(t, got)
	assert.True(t, got.Action)
	assert.Equal(t, "waves", got.Text)
}

func TestDispatchEncryptedChannelMessage(t *testing.T) {
	c := newTestClient()
	c.Keystore().Set(c.serverID(), "#channel", "supersecretkey")

	ciphertext, encrypted := c.EncryptFor("#channel", "top secret plans")
	require.True(t, encrypted)

	var got *ChannelMessage
	c.Handlers.Add(CHANNEL_MESSAGE, func(client *Client, e Event) {
		got = e.Payload.(*ChannelMessage)
	})

	c.RunHandlers(&Event{
		Source:   &Source{Name: "alice", Ident: "a", Host: "h"},
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: ciphertext,
	})

	require.NotNil(t, got)
	assert.True(t, got.Encrypted)
	assert.NoError(t, got.DecryptError)
	assert.Equal(t, "top secret plans", got.Text)
}

func TestDispatchSuppressesConsumedEcho(t *testing.T) {
	c := newTestClient()
	c.echo.track("#channel", "already delivered")

	called := false
	c.Handlers.Add(CHANNEL_MESSAGE, func(client *Client, e Event) {
		called = true
	})

	c.RunHandlers(&Event{
		Source:   &Source{Name: "bob", Ident: "b", Host: "h"},
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: "already delivered",
		Echo:     true,
	})

	assert.False(t, called, "an echo of a message we already tracked sending should not be redelivered")
}

func TestDispatchDeliversUntrackedEcho(t *testing.T) {
	c := newTestClient()

	var got *ChannelMessage
	c.Handlers.Add(CHANNEL_MESSAGE, func(client *Client, e Event) {
		got = e.Payload.(*ChannelMessage)
	})

	c.RunHandlers(&Event{
		Source:   &Source{Name: "bob", Ident: "b", Host: "h"},
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: "sent from another bouncer session",
		Echo:     true,
	})

	require.NotNil(t, got, "an echo we never tracked sending ourselves should still be delivered")
}

func TestHandleTAGMSGTyping(t *testing.T) {
	c := newTestClient()

	var got *TypingNotification
	c.Handlers.Add(TYPING_NOTIFICATION, func(client *Client, e Event) {
		got = e.Payload.(*TypingNotification)
	})

	c.RunHandlers(&Event{
		Source:  &Source{Name: "alice", Ident: "a", Host: "h"},
		Command: TAGMSG,
		Params:  []string{"#channel"},
		Tags:    Tags{TagDraftTyping: "active"},
	})

	require.NotNil(t, got)
	assert.Equal(t, "#channel", got.Target)
	assert.Equal(t, "active", got.State)
}

func TestHandleTAGMSGReaction(t *testing.T) {
	c := newTestClient()

	var got *ReactionReceived
	c.Handlers.Add(REACTION_RECEIVED, func(client *Client, e Event) {
		got = e.Payload.(*ReactionReceived)
	})

	c.RunHandlers(&Event{
		Source:  &Source{Name: "alice", Ident: "a", Host: "h"},
		Command: TAGMSG,
		Params:  []string{"#channel"},
		Tags:    Tags{TagDraftReact: "+1", TagDraftReply: "msg123"},
	})

	require.NotNil(t, got)
	assert.Equal(t, "+1", got.Reaction)
	assert.Equal(t, "msg123", got.MsgID)
}

func TestHandleMARKREADMsgIDForm(t *testing.T) {
	c := newTestClient()

	var got *ReadMarkerReceived
	c.Handlers.Add(READ_MARKER_RECEIVED, func(client *Client, e Event) {
		got = e.Payload.(*ReadMarkerReceived)
	})

	c.RunHandlers(&Event{
		Command: MARKREAD,
		Params:  []string{"#channel", "timestamp=msgid=abc123"},
	})

	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.MsgID)
	assert.Empty(t, got.Timestamp)
}

func TestHandleMARKREADTimestampForm(t *testing.T) {
	c := newTestClient()

	var got *ReadMarkerReceived
	c.Handlers.Add(READ_MARKER_RECEIVED, func(client *Client, e Event) {
		got = e.Payload.(*ReadMarkerReceived)
	})

	c.RunHandlers(&Event{
		Command: MARKREAD,
		Params:  []string{"#channel", "timestamp=2021-01-01T00:00:00Z"},
	})

	require.NotNil(t, got)
	assert.Equal(t, "2021-01-01T00:00:00Z", got.Timestamp)
	assert.Empty(t, got.MsgID)
}
