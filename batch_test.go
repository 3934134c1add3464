package munin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchTrackerStartAppendFinish(t *testing.T) {
	bt := newBatchTracker()

	bt.start("ref1", "znc.in/playback", []string{"#channel"})
	assert.True(t, bt.isPlayback("ref1"))

	e1 := &Event{Command: PRIVMSG, Params: []string{"#channel"}, Trailing: "first"}
	e2 := &Event{Command: PRIVMSG, Params: []string{"#channel"}, Trailing: "second"}
	require.True(t, bt.append("ref1", e1))
	require.True(t, bt.append("ref1", e2))

	entry := bt.finish("ref1")
	require.NotNil(t, entry)
	assert.Equal(t, "znc.in/playback", entry.typ)
	assert.Equal(t, []string{"#channel"}, entry.params)
	require.Len(t, entry.events, 2)
	assert.Equal(t, "first", entry.events[0].Trailing)
	assert.Equal(t, "second", entry.events[1].Trailing)

	assert.Nil(t, bt.finish("ref1"), "a batch can only be finished once")
}

func TestBatchTrackerAppendToUnknownRefFails(t *testing.T) {
	bt := newBatchTracker()
	assert.False(t, bt.append("nope", &Event{}))
}

func TestBatchTrackerNonPlaybackType(t *testing.T) {
	bt := newBatchTracker()
	bt.start("ref1", "netsplit", nil)
	assert.False(t, bt.isPlayback("ref1"))
}

func TestHandleBATCHIntegrationCollectsTaggedEvents(t *testing.T) {
	c := newTestClient()

	var got *BatchComplete
	c.Handlers.Add(BATCH_COMPLETE, func(client *Client, e Event) {
		got = e.Payload.(*BatchComplete)
	})

	c.RunHandlers(&Event{Command: BATCH, Params: []string{"+ref1", "draft/chathistory", "#channel"}})

	c.RunHandlers(&Event{
		Source:   &Source{Name: "alice", Ident: "a", Host: "h"},
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: "replayed message one",
		Tags:     Tags{"batch": "ref1"},
	})
	c.RunHandlers(&Event{
		Source:   &Source{Name: "alice", Ident: "a", Host: "h"},
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: "replayed message two",
		Tags:     Tags{"batch": "ref1"},
	})

	c.RunHandlers(&Event{Command: BATCH, Params: []string{"-ref1"}})

	require.NotNil(t, got)
	assert.Equal(t, "ref1", got.Reference)
	assert.Equal(t, "draft/chathistory", got.Type)
	require.Len(t, got.Events, 2)
	assert.Equal(t, "replayed message one", got.Events[0].Trailing)
	assert.Equal(t, "replayed message two", got.Events[1].Trailing)
}

func TestFromPlaybackReflectsOpenBatchType(t *testing.T) {
	c := newTestClient()
	c.batches.start("ref2", "znc.in/playback", nil)

	e := &Event{Tags: Tags{"batch": "ref2"}}
	assert.True(t, c.fromPlayback(e))

	c.batches.finish("ref2")
	assert.False(t, c.fromPlayback(e))
}
