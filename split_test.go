package munin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPRIVMSGPreservesTarget(t *testing.T) {
	event := &Event{
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: strings.Repeat("a", 50),
	}

	events := splitPRIVMSG(event, 40)
	require.Greater(t, len(events), 1, "expected the message to split across multiple events")

	var reassembled strings.Builder
	for _, e := range events {
		require.Equal(t, []string{"#channel"}, e.Params, "split fragments must keep the original target")
		reassembled.WriteString(e.Trailing)
	}
	assert.Equal(t, event.Trailing, reassembled.String())
}

func TestSplitPRIVMSGBreaksOnWordBoundary(t *testing.T) {
	event := &Event{
		Command:  PRIVMSG,
		Params:   []string{"#channel"},
		Trailing: "one two three four five six seven eight nine ten",
	}

	events := splitPRIVMSG(event, 20)
	require.Greater(t, len(events), 1)
	for _, e := range events[:len(events)-1] {
		assert.False(t, strings.HasSuffix(e.Trailing, " "), "fragments should not carry trailing whitespace")
	}
}

func TestSplitEventNoSplitWhenShort(t *testing.T) {
	client := New(Config{Server: "irc.example.net", Nick: "bob"})
	event := &Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "short message"}

	events := splitEvent(client, event)
	require.Len(t, events, 1)
	assert.Equal(t, event, events[0])
}

func TestSplitEventSplitsLongMessage(t *testing.T) {
	client := New(Config{Server: "irc.example.net", Nick: "bob"})
	event := &Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: strings.Repeat("x", 600)}

	events := splitEvent(client, event)
	require.Greater(t, len(events), 1)
	for _, e := range events {
		assert.LessOrEqual(t, e.Len(), 512-2)
	}
}
