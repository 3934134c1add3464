package munin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventWireRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"privmsg with trailing", ":nick!user@host PRIVMSG #channel :hello there"},
		{"notice no trailing colon needed", ":nick!user@host NOTICE bob :ping"},
		{"numeric with params and trailing", ":irc.example.net 001 bob :Welcome to the network"},
		{"tagged message", "@time=2021-01-01T00:00:00.000Z;msgid=abc123 :nick!user@host PRIVMSG #chan :hi"},
		{"command only", "PING"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := ParseEvent(tc.raw)
			require.NotNil(t, e)
			reparsed := ParseEvent(e.String())
			require.NotNil(t, reparsed)
			assert.Equal(t, e.Command, reparsed.Command)
			assert.Equal(t, e.Params, reparsed.Params)
			assert.Equal(t, e.Trailing, reparsed.Trailing)
		})
	}
}

func TestEventLastPrefersTrailing(t *testing.T) {
	e := &Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "hello"}
	assert.Equal(t, "hello", e.Last())

	e2 := &Event{Command: PING, Params: []string{"123456"}}
	assert.Equal(t, "123456", e2.Last())

	e3 := &Event{Command: PRIVMSG, Params: []string{"#chan"}, EmptyTrailing: true}
	assert.Equal(t, "", e3.Last())
}

func TestEventIsActionAndStripAction(t *testing.T) {
	e := &Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "\x01ACTION waves\x01"}
	assert.True(t, e.IsAction())
	assert.Equal(t, "waves", e.StripAction())

	notAction := &Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "just text"}
	assert.False(t, notAction.IsAction())
}

func TestEventIsCTCP(t *testing.T) {
	ctcp := &Event{Command: PRIVMSG, Params: []string{"bob"}, Trailing: "\x01VERSION\x01"}
	assert.True(t, ctcp.IsCTCP())

	plain := &Event{Command: PRIVMSG, Params: []string{"bob"}, Trailing: "no ctcp here"}
	assert.False(t, plain.IsCTCP())

	notice := &Event{Command: NOTICE, Params: []string{"bob"}, Trailing: "\x01PING 123\x01"}
	assert.True(t, notice.IsCTCP())
}

func TestEventCopyIsIndependent(t *testing.T) {
	e := &Event{
		Command: PRIVMSG,
		Params:  []string{"#chan"},
		Tags:    Tags{"msgid": "abc"},
	}
	cp := e.Copy()
	cp.Params[0] = "#other"
	cp.Tags["msgid"] = "xyz"

	assert.Equal(t, "#chan", e.Params[0])
	assert.Equal(t, "abc", e.Tags["msgid"])
}
