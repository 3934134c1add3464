package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelayServer implements just enough of the relay protocol over a
// net.Conn to exercise Conn's client-side handshake.
func fakeRelayServer(t *testing.T, server net.Conn, token []byte, wantHost string, wantPort uint16, authOK, connectOK bool) {
	t.Helper()

	typ, err := readFrameHeader(server)
	require.NoError(t, err)
	require.Equal(t, TypeAuth, typ)

	challengeLen := readByte(t, server)
	challenge := make([]byte, challengeLen)
	_, err = io.ReadFull(server, challenge)
	require.NoError(t, err)

	sigLen := readByte(t, server)
	sig := make([]byte, sigLen)
	_, err = io.ReadFull(server, sig)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, token)
	mac.Write(challenge)
	expected := mac.Sum(nil)
	assert.True(t, hmac.Equal(expected, sig))

	if !authOK {
		reason := "bad token"
		writeFrame(server, TypeAuthFail, lenPrefixed16(reason))
		return
	}
	writeFrame(server, TypeAuthOK, nil)

	typ, err = readFrameHeader(server)
	require.NoError(t, err)
	require.Equal(t, TypeConnect, typ)

	hostLen := readByte(t, server)
	host := make([]byte, hostLen)
	_, err = io.ReadFull(server, host)
	require.NoError(t, err)
	assert.Equal(t, wantHost, string(host))

	portBuf := make([]byte, 2)
	_, err = io.ReadFull(server, portBuf)
	require.NoError(t, err)
	assert.Equal(t, wantPort, binary.LittleEndian.Uint16(portBuf))

	_ = readByte(t, server) // tls flag

	if !connectOK {
		writeFrame(server, TypeConnectFail, lenPrefixed16("unreachable"))
		return
	}
	writeFrame(server, TypeConnectOK, nil)
}

func readByte(t *testing.T, r io.Reader) byte {
	t.Helper()
	buf := make([]byte, 1)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)
	return buf[0]
}

func lenPrefixed16(s string) []byte {
	out := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(out, uint16(len(s)))
	copy(out[2:], s)
	return out
}

func TestHandshakeSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	token := []byte("sharedsecret")

	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeRelayServer(t, server, token, "irc.example.org", 6697, true, true)
	}()

	conn := Dial(client)
	require.NoError(t, conn.Authenticate(token))
	require.NoError(t, conn.Connect("irc.example.org", 6697, true))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server goroutine did not complete")
	}
}

func TestHandshakeAuthFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	token := []byte("sharedsecret")

	go fakeRelayServer(t, server, token, "", 0, false, false)

	conn := Dial(client)
	err := conn.Authenticate(token)
	require.Error(t, err)

	var authErr *AuthFailError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, "bad token", authErr.Reason)
}

func TestHandshakeConnectFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	token := []byte("sharedsecret")

	go fakeRelayServer(t, server, token, "irc.example.org", 6667, true, false)

	conn := Dial(client)
	require.NoError(t, conn.Authenticate(token))

	err := conn.Connect("irc.example.org", 6667, false)
	require.Error(t, err)

	var connErr *ConnectFailError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, "unreachable", connErr.Reason)
}
