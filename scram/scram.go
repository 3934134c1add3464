// Package scram implements the client side of SCRAM-SHA-256 (RFC 5802)
// for IRC SASL authentication, including the channel-binding-disabled
// "n,," GS2 header used by IRCv3's sasl capability.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// State is the client-side SCRAM exchange state.
type State int

const (
	Initial State = iota
	WaitingForServerFirst
	WaitingForServerFinal
	Done
	Failed
)

const gs2Header = "n,,"

// Errors returned by this package.
var (
	ErrWrongState      = errors.New("scram: message received in the wrong state")
	ErrMalformedServer = errors.New("scram: malformed server message")
	ErrNonceMismatch   = errors.New("scram: server nonce does not extend client nonce")
	ErrServerSignature = errors.New("scram: server signature verification failed")
)

// Client drives one SCRAM-SHA-256 authentication attempt.
type Client struct {
	state State

	user     string
	password string

	clientNonce    string
	combinedNonce  string
	clientFirstBare string
	serverFirst    string
	clientFinalNoProof string

	saltedPassword []byte
}

// NewClient returns a fresh SCRAM-SHA-256 client for the given username
// and password.
func NewClient(user, password string) *Client {
	return &Client{user: user, password: password, state: Initial}
}

// State returns the current exchange state.
func (c *Client) State() State { return c.state }

// FirstMessage returns the GS2-header-prefixed client-first message to
// send as the initial AUTHENTICATE payload.
func (c *Client) FirstMessage() (string, error) {
	if c.state != Initial {
		return "", ErrWrongState
	}

	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	c.clientNonce = nonce

	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", escapeSCRAM(c.user), c.clientNonce)
	c.state = WaitingForServerFirst

	return gs2Header + c.clientFirstBare, nil
}

// HandleServerFirst parses the server-first message and returns the
// client-final message to send next.
func (c *Client) HandleServerFirst(serverFirst string) (string, error) {
	if c.state != WaitingForServerFirst {
		return "", ErrWrongState
	}

	attrs, err := parseAttrs(serverFirst)
	if err != nil {
		c.state = Failed
		return "", err
	}

	combined, ok := attrs["r"]
	if !ok || !strings.HasPrefix(combined, c.clientNonce) {
		c.state = Failed
		return "", ErrNonceMismatch
	}

	saltB64, ok1 := attrs["s"]
	iterStr, ok2 := attrs["i"]
	if !ok1 || !ok2 {
		c.state = Failed
		return "", ErrMalformedServer
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		c.state = Failed
		return "", ErrMalformedServer
	}

	iterations := 0
	if _, err := fmt.Sscanf(iterStr, "%d", &iterations); err != nil || iterations <= 0 {
		c.state = Failed
		return "", ErrMalformedServer
	}

	c.serverFirst = serverFirst
	c.combinedNonce = combined
	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)

	c.clientFinalNoProof = fmt.Sprintf("c=%s,r=%s", base64.StdEncoding.EncodeToString([]byte(gs2Header)), c.combinedNonce)

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	authMessage := c.clientFirstBare + "," + c.serverFirst + "," + c.clientFinalNoProof
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))

	proof := xorBytes(clientKey, clientSignature)

	c.state = WaitingForServerFinal

	return c.clientFinalNoProof + ",p=" + base64.StdEncoding.EncodeToString(proof), nil
}

// HandleServerFinal verifies the server-final message's signature,
// transitioning to Done on success or Failed otherwise.
func (c *Client) HandleServerFinal(serverFinal string) error {
	if c.state != WaitingForServerFinal {
		return ErrWrongState
	}

	attrs, err := parseAttrs(serverFinal)
	if err != nil {
		c.state = Failed
		return err
	}

	vB64, ok := attrs["v"]
	if !ok {
		c.state = Failed
		return ErrMalformedServer
	}

	gotSig, err := base64.StdEncoding.DecodeString(vB64)
	if err != nil {
		c.state = Failed
		return ErrMalformedServer
	}

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	authMessage := c.clientFirstBare + "," + c.serverFirst + "," + c.clientFinalNoProof
	expectedSig := hmacSHA256(serverKey, []byte(authMessage))

	if subtle.ConstantTimeCompare(gotSig, expectedSig) != 1 {
		c.state = Failed
		return ErrServerSignature
	}

	c.state = Done
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func randomNonce() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// escapeSCRAM escapes ',' and '=' per RFC 5802 §5.1.
func escapeSCRAM(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

// parseAttrs parses a comma-separated list of "key=value" attributes.
func parseAttrs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			return nil, ErrMalformedServer
		}
		out[part[:idx]] = part[idx+1:]
	}
	return out, nil
}
