// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/muninirc/core/scram"
)

// SASLMech implements a single IRCv3 SASL (RFC 4422) authentication
// mechanism, driven by the client over AUTHENTICATE exchanges.
type SASLMech interface {
	// Method returns the mechanism name advertised to the server, e.g.
	// "PLAIN", "EXTERNAL", "SCRAM-SHA-256".
	Method() string
	// Start returns the initial client response, sent once the server
	// has selected this mechanism.
	Start() ([]byte, error)
	// Next is called with each subsequent server challenge (already
	// base64-decoded) and returns the next client response. done is
	// true once no further exchange is expected from this mechanism.
	Next(serverData []byte) (response []byte, done bool, err error)
}

// SASLPlain implements the "PLAIN" SASL mechanism (RFC 4616).
type SASLPlain struct {
	// Identity is the authorization identity; leave empty to match User.
	Identity string
	User     string
	Pass     string
}

func (s *SASLPlain) Method() string { return "PLAIN" }

func (s *SASLPlain) Start() ([]byte, error) {
	authzid := s.Identity
	return []byte(authzid + "\x00" + s.User + "\x00" + s.Pass), nil
}

func (s *SASLPlain) Next(_ []byte) ([]byte, bool, error) {
	return nil, true, nil
}

// SASLExternal implements the "EXTERNAL" SASL mechanism, which
// authenticates using a client TLS certificate rather than a secret sent
// over the wire.
type SASLExternal struct{}

func (s *SASLExternal) Method() string { return "EXTERNAL" }

func (s *SASLExternal) Start() ([]byte, error) { return []byte{}, nil }

func (s *SASLExternal) Next(_ []byte) ([]byte, bool, error) {
	return nil, true, nil
}

// SASLScram implements the "SCRAM-SHA-256" SASL mechanism (RFC 5802),
// wrapping the scram package's client state machine.
type SASLScram struct {
	client *scram.Client
}

// NewSASLScram returns a SASLScram mechanism for the given credentials.
func NewSASLScram(user, pass string) *SASLScram {
	return &SASLScram{client: scram.NewClient(user, pass)}
}

func (s *SASLScram) Method() string { return "SCRAM-SHA-256" }

func (s *SASLScram) Start() ([]byte, error) {
	msg, err := s.client.FirstMessage()
	return []byte(msg), err
}

func (s *SASLScram) Next(serverData []byte) ([]byte, bool, error) {
	switch s.client.State() {
	case scram.WaitingForServerFirst:
		resp, err := s.client.HandleServerFirst(string(serverData))
		return []byte(resp), false, err
	case scram.WaitingForServerFinal:
		err := s.client.HandleServerFinal(string(serverData))
		return nil, true, err
	default:
		return nil, true, errors.New("sasl: scram mechanism used out of order")
	}
}

// saslChunkSize is the maximum payload per AUTHENTICATE line, per the
// IRCv3 sasl specification. Responses are base64-encoded then split into
// chunks of this size; if the final chunk is exactly saslChunkSize, an
// empty "AUTHENTICATE +" line must follow so the server knows the
// payload is complete.
const saslChunkSize = 400

func sendSASL(c *Client, response []byte) {
	encoded := base64.StdEncoding.EncodeToString(response)
	if len(encoded) == 0 {
		c.write(&Event{Command: AUTHENTICATE, Params: []string{"+"}, Sensitive: true})
		return
	}

	for len(encoded) > 0 {
		chunk := encoded
		if len(chunk) > saslChunkSize {
			chunk = chunk[:saslChunkSize]
		}
		c.write(&Event{Command: AUTHENTICATE, Params: []string{chunk}, Sensitive: true})
		encoded = encoded[len(chunk):]
	}

	if len(response) > 0 && len(response)%saslChunkSize == 0 {
		c.write(&Event{Command: AUTHENTICATE, Params: []string{"+"}, Sensitive: true})
	}
}

// beginSASL kicks off the configured mechanism once the server has ACKed
// the "sasl" capability.
func beginSASL(c *Client) {
	if c.Config.SASL == nil {
		c.write(&Event{Command: CAP, Params: []string{CAP_END}})
		return
	}

	c.write(&Event{Command: AUTHENTICATE, Params: []string{c.Config.SASL.Method()}, Sensitive: true})
}

// handleSASL drives the AUTHENTICATE exchange and completes registration
// on RPL_SASLSUCCESS.
func handleSASL(c *Client, e Event) {
	if c.Config.SASL == nil {
		return
	}

	if e.Command == RPL_SASLSUCCESS {
		c.write(&Event{Command: CAP, Params: []string{CAP_END}})
		return
	}

	// AUTHENTICATE.
	if len(e.Params) == 0 {
		return
	}

	var payload []byte
	if e.Params[0] != "+" {
		decoded, err := base64.StdEncoding.DecodeString(e.Params[0])
		if err != nil {
			c.debug.Print("sasl: failed to decode server payload: ", err)
			c.write(&Event{Command: AUTHENTICATE, Params: []string{"*"}})
			return
		}
		payload = decoded
	}

	var (
		resp []byte
		done bool
		err  error
	)

	if len(payload) == 0 && e.Params[0] == "+" {
		resp, err = c.Config.SASL.Start()
	} else {
		resp, done, err = c.Config.SASL.Next(payload)
	}

	if err != nil {
		c.debug.Print("sasl: authentication failed: ", err)
		c.write(&Event{Command: AUTHENTICATE, Params: []string{"*"}})
		return
	}

	sendSASL(c, resp)

	if done {
		return
	}
}

// handleSASLError logs a failed SASL negotiation and lets registration
// continue unauthenticated rather than hanging indefinitely.
func handleSASLError(c *Client, e Event) {
	c.debug.Print("sasl: ", e.Command, " ", e.Last())
	c.write(&Event{Command: CAP, Params: []string{CAP_END}})
}

// resolveSASL auto-selects a SASL mechanism from the server-advertised
// "sasl=" mechanism list, preferring SCRAM-SHA-256 over PLAIN over
// EXTERNAL (§4.6). Returns nil if no advertised mechanism can be
// satisfied by the configured credentials/certificate.
func (c *Client) resolveSASL(mechs []string) SASLMech {
	has := func(name string) bool {
		if len(mechs) == 0 {
			// Server didn't advertise a value; assume the common set is
			// available and let the server reject an unsupported choice.
			return true
		}
		for _, m := range mechs {
			if strings.EqualFold(m, name) {
				return true
			}
		}
		return false
	}

	if has("SCRAM-SHA-256") && c.Config.SASLUser != "" && c.Config.SASLPass != "" {
		return NewSASLScram(c.Config.SASLUser, c.Config.SASLPass)
	}
	if has("PLAIN") && c.Config.SASLUser != "" && c.Config.SASLPass != "" {
		return &SASLPlain{User: c.Config.SASLUser, Pass: c.Config.SASLPass}
	}
	if has("EXTERNAL") && c.Config.ClientCert != nil {
		return &SASLExternal{}
	}

	return nil
}
