// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import "strings"

// wantedCaps are the IRCv3 capabilities munin always requests, if the
// server advertises them. See spec'd Capability set (§3).
var wantedCaps = []string{
	"multi-prefix",
	"extended-join",
	"account-notify",
	"away-notify",
	"chghost",
	"setname",
	"invite-notify",
	"cap-notify",
	"server-time",
	"message-tags",
	"batch",
	"labeled-response",
	"echo-message",
	"userhost-in-names",
	"account-tag",
	"sasl",
	"draft/chathistory",
	"draft/typing",
	"draft/react",
	"draft/read-marker",
}

// listCAP kicks off capability negotiation with CAP LS 302, per
// registration order (§4.9). The capability phase is considered
// "negotiating" from this point until CAP END is sent exactly once (§3
// invariant).
func (c *Client) listCAP() error {
	if c.Config.disableTracking {
		return nil
	}

	return c.write(&Event{Command: CAP, Params: []string{CAP_LS, "302"}})
}

// wanted returns the full set of capabilities munin will request if
// advertised: the built-in wanted set plus any consumer-supplied extras.
func (c *Client) wanted() map[string]bool {
	out := make(map[string]bool, len(wantedCaps)+len(c.Config.SupportedCaps))
	for _, name := range wantedCaps {
		out[name] = true
	}
	for name := range c.Config.SupportedCaps {
		out[name] = true
	}
	return out
}

// parseCap parses a space-separated list of CAP tokens ("sasl=PLAIN,EXTERNAL"
// or bare "multi-prefix") into a map of capability name to its
// comma-split value list (nil/empty if no value was advertised).
func parseCap(raw string) map[string][]string {
	out := make(map[string][]string)
	parts := strings.Fields(raw)

	for _, part := range parts {
		if i := strings.IndexByte(part, '='); i >= 0 {
			out[part[:i]] = strings.Split(part[i+1:], ",")
			continue
		}
		out[part] = nil
	}

	return out
}

// saslRequested reports whether "sasl" is in the wanted/enabled request
// set and SASL credentials (explicit mechanism, or cert for EXTERNAL) are
// configured.
func (c *Client) saslConfigured() bool {
	return c.Config.SASL != nil
}

// handleCAP drives IRCv3 capability negotiation (§4.6): accumulates
// multi-line CAP LS responses, requests the intersection of advertised
// and wanted capabilities, processes ACK/NAK, and handles post-registration
// CAP NEW/DEL. CAP END is sent exactly once, either immediately (no SASL
// attempted) or after a terminal SASL numeric (handled in sasl.go).
func handleCAP(c *Client, e Event) {
	if len(e.Params) < 2 {
		return
	}

	sub := e.Params[1]

	switch sub {
	case CAP_LS:
		advertised := parseCap(e.Last())

		c.state.Lock()
		for name, val := range advertised {
			c.state.tmpCap[name] = val
			if name == "sasl" && len(val) > 0 {
				c.state.saslMechs = val
			}
		}
		c.state.Unlock()

		// len(e.Params) == 2 (bare "CAP * LS :...") marks the final line
		// of a possibly multi-line LS; 3 params ("CAP * LS * :...") means
		// more lines are coming.
		if len(e.Params) > 2 {
			return
		}

		c.requestCaps()
	case CAP_NEW:
		advertised := parseCap(e.Last())

		c.state.Lock()
		for name, val := range advertised {
			c.state.tmpCap[name] = val
		}
		c.state.Unlock()

		c.requestCaps()
	case CAP_DEL:
		removed := parseCap(e.Last())

		c.state.Lock()
		for name := range removed {
			delete(c.state.enabledCap, name)
			delete(c.state.tmpCap, name)
		}
		c.state.Unlock()
	case CAP_ACK:
		acked := strings.Fields(e.Last())

		c.state.Lock()
		for _, name := range acked {
			if val, ok := c.state.tmpCap[name]; ok {
				c.state.enabledCap[name] = val
			} else {
				c.state.enabledCap[name] = nil
			}
		}
		saslAcked := contains(acked, "sasl")
		mechs := append([]string(nil), c.state.saslMechs...)
		c.state.Unlock()

		if saslAcked {
			if c.Config.SASL == nil {
				c.Config.SASL = c.resolveSASL(mechs)
			}

			if c.saslConfigured() {
				beginSASL(c)
				return
			}
		}

		c.maybeEndCap()
	case CAP_NAK:
		// Nothing requested was granted; proceed without it.
		c.maybeEndCap()
	}
}

// requestCaps sends CAP REQ for the intersection of advertised (tmpCap)
// and wanted capabilities, then clears tmpCap so a subsequent CAP
// NEW/LS round can be re-evaluated independently.
func (c *Client) requestCaps() {
	wanted := c.wanted()

	c.state.Lock()
	var req []string
	for name := range c.state.tmpCap {
		if wanted[name] {
			req = append(req, name)
		}
	}
	c.state.tmpCap = make(map[string][]string)
	c.state.Unlock()

	if len(req) == 0 {
		c.maybeEndCap()
		return
	}

	c.write(&Event{Command: CAP, Params: []string{CAP_REQ}, Trailing: strings.Join(req, " ")})
}

// maybeEndCap sends CAP END if SASL either isn't configured or has
// already reached a terminal state. Safe to call from multiple paths;
// capEnded ensures exactly one CAP END is ever written (§3 invariant).
func (c *Client) maybeEndCap() {
	if c.saslConfigured() {
		// beginSASL/handleSASL own ending CAP in this case.
		return
	}

	c.endCapOnce()
}

// endCapOnce sends CAP END exactly once per connection.
func (c *Client) endCapOnce() {
	c.state.Lock()
	if c.state.capEnded {
		c.state.Unlock()
		return
	}
	c.state.capEnded = true
	c.state.Unlock()

	c.write(&Event{Command: CAP, Params: []string{CAP_END}})
}

func contains(list []string, needle string) bool {
	for _, v := range list {
		if v == needle {
			return true
		}
	}
	return false
}

// handleCHGHOST handles incoming IRCv3 hostname change events. CHGHOST is
// what occurs (when enabled) when a server's services change the
// hostname of a user, replacing the traditional QUIT+JOIN dance.
func handleCHGHOST(c *Client, e Event) {
	if len(e.Params) != 2 {
		return
	}

	c.state.Lock()
	if user := c.state.lookupUser(e.Source.Name); user != nil {
		user.Ident = e.Params[0]
		user.Host = e.Params[1]
	}
	c.state.Unlock()
}

// handleAWAY handles incoming IRCv3 AWAY events, sent both when users go
// away and when they return.
func handleAWAY(c *Client, e Event) {
	c.state.Lock()
	if user := c.state.lookupUser(e.Source.Name); user != nil {
		user.Extras.Away = e.Trailing
	}
	c.state.Unlock()
}

// handleACCOUNT handles incoming IRCv3 ACCOUNT events, sent when a user
// logs into, out of, or switches accounts.
func handleACCOUNT(c *Client, e Event) {
	if len(e.Params) != 1 {
		return
	}

	account := e.Params[0]
	if account == "*" {
		account = ""
	}

	c.state.Lock()
	if user := c.state.lookupUser(e.Source.Name); user != nil {
		user.Extras.Account = account
	}
	c.state.Unlock()
}

// handleSETNAME handles incoming IRCv3 setname events, updating the
// user's realname across all tracked channels.
func handleSETNAME(c *Client, e Event) {
	if e.Source == nil {
		return
	}

	c.state.Lock()
	if user := c.state.lookupUser(e.Source.Name); user != nil {
		user.Extras.Name = e.Last()
	}
	c.state.Unlock()
}

// handleTags handles any messages whose tags affect tracked state (e.g.
// the "account" client-only tag).
func handleTags(c *Client, e Event) {
	if len(e.Tags) == 0 || e.Source == nil {
		return
	}

	account, ok := e.Tags.Get("account")
	if !ok {
		return
	}

	c.state.Lock()
	if user := c.state.lookupUser(e.Source.Name); user != nil {
		user.Extras.Account = account
	}
	c.state.Unlock()
}
