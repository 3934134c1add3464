// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

// splitFunc implements splitting of a too-long IRC message into several
// that each fit within maxLen.
type splitFunc func(event *Event, maxLen int) []*Event

var splitFuncs = map[string]splitFunc{
	PRIVMSG: splitPRIVMSG,
	NOTICE:  splitPRIVMSG,
}

// getIntOption returns the integer value for a given ISUPPORT key, or def
// if unavailable, not an integer, or tracking is disabled.
func getIntOption(client *Client, key string, def int) (val int) {
	if client.Config.disableTracking {
		return def
	}

	var err error
	strval, success := client.GetServerOpt(key)
	if success {
		val, err = strconv.Atoi(strval)
	}
	if !success || err != nil {
		val = def
	}
	return val
}

// maxPrefixLen returns the maximum possible length of a server message
// prefix as defined by RFC 2812 section 2.3.1:
//
//	[ ":" ( servername / ( nickname [ [ "!" user ] "@" host ] ) ) SPACE ]
func maxPrefixLen(client *Client) int {
	// Defaults taken from https://modern.ircdocs.horse/, since most of
	// these are not formally standardized.
	nicklen := getIntOption(client, "NICKLEN", 10)
	userlen := getIntOption(client, "USERLEN", 18)
	hostlen := getIntOption(client, "HOSTLEN", 63)

	return 1 + nicklen + 1 + userlen + 1 + hostlen + 1
}

func splitPRIVMSG(event *Event, maxLen int) (events []*Event) {
	newMsg := func(text []byte) *Event {
		e := event.Copy()
		e.Trailing = string(text)
		return e
	}

	rawEvent := event.Copy()
	rawEvent.Trailing = ""
	rawEvent.EmptyTrailing = false

	maxTextLen := maxLen - rawEvent.Len() - len(" :")
	if maxTextLen <= 0 {
		return []*Event{event}
	}

	b := []byte(event.Trailing)
	for len(b) > maxTextLen {
		idx := bytes.LastIndexByte(b[:maxTextLen], byte(' '))
		if idx > 0 {
			idx++
		} else {
			idx = bytes.LastIndexFunc(b[:maxTextLen+1], utf8.ValidRune)
		}

		events = append(events, newMsg(b[:idx]))
		b = b[idx:]
	}
	events = append(events, newMsg(b))

	return events
}

// splitEvent splits event into multiple events as needed to satisfy the
// 512-byte line length limit imposed by RFC 2812 section 2.3, taking the
// server-reported prefix length into account.
func splitEvent(client *Client, event *Event) []*Event {
	const maxIRClen int = 512 - len("\r\n")

	cp := event.Copy()
	cp.Source = nil

	maxLen := maxIRClen - maxPrefixLen(client)
	if cp.Len() > maxLen {
		if fn, ok := splitFuncs[cp.Command]; ok {
			return fn(cp, maxLen)
		}
	}

	return []*Event{event}
}
