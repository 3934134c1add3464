// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import "bytes"

// ErrInvalidTarget should be returned if the target which you are
// attempting to send an event to is invalid or doesn't match RFC spec.
type ErrInvalidTarget struct {
	Target string
}

func (e *ErrInvalidTarget) Error() string { return "invalid target: " + e.Target }

// IsValidChannel checks if channel is an RFC compliant channel or not.
//
//	channel      =  ( "#" / "+" / ( "!" channelid ) / "&" ) chanstring
//	                [ ":" chanstring ]
//	  chanstring =  0x01-0x07 / 0x08-0x09 / 0x0B-0x0C / 0x0E-0x1F / 0x21-0x2B
//	  chanstring =  / 0x2D-0x39 / 0x3B-0xFF
//	                  ; any octet except NUL, BELL, CR, LF, " ", "," and ":"
//	  channelid  = 5( 0x41-0x5A / digit )   ; 5( A-Z / 0-9 )
func IsValidChannel(channel string) bool {
	if len(channel) <= 1 || len(channel) > 50 {
		return false
	}

	// #, +, !<channelid>, or &. Including "*" in the prefix list, as this
	// is commonly used (e.g. ZNC).
	if bytes.IndexByte([]byte{0x21, 0x23, 0x26, 0x2A, 0x2B}, channel[0]) == -1 {
		return false
	}

	if channel[0] == 0x21 {
		if len(channel) < 7 {
			return false
		}

		for i := 1; i < 6; i++ {
			if (channel[i] < 0x30 || channel[i] > 0x39) && (channel[i] < 0x41 || channel[i] > 0x5A) {
				return false
			}
		}
	}

	bad := []byte{0x00, 0x07, 0x0D, 0x0A, 0x20, 0x2C, 0x3A}
	for i := 1; i < len(channel); i++ {
		if bytes.IndexByte(bad, channel[i]) != -1 {
			return false
		}
	}

	return true
}

// IsValidNick validates an IRC nickname. Note that this does not validate
// IRC nickname length, as this is network-dependent (see ISUPPORT
// NICKLEN).
//
//	nickname   =  ( letter / special ) *8( letter / digit / special / "-" )
//	  letter   =  0x41-0x5A / 0x61-0x7A
//	  digit    =  0x30-0x39
//	  special  =  0x5B-0x60 / 0x7B-0x7D
func IsValidNick(nick string) bool {
	if len(nick) <= 0 {
		return false
	}

	if nick[0] < 0x41 || nick[0] > 0x7D {
		return false
	}

	for i := 1; i < len(nick); i++ {
		if (nick[i] < 0x41 || nick[i] > 0x7D) && (nick[i] < 0x30 || nick[i] > 0x39) && nick[i] != 0x2D {
			return false
		}
	}

	return true
}

// IsValidUser validates an IRC ident/username. Unlike nicknames, idents
// don't permit the extended "special" punctuation set, since several
// ircds use the ident value verbatim in ban masks.
func IsValidUser(user string) bool {
	if len(user) <= 0 || len(user) > 12 {
		return false
	}

	for i := 0; i < len(user); i++ {
		c := user[i]
		switch {
		case c >= 0x41 && c <= 0x5A: // A-Z
		case c >= 0x61 && c <= 0x7A: // a-z
		case c >= 0x30 && c <= 0x39: // 0-9
		case c == 0x5F || c == 0x2D || c == 0x2E: // _ - .
		default:
			return false
		}
	}

	return true
}
