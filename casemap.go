// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import "strings"

// ToRFC1459 normalizes a nickname or channel name per the RFC1459
// casemapping: 'A'-'Z' fold to 'a'-'z', and "{}|^" are treated as the
// lowercase equivalents of "[]\~". Two strings that fold to the same
// value are the same identity on the wire (e.g. for mapping source IDs
// to tracked users/channels).
func ToRFC1459(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '{':
			b[i] = '['
		case c == '}':
			b[i] = ']'
		case c == '|':
			b[i] = '\\'
		case c == '^':
			b[i] = '~'
		}
	}
	return string(b)
}

// ToASCII normalizes per the "ascii" CASEMAPPING: only 'A'-'Z' fold to
// 'a'-'z', with no special handling of "{}|^".
func ToASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ToRFC1459Strict normalizes per the "rfc1459-strict" CASEMAPPING: like
// ToRFC1459, but "~" is left alone instead of folding with "^".
func ToRFC1459Strict(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		case c == '{':
			b[i] = '['
		case c == '}':
			b[i] = ']'
		case c == '|':
			b[i] = '\\'
		}
	}
	return string(b)
}

// fold normalizes s per the network's negotiated CASEMAPPING, defaulting
// to rfc1459 when none has been advertised yet.
func fold(casemapping, s string) string {
	switch casemapping {
	case "ascii":
		return ToASCII(s)
	case "rfc1459-strict":
		return ToRFC1459Strict(s)
	default:
		return ToRFC1459(s)
	}
}

// Control byte formatting codes used by mIRC-style clients.
const (
	rawBold      byte = 0x02
	rawColor     byte = 0x03
	rawItalic    byte = 0x1D
	rawUnderline byte = 0x1F
	rawReverse   byte = 0x16
	rawReset     byte = 0x0F
)

// StripRaw removes mIRC-style formatting control codes (bold, color,
// underline, etc.) from a string, commonly used to clean up text before
// writing it to a plain-text debug log.
func StripRaw(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case rawBold, rawItalic, rawUnderline, rawReverse, rawReset:
			continue
		case rawColor:
			// Optionally followed by 1-2 digits, a comma, and 1-2 more
			// digits (foreground[,background]).
			i++
			for digits := 0; digits < 2 && i < len(s) && s[i] >= '0' && s[i] <= '9'; digits++ {
				i++
			}
			if i < len(s) && s[i] == ',' {
				i++
				for digits := 0; digits < 2 && i < len(s) && s[i] >= '0' && s[i] <= '9'; digits++ {
					i++
				}
			}
			i--
			continue
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String()
}
