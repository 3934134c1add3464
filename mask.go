// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"regexp"
	"strings"
)

// maskPatterns rewrite secret-bearing lines before they reach a logging
// sink. Each pattern's first submatch is the portion that gets replaced
// with "********"; the rest of the line is preserved verbatim.
var maskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(PASS\s+).+$`),
	regexp.MustCompile(`(?i)^(PRIVMSG\s+NickServ\s+:IDENTIFY\s+).+$`),
	regexp.MustCompile(`(?i)^(PRIVMSG\s+\S+\s+:REGISTER\s+).+$`),
	regexp.MustCompile(`(?i)^(NS\s+IDENTIFY\s+).+$`),
	regexp.MustCompile(`(?i)^(NS\s+REGISTER\s+).+$`),
}

// authenticateExempt lists AUTHENTICATE payloads that are mechanism
// names or protocol markers, not secrets, and so pass through unmasked.
var authenticateExempt = map[string]bool{
	"PLAIN":          true,
	"SCRAM-SHA-256":  true,
	"EXTERNAL":       true,
	"*":              true,
	"+":              true,
}

// MaskSensitive rewrites a single outbound or inbound wire line,
// replacing any secret payload with "********" so it's safe to pass to
// a logging sink. Lines that don't match a known sensitive pattern are
// returned unchanged.
func MaskSensitive(line string) string {
	trimmed := strings.TrimRight(line, "\r\n")

	if fields := strings.Fields(trimmed); len(fields) >= 2 && strings.EqualFold(fields[0], "AUTHENTICATE") {
		payload := fields[1]
		if !authenticateExempt[payload] {
			return "AUTHENTICATE ********"
		}
		return trimmed
	}

	for _, re := range maskPatterns {
		if m := re.FindStringSubmatch(trimmed); m != nil {
			return m[1] + "********"
		}
	}

	return trimmed
}
