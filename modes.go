// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"strings"
	"sync"
)

// Channel mode prefixes, per the common (non-rfc) PREFIX=(qaohv)~&@%+
// extension. Networks advertise their own set via ISUPPORT; these are
// only the fallback defaults.
const (
	OwnerPrefix        = "~"
	AdminPrefix        = "&"
	OperatorPrefix     = "@"
	HalfOperatorPrefix = "%"
	VoicePrefix        = "+"

	ModeOwner        = "q"
	ModeAdmin        = "a"
	ModeOperator     = "o"
	ModeHalfOperator = "h"
	ModeVoice        = "v"

	// ModeDefaults is the fallback CHANMODES value when a network doesn't
	// advertise its own via ISUPPORT.
	ModeDefaults = "b,k,l,imnpstaqr"
	// DefaultPrefixes is the fallback PREFIX value.
	DefaultPrefixes = "(ohv)@%+"
)

// CMode represents a single applied/removed channel mode, as parsed out
// of a MODE line.
type CMode struct {
	add     bool
	name    byte
	setting bool
	args    string
}

// Short returns the +X/-X representation of the mode, without arguments.
func (c *CMode) Short() string {
	var status string
	if c.add {
		status = "+"
	} else {
		status = "-"
	}

	return status + string(c.name)
}

// String returns the mode with any arguments appended.
func (c *CMode) String() string {
	if len(c.args) == 0 {
		return c.Short()
	}

	return c.Short() + " " + c.args
}

// CModes tracks the currently-applied mode state of a channel, as well as
// the mode type groupings (CHANMODES) and prefixes (PREFIX) the network
// advertised.
type CModes struct {
	raw           string
	modesListArgs string
	modesArgs     string
	modesSetArgs  string
	modesNoArgs   string

	prefixes string
	modes    []CMode
}

// String returns the currently tracked mode state, e.g. "+ntm".
func (c CModes) String() string {
	var out string
	var args string

	if len(c.modes) > 0 {
		out += "+"
	}

	for i := 0; i < len(c.modes); i++ {
		out += string(c.modes[i].name)

		if len(c.modes[i].args) > 0 {
			args += " " + c.modes[i].args
		}
	}

	return out + args
}

// Copy returns a deep copy of the mode state.
func (c CModes) Copy() CModes {
	nc := c
	nc.modes = make([]CMode, len(c.modes))
	copy(nc.modes, c.modes)
	return nc
}

// "modes" is a list of channel modes according to 4 types: "A,B,C,D".
// A = Mode that adds or removes a nick or address to a list. Always has a parameter.
// B = Mode that changes a setting and always has a parameter.
// C = Mode that changes a setting and only has a parameter when set.
// D = Mode that changes a setting and never has a parameter.
// Note: Modes of type A return the list when there is no parameter present.
// Note: Some clients assumes that any mode not listed is of type D.
// Note: Modes in PREFIX are not listed but could be considered type B.
func (c *CModes) hasArg(set bool, mode byte) (hasArgs, isSetting bool) {
	if len(c.raw) < 1 {
		return false, true
	}

	if strings.IndexByte(c.modesListArgs, mode) > -1 {
		return true, false
	}

	if strings.IndexByte(c.modesArgs, mode) > -1 {
		return true, true
	}

	if strings.IndexByte(c.modesSetArgs, mode) > -1 {
		if set {
			return true, true
		}

		return false, true
	}

	if strings.IndexByte(c.prefixes, mode) > -1 {
		return true, false
	}

	return false, true
}

// apply merges newly-parsed mode changes into the tracked mode state.
func (c *CModes) apply(modes []CMode) {
	var updated []CMode

	for j := 0; j < len(c.modes); j++ {
		isin := false
		for i := 0; i < len(modes); i++ {
			if !modes[i].setting {
				continue
			}
			if c.modes[j].name == modes[i].name && modes[i].add {
				updated = append(updated, modes[i])
				isin = true
				break
			}
		}

		if !isin {
			updated = append(updated, c.modes[j])
		}
	}

	for i := 0; i < len(modes); i++ {
		if !modes[i].setting || !modes[i].add {
			continue
		}

		isin := false
		for j := 0; j < len(updated); j++ {
			if modes[i].name == updated[j].name {
				isin = true
				break
			}
		}

		if !isin {
			updated = append(updated, modes[i])
		}
	}

	c.modes = updated
}

// parse takes a raw mode flag string (e.g. "+ov-b") and argument list,
// and returns the individual CMode changes it represents.
func (c *CModes) parse(flags string, args []string) (out []CMode) {
	add := true
	var argCount int

	for i := 0; i < len(flags); i++ {
		if flags[i] == 0x2B { // +
			add = true
			continue
		}
		if flags[i] == 0x2D { // -
			add = false
			continue
		}

		mode := CMode{
			name: flags[i],
			add:  add,
		}

		hasArgs, isSetting := c.hasArg(add, flags[i])
		if hasArgs && len(args) >= argCount+1 {
			mode.args = args[argCount]
			argCount++
		}
		mode.setting = isSetting

		out = append(out, mode)
	}

	return out
}

// NewCModes constructs channel mode tracking state from a network's
// advertised CHANMODES and PREFIX values (or the defaults, if the
// network hasn't advertised ISUPPORT yet).
func NewCModes(channelModes, userPrefixes string) CModes {
	split := strings.SplitN(channelModes, ",", 4)
	if len(split) != 4 {
		for i := len(split); i < 4; i++ {
			split = append(split, "")
		}
	}

	return CModes{
		raw:           channelModes,
		modesListArgs: split[0],
		modesArgs:     split[1],
		modesSetArgs:  split[2],
		modesNoArgs:   split[3],

		prefixes: userPrefixes,
		modes:    []CMode{},
	}
}

func isValidChannelMode(raw string) bool {
	if len(raw) < 1 {
		return false
	}

	for i := 0; i < len(raw); i++ {
		// Allowed are: ",", A-Z and a-z.
		if raw[i] != 0x2C && (raw[i] < 0x41 || raw[i] > 0x5A) && (raw[i] < 0x61 || raw[i] > 0x7A) {
			return false
		}
	}

	return true
}

func isValidUserPrefix(raw string) bool {
	if len(raw) < 1 {
		return false
	}

	if raw[0] != 0x28 { // (
		return false
	}

	var keys, rep int
	var passedKeys bool

	for i := 1; i < len(raw); i++ {
		if raw[i] == 0x29 { // )
			passedKeys = true
			continue
		}

		if passedKeys {
			rep++
		} else {
			keys++
		}
	}

	return keys == rep
}

func parsePrefixes(raw string) (modes, prefixes string) {
	if !isValidUserPrefix(raw) {
		return modes, prefixes
	}

	i := strings.Index(raw, ")")
	if i < 1 {
		return modes, prefixes
	}

	return raw[1:i], raw[i+1:]
}

// handleMODE keeps per-channel mode and per-user permission state in
// sync with incoming MODE lines (and RPL_CHANNELMODEIS snapshots).
func handleMODE(c *Client, e Event) {
	if e.Command == RPL_CHANNELMODEIS && len(e.Params) > 2 {
		// RPL_CHANNELMODEIS sends our own nick as the first param, skip it.
		e.Params = e.Params[1:]
	}

	if len(e.Params) < 2 || !IsValidChannel(e.Params[0]) {
		return
	}

	channel := c.state.lookupChannel(e.Params[0])
	if channel == nil {
		return
	}

	flags := e.Params[1]
	var args []string
	if len(e.Params) > 2 {
		args = append(args, e.Params[2:]...)
	}

	c.state.Lock()
	modes := channel.Modes.parse(flags, args)
	channel.Modes.apply(modes)
	c.state.Unlock()

	for i := 0; i < len(modes); i++ {
		if modes[i].setting || len(modes[i].args) == 0 {
			continue
		}

		user := c.state.lookupUser(modes[i].args)
		if user == nil {
			continue
		}

		perms, _ := user.Perms.Lookup(channel.Name)
		perms.setFromMode(modes[i])
		user.Perms.set(channel.Name, perms)
	}

	c.state.notify(c, UPDATE_STATE)
}

// chanModes returns the network's advertised CHANMODES value, falling
// back to ModeDefaults if it hasn't been received (or is malformed).
func (s *state) chanModes() string {
	if v, ok := s.serverOptions.Get("CHANMODES"); ok {
		if modes, ok := v.(string); ok && isValidChannelMode(modes) {
			return modes
		}
	}

	return ModeDefaults
}

// userPrefixes returns the network's advertised PREFIX value, falling
// back to DefaultPrefixes if it hasn't been received (or is malformed).
func (s *state) userPrefixes() string {
	if v, ok := s.serverOptions.Get("PREFIX"); ok {
		if prefix, ok := v.(string); ok && isValidUserPrefix(prefix) {
			return prefix
		}
	}

	return DefaultPrefixes
}

// Perms holds the channel-scoped mode flags applied to a single user
// within a single channel. The minimum op and voice should be supported
// on all networks; Owner/Admin/HalfOp are non-rfc extensions.
type Perms struct {
	// Owner (non-rfc) indicates that the user has full permissions to
	// the channel. More than one user can have owner permission.
	Owner bool
	// Admin (non-rfc) is commonly given to users that are trusted enough
	// to manage channel permissions, as well as higher level service
	// settings.
	Admin bool
	// Op is commonly given to trusted users who can manage a given
	// channel by kicking, and banning users.
	Op bool
	// HalfOp (non-rfc) is commonly used to give users permissions like
	// the ability to kick, without giving them greater abilities to ban
	// all users.
	HalfOp bool
	// Voice indicates the user has voice permissions, commonly given to
	// known users with very light trust, or to indicate a user is active.
	Voice bool
}

// IsAdmin indicates that the user has banning abilities, and are likely
// a very trustable user (e.g. op+).
func (m Perms) IsAdmin() bool {
	return m.Owner || m.Admin || m.Op
}

// IsTrusted indicates that the user at least has modes set upon them,
// higher than a regular joining user.
func (m Perms) IsTrusted() bool {
	return m.IsAdmin() || m.HalfOp || m.Voice
}

func (m *Perms) reset() {
	m.Owner = false
	m.Admin = false
	m.Op = false
	m.HalfOp = false
	m.Voice = false
}

// set translates raw prefix characters (e.g. "@+") into permission
// flags. If append is false, any existing flags are cleared first.
func (m *Perms) set(prefix string, append bool) {
	if !append {
		m.reset()
	}

	for i := 0; i < len(prefix); i++ {
		switch string(prefix[i]) {
		case OwnerPrefix:
			m.Owner = true
		case AdminPrefix:
			m.Admin = true
		case OperatorPrefix:
			m.Op = true
		case HalfOperatorPrefix:
			m.HalfOp = true
		case VoicePrefix:
			m.Voice = true
		}
	}
}

// setFromMode applies a single parsed channel mode change (e.g. +o/-v)
// to the permission flags.
func (m *Perms) setFromMode(mode CMode) {
	switch string(mode.name) {
	case ModeOwner:
		m.Owner = mode.add
	case ModeAdmin:
		m.Admin = mode.add
	case ModeOperator:
		m.Op = mode.add
	case ModeHalfOperator:
		m.HalfOp = mode.add
	case ModeVoice:
		m.Voice = mode.add
	}
}

// UserPerms tracks a user's Perms on a per-channel basis -- a user can
// be, for example, an operator in one channel and have no permissions
// in another.
type UserPerms struct {
	mu       sync.RWMutex
	channels map[string]Perms
}

// Lookup returns the permissions the user has in the given channel.
func (u *UserPerms) Lookup(channel string) (Perms, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	p, ok := u.channels[channel]
	return p, ok
}

// set stores the permissions the user has in the given channel.
func (u *UserPerms) set(channel string, perms Perms) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.channels == nil {
		u.channels = make(map[string]Perms)
	}
	u.channels[channel] = perms
}

// remove discards any tracked permissions for the given channel, e.g.
// once the user has parted or been kicked.
func (u *UserPerms) remove(channel string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	delete(u.channels, channel)
}

// Copy returns a deep copy of the per-channel permission map.
func (u *UserPerms) Copy() *UserPerms {
	u.mu.RLock()
	defer u.mu.RUnlock()

	nu := &UserPerms{channels: make(map[string]Perms, len(u.channels))}
	for k, v := range u.channels {
		nu.channels[k] = v
	}

	return nu
}

// parseUserPrefix parses a raw NAMES/WHO entry, like "@user" or "@+user",
// separating the mode prefixes from the nickname.
func parseUserPrefix(raw string) (modes, nick string, success bool) {
	for i := 0; i < len(raw); i++ {
		char := string(raw[i])

		if char == OwnerPrefix || char == AdminPrefix || char == HalfOperatorPrefix ||
			char == OperatorPrefix || char == VoicePrefix {
			modes += char
			continue
		}

		if !IsValidNick(raw[i:]) {
			return modes, nick, false
		}

		nick = raw[i:]

		return modes, nick, true
	}

	return
}
