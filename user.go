// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// User represents an IRC user and the state attached to them.
type User struct {
	// Nick is the user's current nickname. rfc1459 compliant.
	Nick string `json:"nick"`
	// Ident is the user's username/ident. Commonly prefixed with "~",
	// which indicates no identd server was available for authentication.
	Ident string `json:"ident"`
	// Host is the visible host of the user's connection, as provided by
	// the server. May not always be accurate due to cloaking/spoofing.
	Host string `json:"host"`

	// Mask is the combined Nick!Ident@Host of the given user.
	Mask string `json:"mask"`

	// Network is the name of the IRC network where this user was found.
	Network string `json:"network"`

	// ChannelList is a sorted list of all channels that we are currently
	// tracking the user in. Each channel name is rfc1459 compliant. See
	// User.Channels() for the *Channel version of the channel list.
	ChannelList cmap.ConcurrentMap `json:"channels"`

	// FirstSeen represents the first time that the user was seen by the
	// client for the given channel.
	FirstSeen time.Time `json:"first_seen"`
	// LastActive represents the last time that we saw the user active,
	// which could be during nickname change, message, channel join, etc.
	LastActive time.Time `json:"last_active"`

	// Perms are the user permissions applied to this user, scoped per
	// channel. Supports non-rfc style modes like Admin, Owner, HalfOp.
	Perms *UserPerms `json:"perms"`

	Stale bool

	// Extras are things added on by additional tracking methods, which
	// may or may not work on the IRC server in question.
	Extras struct {
		// Name is the user's "realname" or full name.
		Name string `json:"name"`
		// Account refers to the services account the user is
		// authenticated as (empty if unauthenticated/untracked).
		Account string `json:"account"`
		// Away refers to the away status of the user. An empty string
		// indicates that they are active, otherwise the string is what
		// they set as their away message.
		Away string `json:"away"`
	} `json:"extras"`
}

// Channels returns a reference of *Channels that the client knows the
// user is in. If you're just looking for the name of the channels, use
// User.ChannelList.
func (u User) Channels(c *Client) []*Channel {
	if c == nil {
		panic("nil Client provided")
	}

	var channels []*Channel

	for listed := range u.ChannelList.IterBuffered() {
		chn, chok := listed.Val.(*Channel)
		if chok {
			channels = append(channels, chn)
			continue
		}
		ch := c.state.lookupChannel(listed.Key)
		if ch != nil {
			u.ChannelList.Set(listed.Key, ch)
			channels = append(channels, ch)
		}
	}

	return channels
}

// Copy returns a deep copy of the user which can be modified without
// making changes to the actual state.
func (u *User) Copy() *User {
	if u == nil {
		return nil
	}

	nu := &User{}
	*nu = *u

	nu.Perms = u.Perms.Copy()
	_ = copy(nu.ChannelList, u.ChannelList)

	return nu
}

// addChannel adds the channel to the user's channel list.
func (u *User) addChannel(name string, chn *Channel) {
	name = ToRFC1459(name)

	if u.InChannel(name) {
		return
	}

	u.ChannelList.Set(name, chn)
	u.Perms.set(name, Perms{})
}

// deleteChannel removes an existing channel from the user's channel list.
func (u *User) deleteChannel(name string) {
	name = ToRFC1459(name)

	u.ChannelList.Remove(name)
	u.Perms.remove(name)
}

// InChannel checks to see if a user is in the given channel.
func (u *User) InChannel(name string) bool {
	name = ToRFC1459(name)
	return u.ChannelList.Has(name)
}

// Lifetime represents the amount of time that has passed since we first
// saw the user.
func (u *User) Lifetime() time.Duration {
	return time.Since(u.FirstSeen)
}

// Active represents the amount of time that has passed since we last saw
// the user active.
func (u *User) Active() time.Duration {
	return time.Since(u.LastActive)
}

// IsActive returns true if the user was active within the last 30
// minutes.
func (u *User) IsActive() bool {
	return u.Active() < (time.Minute * 30)
}

// HighestMode returns the highest-ranked channel mode the user holds in
// the given channel ("owner", "admin", "operator", "half-operator",
// "voice", or "" for a plain member), used to derive a stable sort key
// for channel member lists (mode rank, then case-insensitive nickname).
func (u *User) HighestMode(channel string) string {
	perms, ok := u.Perms.Lookup(channel)
	if !ok {
		return ""
	}

	switch {
	case perms.Owner:
		return "owner"
	case perms.Admin:
		return "admin"
	case perms.Op:
		return "operator"
	case perms.HalfOp:
		return "half-operator"
	case perms.Voice:
		return "voice"
	default:
		return ""
	}
}

// modeRank maps HighestMode's output to a sortable integer, highest
// first.
func modeRank(mode string) int {
	switch mode {
	case "owner":
		return 0
	case "admin":
		return 1
	case "operator":
		return 2
	case "half-operator":
		return 3
	case "voice":
		return 4
	default:
		return 5
	}
}

// SortKey returns a key suitable for ordering a channel's member list:
// highest channel mode first, then case-insensitive nickname.
func (u *User) SortKey(channel string) (rank int, nick string) {
	return modeRank(u.HighestMode(channel)), ToRFC1459(u.Nick)
}
