// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// Channel represents an IRC channel and the state attached to it.
type Channel struct {
	// Name of the channel. Must be rfc1459 compliant.
	Name string `json:"name"`
	// Topic of the channel.
	Topic string `json:"topic"`
	// TopicSetBy is the nick of whoever last set the topic, if known.
	TopicSetBy string `json:"topic_set_by"`
	// TopicSetAt is when the topic was last changed, if known.
	TopicSetAt time.Time `json:"topic_set_at"`
	// Created is the time/date the channel was created, as reported by
	// RPL_CREATIONTIME.
	Created string `json:"created"`
	// UserList is a sorted list of all users we are currently tracking
	// within the channel. Each key is the nickname, rfc1459 compliant.
	UserList cmap.ConcurrentMap `json:"user_list"`
	// Network is the name of the IRC network where this channel was found.
	Network string `json:"network"`
	// Joined represents the first time that the client joined the channel.
	Joined time.Time `json:"joined"`
	// Modes are the known channel modes that the bot has captured.
	Modes CModes `json:"modes"`

	// Banlist, InviteList, and ExceptList accumulate entries received in
	// response to MODE +b/+I/+e queries (numerics 367/368, 346/347,
	// 348/349). They're cleared and repopulated on each fresh query.
	Banlist    []string `json:"banlist"`
	InviteList []string `json:"invite_list"`
	ExceptList []string `json:"except_list"`

	// Mentioned is set by a consumer-facing layer when a highlight word
	// or the client's own nickname appears in a message to this channel;
	// it's surfaced for UI badges and cleared by the consumer, not by
	// the engine.
	Mentioned bool `json:"mentioned"`
}

// Users returns a reference of *Users that the client knows the channel
// has. If you're just looking for the name of the users, use
// Channel.UserList.
func (ch Channel) Users(c *Client) []*User {
	if c == nil {
		panic("nil Client provided")
	}

	var users []*User

	for listed := range ch.UserList.IterBuffered() {
		user := c.state.lookupUser(listed.Key)
		if user != nil {
			ch.UserList.Set(listed.Key, user)
			users = append(users, user)
		}
	}

	return users
}

// Trusted returns a list of users which have voice or greater in the
// given channel. See Perms.IsTrusted() for more information.
func (ch Channel) Trusted(c *Client) []*User {
	if c == nil {
		panic("nil Client provided")
	}

	var users []*User

	for listed := range ch.UserList.IterBuffered() {
		user := c.state.lookupUser(listed.Key)
		if user == nil {
			continue
		}

		perms, ok := user.Perms.Lookup(ch.Name)
		if ok && perms.IsTrusted() {
			users = append(users, user)
		}
	}

	return users
}

// Admins returns a list of users which have half-op (if supported), or
// greater permissions (op, admin, owner, etc) in the given channel. See
// Perms.IsAdmin() for more information.
func (ch Channel) Admins(c *Client) []*User {
	if c == nil {
		panic("nil Client provided")
	}

	var users []*User

	for listed := range ch.UserList.IterBuffered() {
		ui := listed.Val
		user, usrok := ui.(*User)
		if !usrok {
			user = c.state.lookupUser(listed.Key)
			if user == nil {
				continue
			}
			ch.UserList.Set(listed.Key, user)
		}

		perms, ok := user.Perms.Lookup(ch.Name)
		if ok && perms.IsAdmin() {
			users = append(users, user)
		}
	}

	return users
}

// addUser adds a user to the user list.
func (ch *Channel) addUser(nick string, usr *User) {
	if ch.UserIn(nick) {
		return
	}
	ch.UserList.Set(ToRFC1459(nick), usr)
}

// deleteUser removes an existing user from the user list.
func (ch *Channel) deleteUser(nick string) {
	nick = ToRFC1459(nick)
	ch.UserList.Remove(nick)
}

// Copy returns a deep copy of a given channel.
func (ch *Channel) Copy() *Channel {
	if ch == nil {
		return nil
	}

	nc := &Channel{}
	*nc = *ch

	_ = copy(nc.UserList, ch.UserList)
	nc.Modes = ch.Modes.Copy()
	nc.Banlist = append([]string(nil), ch.Banlist...)
	nc.InviteList = append([]string(nil), ch.InviteList...)
	nc.ExceptList = append([]string(nil), ch.ExceptList...)

	return nc
}

// Len returns the count of users in a given channel.
func (ch *Channel) Len() int {
	return ch.UserList.Count()
}

// UserIn checks to see if a given user is in a channel.
func (ch *Channel) UserIn(name string) bool {
	name = ToRFC1459(name)
	return ch.UserList.Has(name)
}

// Lifetime represents the amount of time that has passed since we have
// first joined the channel.
func (ch *Channel) Lifetime() time.Duration {
	return time.Since(ch.Joined)
}
