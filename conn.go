// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/muninirc/core/relay"
)

// Messages are delimited with CR and LF line endings, we're using the last
// one to split the stream. Both are removed during parsing of the message.
const delim byte = '\n'

var endline = []byte("\r\n")

// ircConn represents an IRC network protocol connection, it consists of an
// Encoder and Decoder to manage i/o.
type ircConn struct {
	io   *bufio.ReadWriter
	sock net.Conn

	mu sync.RWMutex
	// lastWrite is used to keep track of when we last wrote to the server.
	lastWrite time.Time
	// lastActive is the last time the client was interacting with the server,
	// excluding a few background commands (PING, PONG, WHO, etc).
	lastActive time.Time
	// writeDelay is used to keep track of rate limiting of events sent to
	// the server.
	writeDelay time.Duration
	// connected is true if we're actively connected to a server.
	connected bool
	// connTime is the time at which the client has connected to a server.
	connTime *time.Time
	// lastPing is the last time that we pinged the server.
	lastPing time.Time
	// lastPong is the last successful time that we pinged the server and
	// received a successful pong back.
	lastPong time.Time
}

// Dialer is an interface implementation of net.Dialer. Use this if you would
// like to implement your own dialer which the client will use when connecting.
type Dialer interface {
	// Dial takes two arguments. Network, which should be similar to "tcp",
	// "tdp6", "udp", etc -- as well as address, which is the hostname or ip
	// of the network. Note that network can be ignored if your transport
	// doesn't take advantage of network types.
	Dial(network, address string) (net.Conn, error)
}

// dialDirect establishes the raw TCP connection to addr, honoring
// PreferIPv6 by ordering the resolved addresses accordingly and trying
// each in turn until one connects.
func dialDirect(conf Config, dialer Dialer, addr string) (net.Conn, error) {
	if dialer != nil {
		return dialer.Dial("tcp", addr)
	}

	netDialer := &net.Dialer{Timeout: 10 * time.Second}
	if conf.Bind != "" {
		local, err := net.ResolveTCPAddr("tcp", conf.Bind+":0")
		if err != nil {
			return nil, err
		}
		netDialer.LocalAddr = local
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
	if err != nil || len(ips) == 0 {
		// Fall back to letting the standard dialer resolve it itself.
		return netDialer.Dial("tcp", addr)
	}

	ordered := orderByFamily(ips, conf.PreferIPv6)

	var lastErr error
	for _, ip := range ordered {
		conn, dialErr := netDialer.Dial("tcp", net.JoinHostPort(ip.IP.String(), port))
		if dialErr == nil {
			return conn, nil
		}
		lastErr = dialErr
	}

	return nil, lastErr
}

// orderByFamily returns ips grouped so the preferred address family is
// tried first, preserving relative order within each group.
func orderByFamily(ips []net.IPAddr, preferIPv6 bool) []net.IPAddr {
	var first, second []net.IPAddr

	for _, ip := range ips {
		is4 := ip.IP.To4() != nil
		if is4 == !preferIPv6 {
			first = append(first, ip)
		} else {
			second = append(second, ip)
		}
	}

	return append(first, second...)
}

// dialProxy dials addr through an upstream SOCKS5 proxy using the
// RFC 1928/1929 handshake (CONNECT command, optional username/password
// auth, no-auth fallback).
func dialProxy(proxy *ProxyConfig, addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", proxy.Address, 10*time.Second)
	if err != nil {
		return nil, err
	}

	if err := socks5Handshake(conn, proxy, addr); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// newConn establishes the transport for addr: direct, through a SOCKS5
// proxy, and/or tunneled through a relay, then performs the TLS handshake
// (with certificate pinning) if requested.
func newConn(conf Config, dialer Dialer, addr string, pins *PinStore) (*ircConn, error) {
	if err := conf.isValid(); err != nil {
		return nil, err
	}

	var conn net.Conn
	var err error

	switch {
	case conf.Relay != nil:
		var transport net.Conn
		if conf.Proxy != nil {
			transport, err = dialProxy(conf.Proxy, conf.Relay.Addr)
		} else {
			transport, err = net.DialTimeout("tcp", conf.Relay.Addr, 10*time.Second)
		}
		if err != nil {
			return nil, err
		}

		if conf.Relay.TLS {
			transport = tlsHandshake(transport, conf.Relay.TLSConfig, conf.Relay.Addr, nil, "")
		}

		r := relay.Dial(transport)
		if err = r.Authenticate([]byte(conf.Relay.Token)); err != nil {
			_ = transport.Close()
			return nil, err
		}

		host, portStr, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			_ = transport.Close()
			return nil, splitErr
		}
		port, _ := strconv.ParseUint(portStr, 10, 16)

		if err = r.Connect(host, uint16(port), conf.SSL); err != nil {
			_ = transport.Close()
			return nil, err
		}

		conn = r

		// TLS to the target, when requested, is performed by the relay
		// itself on its leg; the client-facing Conn is plaintext.

	case conf.Proxy != nil:
		conn, err = dialProxy(conf.Proxy, addr)
		if err != nil {
			return nil, err
		}
		if conf.SSL {
			conn = tlsHandshake(conn, conf.TLSConfig, conf.Server, pins, addr)
		}

	default:
		conn, err = dialDirect(conf, dialer, addr)
		if err != nil {
			return nil, err
		}
		if conf.SSL {
			conn = tlsHandshake(conn, conf.TLSConfig, conf.Server, pins, addr)
		}
	}

	ctime := time.Now()

	c := &ircConn{
		sock:      conn,
		connTime:  &ctime,
		connected: true,
	}
	c.newReadWriter()

	return c, nil
}

func newMockConn(conn net.Conn) *ircConn {
	ctime := time.Now()
	c := &ircConn{
		sock:      conn,
		connTime:  &ctime,
		connected: true,
	}
	c.newReadWriter()

	return c
}

// receive queues a freshly decoded event for handler dispatch, timing
// out after 30s if the execLoop consumer is backed up.
func (c *Client) receive(event *Event) {
	t := time.NewTimer(30 * time.Second)
	defer t.Stop()

	select {
	case c.rx <- event:
	case <-t.C:
		c.debug.Debugf("dropping inbound event, rx backed up: %s", event.Command)
	}
}

// ParseEventError is returned when an event cannot be parsed with ParseEvent().
type ParseEventError struct {
	Line string
}

func (e ParseEventError) Error() string { return "unable to parse event: " + e.Line }

type decodedEvent struct {
	event *Event
	err   error
}

func (c *ircConn) decode() <-chan decodedEvent {
	ch := make(chan decodedEvent, 1)

	go func() {
		defer close(ch)

		line, err := c.io.ReadString(delim)
		if err != nil {
			ch <- decodedEvent{err: err}
			return
		}

		event := ParseEvent(line)
		if event == nil {
			ch <- decodedEvent{err: ParseEventError{Line: line}}
			return
		}

		ch <- decodedEvent{event: event}
	}()

	return ch
}

func (c *ircConn) newReadWriter() {
	c.io = bufio.NewReadWriter(bufio.NewReader(c.sock), bufio.NewWriter(c.sock))
}

// tlsHandshake wraps conn in TLS, honoring AcceptInvalidCert and the
// client certificate, then (when pins is non-nil) validates the
// negotiated leaf certificate's fingerprint against the pin store.
func tlsHandshake(conn net.Conn, conf *tls.Config, server string, pins *PinStore, pinHost string) net.Conn {
	if conf == nil {
		conf = &tls.Config{ServerName: server} //nolint:gosec
	}

	tlsConn := tls.Client(conn, conf)

	if pins != nil {
		if err := tlsConn.Handshake(); err == nil {
			state := tlsConn.ConnectionState()
			if len(state.PeerCertificates) > 0 {
				pins.Validate(pinHost, state.PeerCertificates[0])
			}
		}
	}

	return net.Conn(tlsConn)
}

// Close closes the underlying socket.
func (c *ircConn) Close() error {
	return c.sock.Close()
}

// Connect attempts to connect to the given IRC server. Returns only when
// an error has occurred, or a disconnect was requested with Close(). Connect
// will only return once all client-based goroutines have been closed to
// ensure there are no long-running routines becoming backed up.
//
// Connect will wait for all non-goroutine handlers to complete on error/quit,
// however it will not wait for goroutine-based handlers.
//
// If this returns nil, this means that the client requested to be closed
// (e.g. Client.Close()). Connect will panic if called when the last call has
// not completed.
func (c *Client) Connect() error {
	return c.internalConnect(nil, nil)
}

// DialerConnect allows you to specify your own custom dialer which implements
// the Dialer interface.
func (c *Client) DialerConnect(dialer Dialer) error {
	return c.internalConnect(nil, dialer)
}

// MockConnect is used to implement mocking with an IRC server. Supply a net.Conn
// that will be used to spoof the server. A useful way to do this is to so
// net.Pipe(), pass one end into MockConnect(), and the other end into
// bufio.NewReader().
func (c *Client) MockConnect(conn net.Conn) error {
	return c.internalConnect(conn, nil)
}

func (c *Client) internalConnect(mock net.Conn, dialer Dialer) error {
	// We want to be the only one handling connects/disconnects right now.
	c.mu.Lock()

	if c.conn != nil {
		panic("use of connect more than once")
	}

	// Reset the state.
	c.state.reset(false)

	addr := c.server()

	if mock == nil {
		c.debug.Debugf("connecting to %s (ssl: %v, relay: %v)", addr, c.Config.SSL, c.Config.Relay != nil)
		conn, err := newConn(c.Config, dialer, addr, c.pins)
		if err != nil {
			c.mu.Unlock()
			return err
		}

		c.conn = conn
	} else {
		c.conn = newMockConn(mock)
	}

	c.flood = newFloodControl(defaultMaxTokens, defaultRefillRate, defaultRefillInterval, c.write)
	c.flood.setEnabled(!c.Config.AllowFlood)
	c.mu.Unlock()

	var ctx context.Context
	ctx, c.stop = context.WithCancel(context.Background())

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return c.execLoop(gctx) })
	group.Go(func() error { return c.readLoop(gctx) })
	group.Go(func() error { return c.sendLoop(gctx) })
	group.Go(func() error { return c.pingLoop(gctx) })
	go c.flood.run()

	// Passwords first.
	if c.Config.Gateway.Password != "" {
		_ = c.write(&Event{Command: WEBIRC, Params: c.Config.Gateway.Params(), Sensitive: true})
	}

	if c.Config.ServerPass != "" {
		_ = c.write(&Event{Command: PASS, Params: []string{c.Config.ServerPass}, Sensitive: true})
	}

	// List the IRCv3 capabilities, specifically with the max protocol we
	// support. The IRCv3 specification doesn't directly state if this
	// should be called directly before registration, or if it should be
	// called after NICK/USER requests; some networks require it before.
	_ = c.listCAP()

	// Then nickname.
	_ = c.write(&Event{Command: NICK, Params: []string{c.Config.Nick}})

	// Then username and realname.
	if c.Config.Name == "" {
		c.Config.Name = c.Config.User
	}

	_ = c.write(&Event{Command: USER, Params: []string{c.Config.User, "*", "*", c.Config.Name}})

	// Send a virtual event allowing hooks for successful socket connection.
	c.RunHandlers(&Event{Command: INITIALIZED, Params: []string{addr}})

	err := group.Wait()
	if err != nil {
		c.debug.Debugf("received error, beginning cleanup: %v", err)
	} else {
		c.debug.Debug("received request to close, beginning clean up")
		c.RunHandlers(&Event{Command: CLOSED, Params: []string{addr}})
	}

	c.flood.stop()

	// Make sure that the connection is closed if not already.
	c.mu.RLock()
	if c.stop != nil {
		c.stop()
	}
	c.conn.mu.Lock()
	c.conn.connected = false
	_ = c.conn.Close()
	c.conn.mu.Unlock()
	c.mu.RUnlock()

	c.RunHandlers(&Event{Command: DISCONNECTED, Params: []string{addr}})

	// This helps ensure that the end user isn't improperly using the client
	// more than once. If they want to do this, they should be using multiple
	// clients, not multiple instances of Connect().
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	return err
}

// readLoop sets a timeout of 300 seconds, and then attempts to read from the
// IRC server. If there is an error, it causes Connect (and any configured
// reconnect loop) to unwind.
func (c *Client) readLoop(ctx context.Context) error {
	c.debug.Debug("starting readLoop")
	defer c.debug.Debug("closing readLoop")

	var de decodedEvent

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_ = c.conn.sock.SetReadDeadline(time.Now().Add(300 * time.Second))

			select {
			case <-ctx.Done():
				return nil
			case de = <-c.conn.decode():
			}

			if de.err != nil {
				return de.err
			}

			// Check if it's an echo-message.
			if !c.Config.disableTracking {
				de.event.Echo = (de.event.Command == PRIVMSG || de.event.Command == NOTICE) &&
					de.event.Source != nil && de.event.Source.ID() == c.GetID()
			}

			c.receive(de.event)
		}
	}
}

// Send sends an event to the server, subject to the flood protector
// unless AllowFlood is set. Events longer than the server's advertised
// line length are split (see split.go). Use Client.RunHandlers() if you
// are simply looking to trigger handlers with an event rather than send
// it to the wire.
func (c *Client) Send(event *Event) error {
	if c.Config.GlobalFormat && event.Trailing != "" &&
		(event.Command == PRIVMSG || event.Command == TOPIC || event.Command == NOTICE) {
		event.Trailing = Fmt(event.Trailing)
	}

	if (event.Command == PRIVMSG || event.Command == NOTICE) && len(event.Params) == 1 && event.Trailing != "" {
		if ct, encrypted := c.EncryptFor(event.Params[0], event.Trailing); encrypted {
			event.Trailing = ct
		}
	}

	events := splitEvent(c, event)

	for _, e := range events {
		c.mu.RLock()
		if c.conn == nil {
			c.debugLogEvent(e, true)
			c.mu.RUnlock()
			return ErrNotConnected
		}
		flood := c.flood
		c.mu.RUnlock()

		if (e.Command == PRIVMSG || e.Command == NOTICE) && len(e.Params) == 1 {
			c.echo.track(e.Params[0], e.Trailing)
		}

		if err := flood.sendAsync(e); err != nil {
			return err
		}
	}

	return nil
}

// write is the lower level function used to enqueue an event directly,
// bypassing the flood protector. It times out after 30s if the event
// can't be queued.
func (c *Client) write(event *Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		// Drop the event if disconnected.
		c.debugLogEvent(event, true)
		return ErrNotConnected
	}

	t := time.NewTimer(30 * time.Second)
	defer t.Stop()

	select {
	case c.tx <- event:
		return nil
	case <-t.C:
		c.debugLogEvent(event, true)
		return ErrNotConnected
	}
}

func (c *Client) sendLoop(ctx context.Context) error {
	c.debug.Debug("starting sendLoop")
	defer c.debug.Debug("closing sendLoop")

	var err error

	for {
		select {
		case event := <-c.tx:
			// Check if tags exist on the event. If they do, and message-tags
			// isn't a supported capability, remove them from the event.
			if event.Tags != nil {
				c.state.RLock()
				_, in := c.state.enabledCap["message-tags"]
				c.state.RUnlock()

				if !in {
					event.Tags = Tags{}
				}
			}

			c.debugLogEvent(event, false)

			c.conn.mu.Lock()
			c.conn.lastWrite = time.Now()

			if event.Command != PING && event.Command != PONG && event.Command != WHO {
				c.conn.lastActive = c.conn.lastWrite
			}
			c.conn.mu.Unlock()

			// Write the raw line.
			_, err = c.conn.io.Write(event.Bytes())
			if err == nil {
				// And the \r\n.
				_, err = c.conn.io.Write(endline)
				if err == nil {
					// Lastly, flush everything to the socket.
					err = c.conn.io.Flush()
				}
			}

			if event.Command == QUIT {
				c.Close()
				return nil
			}

			if err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// TimedOutError is returned when we attempt to ping the server, and timed out
// before receiving a PONG back.
type TimedOutError struct {
	// TimeSinceSuccess is how long ago we received a successful pong.
	TimeSinceSuccess time.Duration
	// LastPong is the time we received our last successful pong.
	LastPong time.Time
	// LastPing is the last time we sent a pong request.
	LastPing time.Time
	// Delay is the configured delay between how often we send a ping request.
	Delay time.Duration
}

func (TimedOutError) Error() string { return "timed out waiting for a requested PING response" }

func (c *Client) pingLoop(ctx context.Context) error {
	// Don't run the pingLoop if they want to disable it.
	if c.Config.PingDelay <= 0 {
		return nil
	}

	c.debug.Debug("starting pingLoop")
	defer c.debug.Debug("closing pingLoop")

	c.conn.mu.Lock()
	c.conn.lastPing = time.Now()
	c.conn.lastPong = time.Now()
	c.conn.mu.Unlock()

	tick := time.NewTicker(c.Config.PingDelay)
	defer tick.Stop()

	started := time.Now()
	past := false
	pingSent := false

	for {
		select {
		case <-tick.C:
			// Delay during connect to wait for the client to register,
			// otherwise some ircds will not respond (e.g. during SASL
			// negotiation).
			if !past {
				if time.Since(started) < 30*time.Second {
					continue
				}

				past = true
			}

			c.conn.mu.RLock()
			if pingSent && time.Since(c.conn.lastPong) > c.Config.PingDelay+c.Config.PingTimeout {
				err := TimedOutError{
					TimeSinceSuccess: time.Since(c.conn.lastPong),
					LastPong:         c.conn.lastPong,
					LastPing:         c.conn.lastPing,
					Delay:            c.Config.PingDelay,
				}

				c.conn.mu.RUnlock()
				return err
			}
			c.conn.mu.RUnlock()

			c.conn.mu.Lock()
			c.conn.lastPing = time.Now()
			c.conn.mu.Unlock()

			c.Cmd.Ping(strconv.FormatInt(time.Now().UnixNano(), 10))
			pingSent = true
		case <-ctx.Done():
			return nil
		}
	}
}
