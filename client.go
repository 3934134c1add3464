// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	nested "github.com/antonfisher/nested-logrus-formatter"
)

// Client contains all of the information necessary to run a single IRC
// client connection.
type Client struct {
	// Config represents the configuration. Entries here should not be
	// edited while the client is connected, to avoid data races. Mutating
	// Config after Connect forces a reconnect to take effect.
	Config Config
	// rx is a buffer of events waiting to be processed.
	rx chan *Event
	// tx is a buffer of events waiting to be sent.
	tx chan *Event
	// state represents the throw-away state for the irc session.
	state *state
	// initTime represents the creation time of the client.
	initTime time.Time
	// Handlers manages internal and external handlers.
	Handlers *Caller
	// CTCP manages internal and external CTCP handlers.
	CTCP *CTCP
	// Cmd contains various helper methods to interact with the server.
	Cmd *Commands
	// mu guards connect/disconnect so multiple goroutines can't race
	// each other into or out of a connection.
	mu sync.RWMutex

	// IRCd encapsulates IRC server details.
	IRCd Server

	// stop tells Connect() that the client wishes to cancel/close.
	stop context.CancelFunc
	// conn is a reference to the current connection. nil means we're not
	// connected. Guarded by Client.mu.
	conn *ircConn
	// flood is the token-bucket write serializer for this connection.
	flood *floodControl
	// pins is the certificate pin store consulted during TLS handshakes.
	pins *PinStore
	// keys is the FiSH encryption key store for this client.
	keys *keystoreHandle
	// echo tracks recently sent message ids/labels so echo-message
	// reflections of our own PRIVMSG/NOTICE can be deduplicated.
	echo *echoTracker
	// batches tracks in-flight BATCH blocks by reference tag.
	batches *batchTracker
	// exchanges tracks in-flight DH1080 key exchanges by peer.
	exchanges *keyExchangeTracker
	// debug is the structured logger used for debug/trace output.
	debug *logrus.Logger
}

// Server contains information about the IRC server that the client is
// connected to.
type Server struct {
	// Network is the name of the IRC network we are connected to, as
	// acquired by 001.
	Network atomic.Value
	// Version is the software version of the IRC daemon, as acquired by 004.
	Version string
	// Host is the hostname/id/IP of the leaf, as acquired by 002.
	Host string
	// Compiled is the reported date the server was compiled on, as
	// acquired by 003.
	Compiled time.Time
	// UserCount is the amount of online users currently on this network,
	// as acquired by 251.
	UserCount int
	// MaxUserCount is the highest amount of online users seen, as
	// acquired by 251.
	MaxUserCount int
	// LocalUserCount is the amount of online users currently on this
	// leaf, as acquired by 265.
	LocalUserCount int
	// LocalMaxUserCount is the maximum amount of users seen on this leaf,
	// as acquired by 265.
	LocalMaxUserCount int
	// OperCount is the amount of opers currently online, as acquired by 252.
	OperCount int
	// ChannelCount is the amount of channels formed, as acquired by 254.
	ChannelCount int
}

// ProxyConfig configures an upstream SOCKS5 proxy the client dials
// through before reaching Config.Server (or the relay, if both are set).
type ProxyConfig struct {
	// Address is the "host:port" of the SOCKS5 proxy.
	Address string
	// Username/Password are optional SOCKS5 username/password auth
	// credentials (RFC 1929).
	Username string
	Password string
}

// RelayConfig points the client at a munin relay (§4.11) instead of
// dialing Config.Server directly. The relay performs the actual TCP (and
// optionally TLS) connection to the target IRC server on the client's
// behalf, splicing the raw byte stream back to the client.
type RelayConfig struct {
	// Addr is the "host:port" of the relay.
	Addr string
	// Token authenticates the client to the relay; the wire challenge is
	// signed with HMAC-SHA256 using this token as the key.
	Token string
	// TLS, if true, upgrades the client<->relay leg to TLS before the
	// AUTH/CONNECT handshake. This is independent of Config.SSL, which
	// governs whether the *relay* encrypts its leg to the target server.
	TLS       bool
	TLSConfig *tls.Config
}

// Config contains configuration options for an IRC client.
type Config struct {
	// Server is the host/IP of the server to connect to.
	Server string
	// ServerPass is the server password used to authenticate (PASS).
	ServerPass string
	// Port is the port used during server connection.
	Port int
	// Nick is an rfc-valid nickname used during connection.
	Nick string
	// User is the username/ident to use on connect.
	User string
	// Name is the "realname" used during connection.
	Name string
	// NickServPass, if set, is sent to NickServ via PRIVMSG IDENTIFY once
	// registration completes.
	NickServPass string

	// SASL contains the authentication data used to authenticate via
	// SASL. See SASLMech for supported mechanisms. Capability tracking
	// must be enabled for this to work.
	SASL SASLMech
	// SASLUser and SASLPass, if set and SASL is left nil, are used to
	// auto-construct a mechanism once the server advertises its "sasl="
	// CAP LS value: SCRAM-SHA-256 is preferred, falling back to PLAIN.
	SASLUser string
	SASLPass string
	// ClientCert, if set, is offered during the TLS handshake and makes
	// SASL EXTERNAL selectable.
	ClientCert *tls.Certificate

	// Gateway forwards the source user's hostname/IP to the server (if
	// supported) so a gateway/bouncer connection doesn't appear to
	// originate from the gateway machine itself. See WEBIRC.
	Gateway Gateway

	// AutoJoin lists channels the client joins automatically once
	// registration completes (on 001).
	AutoJoin []string
	// Bouncer indicates the server is a bouncer re-attaching an existing
	// session (e.g. ZNC); AutoJoin is skipped since channel membership is
	// already established server-side.
	Bouncer bool

	// Relay, if set, tunnels the connection through a munin relay (§4.11)
	// instead of dialing Server/Port directly.
	Relay *RelayConfig
	// Proxy, if set, dials through an upstream SOCKS5 proxy before
	// reaching Server/Port (or the relay).
	Proxy *ProxyConfig

	// Bind is used to bind to a specific host or IP during the dial
	// process.
	Bind string
	// PreferIPv6 orders DNS resolution results IPv6-first; otherwise
	// IPv4 addresses are tried first. Either way, every resolved address
	// is tried in order until one connects.
	PreferIPv6 bool
	// SSL enables dialing via TLS.
	SSL bool
	// AcceptInvalidCert disables TLS certificate verification entirely.
	// Certificate pinning (PinVerifier) still runs if configured.
	AcceptInvalidCert bool
	// TLSConfig is an optional user-supplied TLS configuration. SSL must
	// be enabled for this to be used.
	TLSConfig *tls.Config
	// PinVerifier is consulted after every TLS handshake with the
	// computed certificate pin; see pinning.go. If nil, pins are
	// recorded on first sight and changes are logged but never block
	// the connection.
	PinVerifier PinVerifier

	// AllowFlood allows the client to bypass the flood protector.
	AllowFlood bool
	// GlobalFormat passes all PRIVMSG/NOTICE/TOPIC trailing text through
	// Fmt() so callers don't need to wrap every response themselves.
	GlobalFormat bool

	// AutoReconnect enables automatic reconnection (with linear backoff)
	// on unexpected disconnect.
	AutoReconnect bool
	// ReconnectDelay is the base delay multiplied by the attempt number
	// for linear backoff between reconnect attempts. Defaults to 1s.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts caps the number of reconnect attempts before
	// giving up and surfacing a fatal Error. Defaults to 3.
	MaxReconnectAttempts int

	// Debug is an optional writer that receives structured debug logs
	// (see logrus). Defaults to discarding output unless MUNIN_DEBUG is
	// set in the environment, in which case it additionally logs to
	// stderr.
	Debug io.Writer
	// Out, if set, receives a prettified, human readable line for each
	// incoming event (see Event.Pretty()).
	Out io.Writer
	// RecoverFunc is called when a handler panics. If set, the panic is
	// considered recovered; otherwise the client re-panics. Set this to
	// DefaultRecoverHandler for a sensible default.
	RecoverFunc func(c *Client, e *HandlerError)

	// SupportedCaps are additional IRCv3 capabilities requested on top of
	// the built-in set (see cap.go). Only meaningful if tracking hasn't
	// been disabled.
	SupportedCaps map[string][]string

	// Version is used in response to a CTCP VERSION.
	Version string
	// ClientInfo is used in response to a CTCP CLIENTINFO.
	ClientInfo string
	// UserInfo is used in response to a CTCP USERINFO.
	UserInfo string
	// Finger is used in response to a CTCP FINGER.
	Finger string
	// Source is used in response to a CTCP SOURCE.
	Source string

	// HighlightWords are additional case-insensitive substrings (beyond
	// the client's own nickname) that mark an incoming message as a
	// highlight/mention.
	HighlightWords []string

	// PingDelay is the interval between keep-alive PINGs sent to the
	// server. Should be between 20-600s. -1 disables client-initiated
	// pings entirely.
	PingDelay time.Duration
	// PingTimeout is how much longer than PingDelay we tolerate waiting
	// for a PONG before considering the connection dead. Defaults to
	// 20s.
	PingTimeout time.Duration

	// disableTracking disables all channel and user-level tracking. See
	// Client.DisableTracking().
	disableTracking bool
	// HandleNickCollide, if set, overrides the default "append an
	// underscore and retry" nickname collision behavior.
	HandleNickCollide func(oldNick string) (newNick string)
}

// Gateway is useful when a user connects through an indirect method, such
// as web clients -- the indirect client would otherwise appear to
// originate from the gateway itself unless WEBIRC is implemented by both
// the client and the server.
//
// More information:
//   - https://ircv3.net/specs/extensions/webirc.html
//   - https://kiwiirc.com/docs/webirc
type Gateway struct {
	// Password authenticates the WEBIRC command from this client.
	Password string
	// Type identifies the gateway/client requesting the spoof (e.g.
	// "cgiirc").
	Type string
	// Hostname of the real user.
	Hostname string
	// Address of the real user, IPv4 dotted-quad or IPv6 notation.
	Address string
}

// Params returns the arguments for the WEBIRC command.
func (w Gateway) Params() []string {
	return []string{w.Password, w.Type, w.Hostname, w.Address}
}

// ErrInvalidConfig is returned when the configuration passed to the
// client is invalid.
type ErrInvalidConfig struct {
	Conf Config
	err  error
}

func (e ErrInvalidConfig) Error() string { return "invalid configuration: " + e.err.Error() }

// isValid checks some basic settings to ensure the config is usable.
func (conf *Config) isValid() error {
	if conf.Server == "" {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("empty server")}
	}

	if conf.Port == 0 {
		conf.Port = 6667
	}

	if conf.Port < 1 || conf.Port > 65535 {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("port outside valid range (1-65535)")}
	}

	if !IsValidNick(conf.Nick) {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("bad nickname specified: " + conf.Nick)}
	}
	if !IsValidUser(conf.User) {
		return &ErrInvalidConfig{Conf: *conf, err: errors.New("bad user/ident specified: " + conf.User)}
	}

	return nil
}

// ErrNotConnected is returned if a method is used when the client isn't
// connected.
var ErrNotConnected = errors.New("client is not connected to server")

// New creates a new IRC client engine with the given configuration.
func New(config Config) *Client {
	c := &Client{
		Config:   config,
		rx:       make(chan *Event, 25),
		tx:       make(chan *Event, 25),
		CTCP:     newCTCP(),
		initTime: time.Now(),
		keys:     newKeystoreHandle(),
		pins:     NewPinStore(),
		echo:     newEchoTracker(),
		batches:  newBatchTracker(),
		exchanges: newKeyExchangeTracker(),
	}

	c.IRCd.Network.Store("")

	c.Cmd = &Commands{c: c}

	if c.Config.PingDelay >= 0 && c.Config.PingDelay < (20*time.Second) {
		c.Config.PingDelay = 20 * time.Second
	} else if c.Config.PingDelay > (600 * time.Second) {
		c.Config.PingDelay = 600 * time.Second
	}

	if c.Config.ReconnectDelay <= 0 {
		c.Config.ReconnectDelay = time.Second
	}
	if c.Config.MaxReconnectAttempts <= 0 {
		c.Config.MaxReconnectAttempts = 3
	}
	if c.Config.PingTimeout <= 0 {
		c.Config.PingTimeout = 20 * time.Second
	}

	c.debug = newDebugLogger(c.Config.Debug)

	// Set up the caller.
	c.Handlers = newCaller(c, c.debug)

	// Give ourselves a new state.
	c.state = &state{}
	c.state.RWMutex = &sync.RWMutex{}
	c.state.reset(true)
	c.state.client = c

	// Register builtin handlers.
	c.registerBuiltins()

	// Register default CTCP responses.
	c.CTCP.addDefaultHandlers()

	return c
}

// newDebugLogger builds the client's structured logger. When the
// MUNIN_DEBUG environment variable is set, debug output is additionally
// tee'd to stderr regardless of what Config.Debug points at.
func newDebugLogger(out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"nick", "channel"},
	})

	envDebug, _ := strconv.ParseBool(os.Getenv("MUNIN_DEBUG"))

	switch {
	case out == nil && envDebug:
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.DebugLevel)
	case out == nil:
		log.SetOutput(io.Discard)
	case envDebug && out != os.Stdout && out != os.Stderr:
		log.SetOutput(io.MultiWriter(os.Stderr, out))
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetOutput(out)
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}

// String returns a brief description of the current client state.
func (c *Client) String() string {
	return fmt.Sprintf(
		"<Client init:%q handlers:%d connected:%t>", c.initTime.String(), c.Handlers.Len(), c.IsConnected(),
	)
}

// TLSConnectionState returns the TLS connection state, useful for
// inspecting certificates, fingerprints, expiration, etc. Returns
// ErrConnNotTLS if the underlying connection isn't TLS, or
// ErrNotConnected if not connected.
func (c *Client) TLSConnectionState() (*tls.ConnectionState, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	if tlsConn, ok := c.conn.sock.(*tls.Conn); ok {
		cs := tlsConn.ConnectionState()
		return &cs, nil
	}

	return nil, ErrConnNotTLS
}

// ErrConnNotTLS is returned when Client.TLSConnectionState() is called
// and the connection wasn't made with TLS.
var ErrConnNotTLS = errors.New("underlying connection is not tls")

// Close closes the network connection to the server and causes
// Connect() to return nil. Safe to call multiple times.
func (c *Client) Close() {
	if c.stop != nil {
		c.debug.Debug("requesting client to stop")
		c.stop()
	}
}

// Quit sends a QUIT message to the server with the given reason before
// Client.Close() tears the connection down.
func (c *Client) Quit(reason string) {
	_ = c.Send(&Event{Command: QUIT, Params: []string{reason}})
}

// ErrEvent is an error produced when the server (or the engine itself)
// sends an ERROR message. The string contains the trailing text.
type ErrEvent struct {
	Event *Event
}

func (e *ErrEvent) Error() string {
	if e.Event == nil {
		return "unknown error occurred"
	}
	return e.Event.Last()
}

func (c *Client) execLoop(ctx context.Context) error {
	c.debug.Debug("starting execLoop")
	defer c.debug.Debug("closing execLoop")

	for {
		select {
		case <-ctx.Done():
			// Flush anything left in the queue so late handlers (e.g. for
			// QUIT/ERROR) still get to run.
			c.debug.Debugf("received signal to close, flushing %d events", len(c.rx))
			for {
				select {
				case event := <-c.rx:
					c.RunHandlers(event)
				default:
					return nil
				}
			}
		case event := <-c.rx:
			if event == nil {
				continue
			}

			c.RunHandlers(event)

			if event.Command == ERROR {
				return &ErrEvent{Event: event}
			}
		}
	}
}

// DisableTracking disables all channel/user-level/CAP tracking and clears
// all internal handlers. Cannot be undone on a client.
func (c *Client) DisableTracking() {
	c.debug.Debug("disabling tracking")
	c.Config.disableTracking = true
	c.Handlers.clearInternal()

	c.state.channels.Clear()
	c.state.notify(c, UPDATE_STATE)

	c.registerBuiltins()
}

// Server returns the string representation of the host:port pair for the
// connection.
func (c *Client) Server() string {
	return c.server()
}

func (c *Client) server() string {
	return net.JoinHostPort(c.Config.Server, strconv.Itoa(c.Config.Port))
}

// Lifetime returns how long has passed since the client was created.
func (c *Client) Lifetime() time.Duration {
	return time.Since(c.initTime)
}

// Uptime is the time at which the client successfully connected to the
// server.
func (c *Client) Uptime() (up time.Time, err error) {
	if !c.IsConnected() {
		return time.Now(), ErrNotConnected
	}

	c.conn.mu.RLock()
	defer c.conn.mu.RUnlock()
	return *c.conn.connTime, nil
}

// ConnSince is the duration that has passed since the client successfully
// connected to the server.
func (c *Client) ConnSince() (since *time.Duration, err error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	c.conn.mu.RLock()
	d := time.Since(*c.conn.connTime)
	c.conn.mu.RUnlock()
	return &d, nil
}

// IsConnected returns true if the client is connected to the server.
func (c *Client) IsConnected() bool {
	if c == nil || c.conn == nil {
		return false
	}

	c.conn.mu.RLock()
	defer c.conn.mu.RUnlock()
	return c.conn.connected
}

// GetNick returns the current nickname of the active connection. Panics
// if tracking is disabled.
func (c *Client) GetNick() string {
	if c == nil {
		return ""
	}
	c.panicIfNotTracking()
	n := c.state.nick.Load().(string)

	if len(n) < 1 {
		return c.Config.Nick
	}
	return n
}

// GetID returns the casemapping-normalized form of the current nickname.
// Panics if tracking is disabled.
func (c *Client) GetID() string {
	return c.state.fold(c.GetNick())
}

// GetIdent returns the current ident of the active connection. Panics if
// tracking is disabled. May be empty until learned from a channel join.
func (c *Client) GetIdent() string {
	c.panicIfNotTracking()

	if c.state.ident.Load().(string) == "" {
		return c.Config.User
	}
	return c.state.ident.Load().(string)
}

// GetHost returns the current host of the active connection. Panics if
// tracking is disabled. May be empty until learned from a channel join.
func (c *Client) GetHost() (host string) {
	c.panicIfNotTracking()
	return c.state.host.Load().(string)
}

// ChannelList returns the sorted list of channel names the client is
// currently in. Panics if tracking is disabled.
func (c *Client) ChannelList() []string {
	c.panicIfNotTracking()

	channels := make([]string, 0, len(c.state.channels.Keys()))
	for channel := range c.state.channels.IterBuffered() {
		chn := channel.Val.(*Channel)
		if !chn.UserIn(c.GetNick()) {
			continue
		}
		channels = append(channels, chn.Name)
	}

	sort.Strings(channels)
	return channels
}

// Channels returns the sorted list of channels the client is currently
// in. Panics if tracking is disabled.
func (c *Client) Channels() []*Channel {
	c.panicIfNotTracking()

	channels := make([]*Channel, 0, c.state.channels.Count())
	for channel := range c.state.channels.IterBuffered() {
		channels = append(channels, channel.Val.(*Channel).Copy())
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels
}

// UserList returns the sorted list of nicknames tracked across all
// channels. Panics if tracking is disabled.
func (c *Client) UserList() []string {
	c.panicIfNotTracking()

	users := make([]string, 0, c.state.users.Count())
	for user := range c.state.users.IterBuffered() {
		usr := user.Val.(*User)
		if usr.Stale {
			continue
		}
		users = append(users, usr.Nick)
	}

	sort.Strings(users)
	return users
}

// Users returns the sorted list of users tracked across all channels.
// Panics if tracking is disabled.
func (c *Client) Users() []*User {
	c.panicIfNotTracking()

	users := make([]*User, 0, c.state.users.Count())
	for user := range c.state.users.IterBuffered() {
		users = append(users, user.Val.(*User).Copy())
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Nick < users[j].Nick })
	return users
}

// LookupChannel looks up a given channel in state, nil if not found.
// Panics if tracking is disabled.
func (c *Client) LookupChannel(name string) (channel *Channel) {
	c.panicIfNotTracking()
	if name == "" {
		return nil
	}
	return c.state.lookupChannel(name).Copy()
}

// LookupUser looks up a given user in state, nil if not found. Panics if
// tracking is disabled.
func (c *Client) LookupUser(nick string) (user *User) {
	c.panicIfNotTracking()
	if nick == "" {
		return nil
	}
	return c.state.lookupUser(nick).Copy()
}

// IsInChannel returns true if the client is in the channel. Panics if
// tracking is disabled.
func (c *Client) IsInChannel(channel string) (in bool) {
	c.panicIfNotTracking()
	_, in = c.state.channels.Get(c.state.fold(channel))
	return in
}

// GetServerOpt retrieves an ISUPPORT (RPL_ISUPPORT/005) token learned
// during connection. Panics if tracking is disabled.
func (c *Client) GetServerOpt(key string) (result string, ok bool) {
	c.panicIfNotTracking()

	oi, ok := c.state.serverOptions.Get(key)
	if !ok {
		return "", ok
	}

	result = oi.(string)
	return result, len(result) > 0
}

// GetServerOptions returns all ISUPPORT tokens learned during connection,
// JSON encoded.
func (c *Client) GetServerOptions() []byte {
	o := make(map[string]string)
	for opt := range c.state.serverOptions.IterBuffered() {
		o[opt.Key] = opt.Val.(string)
	}
	b, _ := json.Marshal(o)
	return b
}

// NetworkName returns the network identifier (e.g. "Libera.Chat"). May be
// empty if the server hasn't reported ISUPPORT yet. Panics if tracking is
// disabled.
func (c *Client) NetworkName() (name string) {
	c.panicIfNotTracking()

	if n := c.state.network.Load().(string); len(n) > 0 {
		return n
	}

	name, ok := c.GetServerOpt("NETWORK")
	if !ok {
		return c.IRCd.Network.Load().(string)
	}

	if len(name) < 1 {
		if alt := c.IRCd.Network.Load().(string); len(alt) > 1 {
			name = alt
		}
	}

	return name
}

// ServerVersion returns the server software version, if reported by
// RPL_MYINFO. Panics if tracking is disabled.
func (c *Client) ServerVersion() (version string) {
	c.panicIfNotTracking()
	version, _ = c.GetServerOpt("VERSION")
	return version
}

// ServerMOTD returns the server's message of the day. Panics if tracking
// is disabled.
func (c *Client) ServerMOTD() (motd string) {
	c.panicIfNotTracking()
	return c.state.motd
}

// Latency is the round-trip time between the most recent client PING and
// the server's PONG reply.
func (c *Client) Latency() (delta time.Duration) {
	c.conn.mu.RLock()
	defer c.conn.mu.RUnlock()

	delta = c.conn.lastPong.Sub(c.conn.lastPing)
	if delta < 0 {
		return 0
	}
	return delta
}

// HasCapability checks if the connection has enabled the given
// capability. Panics if tracking is disabled.
func (c *Client) HasCapability(name string) (has bool) {
	c.panicIfNotTracking()

	if !c.IsConnected() {
		return false
	}

	name = strings.ToLower(name)

	c.state.RLock()
	for key := range c.state.enabledCap {
		if strings.ToLower(key) == name {
			has = true
			break
		}
	}
	c.state.RUnlock()

	return has
}

// panicIfNotTracking panics when called while tracking is disabled,
// naming the offending caller.
func (c *Client) panicIfNotTracking() {
	if c == nil || !c.Config.disableTracking {
		return
	}

	pc, _, _, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	_, file, line, _ := runtime.Caller(2)

	panic(fmt.Sprintf("%s used when tracking is disabled (caller %s:%d)", fn.Name(), file, line))
}

func (c *Client) debugLogEvent(e *Event, dropped bool) {
	var prefix string
	if dropped {
		prefix = "dropping event (disconnected): "
	} else {
		prefix = "> "
	}

	if e.Sensitive {
		c.debug.Debugf("%s%s ***redacted***", prefix, e.Command)
	} else {
		c.debug.Debug(prefix + MaskSensitive(StripRaw(e.String())))
	}

	if c.Config.Out != nil {
		if pretty, ok := e.Pretty(); ok {
			fmt.Fprintln(c.Config.Out, MaskSensitive(StripRaw(pretty)))
		}
	}
}
