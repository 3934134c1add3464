// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

package munin

import (
	"fmt"
	"math/rand"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
)

// RunHandlers manually runs handlers for a given event.
func (c *Client) RunHandlers(event *Event) {
	if event == nil {
		c.debug.Debug("nil event")
		return
	}

	prefix := "< "
	if event.Echo {
		prefix += "[echo-message] "
	}
	c.debug.Debug(prefix + MaskSensitive(StripRaw(event.String())))
	if c.Config.Out != nil {
		if pretty, ok := event.Pretty(); ok {
			fmt.Fprintln(c.Config.Out, MaskSensitive(StripRaw(pretty)))
		}
	}

	// Background handlers first. If the event is an echo-message, only
	// send the echo version to ALL_EVENTS.
	c.Handlers.exec(ALL_EVENTS, true, c, event.Copy())
	if !event.Echo {
		c.Handlers.exec(event.Command, true, c, event.Copy())
	}

	c.Handlers.exec(ALL_EVENTS, false, c, event.Copy())

	if !event.Echo {
		c.Handlers.exec(event.Command, false, c, event.Copy())
	}

	if ctcp := DecodeCTCP(event.Copy()); ctcp != nil {
		c.CTCP.call(ctcp, c)
	}
}

// Handler is the lower level implementation of a handler. See
// Caller.AddHandler().
type Handler interface {
	Execute(*Client, Event)
}

// HandlerFunc is a type that represents the function necessary to
// implement Handler.
type HandlerFunc func(client *Client, event Event)

// Execute calls the HandlerFunc with the client and event.
func (f HandlerFunc) Execute(client *Client, event Event) {
	f(client, event)
}

// nestedHandlers consists of a nested concurrent map.
//
//	( cmap.ConcurrentMap[command]cmap.ConcurrentMap[cuid]Handler )
//
// command and cuid are both strings.
type nestedHandlers struct {
	cm cmap.ConcurrentMap
}

type handlerTuple struct {
	cuid    string
	handler Handler
}

func newNestedHandlers() *nestedHandlers {
	return &nestedHandlers{cm: cmap.New()}
}

func (nest *nestedHandlers) len() (total int) {
	for hs := range nest.cm.IterBuffered() {
		hndlrs := hs.Val.(cmap.ConcurrentMap)
		total += len(hndlrs.Keys())
	}
	return
}

func (nest *nestedHandlers) lenFor(cmd string) (total int) {
	cmd = strings.ToUpper(cmd)
	hs, ok := nest.cm.Get(cmd)
	if !ok {
		return 0
	}
	hndlrs := hs.(cmap.ConcurrentMap)
	return len(hndlrs.Keys())
}

func (nest *nestedHandlers) getAllHandlersFor(s string) (handlers chan handlerTuple, ok bool) {
	var h interface{}
	h, ok = nest.cm.Get(s)
	if !ok {
		return
	}
	hm := h.(cmap.ConcurrentMap)
	handlers = make(chan handlerTuple, 5)
	go func() {
		for hi := range hm.IterBuffered() {
			handlers <- handlerTuple{hi.Key, hi.Val.(Handler)}
		}
		close(handlers)
	}()
	return
}

// Caller manages internal and external (user facing) handlers.
type Caller struct {
	mu sync.RWMutex

	parent *Client

	// external/internal keys are of structure: map[COMMAND][CUID]Handler.
	// "COMMAND" should always be uppercase for normalization.
	external *nestedHandlers
	internal *nestedHandlers

	debug *logrus.Logger
}

// newCaller creates and initializes a new handler.
func newCaller(parent *Client, debugOut *logrus.Logger) *Caller {
	return &Caller{
		external: newNestedHandlers(),
		internal: newNestedHandlers(),
		debug:    debugOut,
		parent:   parent,
	}
}

// Len returns the total amount of user-entered registered handlers.
func (c *Caller) Len() int {
	return c.external.len()
}

// Count is much like Caller.Len(), however it counts the number of
// registered handlers for a given command.
func (c *Caller) Count(cmd string) int {
	return c.external.lenFor(cmd)
}

func (c *Caller) String() string {
	return fmt.Sprintf("<Caller external:%d internal:%d>", c.Len(), c.internal.len())
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// cuid generates a unique UID string for each handler for ease of removal.
func (c *Caller) cuid(cmd string, n int) (cuid, uid string) {
	b := make([]byte, n)

	for i := range b {
		b[i] = letterBytes[rand.Int63()%int64(len(letterBytes))]
	}

	return cmd + ":" + string(b), string(b)
}

// cuidToID allows easy mapping between a generated cuid and the caller
// external/internal handler maps.
func (c *Caller) cuidToID(input string) (cmd, uid string) {
	i := strings.IndexByte(input, ':')
	if i < 0 {
		return "", ""
	}

	return input[:i], input[i+1:]
}

// exec executes all handlers pertaining to the specified event. Internal
// first, then external. There's no specific order/priority among
// handlers for the same command.
func (c *Caller) exec(command string, bg bool, client *Client, event *Event) {
	handle := func(wgr *sync.WaitGroup, h handlerTuple) {
		c.debug.Debugf("(%s) exec %s => %s", c.parent.Config.Nick, command, h.cuid)
		start := time.Now()

		if bg {
			go func() {
				defer wgr.Done()
				if client.Config.RecoverFunc != nil {
					defer recoverHandlerPanic(client, event, h.cuid, 3)
				}
				h.handler.Execute(client, *event)
				c.debug.Debugf("(%s) done %s == %s", c.parent.Config.Nick, h.cuid, time.Since(start))
			}()
			return
		}

		if client.Config.RecoverFunc != nil {
			defer recoverHandlerPanic(client, event, h.cuid, 3)
		}

		h.handler.Execute(client, *event)
		c.debug.Debugf("(%s) done %s == %s", c.parent.Config.Nick, h.cuid, time.Since(start))
		wgr.Done()
	}

	// Run all handlers concurrently across the same event. This still
	// helps prevent mis-ordered events while speeding up execution.
	var wg sync.WaitGroup

	if internals, iok := c.internal.getAllHandlersFor(command); iok {
		for h := range internals {
			wg.Add(1)
			go handle(&wg, h)
		}
	}
	if externals, eok := c.external.getAllHandlersFor(command); eok {
		for h := range externals {
			wg.Add(1)
			go handle(&wg, h)
		}
	}

	// Wait for all handlers to complete so new events can't race ahead
	// of older ones.
	wg.Wait()
}

// ClearAll clears all external handlers currently setup within the
// client. This ignores internal handlers.
func (c *Caller) ClearAll() {
	c.external.cm.Clear()
	c.debug.Debug("cleared all external handlers")
}

// clearInternal clears all internal handlers currently setup within the
// client.
func (c *Caller) clearInternal() {
	c.internal.cm.Clear()
	c.debug.Debug("cleared all internal handlers")
}

// Clear clears all of the handlers for the given event. This ignores
// internal handlers.
func (c *Caller) Clear(cmd string) {
	cmd = strings.ToUpper(cmd)
	c.external.cm.Remove(cmd)
	c.debug.Debugf("(%s) cleared external handlers for %s", c.parent.Config.Nick, cmd)
}

// Remove removes the handler with cuid from the handler stack. success
// indicates whether it existed and has been removed.
func (c *Caller) Remove(cuid string) (success bool) {
	c.mu.Lock()
	success = c.remove(cuid)
	c.mu.Unlock()

	return success
}

// remove is much like Remove, however is NOT concurrency safe. Lock
// Caller.mu yourself.
func (c *Caller) remove(cuid string) (ok bool) {
	cmd, uid := c.cuidToID(cuid)
	if len(cmd) == 0 || len(uid) == 0 {
		return false
	}

	var h interface{}
	h, ok = c.external.cm.Get(cmd)
	if !ok {
		return
	}

	hs := h.(cmap.ConcurrentMap)

	if _, ok = hs.Get(uid); !ok {
		return
	}

	hs.Remove(uid)
	c.debug.Debugf("removed handler %s", cuid)

	return true
}

// sregister is much like Caller.register(), except that it safely locks
// the Caller mutex.
func (c *Caller) sregister(internal, bg bool, cmd string, handler Handler) (cuid string) {
	c.mu.Lock()
	cuid = c.register(internal, bg, cmd, handler)
	c.mu.Unlock()
	return cuid
}

// register registers a handler in the internal tracker. Unsafe -- you
// must lock c.mu yourself.
func (c *Caller) register(internal, bg bool, cmd string, handler Handler) (cuid string) {
	var uid string

	cmd = strings.ToUpper(cmd)

	cuid, uid = c.cuid(cmd, 20)
	if bg {
		uid += ":bg"
		cuid += ":bg"
	}

	var parent *nestedHandlers
	if internal {
		parent = c.internal
	} else {
		parent = c.external
	}

	var chandlers cmap.ConcurrentMap
	if ei, ok := parent.cm.Get(cmd); ok {
		chandlers = ei.(cmap.ConcurrentMap)
	} else {
		chandlers = cmap.New()
	}
	parent.cm.SetIfAbsent(cmd, chandlers)

	chandlers.Set(uid, handler)

	_, file, line, _ := runtime.Caller(2)
	c.debug.Debugf("reg %q => %s [int:%t bg:%t] %s:%d", uid, cmd, internal, bg, file, line)

	return cuid
}

// AddHandler registers a handler (matching the Handler interface) for
// the given event. cuid can be used to remove the handler later via
// Caller.Remove().
func (c *Caller) AddHandler(cmd string, handler Handler) (cuid string) {
	return c.sregister(false, false, cmd, handler)
}

// Add registers the handler function for the given event. cuid can be
// used to remove the handler later via Caller.Remove().
func (c *Caller) Add(cmd string, handler func(client *Client, event Event)) (cuid string) {
	return c.sregister(false, false, cmd, HandlerFunc(handler))
}

// AddBg registers the handler function for the given event and executes
// it in a goroutine. cuid can be used to remove the handler later via
// Caller.Remove().
func (c *Caller) AddBg(cmd string, handler func(client *Client, event Event)) (cuid string) {
	return c.sregister(false, true, cmd, HandlerFunc(handler))
}

// AddTmp adds a "temporary" handler, good for one-time or few-time uses.
// It supports a deadline and/or manual removal. The supplied handler
// returns a boolean; if true, the handler is removed from the stack. If
// deadline is greater than 0, the handler is removed once it elapses
// regardless of the handler's return value, ensuring cleanup even if the
// server never responds appropriately.
//
// Handlers supplied to AddTmp run in a goroutine so they don't block
// other handlers.
func (c *Caller) AddTmp(cmd string, deadline time.Duration, handler func(client *Client, event Event) bool) (cuid string, done chan struct{}) {
	done = make(chan struct{})

	cuid = c.sregister(false, true, cmd, HandlerFunc(func(client *Client, event Event) {
		if handler(client, event) {
			if ok := c.Remove(cuid); ok {
				close(done)
			}
		}
	}))

	if deadline > 0 {
		go func() {
			select {
			case <-time.After(deadline):
			case <-done:
			}

			if ok := c.Remove(cuid); ok {
				close(done)
			}
		}()
	}

	return cuid, done
}

// recoverHandlerPanic catches handler panics and re-routes them to
// Config.RecoverFunc if set.
func recoverHandlerPanic(client *Client, event *Event, id string, skip int) {
	perr := recover()
	if perr == nil {
		return
	}

	var pcs [10]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs[:])])
	frame, _ := frames.Next()

	err := &HandlerError{
		Event: *event,
		ID:    id,
		File:  frame.File,
		Line:  frame.Line,
		Func:  frame.Function,
		Panic: perr,
		Stack: debug.Stack(),
	}

	client.Config.RecoverFunc(client, err)
}

// HandlerError is the error returned when a panic is intentionally
// recovered from. It contains useful information like the handler
// identifier (if applicable), filename, line in file where the panic
// occurred, the call trace, and the original event.
type HandlerError struct {
	Event Event       // Event is the event that caused the error.
	ID    string      // ID is the CUID of the handler.
	File  string      // File is the file from where the panic originated.
	Line  int         // Line number where the panic originated.
	Func  string      // Func is the function name where the panic originated.
	Panic interface{} // Panic is the error that was passed to panic().
	Stack []byte      // Stack is the call stack.
}

// Error returns a prettified version of HandlerError, containing ID,
// file, line, and basic error string.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("panic during handler [%s] execution in %s:%d: %s", e.ID, e.File, e.Line, e.Panic)
}

// String returns the error that panic returned, as well as the entire
// call trace of where it originated.
func (e *HandlerError) String() string {
	return fmt.Sprintf("panic: %s\n\n%s", e.Panic, string(e.Stack))
}

// DefaultRecoverHandler can be used with Config.RecoverFunc as a default
// catch-all for panics. It logs the error and call trace via the
// client's debug logger.
func DefaultRecoverHandler(client *Client, err *HandlerError) {
	client.debug.Error(err.Error())
	client.debug.Error(err.String())
}
