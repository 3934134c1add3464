package munin

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recordingWriter) write(e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingWriter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingWriter) snapshot() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

func waitForCount(t *testing.T, rec *recordingWriter, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if rec.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, rec.count(), n, "timed out waiting for %d writes", n)
}

func TestFloodControlBurstThenRefill(t *testing.T) {
	rec := &recordingWriter{}
	fc := newFloodControl(2, 1, 60*time.Millisecond, rec.write)
	go fc.run()
	defer fc.stop()

	for i := 0; i < 4; i++ {
		go func(i int) {
			_ = fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: string(rune('a' + i))})
		}(i)
	}

	// The burst allowance lets 2 writes through near-instantly; the
	// remaining 2 trickle in as the ticker refills one token at a time.
	waitForCount(t, rec, 2, 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, rec.count(), "only the burst allowance should have written before any refill")

	waitForCount(t, rec, 4, 500*time.Millisecond)
}

func TestFloodControlFIFOOrder(t *testing.T) {
	rec := &recordingWriter{}
	fc := newFloodControl(1, 1, 5*time.Millisecond, rec.write)
	go fc.run()
	defer fc.stop()

	for i := 0; i < 5; i++ {
		fc.queueSend(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: string(rune('a' + i))})
	}

	waitForCount(t, rec, 5, 200*time.Millisecond)
	events := rec.snapshot()
	for i, e := range events {
		assert.Equal(t, string(rune('a'+i)), e.Trailing, "writes must be delivered strictly in FIFO order")
	}
}

func TestFloodControlDisabledBypassesQueue(t *testing.T) {
	rec := &recordingWriter{}
	fc := newFloodControl(1, 1, time.Hour, rec.write)
	fc.setEnabled(false)

	err := fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "immediate"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(), "a disabled protector should write through without waiting on tokens")
}

func TestFloodControlResetCancelsPending(t *testing.T) {
	rec := &recordingWriter{}
	// maxTokens=1 with a refill interval far longer than the test: the
	// first send spends the only token immediately, leaving the second
	// stuck in the queue for reset() to cancel.
	fc := newFloodControl(1, 1, time.Hour, rec.write)
	go fc.run()
	defer fc.stop()

	firstErrCh := make(chan error, 1)
	go func() { firstErrCh <- fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "first"}) }()
	require.NoError(t, <-firstErrCh)

	stuckErrCh := make(chan error, 1)
	go func() {
		stuckErrCh <- fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "stuck"})
	}()

	time.Sleep(10 * time.Millisecond)
	fc.reset()

	select {
	case err := <-stuckErrCh:
		assert.Equal(t, ErrNotConnected, err)
	case <-time.After(time.Second):
		t.Fatal("reset did not cancel the pending send")
	}
	assert.Equal(t, 1, rec.count(), "only the first send should have reached the writer")
}

func TestFloodControlStopDrainsWithError(t *testing.T) {
	rec := &recordingWriter{}
	fc := newFloodControl(1, 1, time.Hour, rec.write)
	go fc.run()

	firstErrCh := make(chan error, 1)
	go func() { firstErrCh <- fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "first"}) }()
	require.NoError(t, <-firstErrCh)

	stuckErrCh := make(chan error, 1)
	go func() {
		stuckErrCh <- fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "stuck"})
	}()

	time.Sleep(10 * time.Millisecond)
	fc.stop()

	select {
	case err := <-stuckErrCh:
		assert.Equal(t, ErrNotConnected, err)
	case <-time.After(time.Second):
		t.Fatal("stop did not drain the pending send")
	}
}

func TestFloodControlSendAsyncAfterStop(t *testing.T) {
	rec := &recordingWriter{}
	fc := newFloodControl(1, 1, time.Hour, rec.write)
	go fc.run()
	fc.stop()

	err := fc.sendAsync(&Event{Command: PRIVMSG, Params: []string{"#chan"}, Trailing: "too late"})
	assert.Equal(t, ErrNotConnected, err)
}
