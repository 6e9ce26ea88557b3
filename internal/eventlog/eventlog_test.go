package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/psu-controller/db"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/mqtt"
)

type notifyRecorder struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *notifyRecorder) notify(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *notifyRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestLog(t *testing.T) (*Log, *mqtt.FakePublisher, *notifyRecorder) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	pub := mqtt.NewFakePublisher()
	n := &notifyRecorder{}
	l := New(conn, pub, n.notify)
	require.NoError(t, l.Init())
	return l, pub, n
}

func TestFlushPersistsPublishesAndNotifies(t *testing.T) {
	l, pub, n := newTestLog(t)

	l.Push(model.EventInfoPowerUp)
	l.Push(model.EventWarningSelfTestFailed)
	l.Flush()

	events, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	published := pub.Events()
	require.Len(t, published, 2)
	assert.Equal(t, model.EventInfoPowerUp, published[0].Kind)
	assert.Equal(t, model.EventWarningSelfTestFailed, published[1].Kind)
	assert.NotEqual(t, published[0].ID, published[1].ID)

	assert.Equal(t, []string{"warning_self_test_failed"}, n.messages, "only warnings notify")
}

func TestPublishFailureStillPersists(t *testing.T) {
	l, pub, n := newTestLog(t)
	pub.PublishError = errors.New("broker down")
	n.err = errors.New("ntfy down")

	l.Push(model.EventWarningProtectionTripped)
	l.Flush()

	events, err := l.Recent(10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestTickHandsOffToWriter(t *testing.T) {
	l, pub, _ := newTestLog(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	l.Push(model.EventInfoPowerDown)
	l.Tick(0)

	require.Eventually(t, func() bool { return len(pub.Events()) == 1 }, time.Second, 5*time.Millisecond)

	l.Push(model.EventInfoPowerUp)
	cancel()
	<-done

	events, err := l.Recent(10)
	require.NoError(t, err)
	assert.Len(t, events, 2, "pending events are flushed on shutdown")
}

func TestTickWithoutWriterKeepsPending(t *testing.T) {
	l, _, _ := newTestLog(t)

	for i := 0; i < cap(l.out)+3; i++ {
		l.Push(model.EventInfoPowerUp)
		l.Tick(uint64(i))
	}

	l.mu.Lock()
	pending := len(l.pending)
	l.mu.Unlock()
	assert.Equal(t, 3, pending)
}

func TestPushDropsOldestWhenFull(t *testing.T) {
	l, _, _ := newTestLog(t)

	for i := 0; i < maxPending+5; i++ {
		l.Push(model.EventInfoPowerUp)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.pending, maxPending)
	assert.Equal(t, 5, l.dropped)
}
