// internal/stream/broadcaster_test.go
package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/mocks"
	"github.com/xkilldash9x/goalpilot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		FramesPerSecond:  50, // fast sampling keeps the tests short
		JPEGQuality:      60,
		SubscriberBuffer: 4,
	}
}

func newStreamSession(t *testing.T, handle *mocks.MockBrowserHandle) *session.Session {
	t.Helper()

	handle.On("Close", mock.Anything).Return(nil).Maybe()

	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(handle, nil)

	cfg := config.NewDefaultConfig()
	mgr := session.NewManager(cfg, launcher, zap.NewNop())
	sess, err := mgr.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)
	return sess
}

func TestSubscribeReceivesOrderedFrames(t *testing.T) {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Screenshot", mock.Anything).Return([]byte{0xff, 0xd8, 0xff}, nil)
	sess := newStreamSession(t, handle)

	b := NewBroadcaster(testStreamConfig(), zap.NewNop())
	sub, err := b.Subscribe(context.Background(), sess)
	require.NoError(t, err)
	defer b.Unsubscribe(sess, sub)

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case frame := <-sub.C:
			assert.Greater(t, frame.Seq, last)
			assert.NotEmpty(t, frame.Data)
			last = frame.Seq
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
}

func TestUnsubscribeStopsSampler(t *testing.T) {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Screenshot", mock.Anything).Return([]byte{0x01}, nil)
	sess := newStreamSession(t, handle)

	b := NewBroadcaster(testStreamConfig(), zap.NewNop())
	sub, err := b.Subscribe(context.Background(), sess)
	require.NoError(t, err)

	b.Unsubscribe(sess, sub)

	// Channel closes when the subscription ends.
	for {
		if _, ok := <-sub.C; !ok {
			break
		}
	}
}

func TestResubscribeStartsFreshSequence(t *testing.T) {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Screenshot", mock.Anything).Return([]byte{0x01}, nil)
	sess := newStreamSession(t, handle)

	b := NewBroadcaster(testStreamConfig(), zap.NewNop())

	sub1, err := b.Subscribe(context.Background(), sess)
	require.NoError(t, err)
	frame := <-sub1.C
	require.GreaterOrEqual(t, frame.Seq, uint64(1))
	b.Unsubscribe(sess, sub1)

	sub2, err := b.Subscribe(context.Background(), sess)
	require.NoError(t, err)
	defer b.Unsubscribe(sess, sub2)

	select {
	case frame2 := <-sub2.C:
		assert.Equal(t, uint64(1), frame2.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame after resubscribe")
	}
}

func TestFeedTerminatesWhenHandleDies(t *testing.T) {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Screenshot", mock.Anything).Return(nil, schemas.ErrSessionDead)
	handle.On("IsAlive", mock.Anything).Return(false)
	sess := newStreamSession(t, handle)

	b := NewBroadcaster(testStreamConfig(), zap.NewNop())
	sub, err := b.Subscribe(context.Background(), sess)
	require.NoError(t, err)

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "expected the channel to close, got a frame")
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not terminate")
	}
}

func TestSubscribeClosedSessionFails(t *testing.T) {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Close", mock.Anything).Return(nil).Maybe()

	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(handle, nil)

	cfg := config.NewDefaultConfig()
	mgr := session.NewManager(cfg, launcher, zap.NewNop())
	sess, err := mgr.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, mgr.Close(context.Background(), sess.ID, false))

	b := NewBroadcaster(testStreamConfig(), zap.NewNop())
	_, err = b.Subscribe(context.Background(), sess)
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
}

func TestSlowSubscriberDoesNotStallCapture(t *testing.T) {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Screenshot", mock.Anything).Return([]byte{0x01}, nil)
	sess := newStreamSession(t, handle)

	b := NewBroadcaster(testStreamConfig(), zap.NewNop())
	sub, err := b.Subscribe(context.Background(), sess)
	require.NoError(t, err)
	defer b.Unsubscribe(sess, sub)

	// Never read; the sampler must keep running and overwrite old frames.
	time.Sleep(300 * time.Millisecond)

	frame := <-sub.C
	// With a buffer of 4 and ~15 captured frames, the oldest were dropped.
	assert.Greater(t, frame.Seq, uint64(1))
}
