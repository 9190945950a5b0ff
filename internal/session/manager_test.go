// internal/session/manager_test.go
package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/mocks"
)

func newTestManager(t *testing.T, concurrency int, launcher Launcher) *Manager {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Browser.Concurrency = concurrency
	return NewManager(cfg, launcher, zap.NewNop())
}

func newAliveHandle() *mocks.MockBrowserHandle {
	handle := new(mocks.MockBrowserHandle)
	handle.On("Close", mock.Anything).Return(nil).Maybe()
	return handle
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)

	m := newTestManager(t, 4, launcher)

	a, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)
	b, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, schemas.SessionActive, a.Status())
	assert.Equal(t, schemas.SessionActive, b.Status())
}

func TestCreateResourceExhausted(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)

	m := newTestManager(t, 1, launcher)

	_, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)

	_, err = m.Create(context.Background(), schemas.SessionOptions{})
	assert.ErrorIs(t, err, schemas.ErrResourceExhausted)
}

func TestCloseReleasesCapacity(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)

	m := newTestManager(t, 1, launcher)

	s, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background(), s.ID, false))
	assert.Equal(t, schemas.SessionClosed, s.Status())

	// The slot freed by Close admits a new session.
	_, err = m.Create(context.Background(), schemas.SessionOptions{})
	assert.NoError(t, err)
}

func TestCreateLaunchFailure(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(nil, errors.New("chrome exploded"))

	m := newTestManager(t, 1, launcher)

	_, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.Error(t, err)

	// The failed launch released its slot.
	launcher.ExpectedCalls = nil
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)
	_, err = m.Create(context.Background(), schemas.SessionOptions{})
	assert.NoError(t, err)
}

func TestGetUnknownID(t *testing.T) {
	m := newTestManager(t, 1, new(mocks.MockLauncher))
	_, err := m.Get("no-such-session")
	assert.ErrorIs(t, err, schemas.ErrNotFound)
}

func TestCloseIsIdempotent(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	handle := newAliveHandle()
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(handle, nil)

	m := newTestManager(t, 1, launcher)
	s, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background(), s.ID, false))
	require.NoError(t, m.Close(context.Background(), s.ID, false))
	handle.AssertNumberOfCalls(t, "Close", 1)
}

func TestBeginRunExclusivity(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)

	m := newTestManager(t, 1, launcher)
	s, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)

	_, release, err := s.BeginRun(context.Background())
	require.NoError(t, err)

	_, _, err = s.BeginRun(context.Background())
	assert.ErrorIs(t, err, schemas.ErrSessionBusy)

	release()

	// The lock is free again after release.
	_, release2, err := s.BeginRun(context.Background())
	require.NoError(t, err)
	release2()
}

func TestBeginRunOnClosedSession(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)

	m := newTestManager(t, 1, launcher)
	s, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background(), s.ID, false))

	_, _, err = s.BeginRun(context.Background())
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
}

func TestCloseCancelsInFlightRun(t *testing.T) {
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything, mock.AnythingOfType("string")).Return(newAliveHandle(), nil)

	m := newTestManager(t, 1, launcher)
	s, err := m.Create(context.Background(), schemas.SessionOptions{})
	require.NoError(t, err)

	runCtx, release, err := s.BeginRun(context.Background())
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- m.Close(context.Background(), s.ID, false) }()

	// Close cancels the run context, then waits for the lock.
	<-runCtx.Done()
	release()

	require.NoError(t, <-closed)
	assert.Equal(t, schemas.SessionClosed, s.Status())
}
