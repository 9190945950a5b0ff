// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/goalpilot/api/schemas"
)

// -- Browser Handle Mock --

// MockBrowserHandle mocks schemas.BrowserHandle for testing the executor,
// loop and stream layers without a real browser.
type MockBrowserHandle struct {
	mock.Mock
}

func (m *MockBrowserHandle) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBrowserHandle) Click(ctx context.Context, target schemas.Locator) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *MockBrowserHandle) Type(ctx context.Context, target schemas.Locator, text string) error {
	args := m.Called(ctx, target, text)
	return args.Error(0)
}

func (m *MockBrowserHandle) Scroll(ctx context.Context, target *schemas.Locator, dx, dy int) error {
	args := m.Called(ctx, target, dx, dy)
	return args.Error(0)
}

func (m *MockBrowserHandle) Hover(ctx context.Context, target schemas.Locator) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *MockBrowserHandle) PressKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBrowserHandle) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBrowserHandle) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserHandle) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserHandle) IsAlive(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockBrowserHandle) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Oracle Mock --

// MockOracle mocks the schemas.Oracle reasoning boundary.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Complete(ctx context.Context, req schemas.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Launcher Mock --

// MockLauncher mocks session.Launcher so session lifecycle tests run
// without spawning Chrome.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, sessionID string) (schemas.BrowserHandle, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.BrowserHandle), args.Error(1)
}
