// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/mail"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Wait() config.WaitConfig {
	args := m.Called()
	return args.Get(0).(config.WaitConfig)
}

func (m *MockConfig) Traffic() config.TrafficConfig {
	args := m.Called()
	return args.Get(0).(config.TrafficConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Mail() config.MailConfig {
	args := m.Called()
	return args.Get(0).(config.MailConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserDriver(d string) {
	m.Called(d)
}

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetBrowserStartURL(u string) {
	m.Called(u)
}

func (m *MockConfig) SetWaitDefaultConditionTimeout(seconds int) {
	m.Called(seconds)
}

func (m *MockConfig) SetWaitTroubleshooting(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetTrafficEnabled(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetTrafficLoadTimeLimit(d time.Duration) {
	m.Called(d)
}

// -- Mailbox Mock --

// MockMailbox mocks mail.Mailbox and mail.Deleter.
type MockMailbox struct {
	mock.Mock
}

var (
	_ mail.Mailbox = (*MockMailbox)(nil)
	_ mail.Deleter = (*MockMailbox)(nil)
)

func (m *MockMailbox) Messages(ctx context.Context, folder string) ([]mail.Message, error) {
	args := m.Called(ctx, folder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mail.Message), args.Error(1)
}

func (m *MockMailbox) Delete(ctx context.Context, folder, id string) error {
	return m.Called(ctx, folder, id).Error(0)
}

// -- Driver Mock --

// MockDriver mocks browser.Driver for tests that care about exact calls rather
// than page behaviour. FakeDriver covers the latter.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) handles(args mock.Arguments) []browser.Handle {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]browser.Handle)
}

func (m *MockDriver) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Handle, error) {
	args := m.Called(ctx, loc)
	return m.handles(args), args.Error(1)
}

func (m *MockDriver) IsDisplayed(ctx context.Context, h browser.Handle) (bool, error) {
	args := m.Called(ctx, h)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) IsEnabled(ctx context.Context, h browser.Handle) (bool, error) {
	args := m.Called(ctx, h)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) IsSelected(ctx context.Context, h browser.Handle) (bool, error) {
	args := m.Called(ctx, h)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, h browser.Handle) error {
	return m.Called(ctx, h).Error(0)
}

func (m *MockDriver) Text(ctx context.Context, h browser.Handle) (string, error) {
	args := m.Called(ctx, h)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Attribute(ctx context.Context, h browser.Handle, name string) (string, error) {
	args := m.Called(ctx, h, name)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Clear(ctx context.Context, h browser.Handle) error {
	return m.Called(ctx, h).Error(0)
}

func (m *MockDriver) SendKeys(ctx context.Context, h browser.Handle, text string) error {
	return m.Called(ctx, h, text).Error(0)
}

func (m *MockDriver) SelectOption(ctx context.Context, h browser.Handle, q browser.OptionQuery) error {
	return m.Called(ctx, h, q).Error(0)
}

func (m *MockDriver) SetImplicitWait(ctx context.Context, d time.Duration) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockDriver) WindowHandles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDriver) CurrentWindow(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) SwitchWindow(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) ExecuteScript(ctx context.Context, expression string) (any, error) {
	args := m.Called(ctx, expression)
	return args.Get(0), args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
