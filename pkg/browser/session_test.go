package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/mocks"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/wait"
)

// newMockedSession builds a session whose driver and configuration are both
// strict mocks. The driver accepts the initial 5s implicit wait.
func newMockedSession(t *testing.T) (*browser.Session, *mocks.MockDriver, *mocks.MockConfig) {
	t.Helper()
	cfg := new(mocks.MockConfig)
	cfg.On("Wait").Return(config.WaitConfig{
		DefaultConditionTimeout: 5,
		DefaultPageLoadTimeout:  1,
		PollInterval:            20 * time.Millisecond,
	})

	driver := new(mocks.MockDriver)
	driver.On("SetImplicitWait", mock.Anything, 5*time.Second).Return(nil).Once()

	s, err := browser.NewSession(context.Background(), driver, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, driver, cfg
}

func implicitWaitCalls(driver *mocks.MockDriver) []time.Duration {
	var out []time.Duration
	for _, c := range driver.Calls {
		if c.Method == "SetImplicitWait" {
			out = append(out, c.Arguments.Get(1).(time.Duration))
		}
	}
	return out
}

func TestSession_RejectedImplicitWaitKeepsTrackedValue(t *testing.T) {
	s, driver, _ := newMockedSession(t)
	driver.On("SetImplicitWait", mock.Anything, 2*time.Second).Return(errors.New("invalid session id")).Once()

	err := s.SetImplicitWait(context.Background(), 2*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set implicit wait to 2s")
	assert.Equal(t, 5*time.Second, s.ImplicitWait())
	driver.AssertExpectations(t)
}

func TestWaitForTrue_DriverCallOrder(t *testing.T) {
	s, driver, _ := newMockedSession(t)
	loc := browser.CSS("#results")

	driver.On("SetImplicitWait", mock.Anything, time.Duration(0)).Return(nil).Once()
	driver.On("FindElements", mock.Anything, loc).Return(nil, errors.New("stale")).Once()
	driver.On("FindElements", mock.Anything, loc).Return([]browser.Handle{mocks.FakeHandle{}}, nil).Once()
	driver.On("SetImplicitWait", mock.Anything, 5*time.Second).Return(nil).Once()

	found := browser.WaitForTrue(context.Background(), s, wait.Predicate(func(ctx context.Context, d browser.Driver) (bool, error) {
		hs, err := d.FindElements(ctx, loc)
		return len(hs) > 0, err
	}), time.Second)

	assert.True(t, found)
	assert.Equal(t, []time.Duration{5 * time.Second, 0, 5 * time.Second}, implicitWaitCalls(driver))
	driver.AssertExpectations(t)
}

func TestWaitFor_SuspendFailureStillRestores(t *testing.T) {
	s, driver, _ := newMockedSession(t)

	driver.On("SetImplicitWait", mock.Anything, time.Duration(0)).Return(errors.New("busy")).Once()
	driver.On("SetImplicitWait", mock.Anything, 5*time.Second).Return(nil).Once()

	_, ok := browser.WaitFor(context.Background(), s, wait.Value(func(context.Context, browser.Driver) (string, error) {
		return "", nil
	}), 50*time.Millisecond)

	assert.False(t, ok)
	assert.Equal(t, 5*time.Second, s.ImplicitWait(), "a rejected suspend leaves the tracked value in place")
	driver.AssertExpectations(t)
}

func TestSession_ConditionTimeoutIsReadEachCall(t *testing.T) {
	cfg := new(mocks.MockConfig)
	cfg.On("Wait").Return(config.WaitConfig{DefaultConditionTimeout: 3, PollInterval: time.Second}).Once()
	cfg.On("Wait").Return(config.WaitConfig{DefaultConditionTimeout: 7, PollInterval: time.Second}).Once()

	driver := new(mocks.MockDriver)
	driver.On("SetImplicitWait", mock.Anything, 3*time.Second).Return(nil).Once()

	s, err := browser.NewSession(context.Background(), driver, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, s.ConditionTimeout())
	cfg.AssertExpectations(t)
}

func TestSession_OpenStartPage(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s, _, cfg := newMockedSession(t)
		cfg.On("Browser").Return(config.BrowserConfig{})

		err := s.OpenStartPage(context.Background())
		assert.ErrorContains(t, err, "browser.start_url is not configured")
	})

	t.Run("navigates and waits for the document", func(t *testing.T) {
		s, driver, cfg := newMockedSession(t)
		cfg.On("Browser").Return(config.BrowserConfig{StartURL: "https://store.example.test/"})
		driver.On("Navigate", mock.Anything, "https://store.example.test/").Return(nil).Once()
		driver.On("SetImplicitWait", mock.Anything, mock.Anything).Return(nil)
		driver.On("ExecuteScript", mock.Anything, mock.Anything).Return(false, nil).Once()
		driver.On("ExecuteScript", mock.Anything, mock.Anything).Return(true, nil).Once()

		require.NoError(t, s.OpenStartPage(context.Background()))
		driver.AssertExpectations(t)
	})

	t.Run("navigation failure", func(t *testing.T) {
		s, driver, cfg := newMockedSession(t)
		cfg.On("Browser").Return(config.BrowserConfig{StartURL: "https://down.example.test/"})
		driver.On("Navigate", mock.Anything, "https://down.example.test/").Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))

		err := s.OpenStartPage(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to navigate to https://down.example.test/")
		driver.AssertNotCalled(t, "ExecuteScript", mock.Anything, mock.Anything)
	})
}

func TestSession_WrapsDriverErrors(t *testing.T) {
	s, driver, _ := newMockedSession(t)
	driver.On("Screenshot", mock.Anything).Return(nil, errors.New("no target"))
	driver.On("Refresh", mock.Anything).Return(errors.New("detached"))
	driver.On("Close", mock.Anything).Return(browser.ErrClosed)

	_, err := s.Screenshot(context.Background())
	assert.ErrorContains(t, err, "failed to capture screenshot")
	assert.ErrorContains(t, s.Refresh(context.Background()), "failed to refresh page")
	assert.ErrorIs(t, s.Close(context.Background()), browser.ErrClosed)
}
