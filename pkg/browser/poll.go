package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/pkg/wait"
)

// pageReadyScript reports whether the document finished loading; documents
// without readyState count as loaded.
const pageReadyScript = `document['readyState'] ? 'complete' == document.readyState : true`

// PageSourceScript evaluates to the serialized document.
const PageSourceScript = `document.documentElement.outerHTML`

// WaitFor polls cond against the session's driver for up to timeout.
//
// The implicit wait is dropped to zero for the duration of the poll so that
// each evaluation is a single quick probe, and restored to its prior value on
// every exit path, including a panic escaping the poll.
func WaitFor[T any](ctx context.Context, s *Session, cond wait.Condition[Driver, T], timeout time.Duration) (T, bool) {
	defer suspendImplicitWait(ctx, s)()
	return wait.For(ctx, s.driver, cond, s.pollOptions(timeout))
}

// WaitForTrue is the boolean form of WaitFor. It never panics.
func WaitForTrue[T any](ctx context.Context, s *Session, cond wait.Condition[Driver, T], timeout time.Duration) bool {
	defer suspendImplicitWait(ctx, s)()
	return wait.ForTrue(ctx, s.driver, cond, s.pollOptions(timeout))
}

func (s *Session) pollOptions(timeout time.Duration) wait.Options {
	return wait.Options{
		Timeout:  timeout,
		Interval: s.PollInterval(),
		Logger:   s.logger,
	}
}

// suspendImplicitWait zeroes the implicit wait and returns the function that
// puts the previous value back.
func suspendImplicitWait(ctx context.Context, s *Session) func() {
	prior := s.ImplicitWait()
	if err := s.SetImplicitWait(ctx, 0); err != nil {
		s.logger.Debug("Could not suspend implicit wait.", zap.Error(err))
	}
	return func() {
		// Restore even when the caller's context is already done.
		if err := s.SetImplicitWait(context.WithoutCancel(ctx), prior); err != nil {
			s.logger.Warn("Could not restore implicit wait.", zap.Duration("implicit_wait", prior), zap.Error(err))
		}
	}
}

// WindowCount returns the number of open windows, or 0 when the driver cannot
// tell.
func WindowCount(ctx context.Context, s *Session) int {
	handles, err := s.driver.WindowHandles(ctx)
	if err != nil {
		s.logger.Debug("Could not list windows.", zap.Error(err))
		return 0
	}
	return len(handles)
}

// WaitForNewWindow waits until more than baseline windows are open.
func WaitForNewWindow(ctx context.Context, s *Session, baseline int, timeout time.Duration) bool {
	cond := wait.Predicate(func(ctx context.Context, d Driver) (bool, error) {
		handles, err := d.WindowHandles(ctx)
		if err != nil {
			return false, err
		}
		return len(handles) > baseline, nil
	})
	return WaitForTrue(ctx, s, cond, timeout)
}

// WaitForPageToLoad waits up to the page load timeout for the document to be
// complete. A page that never finishes loading is logged, not failed.
func WaitForPageToLoad(ctx context.Context, s *Session) bool {
	s.logger.Info("Waiting for page to load.")
	cond := wait.Predicate(func(ctx context.Context, d Driver) (bool, error) {
		v, err := d.ExecuteScript(ctx, pageReadyScript)
		if err != nil {
			return false, err
		}
		ready, ok := v.(bool)
		return ok && ready, nil
	})
	if !WaitForTrue(ctx, s, cond, s.PageLoadTimeout()) {
		s.logger.Warn("Page did not finish loading within the timeout.", zap.Duration("timeout", s.PageLoadTimeout()))
		return false
	}
	return true
}
