package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SelectNewWindow waits for a window beyond those currently open and switches
// to the newest one.
func SelectNewWindow(ctx context.Context, s *Session) error {
	baseline := WindowCount(ctx, s)
	if !WaitForNewWindow(ctx, s, baseline, s.ConditionTimeout()) {
		return fmt.Errorf("%w: no new window appeared after %d", ErrNoWindow, baseline)
	}
	return SelectLastWindow(ctx, s)
}

// SelectLastWindow switches to the most recently opened window.
func SelectLastWindow(ctx context.Context, s *Session) error {
	return selectWindowAt(ctx, s, func(n int) int { return n - 1 })
}

// SelectFirstWindow switches to the oldest window.
func SelectFirstWindow(ctx context.Context, s *Session) error {
	return selectWindowAt(ctx, s, func(int) int { return 0 })
}

// SelectPreviousWindow switches to the window opened just before the current
// one, or to the second newest when the current window is the oldest.
func SelectPreviousWindow(ctx context.Context, s *Session) error {
	handles, err := s.driver.WindowHandles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if len(handles) < 2 {
		return fmt.Errorf("%w: only %d window(s) open", ErrNoWindow, len(handles))
	}
	current, err := s.driver.CurrentWindow(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current window: %w", err)
	}

	target := handles[len(handles)-2]
	for i := 1; i < len(handles); i++ {
		if handles[i] == current {
			target = handles[i-1]
			break
		}
	}
	return switchTo(ctx, s, target)
}

func selectWindowAt(ctx context.Context, s *Session, index func(n int) int) error {
	handles, err := s.driver.WindowHandles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if len(handles) == 0 {
		return ErrNoWindow
	}
	return switchTo(ctx, s, handles[index(len(handles))])
}

func switchTo(ctx context.Context, s *Session, handle string) error {
	if err := s.driver.SwitchWindow(ctx, handle); err != nil {
		return fmt.Errorf("failed to switch to window %s: %w", handle, err)
	}
	s.logger.Debug("Switched window.", zap.String("window", handle))
	return nil
}
