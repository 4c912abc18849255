package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrForeignHandle is returned when a Handle produced by one backend is
	// passed to another.
	ErrForeignHandle = errors.New("element handle belongs to a different driver")
	// ErrNoWindow is returned when a window switch has no suitable target.
	ErrNoWindow = errors.New("no window to switch to")
	// ErrClosed is returned by drivers after Close.
	ErrClosed = errors.New("driver is closed")
	// ErrNoOption is returned by SelectOption when no <option> matches.
	ErrNoOption = errors.New("no matching option")
)

// OptionBy is how SelectOption matches an <option> of a <select>.
type OptionBy int

const (
	// OptionByText matches the visible text, ignoring surrounding whitespace.
	OptionByText OptionBy = iota
	OptionByValue
	OptionByIndex
)

// OptionQuery identifies one option. Index is used with OptionByIndex, Key
// otherwise.
type OptionQuery struct {
	By    OptionBy
	Key   string
	Index int
}

func (q OptionQuery) String() string {
	switch q.By {
	case OptionByValue:
		return fmt.Sprintf("value %q", q.Key)
	case OptionByIndex:
		return fmt.Sprintf("index %d", q.Index)
	default:
		return fmt.Sprintf("text %q", q.Key)
	}
}

// Handle is an opaque reference to an element found by a Driver. Handles are
// only meaningful to the driver that produced them and go stale once the
// element leaves the DOM.
type Handle interface {
	// Backend names the driver implementation that owns the handle.
	Backend() string
}

// Driver is the browser automation surface the framework relies on. Two
// implementations exist: the chromedp backend in package cdp and the remote
// WebDriver backend in package remote.
//
// FindElements honours the implicit wait last set through SetImplicitWait:
// with a positive value it may block up to that long for a first match, with
// zero it answers immediately. An empty result is not an error.
type Driver interface {
	FindElements(ctx context.Context, loc Locator) ([]Handle, error)
	IsDisplayed(ctx context.Context, h Handle) (bool, error)
	IsEnabled(ctx context.Context, h Handle) (bool, error)
	IsSelected(ctx context.Context, h Handle) (bool, error)
	Click(ctx context.Context, h Handle) error
	Text(ctx context.Context, h Handle) (string, error)
	Attribute(ctx context.Context, h Handle, name string) (string, error)
	Clear(ctx context.Context, h Handle) error
	SendKeys(ctx context.Context, h Handle, text string) error
	// SelectOption selects an option of a <select> element and fires its
	// change event.
	SelectOption(ctx context.Context, h Handle, q OptionQuery) error

	SetImplicitWait(ctx context.Context, d time.Duration) error

	WindowHandles(ctx context.Context) ([]string, error)
	CurrentWindow(ctx context.Context) (string, error)
	SwitchWindow(ctx context.Context, handle string) error

	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	// ExecuteScript evaluates a JavaScript expression in the current page and
	// returns its JSON-decoded value.
	ExecuteScript(ctx context.Context, expression string) (any, error)
	Screenshot(ctx context.Context) ([]byte, error)

	Close(ctx context.Context) error
}
