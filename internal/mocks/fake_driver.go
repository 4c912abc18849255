// File: internal/mocks/fake_driver.go
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
)

// FakeElement is one scripted element on a FakeDriver page. Its presence in
// the DOM is bounded by AppearAt and GoneAt; zero values mean "from the start"
// and "forever".
type FakeElement struct {
	ID        string
	Displayed bool
	Enabled   bool
	Selected  bool
	Text      string
	Attrs     map[string]string
	AppearAt  time.Time
	GoneAt    time.Time
	// Options makes the element a <select>. The first option starts selected.
	Options []FakeOption
	// OnClick runs after the click has been recorded.
	OnClick func()

	clicks int
	typed  string
	chosen int
}

// FakeOption is one <option> of a FakeElement.
type FakeOption struct {
	Text  string
	Value string
}

func (e *FakeElement) attached(now time.Time) bool {
	if !e.AppearAt.IsZero() && now.Before(e.AppearAt) {
		return false
	}
	if !e.GoneAt.IsZero() && !now.Before(e.GoneAt) {
		return false
	}
	return true
}

// FakeHandle references a FakeElement.
type FakeHandle struct {
	el *FakeElement
}

func (FakeHandle) Backend() string { return "fake" }

type fakeWindow struct {
	handle string
	openAt time.Time
}

// FakeDriver is an in-memory browser.Driver driven by a wall-clock script.
// It emulates implicit waits by blocking in FindElements, which makes a missed
// implicit-wait suspension show up as extra latency in tests.
type FakeDriver struct {
	mu sync.Mutex

	elements      map[string][]*FakeElement
	windows       []fakeWindow
	current       string
	url           string
	readyState    any
	pageSource    string
	screenshot    []byte
	implicitWait  time.Duration
	implicitCalls []time.Duration
	findCalls     int
	closed        bool

	// FindHook, when set, runs at the start of every FindElements call. It
	// may panic or return an error to simulate a misbehaving browser.
	FindHook func(loc browser.Locator) error
	// ImplicitWaitErr is returned by SetImplicitWait when set.
	ImplicitWaitErr error
	// ScriptErr is returned by ExecuteScript when set.
	ScriptErr error
}

var _ browser.Driver = (*FakeDriver)(nil)

// NewFakeDriver returns a driver with one open window and a loaded page.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		elements:   make(map[string][]*FakeElement),
		windows:    []fakeWindow{{handle: "window-0"}},
		current:    "window-0",
		url:        "about:blank",
		readyState: true,
		pageSource: "<html><head></head><body></body></html>",
		screenshot: []byte("\x89PNG fake"),
	}
}

// AddElement places el on the page under loc.
func (f *FakeDriver) AddElement(loc browser.Locator, el *FakeElement) *FakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el.Attrs == nil {
		el.Attrs = make(map[string]string)
	}
	f.elements[loc.String()] = append(f.elements[loc.String()], el)
	return el
}

// OpenWindowAt schedules a new window to be open from at onwards.
func (f *FakeDriver) OpenWindowAt(handle string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, fakeWindow{handle: handle, openAt: at})
}

// SetReadyState sets the value returned by the page-ready script.
func (f *FakeDriver) SetReadyState(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyState = v
}

// SetPageSource sets the markup returned for the page source script.
func (f *FakeDriver) SetPageSource(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSource = html
}

// ImplicitWaits returns every value passed to SetImplicitWait, in order.
func (f *FakeDriver) ImplicitWaits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.implicitCalls...)
}

// CurrentImplicitWait returns the implicit wait currently in force.
func (f *FakeDriver) CurrentImplicitWait() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.implicitWait
}

// FindCalls counts FindElements invocations.
func (f *FakeDriver) FindCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

// Clicks returns how often el was clicked.
func (f *FakeDriver) Clicks(el *FakeElement) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return el.clicks
}

// Typed returns the text typed into el since its last Clear.
func (f *FakeDriver) Typed(el *FakeElement) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return el.typed
}

// Closed reports whether Close was called.
func (f *FakeDriver) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// URL returns the last navigated URL.
func (f *FakeDriver) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *FakeDriver) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Handle, error) {
	f.mu.Lock()
	f.findCalls++
	hook := f.FindHook
	deadline := time.Now().Add(f.implicitWait)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(loc); err != nil {
			return nil, err
		}
	}

	for {
		if handles := f.attached(loc); len(handles) > 0 || !time.Now().Before(deadline) {
			return handles, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (f *FakeDriver) attached(loc browser.Locator) []browser.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var handles []browser.Handle
	for _, el := range f.elements[loc.String()] {
		if el.attached(now) {
			handles = append(handles, FakeHandle{el: el})
		}
	}
	return handles
}

func (f *FakeDriver) element(h browser.Handle) (*FakeElement, error) {
	fh, ok := h.(FakeHandle)
	if !ok {
		return nil, browser.ErrForeignHandle
	}
	if !fh.el.attached(time.Now()) {
		return nil, fmt.Errorf("stale element reference: %s", fh.el.ID)
	}
	return fh.el, nil
}

func (f *FakeDriver) IsDisplayed(ctx context.Context, h browser.Handle) (bool, error) {
	el, err := f.element(h)
	if err != nil {
		return false, err
	}
	return el.Displayed, nil
}

func (f *FakeDriver) IsEnabled(ctx context.Context, h browser.Handle) (bool, error) {
	el, err := f.element(h)
	if err != nil {
		return false, err
	}
	return el.Enabled, nil
}

func (f *FakeDriver) IsSelected(ctx context.Context, h browser.Handle) (bool, error) {
	el, err := f.element(h)
	if err != nil {
		return false, err
	}
	return el.Selected, nil
}

func (f *FakeDriver) Click(ctx context.Context, h browser.Handle) error {
	el, err := f.element(h)
	if err != nil {
		return err
	}
	f.mu.Lock()
	el.clicks++
	onClick := el.OnClick
	f.mu.Unlock()
	if onClick != nil {
		onClick()
	}
	return nil
}

func (f *FakeDriver) Text(ctx context.Context, h browser.Handle) (string, error) {
	el, err := f.element(h)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (f *FakeDriver) Attribute(ctx context.Context, h browser.Handle, name string) (string, error) {
	el, err := f.element(h)
	if err != nil {
		return "", err
	}
	if name == "value" {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(el.Options) > 0 {
			return el.Options[el.chosen].Value, nil
		}
		if el.typed != "" {
			return el.typed, nil
		}
	}
	return el.Attrs[name], nil
}

func (f *FakeDriver) SelectOption(ctx context.Context, h browser.Handle, q browser.OptionQuery) error {
	el, err := f.element(h)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, opt := range el.Options {
		if (q.By == browser.OptionByIndex && i == q.Index) ||
			(q.By == browser.OptionByValue && opt.Value == q.Key) ||
			(q.By == browser.OptionByText && opt.Text == q.Key) {
			el.chosen = i
			return nil
		}
	}
	return fmt.Errorf("%w: %s", browser.ErrNoOption, q)
}

// Chosen returns the option currently selected in el.
func (f *FakeDriver) Chosen(el *FakeElement) FakeOption {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(el.Options) == 0 {
		return FakeOption{}
	}
	return el.Options[el.chosen]
}

func (f *FakeDriver) Clear(ctx context.Context, h browser.Handle) error {
	el, err := f.element(h)
	if err != nil {
		return err
	}
	f.mu.Lock()
	el.typed = ""
	f.mu.Unlock()
	return nil
}

func (f *FakeDriver) SendKeys(ctx context.Context, h browser.Handle, text string) error {
	el, err := f.element(h)
	if err != nil {
		return err
	}
	f.mu.Lock()
	el.typed += text
	f.mu.Unlock()
	return nil
}

func (f *FakeDriver) SetImplicitWait(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ImplicitWaitErr != nil {
		return f.ImplicitWaitErr
	}
	f.implicitWait = d
	f.implicitCalls = append(f.implicitCalls, d)
	return nil
}

func (f *FakeDriver) openWindows() []string {
	now := time.Now()
	var handles []string
	for _, w := range f.windows {
		if !now.Before(w.openAt) {
			handles = append(handles, w.handle)
		}
	}
	return handles
}

func (f *FakeDriver) WindowHandles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openWindows(), nil
}

func (f *FakeDriver) CurrentWindow(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *FakeDriver) SwitchWindow(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.openWindows() {
		if h == handle {
			f.current = handle
			return nil
		}
	}
	return fmt.Errorf("no such window: %s", handle)
}

func (f *FakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	return nil
}

func (f *FakeDriver) Refresh(ctx context.Context) error { return nil }

func (f *FakeDriver) CurrentURL(ctx context.Context) (string, error) {
	return f.URL(), nil
}

func (f *FakeDriver) ExecuteScript(ctx context.Context, expression string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScriptErr != nil {
		return nil, f.ScriptErr
	}
	if expression == browser.PageSourceScript {
		return f.pageSource, nil
	}
	return f.readyState, nil
}

func (f *FakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screenshot, nil
}

func (f *FakeDriver) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return browser.ErrClosed
	}
	f.closed = true
	return nil
}
