// Package element wraps page elements with presence tracking.
//
// An Element starts Unknown. Every probe re-evaluates the page and moves it to
// Present, caching the first displayed match, or Absent. Operations that need
// the element wait for it up to the session's default condition timeout.
package element

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/wait"
)

// ErrNotPresent is returned by operations on an element that never showed up.
var ErrNotPresent = errors.New("element is not present")

// Failer is the part of testing.TB used to abort a test.
type Failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Kind names the type of control an Element represents. It only affects log
// and failure messages.
type Kind string

const (
	KindButton      Kind = "Button"
	KindLabel       Kind = "Label"
	KindLink        Kind = "Link"
	KindTextBox     Kind = "TextBox"
	KindCheckBox    Kind = "CheckBox"
	KindRadioButton Kind = "RadioButton"
	KindComboBox    Kind = "ComboBox"
	KindMenuItem    Kind = "MenuItem"
	KindHidden      Kind = "Hidden"
)

// State is the outcome of the last presence probe.
type State int

const (
	Unknown State = iota
	Present
	Absent
)

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Element is a named element on a page.
type Element struct {
	session *browser.Session
	kind    Kind
	loc     browser.Locator
	name    string
	log     *zap.Logger

	mu     sync.Mutex
	state  State
	handle browser.Handle
}

// New returns an element of the given kind. An empty name falls back to the
// locator.
func New(s *browser.Session, kind Kind, loc browser.Locator, name string) *Element {
	if name == "" {
		name = loc.String()
	}
	e := &Element{session: s, kind: kind, loc: loc, name: name}
	e.log = s.Logger().Named("element").With(zap.String("element", e.String()))
	return e
}

// Parse is New with a locator in "strategy=value" notation.
func Parse(s *browser.Session, kind Kind, locator, name string) (*Element, error) {
	loc, err := browser.ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	return New(s, kind, loc, name), nil
}

func Button(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindButton, loc, name)
}

func Label(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindLabel, loc, name)
}

func Link(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindLink, loc, name)
}

func TextBox(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindTextBox, loc, name)
}

func CheckBox(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindCheckBox, loc, name)
}

func RadioButton(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindRadioButton, loc, name)
}

// ComboBox is a <select> element; see SelectByText and friends.
func ComboBox(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindComboBox, loc, name)
}

func MenuItem(s *browser.Session, loc browser.Locator, name string) *Element {
	return New(s, KindMenuItem, loc, name)
}

func (e *Element) Name() string             { return e.name }
func (e *Element) Kind() Kind               { return e.kind }
func (e *Element) Locator() browser.Locator { return e.loc }

// String renders the element the way it appears in logs: Button 'Search'.
func (e *Element) String() string {
	return fmt.Sprintf("%s '%s'", e.kind, e.name)
}

// State reports the outcome of the last probe.
func (e *Element) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Element) record(h browser.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handle = h
	if h != nil {
		e.state = Present
	} else {
		e.state = Absent
	}
}

// firstDisplayed is satisfied by the first visible match of loc. Lookup errors
// and stale handles are transient.
func firstDisplayed(loc browser.Locator) wait.Condition[browser.Driver, browser.Handle] {
	return wait.Value(func(ctx context.Context, d browser.Driver) (browser.Handle, error) {
		handles, err := d.FindElements(ctx, loc)
		if err != nil {
			return nil, err
		}
		for _, h := range handles {
			ok, err := d.IsDisplayed(ctx, h)
			if err != nil {
				continue
			}
			if ok {
				return h, nil
			}
		}
		return nil, nil
	})
}

func (e *Element) probe(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Handle, bool) {
	return browser.WaitFor(ctx, e.session, firstDisplayed(loc), timeout)
}

// IsPresentWithin waits up to timeout for a displayed match.
func (e *Element) IsPresentWithin(ctx context.Context, timeout time.Duration) bool {
	e.mu.Lock()
	e.state = Unknown
	e.mu.Unlock()

	h, ok := e.probe(ctx, e.loc, timeout)
	if !ok {
		h = nil
	}
	e.record(h)
	return ok
}

// IsPresent waits up to the default condition timeout for a displayed match.
func (e *Element) IsPresent(ctx context.Context) bool {
	return e.IsPresentWithin(ctx, e.session.ConditionTimeout())
}

// waitForPresent is IsPresent followed by a troubleshooting pass when enabled.
func (e *Element) waitForPresent(ctx context.Context) bool {
	if e.IsPresent(ctx) {
		return true
	}
	if e.session.Troubleshooting() {
		e.Troubleshoot(ctx)
	}
	return false
}

// WaitAndAssertPresent waits for the element and aborts the test when it does
// not appear.
func (e *Element) WaitAndAssertPresent(ctx context.Context, t Failer) {
	t.Helper()
	if !e.waitForPresent(ctx) {
		e.log.Error("Element is absent.", zap.Stringer("locator", e.loc))
		t.Fatalf("%s is absent (%s)", e, e.loc)
	}
}

// AssertPresent aborts the test when the element does not appear within the
// default condition timeout.
func (e *Element) AssertPresent(ctx context.Context, t Failer) {
	t.Helper()
	if !e.IsPresent(ctx) {
		e.log.Error("Element is absent.", zap.Stringer("locator", e.loc))
		t.Fatalf("%s is absent (%s)", e, e.loc)
	}
}

// AssertAbsent aborts the test when the element is still in the DOM after the
// default condition timeout.
func (e *Element) AssertAbsent(ctx context.Context, t Failer) {
	t.Helper()
	if !e.WaitForDoesNotExist(ctx) {
		e.log.Error("Element is present but should be absent.", zap.Stringer("locator", e.loc))
		t.Fatalf("%s is present but should be absent (%s)", e, e.loc)
	}
	e.record(nil)
}

func matches(loc browser.Locator) wait.Condition[browser.Driver, []browser.Handle] {
	return wait.Value(func(ctx context.Context, d browser.Driver) ([]browser.Handle, error) {
		handles, err := d.FindElements(ctx, loc)
		if err != nil || len(handles) == 0 {
			return nil, err
		}
		return handles, nil
	})
}

// Exists reports whether the element is in the DOM right now, visible or not.
func (e *Element) Exists(ctx context.Context) bool {
	handles, ok := browser.WaitFor(ctx, e.session, matches(e.loc), 0)
	if ok {
		e.record(handles[0])
	}
	return ok
}

// WaitForExists waits for the element to enter the DOM, visible or not.
func (e *Element) WaitForExists(ctx context.Context) bool {
	handles, ok := browser.WaitFor(ctx, e.session, matches(e.loc), e.session.ConditionTimeout())
	if ok {
		e.record(handles[0])
	}
	return ok
}

// WaitForDoesNotExist waits for the element to leave the DOM.
func (e *Element) WaitForDoesNotExist(ctx context.Context) bool {
	gone := wait.Predicate(func(ctx context.Context, d browser.Driver) (bool, error) {
		handles, err := d.FindElements(ctx, e.loc)
		if err != nil {
			return false, err
		}
		return len(handles) == 0, nil
	})
	return browser.WaitForTrue(ctx, e.session, gone, e.session.ConditionTimeout())
}

// Handle waits for the element and returns the cached match.
func (e *Element) Handle(ctx context.Context) (browser.Handle, error) {
	if !e.waitForPresent(ctx) {
		return nil, fmt.Errorf("%s (%s): %w", e, e.loc, ErrNotPresent)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle, nil
}

// Troubleshoot looks for the nearest locator that does match by dropping the
// last character of the locator value one at a time. Each attempt is a single
// probe; results are only logged.
func (e *Element) Troubleshoot(ctx context.Context) (browser.Locator, bool) {
	e.log.Info("---------------- Troubleshooting starting --------------------")
	defer e.log.Info("---------------- Troubleshooting finished --------------------")

	value := []rune(e.loc.Value)
	for i := len(value) - 1; i > 0; i-- {
		if ctx.Err() != nil {
			break
		}
		candidate := e.loc.WithValue(string(value[:i]))
		_, found := e.probe(ctx, candidate, 0)
		result := "NOT FOUND"
		if found {
			result = "FOUND!"
		}
		e.log.Info("Re-try with locator: \t"+candidate.String()+strings.Repeat(" ", len(value)-1-i)+" :"+result,
			zap.Stringer("candidate", candidate), zap.Bool("found", found))
		if found {
			return candidate, true
		}
	}
	return browser.Locator{}, false
}
