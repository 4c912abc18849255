package element

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/wait"
)

// Click waits for the element and clicks it.
func (e *Element) Click(ctx context.Context) error {
	h, err := e.Handle(ctx)
	if err != nil {
		return err
	}
	e.log.Info("Clicking.")
	if err := e.session.Driver().Click(ctx, h); err != nil {
		return fmt.Errorf("failed to click %s: %w", e, err)
	}
	return nil
}

// ClickAndWait clicks and then waits for the resulting page to load.
func (e *Element) ClickAndWait(ctx context.Context) error {
	if err := e.Click(ctx); err != nil {
		return err
	}
	browser.WaitForPageToLoad(ctx, e.session)
	return nil
}

// ClickIfPresent clicks the element when it appears within the default
// condition timeout and reports whether it did.
func (e *Element) ClickIfPresent(ctx context.Context) (bool, error) {
	if !e.IsPresent(ctx) {
		return false, nil
	}
	if err := e.Click(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ClickAndWaitForNewWindow clicks and switches to the window the click opened.
func (e *Element) ClickAndWaitForNewWindow(ctx context.Context) error {
	before, err := e.session.Driver().WindowHandles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if err := e.Click(ctx); err != nil {
		return err
	}

	e.log.Info("Selecting the new window.")
	if !browser.WaitForNewWindow(ctx, e.session, len(before), e.session.ConditionTimeout()) {
		return fmt.Errorf("%w: %s did not open a window", browser.ErrNoWindow, e)
	}

	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}
	after, err := e.session.Driver().WindowHandles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	for _, h := range after {
		if !known[h] {
			return e.session.Driver().SwitchWindow(ctx, h)
		}
	}
	return browser.ErrNoWindow
}

// Text returns the visible text of the element.
func (e *Element) Text(ctx context.Context) (string, error) {
	h, err := e.Handle(ctx)
	if err != nil {
		return "", err
	}
	return e.session.Driver().Text(ctx, h)
}

// Attribute returns the value of the named attribute.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	h, err := e.Handle(ctx)
	if err != nil {
		return "", err
	}
	return e.session.Driver().Attribute(ctx, h, name)
}

// Type sends text to the element without clearing it first.
func (e *Element) Type(ctx context.Context, text string) error {
	h, err := e.Handle(ctx)
	if err != nil {
		return err
	}
	e.log.Info("Typing.", zap.String("text", text))
	if err := e.session.Driver().SendKeys(ctx, h, text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", e, err)
	}
	return nil
}

// SetText replaces the element's content with text.
func (e *Element) SetText(ctx context.Context, text string) error {
	h, err := e.Handle(ctx)
	if err != nil {
		return err
	}
	if err := e.session.Driver().Clear(ctx, h); err != nil {
		return fmt.Errorf("failed to clear %s: %w", e, err)
	}
	return e.Type(ctx, text)
}

func (e *Element) selectOption(ctx context.Context, q browser.OptionQuery) error {
	h, err := e.Handle(ctx)
	if err != nil {
		return err
	}
	e.log.Info("Selecting option.", zap.Stringer("option", q))
	if err := e.session.Driver().SelectOption(ctx, h, q); err != nil {
		return fmt.Errorf("failed to select %s in %s: %w", q, e, err)
	}
	return nil
}

// SelectByText selects the option whose visible text is text.
func (e *Element) SelectByText(ctx context.Context, text string) error {
	return e.selectOption(ctx, browser.OptionQuery{By: browser.OptionByText, Key: text})
}

// SelectByValue selects the option whose value attribute is value.
func (e *Element) SelectByValue(ctx context.Context, value string) error {
	return e.selectOption(ctx, browser.OptionQuery{By: browser.OptionByValue, Key: value})
}

// SelectByIndex selects the option at the zero-based index i.
func (e *Element) SelectByIndex(ctx context.Context, i int) error {
	return e.selectOption(ctx, browser.OptionQuery{By: browser.OptionByIndex, Index: i})
}

// SelectedValue returns the value of the selected option.
func (e *Element) SelectedValue(ctx context.Context) (string, error) {
	return e.Attribute(ctx, "value")
}

// IsEnabled reports whether the control accepts input. A "disabled" CSS class
// counts as disabled.
func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	h, err := e.Handle(ctx)
	if err != nil {
		return false, err
	}
	enabled, err := e.session.Driver().IsEnabled(ctx, h)
	if err != nil || !enabled {
		return false, err
	}
	class, err := e.session.Driver().Attribute(ctx, h, "class")
	if err != nil {
		return false, err
	}
	return !strings.Contains(strings.ToLower(class), "disabled"), nil
}

// IsChecked reports whether a checkbox or radio button is selected. Widgets
// that mark state with an "unchecked" CSS class are honoured too.
func (e *Element) IsChecked(ctx context.Context) (bool, error) {
	h, err := e.Handle(ctx)
	if err != nil {
		return false, err
	}
	class, err := e.session.Driver().Attribute(ctx, h, "class")
	if err != nil {
		return false, err
	}
	if strings.Contains(strings.ToLower(class), "unchecked") {
		return false, nil
	}
	return e.session.Driver().IsSelected(ctx, h)
}

// SetChecked clicks the control when its checked state differs from want.
func (e *Element) SetChecked(ctx context.Context, want bool) error {
	checked, err := e.IsChecked(ctx)
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return e.Click(ctx)
}

// WaitForText waits until the element is displayed with text containing substr.
func (e *Element) WaitForText(ctx context.Context, substr string, timeout time.Duration) bool {
	show := firstDisplayed(e.loc)
	cond := wait.Predicate(func(ctx context.Context, d browser.Driver) (bool, error) {
		h, ok, err := show(ctx, d)
		if err != nil || !ok {
			return false, err
		}
		text, err := d.Text(ctx, h)
		if err != nil {
			return false, err
		}
		return strings.Contains(text, substr), nil
	})
	return browser.WaitForTrue(ctx, e.session, cond, timeout)
}
