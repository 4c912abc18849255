// Package form models a page, or a part of one, recognised by a title element.
package form

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/element"
)

// Form is a page object. Concrete pages embed it and add their own elements.
type Form struct {
	session      *browser.Session
	title        string
	titleLocator browser.Locator
	log          *zap.Logger
}

// New returns a form identified by the element at titleLocator. It does not
// check that the form is open; call AssertIsOpen for that.
func New(s *browser.Session, titleLocator browser.Locator, title string) *Form {
	return &Form{
		session:      s,
		title:        title,
		titleLocator: titleLocator,
		log:          s.Logger().Named("form").With(zap.String("form", title)),
	}
}

// Open is New followed by AssertIsOpen.
func Open(ctx context.Context, t element.Failer, s *browser.Session, titleLocator browser.Locator, title string) *Form {
	t.Helper()
	f := New(s, titleLocator, title)
	f.AssertIsOpen(ctx, t)
	return f
}

func (f *Form) Title() string                 { return f.title }
func (f *Form) TitleLocator() browser.Locator { return f.titleLocator }
func (f *Form) Session() *browser.Session     { return f.session }
func (f *Form) String() string                { return fmt.Sprintf("Form '%s'", f.title) }

func (f *Form) titleElement() *element.Element {
	return element.Label(f.session, f.titleLocator, f.title)
}

// AssertIsOpen waits for the title element and aborts the test when it never
// shows up. The time it took is logged.
func (f *Form) AssertIsOpen(ctx context.Context, t element.Failer) {
	t.Helper()
	start := time.Now()
	if !f.titleElement().IsPresent(ctx) {
		if f.session.Troubleshooting() {
			f.titleElement().Troubleshoot(ctx)
		}
		f.log.Error("Form did not appear.", zap.Stringer("locator", f.titleLocator))
		t.Fatalf("%s doesn't appear (%s)", f, f.titleLocator)
		return
	}
	openTime := time.Since(start)
	f.log.Info(fmt.Sprintf("%s appears in %dmsec", f, openTime.Milliseconds()), zap.Duration("open_time", openTime))
}

// AssertIsClosed aborts the test when the title element is still on the page
// after the default condition timeout.
func (f *Form) AssertIsClosed(ctx context.Context, t element.Failer) {
	t.Helper()
	f.titleElement().AssertAbsent(ctx, t)
}

// IsOpen reports whether the title element is displayed right now.
func (f *Form) IsOpen(ctx context.Context) bool {
	return f.titleElement().IsPresentWithin(ctx, 0)
}
