package form_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/mocks"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/form"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingFailer struct {
	failed bool
	msg    string
}

func (f *recordingFailer) Helper() {}

func (f *recordingFailer) Fatalf(format string, args ...any) {
	f.failed = true
	f.msg = fmt.Sprintf(format, args...)
}

func setup(t *testing.T) (*browser.Session, *mocks.FakeDriver, *observer.ObservedLogs) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.SetWaitDefaultConditionTimeout(1)
	cfg.WaitCfg.PollInterval = 50 * time.Millisecond

	core, logs := observer.New(zapcore.InfoLevel)
	driver := mocks.NewFakeDriver()
	s, err := browser.NewSession(context.Background(), driver, cfg, zap.New(core))
	require.NoError(t, err)
	return s, driver, logs
}

func TestAssertIsOpen(t *testing.T) {
	s, driver, logs := setup(t)
	title := browser.XPath("//div[@class='home_page_content']")
	driver.AddElement(title, &mocks.FakeElement{Displayed: true, AppearAt: time.Now().Add(200 * time.Millisecond)})

	f := &recordingFailer{}
	home := form.Open(context.Background(), f, s, title, "Main page")
	require.False(t, f.failed)
	assert.Equal(t, "Form 'Main page'", home.String())

	opened := logs.FilterMessageSnippet("Form 'Main page' appears in").All()
	require.Len(t, opened, 1)
	assert.GreaterOrEqual(t, opened[0].ContextMap()["open_time"], 200*time.Millisecond)
	assert.True(t, home.IsOpen(context.Background()))
}

func TestAssertIsOpen_Absent(t *testing.T) {
	s, _, logs := setup(t)
	f := &recordingFailer{}
	form.New(s, browser.ID("agecheck_form"), "Age check").AssertIsOpen(context.Background(), f)

	require.True(t, f.failed)
	assert.Contains(t, f.msg, "Form 'Age check' doesn't appear")
	assert.Equal(t, 1, logs.FilterMessage("Form did not appear.").Len())
}

func TestAssertIsClosed(t *testing.T) {
	s, driver, _ := setup(t)
	title := browser.CSS("#popup")
	driver.AddElement(title, &mocks.FakeElement{Displayed: true, GoneAt: time.Now().Add(200 * time.Millisecond)})

	f := &recordingFailer{}
	popup := form.New(s, title, "Popup")
	popup.AssertIsClosed(context.Background(), f)
	assert.False(t, f.failed)
	assert.False(t, popup.IsOpen(context.Background()))
}
