package cdp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
)

type foreignHandle struct{}

func (foreignHandle) Backend() string { return "other" }

func TestQuery(t *testing.T) {
	tests := []struct {
		loc      browser.Locator
		wantSel  string
		wantOpts int
	}{
		{browser.CSS("div.menu a"), "div.menu a", 1},
		{browser.ID(`we"ird`), `[id="we\"ird"]`, 1},
		{browser.LinkText("Top Sellers"), `//a[normalize-space(.)="Top Sellers"]`, 1},
		{browser.XPath("//h2"), "//h2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			sel, opts := query(tt.loc)
			assert.Equal(t, tt.wantSel, sel)
			assert.Len(t, opts, tt.wantOpts)
		})
	}
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, xpathLiteral("plain"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"', "")`, xpathLiteral(`it's "quoted"`))
}

func TestExecOptions(t *testing.T) {
	base := len(ExecOptions(config.BrowserConfig{}, ""))

	withHeadless := ExecOptions(config.BrowserConfig{Headless: true}, "")
	assert.Len(t, withHeadless, base+1)

	proxied := ExecOptions(config.BrowserConfig{}, "http://127.0.0.1:8888")
	assert.Len(t, proxied, base+3)

	withArgs := ExecOptions(config.BrowserConfig{Args: []string{"--disable-dev-shm-usage", "--window-size=1280,800"}}, "")
	assert.Len(t, withArgs, base+2)
}

func TestImplicitWaitExpired(t *testing.T) {
	t.Run("deadline passed", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		<-waitCtx.Done()
		assert.True(t, implicitWaitExpired(context.Background(), waitCtx))
	})

	t.Run("still waiting", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		assert.False(t, implicitWaitExpired(context.Background(), waitCtx))
	})

	t.Run("caller cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		waitCtx, cancelWait := context.WithTimeout(ctx, time.Millisecond)
		defer cancelWait()
		<-waitCtx.Done()
		cancel()
		assert.False(t, implicitWaitExpired(ctx, waitCtx))
	})
}

func TestForeignHandle(t *testing.T) {
	d := &Driver{}
	_, err := d.IsDisplayed(context.Background(), foreignHandle{})
	assert.ErrorIs(t, err, browser.ErrForeignHandle)
	assert.ErrorIs(t, d.Click(context.Background(), foreignHandle{}), browser.ErrForeignHandle)
}

const fixturePage = `<!doctype html>
<html><body>
<a href="#" id="visible-link">Top Sellers</a>
<div id="hidden" style="display:none">secret</div>
<input id="name" value="">
<input id="agree" type="checkbox" checked>
<button id="off" disabled>Off</button>
<script>
setTimeout(function () {
	var d = document.createElement('div');
	d.id = 'late';
	d.textContent = 'arrived';
	document.body.appendChild(d);
}, 700);
</script>
</body></html>`

func chromeInstalled() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "google-chrome-stable", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestDriver_Integration(t *testing.T) {
	if testing.Short() || !chromeInstalled() {
		t.Skip("chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, fixturePage)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	drv, err := New(ctx, config.BrowserConfig{Headless: true}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	d := drv.(*Driver)
	defer func() { _ = d.Close(context.Background()) }()

	require.NoError(t, d.Navigate(ctx, srv.URL))
	require.NoError(t, d.SetImplicitWait(ctx, 0))

	t.Run("visibility", func(t *testing.T) {
		links, err := d.FindElements(ctx, browser.LinkText("Top Sellers"))
		require.NoError(t, err)
		require.Len(t, links, 1)
		ok, err := d.IsDisplayed(ctx, links[0])
		require.NoError(t, err)
		assert.True(t, ok)

		hidden, err := d.FindElements(ctx, browser.ID("hidden"))
		require.NoError(t, err)
		require.Len(t, hidden, 1)
		ok, err = d.IsDisplayed(ctx, hidden[0])
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero implicit wait answers immediately", func(t *testing.T) {
		start := time.Now()
		none, err := d.FindElements(ctx, browser.CSS("#does-not-exist"))
		require.NoError(t, err)
		assert.Empty(t, none)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("positive implicit wait blocks for late nodes", func(t *testing.T) {
		require.NoError(t, d.Refresh(ctx))
		require.NoError(t, d.SetImplicitWait(ctx, 3*time.Second))
		defer func() { _ = d.SetImplicitWait(ctx, 0) }()

		late, err := d.FindElements(ctx, browser.ID("late"))
		require.NoError(t, err)
		require.Len(t, late, 1)
		text, err := d.Text(ctx, late[0])
		require.NoError(t, err)
		assert.Equal(t, "arrived", text)
	})

	t.Run("form state", func(t *testing.T) {
		inputs, err := d.FindElements(ctx, browser.ID("name"))
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		require.NoError(t, d.SendKeys(ctx, inputs[0], "Portal"))
		v, err := d.Attribute(ctx, inputs[0], "value")
		require.NoError(t, err)
		assert.Equal(t, "Portal", v)
		require.NoError(t, d.Clear(ctx, inputs[0]))
		v, err = d.Attribute(ctx, inputs[0], "value")
		require.NoError(t, err)
		assert.Empty(t, v)

		boxes, err := d.FindElements(ctx, browser.ID("agree"))
		require.NoError(t, err)
		checked, err := d.IsSelected(ctx, boxes[0])
		require.NoError(t, err)
		assert.True(t, checked)

		buttons, err := d.FindElements(ctx, browser.XPath("//button"))
		require.NoError(t, err)
		enabled, err := d.IsEnabled(ctx, buttons[0])
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("page state", func(t *testing.T) {
		ready, err := d.ExecuteScript(ctx, `document.readyState === 'complete'`)
		require.NoError(t, err)
		assert.Equal(t, true, ready)

		windows, err := d.WindowHandles(ctx)
		require.NoError(t, err)
		assert.Len(t, windows, 1)

		shot, err := d.Screenshot(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, shot)
	})
}
