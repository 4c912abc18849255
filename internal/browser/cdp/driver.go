// Package cdp drives a local Chrome through the DevTools protocol with chromedp.
//
// WebDriver-style implicit waits do not exist in CDP, so they are emulated: a
// positive implicit wait turns FindElements into a blocking query bounded by
// that duration, zero makes it a single snapshot of the DOM.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
)

const backendName = "cdp"

func init() {
	browser.Register(config.DriverCDP, New)
}

// Node-bound helpers run with `this` set to the element.
const (
	displayedFn = `function() {
		const s = window.getComputedStyle(this);
		if (s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0') return false;
		const r = this.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	}`
	enabledFn  = `function() { return !this.disabled; }`
	selectedFn = `function() { return !!(this.checked || this.selected); }`
)

type handle struct {
	node *cdp.Node
}

func (handle) Backend() string { return backendName }

// Driver is a browser.Driver over one Chrome process.
type Driver struct {
	logger      *zap.Logger
	allocCancel context.CancelFunc
	browserCtx  context.Context

	mu           sync.Mutex
	tabs         map[target.ID]tab
	order        []target.ID
	current      target.ID
	implicitWait time.Duration
	closed       bool
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var _ browser.Driver = (*Driver)(nil)

// ExecOptions builds the allocator options for cfg. proxyURL routes all
// browser traffic through a recording proxy when non-empty.
func ExecOptions(cfg config.BrowserConfig, proxyURL string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if proxyURL != "" {
		opts = append(opts,
			chromedp.ProxyServer(proxyURL),
			// Local traffic must go through the proxy as well.
			chromedp.Flag("proxy-bypass-list", "<-loopback>"),
			chromedp.Flag("ignore-certificate-errors", true),
		)
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// New launches Chrome and attaches to its first tab. The browser outlives ctx;
// it is stopped by Close.
func New(ctx context.Context, cfg config.BrowserConfig, proxyURL string, logger *zap.Logger) (browser.Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), ExecOptions(cfg, proxyURL)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	first := chromedp.FromContext(browserCtx).Target.TargetID
	d := &Driver{
		logger:      log,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		tabs:        map[target.ID]tab{first: {ctx: browserCtx, cancel: browserCancel}},
		order:       []target.ID{first},
		current:     first,
	}
	log.Info("Chrome started.", zap.Bool("headless", cfg.Headless), zap.Bool("proxied", proxyURL != ""))
	return d, nil
}

// tabCtx returns the chromedp context of the current window bound to the
// deadline and cancellation of ctx.
func (d *Driver) tabCtx(ctx context.Context) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, nil, browser.ErrClosed
	}
	t := d.tabs[d.current]
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(t.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		return runCtx, func() { stop(); cancelDeadline(); cancel() }, nil
	}
	return runCtx, func() { stop(); cancel() }, nil
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel, err := d.tabCtx(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// query translates a locator into a chromedp selector and its query options.
func query(loc browser.Locator) (string, []chromedp.QueryOption) {
	switch loc.By {
	case browser.ByID:
		return `[id="` + cssEscape(loc.Value) + `"]`, []chromedp.QueryOption{chromedp.ByQueryAll}
	case browser.ByLinkText:
		return `//a[normalize-space(.)=` + xpathLiteral(loc.Value) + `]`, []chromedp.QueryOption{chromedp.BySearch}
	case browser.ByXPath:
		return loc.Value, []chromedp.QueryOption{chromedp.BySearch}
	default:
		return loc.Value, []chromedp.QueryOption{chromedp.ByQueryAll}
	}
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return `concat(` + strings.Join(quoted, `, '"', `) + `)`
}

func (d *Driver) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Handle, error) {
	d.mu.Lock()
	implicit := d.implicitWait
	d.mu.Unlock()

	sel, opts := query(loc)
	var nodes []*cdp.Node

	if implicit <= 0 {
		opts = append(opts, chromedp.AtLeast(0))
		if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", loc, err)
		}
		return wrap(nodes), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, implicit)
	defer cancel()
	err := d.run(waitCtx, chromedp.Nodes(sel, &nodes, opts...))
	switch {
	case err == nil:
		return wrap(nodes), nil
	case implicitWaitExpired(ctx, waitCtx):
		// No match within the implicit wait is a normal answer.
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to query %s: %w", loc, err)
	}
}

// implicitWaitExpired reports whether waitCtx ran out while the caller's ctx
// is still live. The run error may be context.Canceled in that case.
func implicitWaitExpired(ctx, waitCtx context.Context) bool {
	return errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
}

func wrap(nodes []*cdp.Node) []browser.Handle {
	handles := make([]browser.Handle, len(nodes))
	for i, n := range nodes {
		handles[i] = handle{node: n}
	}
	return handles
}

func nodeOf(h browser.Handle) (*cdp.Node, error) {
	ch, ok := h.(handle)
	if !ok {
		return nil, browser.ErrForeignHandle
	}
	return ch.node, nil
}

// callOn runs a JavaScript function with `this` bound to the element.
func (d *Driver) callOn(ctx context.Context, h browser.Handle, fn string, out any) error {
	node, err := nodeOf(h)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		return jsoniter.Unmarshal([]byte(res.Value), out)
	}))
}

func (d *Driver) boolOn(ctx context.Context, h browser.Handle, fn string) (bool, error) {
	var b bool
	if err := d.callOn(ctx, h, fn, &b); err != nil {
		return false, err
	}
	return b, nil
}

func (d *Driver) IsDisplayed(ctx context.Context, h browser.Handle) (bool, error) {
	return d.boolOn(ctx, h, displayedFn)
}

func (d *Driver) IsEnabled(ctx context.Context, h browser.Handle) (bool, error) {
	return d.boolOn(ctx, h, enabledFn)
}

func (d *Driver) IsSelected(ctx context.Context, h browser.Handle) (bool, error) {
	return d.boolOn(ctx, h, selectedFn)
}

func (d *Driver) Click(ctx context.Context, h browser.Handle) error {
	node, err := nodeOf(h)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.MouseClickNode(node))
}

func (d *Driver) Text(ctx context.Context, h browser.Handle) (string, error) {
	var text string
	if err := d.callOn(ctx, h, `function() { return this.innerText || this.textContent || ''; }`, &text); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (d *Driver) Attribute(ctx context.Context, h browser.Handle, name string) (string, error) {
	// Properties first so live values such as "value" and "checked" are current.
	fn := `function() {
		const v = this[` + strconv.Quote(name) + `];
		if (v !== undefined && v !== null && typeof v !== 'object' && typeof v !== 'function') return String(v);
		return this.getAttribute(` + strconv.Quote(name) + `) || '';
	}`
	var v string
	if err := d.callOn(ctx, h, fn, &v); err != nil {
		return "", err
	}
	return v, nil
}

func (d *Driver) Clear(ctx context.Context, h browser.Handle) error {
	var ignored bool
	return d.callOn(ctx, h, `function() {
		this.value = '';
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	}`, &ignored)
}

// selectOptionFn returns false when nothing matched.
const selectOptionFn = `function() {
	const opts = Array.from(this.options || []);
	let i = -1;
	switch (%d) {
	case %d: i = opts.findIndex(o => o.value === %s); break;
	case %d: i = (%d >= 0 && %d < opts.length) ? %d : -1; break;
	default: i = opts.findIndex(o => o.text.trim() === %s);
	}
	if (i < 0) return false;
	this.selectedIndex = i;
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

func (d *Driver) SelectOption(ctx context.Context, h browser.Handle, q browser.OptionQuery) error {
	key := strconv.Quote(q.Key)
	fn := fmt.Sprintf(selectOptionFn, q.By, browser.OptionByValue, key,
		browser.OptionByIndex, q.Index, q.Index, q.Index, key)
	ok, err := d.boolOn(ctx, h, fn)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrNoOption, q)
	}
	return nil
}

func (d *Driver) SendKeys(ctx context.Context, h browser.Handle, text string) error {
	node, err := nodeOf(h)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.SendKeys([]cdp.NodeID{node.NodeID}, text, chromedp.ByNodeID))
}

func (d *Driver) SetImplicitWait(ctx context.Context, wait time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return browser.ErrClosed
	}
	if wait < 0 {
		wait = 0
	}
	d.implicitWait = wait
	return nil
}

// WindowHandles lists open page targets in the order they were first seen.
func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	var infos []*target.Info
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	live := make(map[target.ID]bool)
	for _, info := range infos {
		if info.Type == "page" {
			live[info.TargetID] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.order[:0]
	for _, id := range d.order {
		if live[id] {
			kept = append(kept, id)
			delete(live, id)
		}
	}
	d.order = kept
	for _, info := range infos {
		if live[info.TargetID] {
			d.order = append(d.order, info.TargetID)
		}
	}

	handles := make([]string, len(d.order))
	for i, id := range d.order {
		handles[i] = string(id)
	}
	return handles, nil
}

func (d *Driver) CurrentWindow(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", browser.ErrClosed
	}
	return string(d.current), nil
}

func (d *Driver) SwitchWindow(ctx context.Context, h string) error {
	id := target.ID(h)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return browser.ErrClosed
	}
	if _, ok := d.tabs[id]; ok {
		d.current = id
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to attach to window %s: %w", h, err)
	}
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(id).Do(ctx)
	})); err != nil {
		d.logger.Debug("Could not activate window.", zap.String("window", h), zap.Error(err))
	}

	d.mu.Lock()
	d.tabs[id] = tab{ctx: tabCtx, cancel: cancel}
	d.current = id
	d.mu.Unlock()
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *Driver) Refresh(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (d *Driver) ExecuteScript(ctx context.Context, expression string) (any, error) {
	var res any
	if err := d.run(ctx, chromedp.Evaluate(expression, &res)); err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close stops the browser. Subsequent calls return browser.ErrClosed.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return browser.ErrClosed
	}
	d.closed = true
	tabs := d.tabs
	d.tabs = nil
	d.mu.Unlock()

	for _, t := range tabs {
		if t.ctx != d.browserCtx {
			t.cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.browserCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to stop chrome: %w", err)
	}
	d.logger.Info("Chrome stopped.")
	return nil
}
