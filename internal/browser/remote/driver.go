// Package remote drives a browser through a Selenium/WebDriver server.
package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
)

const backendName = "remote"

func init() {
	browser.Register(config.DriverRemote, New)
}

type handle struct {
	el selenium.WebElement
}

func (handle) Backend() string { return backendName }

// Driver is a browser.Driver over a remote WebDriver session. The WebDriver
// client is not context aware, so contexts are only checked between calls.
type Driver struct {
	wd     selenium.WebDriver
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ browser.Driver = (*Driver)(nil)

// Capabilities builds the session capabilities for cfg.
func Capabilities(cfg config.BrowserConfig, proxyURL string) (selenium.Capabilities, error) {
	name := cfg.Name
	if name == "" {
		name = "chrome"
	}
	caps := selenium.Capabilities{"browserName": name}

	if name == "chrome" {
		args := append([]string(nil), cfg.Args...)
		if cfg.Headless {
			args = append(args, "--headless=new")
		}
		caps.AddChrome(chrome.Capabilities{Args: args, W3C: true})
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		caps.AddProxy(selenium.Proxy{Type: selenium.Manual, HTTP: u.Host, SSL: u.Host})
		caps["acceptInsecureCerts"] = true
	}
	return caps, nil
}

// New opens a session on the WebDriver server at cfg.RemoteURL.
func New(ctx context.Context, cfg config.BrowserConfig, proxyURL string, logger *zap.Logger) (browser.Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	caps, err := Capabilities(cfg, proxyURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wd, err := selenium.NewRemote(caps, cfg.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote session at %s: %w", cfg.RemoteURL, err)
	}
	log := logger.Named("remote")
	log.Info("Remote WebDriver session opened.", zap.String("server", cfg.RemoteURL), zap.String("browser", caps["browserName"].(string)))
	return &Driver{wd: wd, logger: log}, nil
}

// NewFromWebDriver wraps an existing WebDriver session.
func NewFromWebDriver(wd selenium.WebDriver, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{wd: wd, logger: logger.Named("remote")}
}

func (d *Driver) ready(ctx context.Context) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return browser.ErrClosed
	}
	return ctx.Err()
}

func by(loc browser.Locator) (string, string) {
	switch loc.By {
	case browser.ByID:
		return selenium.ByID, loc.Value
	case browser.ByLinkText:
		return selenium.ByLinkText, loc.Value
	case browser.ByXPath:
		return selenium.ByXPATH, loc.Value
	default:
		return selenium.ByCSSSelector, loc.Value
	}
}

func elementOf(h browser.Handle) (selenium.WebElement, error) {
	rh, ok := h.(handle)
	if !ok {
		return nil, browser.ErrForeignHandle
	}
	return rh.el, nil
}

// isNoSuchElement reports the error some servers return instead of an empty
// list.
func isNoSuchElement(err error) bool {
	return strings.Contains(err.Error(), "no such element")
}

func (d *Driver) FindElements(ctx context.Context, loc browser.Locator) ([]browser.Handle, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	using, value := by(loc)
	els, err := d.wd.FindElements(using, value)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find %s: %w", loc, err)
	}
	handles := make([]browser.Handle, len(els))
	for i, el := range els {
		handles[i] = handle{el: el}
	}
	return handles, nil
}

func (d *Driver) elementBool(ctx context.Context, h browser.Handle, fn func(selenium.WebElement) (bool, error)) (bool, error) {
	if err := d.ready(ctx); err != nil {
		return false, err
	}
	el, err := elementOf(h)
	if err != nil {
		return false, err
	}
	return fn(el)
}

func (d *Driver) IsDisplayed(ctx context.Context, h browser.Handle) (bool, error) {
	return d.elementBool(ctx, h, selenium.WebElement.IsDisplayed)
}

func (d *Driver) IsEnabled(ctx context.Context, h browser.Handle) (bool, error) {
	return d.elementBool(ctx, h, selenium.WebElement.IsEnabled)
}

func (d *Driver) IsSelected(ctx context.Context, h browser.Handle) (bool, error) {
	return d.elementBool(ctx, h, selenium.WebElement.IsSelected)
}

func (d *Driver) elementDo(ctx context.Context, h browser.Handle, fn func(selenium.WebElement) error) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	el, err := elementOf(h)
	if err != nil {
		return err
	}
	return fn(el)
}

func (d *Driver) Click(ctx context.Context, h browser.Handle) error {
	return d.elementDo(ctx, h, selenium.WebElement.Click)
}

func (d *Driver) Clear(ctx context.Context, h browser.Handle) error {
	return d.elementDo(ctx, h, selenium.WebElement.Clear)
}

func (d *Driver) SendKeys(ctx context.Context, h browser.Handle, text string) error {
	return d.elementDo(ctx, h, func(el selenium.WebElement) error { return el.SendKeys(text) })
}

func (d *Driver) SelectOption(ctx context.Context, h browser.Handle, q browser.OptionQuery) error {
	return d.elementDo(ctx, h, func(el selenium.WebElement) error {
		opts, err := el.FindElements(selenium.ByTagName, "option")
		if err != nil {
			return err
		}
		for i, opt := range opts {
			match, err := optionMatches(opt, i, q)
			if err != nil {
				return err
			}
			if match {
				return opt.Click()
			}
		}
		return fmt.Errorf("%w: %s", browser.ErrNoOption, q)
	})
}

func optionMatches(opt selenium.WebElement, i int, q browser.OptionQuery) (bool, error) {
	switch q.By {
	case browser.OptionByIndex:
		return i == q.Index, nil
	case browser.OptionByValue:
		v, err := opt.GetAttribute("value")
		return v == q.Key, err
	default:
		text, err := opt.Text()
		return strings.TrimSpace(text) == q.Key, err
	}
}

func (d *Driver) Text(ctx context.Context, h browser.Handle) (string, error) {
	var text string
	err := d.elementDo(ctx, h, func(el selenium.WebElement) (err error) {
		text, err = el.Text()
		return err
	})
	return text, err
}

func (d *Driver) Attribute(ctx context.Context, h browser.Handle, name string) (string, error) {
	var v string
	err := d.elementDo(ctx, h, func(el selenium.WebElement) (err error) {
		v, err = el.GetAttribute(name)
		return err
	})
	return v, err
}

func (d *Driver) SetImplicitWait(ctx context.Context, wait time.Duration) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	return d.wd.SetImplicitWaitTimeout(wait)
}

func (d *Driver) WindowHandles(ctx context.Context) ([]string, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	return d.wd.WindowHandles()
}

func (d *Driver) CurrentWindow(ctx context.Context) (string, error) {
	if err := d.ready(ctx); err != nil {
		return "", err
	}
	return d.wd.CurrentWindowHandle()
}

func (d *Driver) SwitchWindow(ctx context.Context, h string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	return d.wd.SwitchWindow(h)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	return d.wd.Get(url)
}

func (d *Driver) Refresh(ctx context.Context) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	return d.wd.Refresh()
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	if err := d.ready(ctx); err != nil {
		return "", err
	}
	return d.wd.CurrentURL()
}

// ExecuteScript evaluates expression by returning it from a WebDriver script.
func (d *Driver) ExecuteScript(ctx context.Context, expression string) (any, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	return d.wd.ExecuteScript("return ("+expression+");", nil)
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	buf, err := d.wd.Screenshot()
	if err != nil {
		return nil, err
	}
	// Some servers hand back the raw base64 payload.
	if decoded, derr := base64.StdEncoding.DecodeString(string(buf)); derr == nil {
		return decoded, nil
	}
	return buf, nil
}

// Close ends the remote session.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return browser.ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.wd.Quit(); err != nil {
		return fmt.Errorf("failed to quit remote session: %w", err)
	}
	d.logger.Info("Remote WebDriver session closed.")
	return nil
}
