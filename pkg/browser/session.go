package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
)

// Factory builds a Driver for one backend. proxyURL is empty when traffic is
// not being recorded.
type Factory func(ctx context.Context, cfg config.BrowserConfig, proxyURL string, logger *zap.Logger) (Driver, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available to Open under name. It panics on a
// duplicate name, mirroring database/sql.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("browser: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("browser: Register called twice for driver " + name)
	}
	factories[name] = f
}

// Drivers lists the registered backend names.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open starts the backend named by browser.driver and wraps it in a Session.
func Open(ctx context.Context, cfg config.Interface, proxyURL string, logger *zap.Logger) (*Session, error) {
	name := cfg.Browser().Driver
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("browser driver %q is not registered (available: %v)", name, Drivers())
	}

	driver, err := f(ctx, cfg.Browser(), proxyURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s driver: %w", name, err)
	}

	s, err := NewSession(ctx, driver, cfg, logger)
	if err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// Session is one browser under test. It is handed explicitly to elements, forms
// and waits; nothing in the framework looks it up from global state.
type Session struct {
	id     string
	driver Driver
	cfg    config.Interface
	logger *zap.Logger

	mu           sync.Mutex
	implicitWait time.Duration
}

// NewSession wraps driver and applies the configured default condition timeout
// as its implicit wait.
func NewSession(ctx context.Context, driver Driver, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		id:     uuid.NewString(),
		driver: driver,
		cfg:    cfg,
	}
	s.logger = logger.Named("browser").With(zap.String("session_id", s.id))

	if err := s.SetImplicitWait(ctx, s.ConditionTimeout()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Driver() Driver           { return s.driver }
func (s *Session) Logger() *zap.Logger      { return s.logger }
func (s *Session) Config() config.Interface { return s.cfg }

// ConditionTimeout is the configured default condition timeout, read at every
// call so that runtime changes to the configuration take effect.
func (s *Session) ConditionTimeout() time.Duration {
	return s.cfg.Wait().ConditionTimeout()
}

// PageLoadTimeout is the configured page load timeout.
func (s *Session) PageLoadTimeout() time.Duration {
	return s.cfg.Wait().PageLoadTimeout()
}

// PollInterval is the configured pause between condition evaluations.
func (s *Session) PollInterval() time.Duration {
	return s.cfg.Wait().PollInterval
}

// Troubleshooting reports whether failed lookups should be diagnosed.
func (s *Session) Troubleshooting() bool {
	return s.cfg.Wait().Troubleshooting
}

// ImplicitWait returns the implicit wait this session last applied.
func (s *Session) ImplicitWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.implicitWait
}

// SetImplicitWait applies d to the driver and records it. The recorded value
// only changes when the driver accepted it.
func (s *Session) SetImplicitWait(ctx context.Context, d time.Duration) error {
	if err := s.driver.SetImplicitWait(ctx, d); err != nil {
		return fmt.Errorf("failed to set implicit wait to %s: %w", d, err)
	}
	s.mu.Lock()
	s.implicitWait = d
	s.mu.Unlock()
	return nil
}

// Navigate loads url in the current window.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.driver.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// OpenStartPage navigates to browser.start_url and waits for the page to load.
func (s *Session) OpenStartPage(ctx context.Context) error {
	url := s.cfg.Browser().StartURL
	if url == "" {
		return fmt.Errorf("browser.start_url is not configured")
	}
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	WaitForPageToLoad(ctx, s)
	return nil
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.driver.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh page: %w", err)
	}
	return nil
}

// Location returns the URL of the current page.
func (s *Session) Location(ctx context.Context) (string, error) {
	return s.driver.CurrentURL(ctx)
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := s.driver.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// PageSource returns the markup of the current document.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	v, err := s.driver.ExecuteScript(ctx, PageSourceScript)
	if err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	html, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("page source script returned %T", v)
	}
	return html, nil
}

// Close shuts the browser down.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Debug("Closing browser session.")
	if err := s.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
