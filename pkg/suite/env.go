package suite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-ui/api/schemas"
	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/traffic"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/report"
)

// Env is what a running test works with.
type Env struct {
	Ctx     context.Context
	Session *browser.Session
	// Traffic is nil unless traffic.enabled is set.
	Traffic *traffic.Recorder
	Log     *zap.Logger

	t       testing.TB
	runner  *Runner
	cancel  context.CancelFunc
	started time.Time
}

// Start opens a browser for t and registers the cleanup that collects the
// test's artifacts, closes the browser and records the outcome.
func (r *Runner) Start(t testing.TB) *Env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	env := &Env{
		Ctx:     ctx,
		Log:     r.logger.Named("suite").With(zap.String("test", t.Name())),
		t:       t,
		runner:  r,
		cancel:  cancel,
		started: time.Now(),
	}
	report.TestStart(env.Log, t.Name())

	var proxyURL string
	if tc := r.cfg.Traffic(); tc.Enabled {
		env.Traffic = traffic.NewRecorder(tc, r.logger)
		if err := env.Traffic.Start(ctx); err != nil {
			cancel()
			t.Fatalf("failed to start traffic recorder: %v", err)
		}
		env.Traffic.NewHAR(t.Name())
		proxyURL = env.Traffic.URL()
	}

	session, err := r.open(ctx, r.cfg, proxyURL, r.logger)
	if err != nil {
		env.stopTraffic()
		cancel()
		t.Fatalf("failed to open browser: %v", err)
	}
	env.Session = session
	t.Cleanup(env.finish)

	if r.cfg.Browser().StartURL != "" {
		if err := session.OpenStartPage(ctx); err != nil {
			t.Fatalf("failed to open start page: %v", err)
		}
	}
	return env
}

// Config is the configuration the test runs with.
func (e *Env) Config() config.Interface { return e.runner.cfg }

// NewPage starts a new page in the traffic archive. It does nothing when
// traffic is not recorded.
func (e *Env) NewPage(title string) {
	if e.Traffic != nil {
		e.Traffic.NewPage(title)
	}
}

func (e *Env) finish() {
	defer e.cancel()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.Ctx), cleanupTimeout)
	defer cancel()

	name := e.t.Name()
	rep := e.runner.reporter
	c := report.Case{Name: name}

	var har *schemas.HAR
	if e.Traffic != nil {
		har = e.Traffic.HAR()
		limit := e.runner.cfg.Traffic().LoadTimeLimit
		if f := traffic.Analyze(har, limit, e.Log); !f.OK() {
			e.t.Errorf("traffic analysis: %d failed responses, %d responses slower than %s", len(f.Errors), len(f.Slow), limit)
			c.Failure = fmt.Sprintf("%d failed responses, %d slow responses", len(f.Errors), len(f.Slow))
		}
	}

	switch {
	case e.t.Failed():
		c.Status = report.StatusFailed
		report.TestFailed(e.Log, name)
		if c.Failure == "" {
			c.Failure = "test failed"
		}
	case e.t.Skipped():
		c.Status = report.StatusSkipped
	default:
		c.Status = report.StatusPassed
		report.TestEnd(e.Log, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	if har != nil {
		g.Go(func() error {
			path := rep.ArtifactPath(name, "har")
			if err := traffic.WriteHAR(path, har); err != nil {
				return err
			}
			c.HAR = path
			return nil
		})
	}
	if c.Status == report.StatusFailed {
		g.Go(func() error {
			png, err := e.Session.Screenshot(gctx)
			if err != nil {
				return err
			}
			c.Screenshot, err = rep.SaveScreenshot(name, png)
			return err
		})
		g.Go(func() error {
			html, err := e.Session.PageSource(gctx)
			if err != nil {
				return err
			}
			c.PageSource, err = rep.SavePageSource(name, html)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.Log.Warn("Failed to save test artifacts.", zap.Error(err))
	}

	if err := e.Session.Close(ctx); err != nil {
		e.Log.Warn("Failed to close browser.", zap.Error(err))
	}
	e.stopTraffic()

	c.Duration = time.Since(e.started)
	rep.Record(c)
	for _, p := range c.Attachments() {
		e.Log.Info(fmt.Sprintf("%s: %s", attachmentLabel(p), p))
	}
}

func (e *Env) stopTraffic() {
	if e.Traffic == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Traffic.Stop(ctx); err != nil {
		e.Log.Warn("Failed to stop traffic recorder.", zap.Error(err))
	}
}

func attachmentLabel(path string) string {
	switch {
	case strings.HasSuffix(path, ".png"):
		return "Screenshot"
	case strings.HasSuffix(path, ".har"):
		return "Har file"
	default:
		return "Page source"
	}
}
