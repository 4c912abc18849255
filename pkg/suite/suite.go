// Package suite wires a browser session, the optional traffic recorder and the
// run report around a single Go test.
//
//	func TestMain(m *testing.M) {
//		os.Exit(suite.Main(m, cfg))
//	}
//
//	func TestSearch(t *testing.T) {
//		env := suite.Start(t, cfg)
//		report.Step(env.Log, 1)
//		...
//	}
package suite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/observability"
	"github.com/xkilldash9x/scalpel-ui/internal/store"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/report"

	// Backends register themselves with the browser package.
	_ "github.com/xkilldash9x/scalpel-ui/pkg/browser/drivers"
)

// cleanupTimeout bounds the artifact collection and browser shutdown of one test.
const cleanupTimeout = 30 * time.Second

// Opener starts a browser session. browser.Open is the default.
type Opener func(ctx context.Context, cfg config.Interface, proxyURL string, logger *zap.Logger) (*browser.Session, error)

// RunSaver persists a finished run. *store.Store implements it.
type RunSaver interface {
	SaveRun(ctx context.Context, run store.Run) error
}

// Runner holds what the tests of one package share: the configuration, the
// report of the run and the optional result store.
type Runner struct {
	cfg      config.Interface
	logger   *zap.Logger
	reporter *report.Reporter
	saver    RunSaver
	open     Opener
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunSaver stores every finished run through s.
func WithRunSaver(s RunSaver) Option {
	return func(r *Runner) { r.saver = s }
}

// WithOpener replaces browser.Open.
func WithOpener(o Opener) Option {
	return func(r *Runner) { r.open = o }
}

// NewRunner creates the run report. The logger defaults to the global one.
func NewRunner(cfg config.Interface, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		open:   browser.Open,
	}
	for _, opt := range opts {
		opt(r)
	}

	rep, err := report.New(cfg.Report(), logger)
	if err != nil {
		return nil, err
	}
	r.reporter = rep
	return r, nil
}

func (r *Runner) Reporter() *report.Reporter { return r.reporter }

// Close writes the run summary and saves the run when a RunSaver is set.
func (r *Runner) Close(ctx context.Context) error {
	if err := r.reporter.Close(); err != nil {
		return err
	}
	if r.saver == nil {
		return nil
	}

	cases := r.reporter.Cases()
	run := store.Run{
		ID:        r.reporter.RunID(),
		StartedAt: r.reporter.Started(),
		Cases:     make([]store.CaseResult, 0, len(cases)),
	}
	for _, c := range cases {
		run.Cases = append(run.Cases, store.CaseResult{
			Name:     c.Name,
			Status:   c.Status,
			Duration: c.Duration,
			Failure:  c.Failure,
			HARPath:  c.HAR,
		})
	}
	if err := r.saver.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

var (
	defaultMu     sync.Mutex
	defaultRunner *Runner
)

// Main builds the package-wide runner, runs the tests and closes the runner.
// Its result is meant for os.Exit. When database.url is set the run is also
// stored in PostgreSQL.
func Main(m *testing.M, cfg config.Interface) int {
	observability.InitializeLogger(cfg.Logger())
	defer observability.Sync()
	logger := observability.GetLogger()

	ctx := context.Background()
	var opts []Option
	if url := cfg.Database().URL; url != "" {
		st, err := store.Connect(ctx, url, logger)
		if err != nil {
			logger.Error("Could not connect to the results database.", zap.Error(err))
			return 1
		}
		defer st.Close()
		opts = append(opts, WithRunSaver(st))
	}

	r, err := NewRunner(cfg, logger, opts...)
	if err != nil {
		logger.Error("Could not prepare the run report.", zap.Error(err))
		return 1
	}
	setDefault(r)
	defer setDefault(nil)

	code := m.Run()
	if err := r.Close(ctx); err != nil {
		logger.Error("Could not finish the run report.", zap.Error(err))
		if code == 0 {
			code = 1
		}
	}
	return code
}

func setDefault(r *Runner) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRunner = r
}

// Start begins t on the runner installed by Main, or on a runner of its own
// when the package has no TestMain.
func Start(t testing.TB, cfg config.Interface) *Env {
	t.Helper()
	defaultMu.Lock()
	r := defaultRunner
	defaultMu.Unlock()

	if r == nil {
		var err error
		r, err = NewRunner(cfg, nil)
		if err != nil {
			t.Fatalf("failed to prepare run report: %v", err)
		}
		t.Cleanup(func() {
			if err := r.Close(context.Background()); err != nil {
				t.Errorf("failed to finish run report: %v", err)
			}
		})
	}
	return r.Start(t)
}
