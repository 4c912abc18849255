// Package report turns a run of UI tests into artifacts on disk: one directory
// per run holding screenshots, page sources, traffic archives and a JUnit XML
// summary, plus the step and test banner lines written to the log.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
)

// SuiteName is the name of the single test suite in every JUnit summary.
const SuiteName = "scalpel-ui"

// JUnitFile is the summary's file name inside the run directory.
const JUnitFile = "junit.xml"

// Case statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// fileNameSanitizer collapses everything that is unsafe in a file name,
// including the slash that separates subtest names.
var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Case is the outcome of one test.
type Case struct {
	Name       string
	Status     string
	Duration   time.Duration
	Failure    string
	Screenshot string
	PageSource string
	HAR        string
}

// Attachments lists the artifact paths of c that are set.
func (c Case) Attachments() []string {
	var out []string
	for _, p := range []string{c.Screenshot, c.PageSource, c.HAR} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Reporter collects the cases of one run. It is safe for concurrent use by
// parallel tests.
type Reporter struct {
	cfg     config.ReportConfig
	runID   string
	dir     string
	started time.Time
	log     *zap.Logger

	mu    sync.Mutex
	cases []Case
}

// New creates the run directory below cfg.Dir. A leading ~ in cfg.Dir is
// expanded to the user's home directory.
func New(cfg config.ReportConfig, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve report directory '%s': %w", cfg.Dir, err)
	}
	if base == "" {
		base = "."
	}

	r := &Reporter{
		cfg:     cfg,
		runID:   uuid.NewString(),
		started: time.Now(),
	}
	r.dir = filepath.Join(base, r.runID)
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", r.dir, err)
	}
	r.log = logger.Named("report").With(zap.String("run_id", r.runID))
	r.log.Info("Report directory created.", zap.String("dir", r.dir))
	return r, nil
}

func (r *Reporter) RunID() string       { return r.runID }
func (r *Reporter) Dir() string         { return r.dir }
func (r *Reporter) Started() time.Time  { return r.started }
func (r *Reporter) Logger() *zap.Logger { return r.log }

// ArtifactPath returns the path for an artifact of test with the given
// extension. Nothing is created.
func (r *Reporter) ArtifactPath(test, ext string) string {
	name := strings.Trim(fileNameSanitizer.ReplaceAllString(test, "_"), "_")
	if name == "" {
		name = "unnamed"
	}
	return filepath.Join(r.dir, name+"."+strings.TrimPrefix(ext, "."))
}

// SaveScreenshot writes png for test. It returns "" without writing when
// screenshots are disabled.
func (r *Reporter) SaveScreenshot(test string, png []byte) (string, error) {
	if !r.cfg.Screenshots {
		return "", nil
	}
	return r.write(r.ArtifactPath(test, "png"), png)
}

// SavePageSource writes the page markup for test.
func (r *Reporter) SavePageSource(test, html string) (string, error) {
	return r.write(r.ArtifactPath(test, "html"), []byte(html))
}

func (r *Reporter) write(path string, data []byte) (string, error) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.log.Info("Artifact saved.", zap.String("path", path))
	return path, nil
}

// Record adds c to the run.
func (r *Reporter) Record(c Case) {
	r.mu.Lock()
	r.cases = append(r.cases, c)
	r.mu.Unlock()
	r.log.Debug("Case recorded.", zap.String("test", c.Name), zap.String("status", c.Status), zap.Duration("duration", c.Duration))
}

// Cases returns a copy of the recorded cases in recording order.
func (r *Reporter) Cases() []Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Case(nil), r.cases...)
}

// Totals counts the recorded cases by outcome.
func (r *Reporter) Totals() (tests, failures, skipped int) {
	for _, c := range r.Cases() {
		tests++
		switch c.Status {
		case StatusFailed:
			failures++
		case StatusSkipped:
			skipped++
		}
	}
	return tests, failures, skipped
}

// WriteJUnit writes the recorded cases as a JUnit XML document.
func (r *Reporter) WriteJUnit(w io.Writer) error {
	cases := r.Cases()
	tests, failures, skipped := r.Totals()
	var total time.Duration
	for _, c := range cases {
		total += c.Duration
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", SuiteName)
	root.CreateAttr("tests", strconv.Itoa(tests))
	root.CreateAttr("failures", strconv.Itoa(failures))
	root.CreateAttr("skipped", strconv.Itoa(skipped))
	root.CreateAttr("time", seconds(total))

	suite := root.CreateElement("testsuite")
	suite.CreateAttr("name", SuiteName)
	suite.CreateAttr("id", r.runID)
	suite.CreateAttr("tests", strconv.Itoa(tests))
	suite.CreateAttr("failures", strconv.Itoa(failures))
	suite.CreateAttr("skipped", strconv.Itoa(skipped))
	suite.CreateAttr("time", seconds(total))
	suite.CreateAttr("timestamp", r.started.UTC().Format("2006-01-02T15:04:05"))

	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "run_id")
	prop.CreateAttr("value", r.runID)

	for _, c := range cases {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", c.Name)
		tc.CreateAttr("classname", className(c.Name))
		tc.CreateAttr("time", seconds(c.Duration))

		switch c.Status {
		case StatusFailed:
			f := tc.CreateElement("failure")
			f.CreateAttr("message", firstLine(c.Failure))
			f.SetText(c.Failure)
		case StatusSkipped:
			tc.CreateElement("skipped")
		}

		if att := c.Attachments(); len(att) > 0 {
			var sb strings.Builder
			for _, p := range att {
				fmt.Fprintf(&sb, "[[ATTACHMENT|%s]]\n", p)
			}
			tc.CreateElement("system-out").SetText(sb.String())
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write JUnit report: %w", err)
	}
	return nil
}

// Close writes the JUnit summary into the run directory and logs the totals.
func (r *Reporter) Close() error {
	path := filepath.Join(r.dir, JUnitFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := r.WriteJUnit(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	tests, failures, skipped := r.Totals()
	r.log.Info("Run finished.",
		zap.String("junit", path),
		zap.Int("tests", tests),
		zap.Int("failures", failures),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(r.started)),
	)
	return nil
}

func className(test string) string {
	if top, _, ok := strings.Cut(test, "/"); ok {
		return top
	}
	return test
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
