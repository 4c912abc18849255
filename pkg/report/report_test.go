package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/pkg/report"
)

func newReporter(t *testing.T, screenshots bool) *report.Reporter {
	t.Helper()
	r, err := report.New(config.ReportConfig{Dir: t.TempDir(), Screenshots: screenshots}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestNew_CreatesRunDirectory(t *testing.T) {
	base := t.TempDir()
	r, err := report.New(config.ReportConfig{Dir: base}, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, r.RunID()), r.Dir())
	info, err := os.Stat(r.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	other, err := report.New(config.ReportConfig{Dir: base}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, r.RunID(), other.RunID())
}

func TestNew_ExpandsHomeDirectory(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	home := t.TempDir()
	t.Setenv("HOME", home)

	r, err := report.New(config.ReportConfig{Dir: "~/ui-reports"}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "ui-reports", r.RunID()), r.Dir())
}

func TestArtifactPath(t *testing.T) {
	r := newReporter(t, true)
	assert.Equal(t, filepath.Join(r.Dir(), "TestSearch_by_genre.png"), r.ArtifactPath("TestSearch/by genre", "png"))
	assert.Equal(t, filepath.Join(r.Dir(), "TestCart.har"), r.ArtifactPath("TestCart", ".har"))
	assert.Equal(t, filepath.Join(r.Dir(), "unnamed.png"), r.ArtifactPath("///", "png"))
}

func TestSaveScreenshot(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}

	t.Run("enabled", func(t *testing.T) {
		r := newReporter(t, true)
		path, err := r.SaveScreenshot("TestLogin", png)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, png, data)
	})

	t.Run("disabled", func(t *testing.T) {
		r := newReporter(t, false)
		path, err := r.SaveScreenshot("TestLogin", png)
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.NoFileExists(t, r.ArtifactPath("TestLogin", "png"))
	})
}

func TestSavePageSource(t *testing.T) {
	r := newReporter(t, false)
	path, err := r.SavePageSource("TestLogin", "<html></html>")
	require.NoError(t, err)
	assert.Equal(t, r.ArtifactPath("TestLogin", "html"), path)
	assert.FileExists(t, path)
}

func TestRecord_Concurrent(t *testing.T) {
	r := newReporter(t, false)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := report.StatusPassed
			if i%5 == 0 {
				status = report.StatusFailed
			}
			r.Record(report.Case{Name: "TestParallel", Status: status})
		}(i)
	}
	wg.Wait()

	tests, failures, skipped := r.Totals()
	assert.Equal(t, 20, tests)
	assert.Equal(t, 4, failures)
	assert.Zero(t, skipped)
}

func TestWriteJUnit(t *testing.T) {
	r := newReporter(t, true)
	r.Record(report.Case{Name: "TestSearch/by genre", Status: report.StatusPassed, Duration: 1500 * time.Millisecond})
	r.Record(report.Case{
		Name:       "TestCheckout",
		Status:     report.StatusFailed,
		Duration:   250 * time.Millisecond,
		Failure:    "Button 'Pay' doesn't appear\nat step 3",
		Screenshot: "/tmp/TestCheckout.png",
		HAR:        "/tmp/TestCheckout.har",
	})
	r.Record(report.Case{Name: "TestWishlist", Status: report.StatusSkipped})

	var buf bytes.Buffer
	require.NoError(t, r.WriteJUnit(&buf))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	root := doc.SelectElement("testsuites")
	require.NotNil(t, root)
	assert.Equal(t, "3", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", root.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", root.SelectAttrValue("skipped", ""))
	assert.Equal(t, "1.750", root.SelectAttrValue("time", ""))

	suite := root.SelectElement("testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, r.RunID(), suite.SelectAttrValue("id", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)
	assert.Equal(t, "TestSearch", cases[0].SelectAttrValue("classname", ""))
	assert.Nil(t, cases[0].SelectElement("failure"))

	failure := cases[1].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "Button 'Pay' doesn't appear", failure.SelectAttrValue("message", ""))
	assert.Contains(t, failure.Text(), "at step 3")
	out := cases[1].SelectElement("system-out")
	require.NotNil(t, out)
	assert.Contains(t, out.Text(), "[[ATTACHMENT|/tmp/TestCheckout.png]]")
	assert.Contains(t, out.Text(), "[[ATTACHMENT|/tmp/TestCheckout.har]]")

	assert.NotNil(t, cases[2].SelectElement("skipped"))
}

func TestClose_WritesSummaryFile(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r, err := report.New(config.ReportConfig{Dir: t.TempDir()}, zap.New(core))
	require.NoError(t, err)
	r.Record(report.Case{Name: "TestHome", Status: report.StatusPassed})

	require.NoError(t, r.Close())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(filepath.Join(r.Dir(), report.JUnitFile)))
	assert.Len(t, doc.FindElements("//testcase"), 1)

	finished := logs.FilterMessage("Run finished.").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(1), finished[0].ContextMap()["tests"])
}

func TestStepBanners(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	report.TestStart(log, "TestSearch")
	report.Step(log, 1)
	report.Steps(log, 2, 4)
	report.StepInfo(log, "Open cart")
	report.TestEnd(log, "TestSearch")
	report.TestFailed(log, "TestCart")

	msgs := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{
		"====================  Test case: 'TestSearch'  ====================",
		"--------==[ Step 1 ]==--------",
		"--------==[ Steps 2-4 ]==--------",
		"----==[ Open cart ]==----",
		"********************  Test case 'TestSearch' passed  ********************",
		"",
		"Test case 'TestCart' failed",
		"",
	}, msgs)
}
