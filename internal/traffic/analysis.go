package traffic

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/api/schemas"
)

// ErrorStatusThreshold is the status above which a response counts as failed.
const ErrorStatusThreshold = 400

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponses returns the entries whose status is above ErrorStatusThreshold.
func ErrorResponses(har *schemas.HAR) []schemas.Entry {
	var out []schemas.Entry
	for _, e := range har.Log.Entries {
		if e.Response.Status > ErrorStatusThreshold {
			out = append(out, e)
		}
	}
	return out
}

// SlowEntries returns the entries that took longer than limit.
func SlowEntries(har *schemas.HAR, limit time.Duration) []schemas.Entry {
	var out []schemas.Entry
	for _, e := range har.Log.Entries {
		if e.Duration() > limit {
			out = append(out, e)
		}
	}
	return out
}

// Findings summarises an archive.
type Findings struct {
	Entries int
	Errors  []schemas.Entry
	Slow    []schemas.Entry
}

// OK reports whether nothing failed and nothing was slow.
func (f Findings) OK() bool {
	return len(f.Errors) == 0 && len(f.Slow) == 0
}

// Analyze runs both checks and logs a warning block for every offending
// entry.
func Analyze(har *schemas.HAR, limit time.Duration, logger *zap.Logger) Findings {
	log := logger.Named("traffic")
	f := Findings{
		Entries: len(har.Log.Entries),
		Errors:  ErrorResponses(har),
		Slow:    SlowEntries(har, limit),
	}

	for _, e := range f.Errors {
		log.Warn("-------------------------Details of RESPONSE CODE failed request-----------------------------")
		log.Warn(fmt.Sprintf("Response code: %d; Response text: %s", e.Response.Status, e.Response.StatusText),
			zap.Int("status", e.Response.Status))
		logEntry(log, e)
	}
	for _, e := range f.Slow {
		log.Warn("-------------------------Details of LOAD-TIME failed request-----------------------------")
		log.Warn(fmt.Sprintf("Load time: %.0fms", e.Time), zap.Duration("limit", limit))
		logEntry(log, e)
	}
	log.Info("Traffic analysed.", zap.Int("entries", f.Entries), zap.Int("errors", len(f.Errors)), zap.Int("slow", len(f.Slow)))
	return f
}

func logEntry(log *zap.Logger, e schemas.Entry) {
	log.Warn(e.Request.Method + " " + e.Request.URL)
	log.Warn("Mime-type: " + e.Response.Content.MimeType)
	log.Warn(fmt.Sprintf("Content size: %dB", e.Response.Content.Size))
	log.Warn("-------------------------------------------------------------------------------")
}

// WriteHAR writes har as indented JSON to path, creating parent directories.
func WriteHAR(path string, har *schemas.HAR) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(har, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode HAR: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write HAR to %s: %w", path, err)
	}
	return nil
}

// ReadHAR loads an archive from path.
func ReadHAR(path string) (*schemas.HAR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read HAR %s: %w", path, err)
	}
	var har schemas.HAR
	if err := json.Unmarshal(data, &har); err != nil {
		return nil, fmt.Errorf("failed to decode HAR %s: %w", path, err)
	}
	return &har, nil
}
