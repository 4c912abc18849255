package report

import (
	"fmt"

	"go.uber.org/zap"
)

const stepFrame = "--------=="

// Step logs the banner for step n of a test.
func Step(log *zap.Logger, n int) {
	log.Info(fmt.Sprintf("%s[ Step %d ]%s", stepFrame, n, reverse(stepFrame)), zap.Int("step", n))
}

// Steps logs one banner covering the steps from..to.
func Steps(log *zap.Logger, from, to int) {
	log.Info(fmt.Sprintf("%s[ Steps %d-%d ]%s", stepFrame, from, to, reverse(stepFrame)),
		zap.Int("step", from), zap.Int("to_step", to))
}

// StepInfo logs a free-form step banner.
func StepInfo(log *zap.Logger, info string) {
	log.Info(fmt.Sprintf("----==[ %s ]==----", info))
}

// TestStart logs the opening line of a test.
func TestStart(log *zap.Logger, name string) {
	log.Info(fmt.Sprintf("====================  Test case: '%s'  ====================", name), zap.String("test", name))
}

// TestEnd logs the closing line of a test that passed.
func TestEnd(log *zap.Logger, name string) {
	log.Info(fmt.Sprintf("********************  Test case '%s' passed  ********************", name), zap.String("test", name))
}

// TestFailed logs the closing line of a failed test.
func TestFailed(log *zap.Logger, name string) {
	log.Warn("")
	log.Warn(fmt.Sprintf("Test case '%s' failed", name), zap.String("test", name))
	log.Warn("")
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
