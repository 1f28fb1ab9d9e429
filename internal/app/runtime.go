package app

import (
	"os"
	"sync/atomic"
)

var testMode atomic.Bool

func init() {
	RefreshTestMode()
}

// RefreshTestMode re-reads the MERIDIAN_TEST_MODE flag from the environment.
func RefreshTestMode() {
	testMode.Store(os.Getenv("MERIDIAN_TEST_MODE") == "1")
}

// InTestMode reports whether the binaries should skip external side effects.
func InTestMode() bool {
	return testMode.Load()
}
