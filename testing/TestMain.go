// Package testing puts binaries into test mode when imported by a test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("RESUMAIL_TEST_MODE", "1")
		if os.Getenv("RASTER_ENGINE") == "" {
			_ = os.Setenv("RASTER_ENGINE", "layout")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
