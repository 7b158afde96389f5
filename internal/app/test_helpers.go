package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/modgate/internal/config"
	"github.com/vk/modgate/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new app instance for system testing, loading the
// manifests found under modulesPath.
func SetupAppTest(t *testing.T, modulesPath string, catalog registry.Catalog) (*App, *SafeBuffer) {
	t.Helper()

	cfg := config.Default()
	cfg.ModulesPath = modulesPath
	cfg.LogLevel = "debug"
	cfg.Workers = 2

	logBuffer := &SafeBuffer{}
	testApp, err := NewApp(logBuffer, &cfg, catalog)
	if err != nil {
		t.Fatalf("failed to create app: %v\n--- log ---\n%s", err, logBuffer.String())
	}

	t.Cleanup(func() {
		if os.Getenv("MODGATE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
