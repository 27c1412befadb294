package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func withConfigFile(t *testing.T, path string) {
	t.Helper()
	oldCfg := configFile
	oldExit := overrideExitCode
	t.Cleanup(func() {
		configFile = oldCfg
		overrideExitCode = oldExit
	})
	configFile = path
	overrideExitCode = -1
}

func TestRunCheckConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "http://localhost:9480"
  timeout: 10
log:
  level: "info"
  format: "text"
`)
	withConfigFile(t, path)

	if err := runCheckConfig(nil, nil); err != nil {
		t.Fatalf("runCheckConfig failed: %v", err)
	}
	if overrideExitCode != -1 {
		t.Fatalf("overrideExitCode = %d, want -1 (unset)", overrideExitCode)
	}
}

func TestRunCheckConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
log:
  level: "verbose"
`)
	withConfigFile(t, path)

	if err := runCheckConfig(nil, nil); err != nil {
		t.Fatalf("runCheckConfig should report via exit code, got error: %v", err)
	}
	if overrideExitCode != ExitConfig {
		t.Fatalf("overrideExitCode = %d, want %d", overrideExitCode, ExitConfig)
	}
}

func TestStorePathForDisplay(t *testing.T) {
	path := writeConfig(t, `
store:
  path: "/tmp/haven-session.json"
`)
	withConfigFile(t, path)

	if err := runCheckConfig(nil, nil); err != nil {
		t.Fatalf("runCheckConfig failed: %v", err)
	}
}
