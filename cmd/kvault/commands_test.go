package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupCLI points the CLI at a config whose files all live in a temp dir
// and selects the encrypted file backend.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("KVAULT_BACKEND", "file")
	t.Setenv("KVAULT_SERVICE", "com.example.cli")
	t.Setenv("KVAULT_PASSPHRASE", "test passphrase")

	config := "file_path: " + filepath.Join(dir, "vault.db") + "\n" +
		"audit_log: " + filepath.Join(dir, "audit.log") + "\n" +
		"metadata_path: " + filepath.Join(dir, "metadata.json") + "\n" +
		"metrics_textfile: " + filepath.Join(dir, "kvault.prom") + "\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(config), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestCLISetGetClear(t *testing.T) {
	cfg := setupCLI(t)

	if _, err := runCLI(t, cfg, "set", "user_id", "42", "--type", "int"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := runCLI(t, cfg, "get", "user_id", "--type", "long")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "42" {
		t.Errorf("get = %q, want 42", out)
	}

	if _, err := runCLI(t, cfg, "set", "user_id", "2147483648", "--type", "int"); err == nil {
		t.Error("expected out-of-range int to be rejected")
	}
	if out, _ := runCLI(t, cfg, "get", "user_id", "--type", "int"); out != "42" {
		t.Errorf("rejected set changed the value: %q", out)
	}

	if _, err := runCLI(t, cfg, "set", "greeting", "hello", "--type", "string"); err != nil {
		t.Fatalf("set greeting: %v", err)
	}
	out, err = runCLI(t, cfg, "keys")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !strings.Contains(out, "greeting") || !strings.Contains(out, "user_id") {
		t.Errorf("keys output missing entries:\n%s", out)
	}

	if _, err := runCLI(t, cfg, "clear", "--yes"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, err = runCLI(t, cfg, "exists", "user_id")
	if !errors.Is(err, errAbsent) || out != "false" {
		t.Errorf("exists after clear = %q, %v", out, err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(cfg), "kvault.prom")); err != nil {
		t.Errorf("expected metrics textfile: %v", err)
	}
}

func TestCLIRotate(t *testing.T) {
	cfg := setupCLI(t)

	if _, err := runCLI(t, cfg, "rotate", "api-key", "--command", "echo rotated-value"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	out, err := runCLI(t, cfg, "get", "api-key", "--type", "string")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "rotated-value" {
		t.Errorf("get = %q, want rotated-value", out)
	}
	if _, err := runCLI(t, cfg, "rotate", "api-key", "--command", "exit 3"); err == nil {
		t.Error("expected failing rotation command to return an error")
	}
}
