package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionSkipsConfig(t *testing.T) {
	appHandle = nil
	out, err := execute(t, "version", "--config", "/does/not/exist.yaml")
	if err != nil {
		t.Fatalf("version should not load config: %v", err)
	}
	if !strings.HasPrefix(out, "pricewatch ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestAlertsAddAndList(t *testing.T) {
	appHandle = nil
	t.Cleanup(func() { appHandle = nil })

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := "logging:\n  level: error\ndatabase:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "alerts.db") + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "alerts", "add", "eurusd=x", "--below", "1.05", "--no-lookup", "--config", cfgPath)
	if err != nil {
		t.Fatalf("alerts add failed: %v", err)
	}
	if !strings.Contains(out, "EURUSD=X") {
		t.Fatalf("expected normalised symbol in output, got %q", out)
	}

	out, err = execute(t, "alerts", "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("alerts list failed: %v", err)
	}
	if !strings.Contains(out, "EURUSD=X") || !strings.Contains(out, "1.05") {
		t.Fatalf("list output missing alert: %q", out)
	}
}

func TestSimulateRejectsBadDirection(t *testing.T) {
	appHandle = nil
	t.Cleanup(func() { appHandle = nil })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := execute(t, "simulate-alert", "AAPL", "--direction", "sideways", "--threshold", "1", "--price", "2", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "unknown direction") {
		t.Fatalf("expected direction error, got %v", err)
	}
}
