package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	if code != 0 {
		t.Logf("stderr: %s", stderr.String())
	}
	return code, stdout.String()
}

func TestRun_Version(t *testing.T) {
	code, out := runCLI(t, "--version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out, version) {
		t.Fatalf("output %q missing version", out)
	}
}

func TestRun_BadFlags(t *testing.T) {
	tests := [][]string{
		{"--no-such-flag"},
		{"--random", "-1"},
		{"--random", "3", "--messages", "m.yaml"},
		{"--strategy", "random"},
		{"--store", "redis"},
	}
	for _, args := range tests {
		if code, _ := runCLI(t, args...); code != 2 {
			t.Errorf("run(%v) = %d, want 2", args, code)
		}
	}
}

func TestRun_ReferenceBatch(t *testing.T) {
	for _, strategy := range []string{"sequential", "tree"} {
		t.Run(strategy, func(t *testing.T) {
			code, out := runCLI(t, "--strategy", strategy, "--verbosity", "1")
			if code != 0 {
				t.Fatalf("exit code = %d, want 0", code)
			}
			for _, want := range []string{
				"dropped invalid message number=7",
				"highest message number 10",
				"before=0 after=10 admitted=true",
			} {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRun_MetricsServer(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--metrics.addr", "127.0.0.1:0", "--verbosity", "3"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "metrics server started") {
		t.Fatalf("metrics server not started:\n%s", stderr.String())
	}
	if strings.Contains(stderr.String(), "metrics server shutdown") {
		t.Fatalf("metrics server did not shut down cleanly:\n%s", stderr.String())
	}
}

func TestRun_Random(t *testing.T) {
	code, out := runCLI(t, "--random", "8", "--verbosity", "1")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out, "highest message number 8") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRun_MessagesFileAndPersistentStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages.yaml")
	content := `- number: 4
  details: {agent_id: 1200, agent_x_location: 1300, agent_y_location: 12700, checksum: 15200}
- number: 2
  details: {agent_id: 0, agent_x_location: 1, agent_y_location: 1, checksum: 1}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	datadir := filepath.Join(dir, "state")

	// First run admits the reference batch's 10.
	code, out := runCLI(t, "--store", "leveldb", "--datadir", datadir, "--verbosity", "1")
	if code != 0 || !strings.Contains(out, "after=10") {
		t.Fatalf("first run: code %d, output:\n%s", code, out)
	}

	// A later batch topping out at 4 leaves the stored 10 in place.
	code, out = runCLI(t, "--store", "leveldb", "--datadir", datadir, "--messages", path, "--verbosity", "1")
	if code != 0 {
		t.Fatalf("second run: exit code %d", code)
	}
	if !strings.Contains(out, "highest message number 4") || !strings.Contains(out, "before=10 after=10 admitted=false") {
		t.Fatalf("second run output:\n%s", out)
	}
}

func TestRun_AllInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	content := "- number: 1\n  details: {agent_id: 5000, agent_x_location: 0, agent_y_location: 0, checksum: 0}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _ := runCLI(t, "--messages", path, "--verbosity", "0"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zkbatch.yaml")
	content := "prover:\n  strategy: tree\n  workers: 2\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out := runCLI(t, "--config", path)
	if code != 0 || !strings.Contains(out, "highest message number 10") {
		t.Fatalf("code %d, output:\n%s", code, out)
	}
}
