package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestRunLinearPipelineExitsZero(t *testing.T) {
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("/bin/echo not present")
	}
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("/bin/cat not present")
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	args := []string{"-s", "0", "--",
		"[", "A", "/bin/echo", "hello", "]",
		"[", "B", "/bin/cat", "]",
		"{A:1>B:0}"}

	codeCh := make(chan int, 1)
	go func() { codeCh <- run(args) }()

	code := <-codeCh
	os.Stdout = oldStdout
	w.Close()

	if code != 0 {
		t.Errorf("run() = %d, want 0", code)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured stdout: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("captured stdout = %q, want %q", out, "hello\n")
	}
}

func TestRunWritesAndRemovesPidfile(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not present")
	}

	path := filepath.Join(t.TempDir(), "pipexec.pid")
	args := []string{"-s", "0", "-p", path, "--", "[", "A", "/bin/true", "]"}

	if code := run(args); code != 0 {
		t.Fatalf("run() = %d, want 0", code)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pidfile %q should have been removed on clean exit", path)
	}
}

func TestRunRejectsDuplicateEdgeEndpointBeforeLaunch(t *testing.T) {
	args := []string{"-s", "0", "--",
		"[", "A", "/bin/true", "]", "[", "B", "/bin/true", "]", "[", "C", "/bin/true", "]",
		"{A:1>B:0}", "{A:1>C:0}"}
	if code := run(args); code != 1 {
		t.Errorf("run() = %d, want 1 for a duplicate 'from' endpoint", code)
	}
}
