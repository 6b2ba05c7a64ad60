package pidfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipexec.pid")

	if err := Write(path, 4242); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o444 {
		t.Errorf("mode = %v, want 0444", info.Mode().Perm())
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(contents)) != "4242" {
		t.Errorf("contents = %q, want \"4242\\n\"", contents)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pidfile still exists after Remove")
	}
}

func TestRemoveMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.pid")
	if err := Remove(path); err != nil {
		t.Errorf("Remove on missing file: %v", err)
	}
}
