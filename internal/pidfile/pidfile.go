// Package pidfile writes and removes the supervisor's pidfile (§6: "-p
// <path>"), mode 0444, containing "<pid>\n", removed only on clean
// shutdown.
package pidfile

import (
	"fmt"
	"os"
)

// Write creates (or truncates) path with the running process's pid, mode
// 0444 per §6.
func Write(path string, pid int) error {
	// Opened writable first (0644) since a pre-existing 0444 file from a
	// prior run would otherwise refuse O_WRONLY; chmod down to 0444 once
	// the pid line is written. The perm argument only applies on create,
	// so an existing file is made writable here first (a missing file
	// makes this a no-op).
	_ = os.Chmod(path, 0o644)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open pidfile %q: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		return fmt.Errorf("write pidfile %q: %w", path, err)
	}
	if err := f.Chmod(0o444); err != nil {
		return fmt.Errorf("chmod pidfile %q: %w", path, err)
	}
	return nil
}

// Remove unlinks path, used on clean shutdown. A missing file is not an
// error — the pidfile may never have been created, or may already be gone.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pidfile %q: %w", path, err)
	}
	return nil
}
