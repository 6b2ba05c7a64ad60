// Package launch allocates the edge pipes for a parsed graph, wires each
// command's file descriptor table, and starts every child (§4.2–§4.4).
//
// The fd-collision hazard §4.2/§9 describes ("blocking used fds") is a
// consequence of pipe()'s lowest-unused-fd allocation racing against fds a
// child will later claim by number. os/exec sidesteps that race entirely:
// a child's fd table is declared explicitly as Stdin/Stdout/Stderr plus a
// positional ExtraFiles slice, so a target fd is never discovered after the
// fact, it is assigned to directly. The one piece of the original trick
// this rewrite keeps is the throwaway placeholder descriptor itself — every
// ExtraFiles slot a command doesn't use is filled with a non-nil *os.File
// (os/exec would leave a nil entry's fd closed in the child), and a single
// shared, already-closed-for-writing pipe read end is the cheapest harmless
// value to hand it.
package launch

import (
	"fmt"
	"os"
	"os/exec"

	"pipexec/internal/eventlog"
	"pipexec/internal/graph"
)

// Child is one started command: its declared name and the *exec.Cmd
// supervising its OS process.
type Child struct {
	Name string
	Cmd  *exec.Cmd
}

type pipePair struct {
	r, w *os.File
}

// Launch allocates a pipe per edge, wires and starts every command in g,
// and closes the parent's copy of every edge pipe end before returning
// (§4.4 step 4, §8 Property 3). On any failure it tears down whatever was
// already started and returns a non-nil error; callers should treat that
// as a resource error (§7 — exit 10).
func Launch(g *graph.Graph, log *eventlog.Logger) ([]*Child, error) {
	placeholder, err := newPlaceholder()
	if err != nil {
		return nil, fmt.Errorf("allocate placeholder fd: %w", err)
	}

	pipes := make([]pipePair, len(g.Edges))
	for i, e := range g.Edges {
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(pipes[:i], placeholder)
			return nil, fmt.Errorf("allocate pipe for edge %s>%s: %w", e.From, e.To, err)
		}
		pipes[i] = pipePair{r: r, w: w}
		log.Debug(eventlog.EventPipe, "pipe", "allocated edge pipe",
			eventlog.KV("from", e.From.String()), eventlog.KV("to", e.To.String()))
	}

	children := make([]*Child, 0, len(g.Commands))
	for _, cmd := range g.Commands {
		execCmd, err := wireChild(g, cmd, pipes, placeholder)
		if err != nil {
			closeAll(pipes, placeholder)
			killStarted(children)
			return nil, fmt.Errorf("wire command %q: %w", cmd.Name, err)
		}

		if err := execCmd.Start(); err != nil {
			closeAll(pipes, placeholder)
			killStarted(children)
			return nil, fmt.Errorf("start command %q (%s): %w", cmd.Name, cmd.Path, err)
		}

		log.Info(eventlog.EventCommandPID, "exec", "child started",
			eventlog.KV("name", cmd.Name),
			eventlog.KV("pid", fmt.Sprint(execCmd.Process.Pid)))
		children = append(children, &Child{Name: cmd.Name, Cmd: execCmd})
	}

	closeAll(pipes, placeholder)
	return children, nil
}

// wireChild builds the *exec.Cmd for one command: its argv, and its fd 0/1/2
// plus any higher fd an edge wires to it (§4.3). Fds 0/1/2 default to the
// supervisor's own stdio when no edge wires them — this is what makes the
// linear-pipeline scenario's unwired command see the terminal.
func wireChild(g *graph.Graph, cmd graph.Command, pipes []pipePair, placeholder *os.File) (*exec.Cmd, error) {
	fds := make(map[int]*os.File)
	for i, e := range g.Edges {
		if e.From.Name == cmd.Name {
			if _, dup := fds[e.From.FD]; dup {
				return nil, fmt.Errorf("fd %d claimed by more than one edge", e.From.FD)
			}
			fds[e.From.FD] = pipes[i].w
		}
		if e.To.Name == cmd.Name {
			if _, dup := fds[e.To.FD]; dup {
				return nil, fmt.Errorf("fd %d claimed by more than one edge", e.To.FD)
			}
			fds[e.To.FD] = pipes[i].r
		}
	}

	// exec.Command does argv[0]-aware PATH lookup the way execvp would;
	// cmd.Argv[0] already equals cmd.Path per the graph parser.
	execCmd := exec.Command(cmd.Path, cmd.Argv[1:]...)
	execCmd.Stdin = fdFileOrDefault(fds, 0, os.Stdin)
	execCmd.Stdout = fdFileOrDefault(fds, 1, os.Stdout)
	execCmd.Stderr = fdFileOrDefault(fds, 2, os.Stderr)

	maxFD := 2
	for fd := range fds {
		if fd > maxFD {
			maxFD = fd
		}
	}
	if maxFD > 2 {
		extra := make([]*os.File, maxFD-2)
		for fd := 3; fd <= maxFD; fd++ {
			if f, ok := fds[fd]; ok {
				extra[fd-3] = f
			} else {
				extra[fd-3] = placeholder
			}
		}
		execCmd.ExtraFiles = extra
	}

	return execCmd, nil
}

func fdFileOrDefault(fds map[int]*os.File, fd int, def *os.File) *os.File {
	if f, ok := fds[fd]; ok {
		return f
	}
	return def
}

// newPlaceholder opens a pipe, closes the write end immediately, and hands
// back the read end: a descriptor that reads EOF and can't be written to,
// safe to plug into any number of ExtraFiles slots a child won't use.
func newPlaceholder() (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func closeAll(pipes []pipePair, placeholder *os.File) {
	for _, p := range pipes {
		if p.r != nil {
			p.r.Close()
		}
		if p.w != nil {
			p.w.Close()
		}
	}
	if placeholder != nil {
		placeholder.Close()
	}
}

// killStarted is only reached on a launch failure: it abandons partially
// started graphs by killing everything that already got an OS pid.
func killStarted(children []*Child) {
	for _, c := range children {
		if c.Cmd.Process != nil {
			_ = c.Cmd.Process.Kill()
			_, _ = c.Cmd.Process.Wait()
		}
	}
}
