// Package supervisor implements the top-level run loop (§4.5): launching a
// graph, reaping children, and deciding whether to restart or terminate.
//
// The C original keeps a process-global ChildSlot array and two sticky
// flags (terminate, restart) that an async-signal-handler mutates directly,
// because POSIX signal delivery gives a handler no other way to reach
// supervisor state. Go's os/signal package already turns signal delivery
// into an ordinary channel receive on a goroutine of our choosing, so that
// hazard doesn't exist here: the flags below are mutex-guarded fields on
// Supervisor, written from one goroutine (the Run loop itself, having
// received either a signal-channel value or a child-exit report), never
// from a true asynchronous context. This is a deliberate simplification
// recorded as a resolved design question, not a deviation in externally
// observable behavior.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pipexec/internal/eventlog"
	"pipexec/internal/graph"
	"pipexec/internal/launch"
)

// Options configures restart/kill policy, the CLI-facing knobs of §6.
type Options struct {
	// RestartDelay is the pause before relaunching after a restart-eligible
	// exit. <= 0 means "no restart ever", matching -s 0.
	RestartDelay time.Duration
	// KillSiblings mirrors -k: when true, an abnormal exit (or a restart/
	// terminate signal) sends SIGTERM to every other still-running child.
	KillSiblings bool
}

// Supervisor runs the launch/reap/restart loop for one parsed graph.
type Supervisor struct {
	graph *graph.Graph
	log   *eventlog.Logger
	opts  Options

	mu        sync.Mutex
	terminate bool
	restart   bool
}

func New(g *graph.Graph, log *eventlog.Logger, opts Options) *Supervisor {
	return &Supervisor{graph: g, log: log, opts: opts}
}

func (s *Supervisor) setTerminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminate = true
	s.restart = false // terminate ⇒ !restart (§3 invariant)
}

func (s *Supervisor) setRestart(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminate {
		return // restart is only settable while !terminate
	}
	s.restart = v
}

func (s *Supervisor) snapshot() (terminate, restart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminate, s.restart
}

// exitReport is what each per-child reaper goroutine posts once its
// exec.Cmd.Wait() returns.
type exitReport struct {
	name    string
	state   *os.ProcessState
	waitErr error
}

// abnormal implements §4.5's abnormal(status): the child did not exit via a
// clean call to _exit, or it was killed by a signal.
func (r exitReport) abnormal() bool {
	if r.state == nil {
		return true
	}
	ws, ok := r.state.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return !ws.Exited() || ws.Signaled()
}

// failed implements the "status != 0" half of child_failed tracking.
func (r exitReport) failed() bool {
	if r.state == nil {
		return true
	}
	return r.state.ExitCode() != 0
}

// killedByOtherSignal implements §7's "any other termination signal
// suppresses restart" rule.
func (r exitReport) killedByOtherSignal() bool {
	if r.state == nil {
		return false
	}
	ws, ok := r.state.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return ws.Signaled() && ws.Signal() != syscall.SIGTERM
}

// Run executes the supervisor loop to completion and returns the process
// exit code (§6: 0, 1, or 10).
func (s *Supervisor) Run() int {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	childFailed := false

	for {
		s.setRestart(false)
		cycle := s.log.NewCycle()
		s.log.Info(eventlog.EventStartup, "launch", "starting launch cycle", eventlog.KV("cycle", cycle))

		children, err := launch.Launch(s.graph, s.log)
		if err != nil {
			s.log.Error(eventlog.EventFork, "exec", "launch failed", eventlog.KV("error", err.Error()))
			return 10
		}

		if s.runCycle(children, sigCh, &childFailed) {
			break
		}

		terminate, restart := s.snapshot()
		if terminate || !restart || s.opts.RestartDelay <= 0 {
			break
		}
		s.log.Info(eventlog.EventRestart, "restart", "sleeping before restart",
			eventlog.KV("seconds", s.opts.RestartDelay.String()))
		time.Sleep(s.opts.RestartDelay)
	}

	if childFailed {
		return 1
	}
	return 0
}

// runCycle drains one launch cycle's children to completion (every slot
// reaped), updating s.restart/s.terminate/childFailed along the way. It
// returns true when the supervisor should stop looping entirely (a
// terminate-class signal arrived or was derived).
func (s *Supervisor) runCycle(children []*launch.Child, sigCh <-chan os.Signal, childFailed *bool) bool {
	alive := make(map[string]*launch.Child, len(children))
	for _, c := range children {
		alive[c.Name] = c
	}

	reports := reapAll(children)
	killedAll := false

	for len(alive) > 0 {
		select {
		case sig, ok := <-sigCh:
			if !ok {
				continue
			}
			s.handleSignal(sig)
			if !killedAll {
				s.killAll(alive)
				killedAll = true
			}

		case rep, ok := <-reports:
			if !ok {
				continue
			}
			// killedByOtherSignal only judges children reaped once a kill-all
			// is already underway (siblings swept by killAll below, or by a
			// terminate/restart signal), never the report that triggers the
			// sweep itself. The original's equivalent check lives solely in
			// child_pids_wait_all(), reached only from
			// child_pids_kill_all_and_wait() after the triggering pid has
			// already been unset, so it only ever sees siblings. Without -k
			// killAll sweeps nothing, so no report is judged.
			sweepAlreadyUnderway := killedAll && s.opts.KillSiblings
			delete(alive, rep.name)
			s.logExit(rep)

			if rep.failed() {
				*childFailed = true
			}
			if sweepAlreadyUnderway && rep.killedByOtherSignal() {
				s.setTerminate()
			}
			if rep.abnormal() {
				s.setRestart(true)
				if !killedAll {
					s.killAll(alive)
					killedAll = true
				}
			}
		}
	}

	terminate, _ := s.snapshot()
	return terminate
}

func (s *Supervisor) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGHUP:
		s.log.Info(eventlog.EventSignal, "signal", "restart signal received", eventlog.KV("signal", sig.String()))
		s.setRestart(true)
	default: // SIGINT, SIGQUIT, SIGTERM
		s.log.Info(eventlog.EventSignal, "signal", "terminate signal received", eventlog.KV("signal", sig.String()))
		s.setTerminate()
	}
}

// killAll sends SIGTERM to every still-alive child, gated by -k (§4.5's
// kill_child_processes flag). It never blocks on reaping: the caller's
// select loop is already draining the shared report channel.
func (s *Supervisor) killAll(alive map[string]*launch.Child) {
	if !s.opts.KillSiblings {
		s.log.Debug(eventlog.EventSignal, "signal", "kill_child_processes disabled, leaving siblings to drain")
		return
	}
	for name, c := range alive {
		if c.Cmd.Process == nil {
			continue
		}
		s.log.Info(eventlog.EventSignal, "signal", "sending SIGTERM to sibling",
			eventlog.KV("name", name), eventlog.KV("pid", fmt.Sprint(c.Cmd.Process.Pid)))
		_ = c.Cmd.Process.Signal(syscall.SIGTERM)
	}
}

func (s *Supervisor) logExit(rep exitReport) {
	fields := []eventlog.Field{eventlog.KV("name", rep.name)}
	if rep.state == nil {
		if rep.waitErr != nil {
			fields = append(fields, eventlog.KV("wait_error", rep.waitErr.Error()))
		}
		s.log.Info(eventlog.EventChildExit, "child_exit", "child terminated", fields...)
		return
	}
	if ws, ok := rep.state.Sys().(syscall.WaitStatus); ok {
		fields = append(fields,
			eventlog.KV("exited", fmt.Sprint(ws.Exited())),
			eventlog.KV("signaled", fmt.Sprint(ws.Signaled())))
		if ws.Exited() {
			fields = append(fields, eventlog.KV("exit_status", fmt.Sprint(ws.ExitStatus())))
		}
		if ws.Signaled() {
			fields = append(fields, eventlog.KV("term_signal", ws.Signal().String()))
		}
	}
	if rep.waitErr != nil {
		fields = append(fields, eventlog.KV("wait_error", rep.waitErr.Error()))
	}
	s.log.Info(eventlog.EventChildExit, "child_exit", "child terminated", fields...)
}

// reapAll starts one goroutine per child that blocks in Wait() and posts an
// exitReport; this is the Go-idiomatic replacement for the C original's
// single-threaded wait()-for-any-child (no equivalent primitive exists for
// an arbitrary set of *exec.Cmd). errgroup.Group is the join primitive,
// generalizing a one-goroutine-per-process join to the whole graph. Every
// reaper always returns a nil group error: failures travel as data inside
// exitReport, not as the group's error, since every child's exit (however
// it died) must still reach the supervisor loop, not just the first one.
func reapAll(children []*launch.Child) <-chan exitReport {
	ch := make(chan exitReport, len(children))
	var g errgroup.Group
	for _, c := range children {
		c := c
		g.Go(func() error {
			err := c.Cmd.Wait()
			ch <- exitReport{name: c.Name, state: c.Cmd.ProcessState, waitErr: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(ch)
	}()
	return ch
}
