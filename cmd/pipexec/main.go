// Command pipexec is the graph-of-pipes process supervisor: it parses a
// command/pipe-edge graph from argv, launches every command, and
// supervises the resulting processes, restarting the whole graph on
// SIGHUP or an abnormal child exit.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pipexec/internal/eventlog"
	"pipexec/internal/graph"
	"pipexec/internal/pidfile"
	"pipexec/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pipexec", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }

	textLog := fs.String("l", "", "enable text log to fd number or syslog ('s')")
	jsonLog := fs.String("j", "", "enable JSON log to fd number or syslog ('s')")
	pidPath := fs.String("p", "", "write supervisor pid to path, removed on clean exit")
	restartSecs := fs.Int("s", 0, "restart delay in seconds (0 disables restart)")
	killSiblings := fs.Bool("k", false, "SIGTERM all other children on an abnormal exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	log, err := eventlog.New(eventlog.Config{Text: *textLog, JSON: *jsonLog})
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipexec:", err)
		usage(fs)
		return 1
	}

	g, err := graph.Parse(fs.Args())
	if err != nil {
		log.Error(eventlog.EventParse, "parse", err.Error())
		fmt.Fprintln(os.Stderr, "pipexec: parse error:", err)
		return 1
	}
	log.DebugDump(eventlog.EventParse, "parse", "parsed graph", g)

	for _, ep := range g.UnreferencedEndpoints() {
		log.Warn(eventlog.EventParse, "parse", "edge endpoint names no declared command",
			eventlog.KV("endpoint", ep.String()))
	}

	if *pidPath != "" {
		if err := pidfile.Write(*pidPath, os.Getpid()); err != nil {
			log.Error(eventlog.EventPidfile, "pidfile", err.Error())
			fmt.Fprintln(os.Stderr, "pipexec:", err)
			return 10
		}
		defer func() {
			if err := pidfile.Remove(*pidPath); err != nil {
				log.Error(eventlog.EventPidfile, "pidfile", err.Error())
			}
		}()
	}

	sup := supervisor.New(g, log, supervisor.Options{
		RestartDelay: time.Duration(*restartSecs) * time.Second,
		KillSiblings: *killSiblings,
	})
	return sup.Run()
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: pipexec [options] -- <graph>")
	fmt.Fprintln(os.Stderr, `graph: ("[" NAME PATH ARG* "]" | "{" NAME ":" FD ">" NAME ":" FD "}")*`)
	fs.PrintDefaults()
}
