// Package graph parses the command-and-pipe graph grammar described in the
// pipexec CLI (§6) into an in-memory description: named commands and the
// pipe edges wiring their file descriptors together.
package graph

import "fmt"

// Command is one child process: a name unique within the graph, the path
// to its executable, and its argv (argv[0] is conventionally the program
// name, matching exec.Cmd's own convention).
type Command struct {
	Name string
	Path string
	Argv []string
}

// Endpoint identifies one side of a pipe edge from the perspective of the
// child that will see it: a command name plus the fd number that child
// will have dup'd onto it. The fd number is not a host-side descriptor.
type Endpoint struct {
	Name string
	FD   int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Name, e.FD)
}

// Edge connects a "from" endpoint (the writer) to a "to" endpoint (the
// reader). No two edges in a graph may share an identical From or an
// identical To endpoint (§3 PipeEdge invariant).
type Edge struct {
	From Endpoint
	To   Endpoint
}

// Graph is the parsed result: commands in argv-occurrence order, edges in
// argv-occurrence order.
type Graph struct {
	Commands []Command
	Edges    []Edge
}

// CommandByName returns the command with the given name, or false if the
// graph has none. Edge endpoints naming a command that doesn't exist are
// legal (§4.1) — this is how callers detect that case.
func (g *Graph) CommandByName(name string) (Command, bool) {
	for _, c := range g.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}
