package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a fatal problem found while parsing the graph grammar
// (§4.1). Every ParseError is fatal: the caller must not attempt to launch
// a graph produced alongside a non-nil error.
type ParseError struct {
	Token string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %q", e.Msg, e.Token)
}

// Parse turns the argv tokens following "--" into a Graph. It is a single
// forward pass: command tokens ("[...") consume their own argv up to the
// matching "]", edge tokens ("{...}") are parsed in place, and any token
// that is neither is a fatal "leftover unparsable token" error.
//
// Parse intentionally does not validate that an edge endpoint's command
// name was actually declared — an endpoint naming no command produces no
// wiring action (§4.1); UnreferencedEndpoints() on the returned Graph is
// the caller's hook to log that permissively-accepted case.
func Parse(tokens []string) (*Graph, error) {
	g := &Graph{}

	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok == "":
			return nil, &ParseError{Token: tok, Msg: "empty token"}

		case tok[0] == '[':
			cmd, next, err := parseCommand(tokens, i)
			if err != nil {
				return nil, err
			}
			g.Commands = append(g.Commands, cmd)
			i = next

		case tok[0] == '{':
			edge, err := parseEdge(tok)
			if err != nil {
				return nil, err
			}
			g.Edges = append(g.Edges, edge)
			i++

		default:
			return nil, &ParseError{Token: tok, Msg: "leftover unparsable token"}
		}
	}

	if err := checkDuplicateEndpoints(g.Edges); err != nil {
		return nil, err
	}

	return g, nil
}

// parseCommand parses one "[" NAME PATH ARG* "]" (or "[NAME" PATH ARG* "]")
// item starting at tokens[start]. It returns the parsed Command and the
// index of the token following the closing "]".
func parseCommand(tokens []string, start int) (Command, int, error) {
	tok := tokens[start]
	i := start

	var name string
	if len(tok) > 1 {
		// "[NAME" form: name attached, no following NAME token to consume.
		name = tok[1:]
		i++
	} else {
		// "[" form: name is the next token.
		i++
		if i >= len(tokens) {
			return Command{}, 0, &ParseError{Token: tok, Msg: "command missing name"}
		}
		name = tokens[i]
		i++
	}

	if i >= len(tokens) {
		return Command{}, 0, &ParseError{Token: tok, Msg: "command missing path"}
	}
	path := tokens[i]
	i++

	argv := []string{path}
	for i < len(tokens) && tokens[i] != "]" {
		argv = append(argv, tokens[i])
		i++
	}
	if i >= len(tokens) {
		return Command{}, 0, &ParseError{Token: tok, Msg: "command missing closing ']'"}
	}
	i++ // consume "]"

	return Command{Name: name, Path: path, Argv: argv}, i, nil
}

// parseEdge parses one "{FROM_NAME:FROM_FD>TO_NAME:TO_FD}" token.
func parseEdge(tok string) (Edge, error) {
	if !strings.HasSuffix(tok, "}") {
		return Edge{}, &ParseError{Token: tok, Msg: "edge missing closing '}'"}
	}
	body := tok[1 : len(tok)-1] // strip '{' and '}'

	arrow := strings.IndexByte(body, '>')
	if arrow < 0 {
		return Edge{}, &ParseError{Token: tok, Msg: "edge missing '>'"}
	}
	fromPart, toPart := body[:arrow], body[arrow+1:]

	from, err := parseEndpoint(tok, fromPart)
	if err != nil {
		return Edge{}, err
	}
	to, err := parseEndpoint(tok, toPart)
	if err != nil {
		return Edge{}, err
	}

	return Edge{From: from, To: to}, nil
}

func parseEndpoint(tok, part string) (Endpoint, error) {
	colon := strings.IndexByte(part, ':')
	if colon < 0 {
		return Endpoint{}, &ParseError{Token: tok, Msg: "edge endpoint missing ':'"}
	}
	name := part[:colon]
	fd, err := strconv.Atoi(part[colon+1:])
	if err != nil {
		return Endpoint{}, &ParseError{Token: tok, Msg: "edge endpoint fd not a number"}
	}
	return Endpoint{Name: name, FD: fd}, nil
}

// checkDuplicateEndpoints enforces the PipeEdge invariant (§3): within one
// launch cycle no two edges may share the same From endpoint, nor may two
// edges share the same To endpoint.
func checkDuplicateEndpoints(edges []Edge) error {
	froms := make(map[Endpoint]bool, len(edges))
	tos := make(map[Endpoint]bool, len(edges))

	for _, e := range edges {
		if froms[e.From] {
			return &ParseError{Token: e.From.String(), Msg: "duplicate edge 'from' endpoint"}
		}
		froms[e.From] = true

		if tos[e.To] {
			return &ParseError{Token: e.To.String(), Msg: "duplicate edge 'to' endpoint"}
		}
		tos[e.To] = true
	}
	return nil
}

// UnreferencedEndpoints returns, for diagnostics, every edge endpoint (from
// or to) whose command name does not match any parsed command. The parser
// accepts these permissively (§4.1); callers should log them as warnings.
func (g *Graph) UnreferencedEndpoints() []Endpoint {
	var out []Endpoint
	for _, e := range g.Edges {
		if _, ok := g.CommandByName(e.From.Name); !ok {
			out = append(out, e.From)
		}
		if _, ok := g.CommandByName(e.To.Name); !ok {
			out = append(out, e.To)
		}
	}
	return out
}
