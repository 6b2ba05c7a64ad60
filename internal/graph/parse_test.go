package graph

import (
	"strings"
	"testing"
)

func TestParseLinearPipeline(t *testing.T) {
	tokens := strings.Fields("[ A /bin/echo hello ] [ B /bin/cat ] {A:1>B:0}")
	g, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(g.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(g.Commands))
	}
	if g.Commands[0].Name != "A" || g.Commands[0].Path != "/bin/echo" {
		t.Errorf("unexpected command A: %+v", g.Commands[0])
	}
	if got := g.Commands[0].Argv; len(got) != 2 || got[0] != "/bin/echo" || got[1] != "hello" {
		t.Errorf("unexpected argv for A: %v", got)
	}
	if g.Commands[1].Name != "B" || g.Commands[1].Path != "/bin/cat" {
		t.Errorf("unexpected command B: %+v", g.Commands[1])
	}

	if len(g.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(g.Edges))
	}
	want := Edge{From: Endpoint{"A", 1}, To: Endpoint{"B", 0}}
	if g.Edges[0] != want {
		t.Errorf("edge = %+v, want %+v", g.Edges[0], want)
	}
}

func TestParseAttachedNameForm(t *testing.T) {
	tokens := strings.Fields("[A /bin/echo hi ]")
	g, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Commands) != 1 || g.Commands[0].Name != "A" {
		t.Fatalf("unexpected commands: %+v", g.Commands)
	}
}

func TestParseCountInvariant(t *testing.T) {
	// Property 1 (§8): (# of commands) == (# tokens with leading '['),
	// and (# of edges) == (# tokens beginning with '{' and containing '>').
	cases := [][]string{
		strings.Fields("[ A /bin/true ] [ B /bin/true ] {A:1>B:0}"),
		strings.Fields("[X /bin/true ]"),
		strings.Fields("[ A /bin/true ] [ B /bin/true ] [ C /bin/true ] {A:1>B:0} {B:1>C:0}"),
	}

	for _, tokens := range cases {
		g, err := Parse(tokens)
		if err != nil {
			t.Fatalf("Parse(%v): %v", tokens, err)
		}

		wantCmds := 0
		wantEdges := 0
		for _, tok := range tokens {
			if len(tok) > 0 && tok[0] == '[' {
				wantCmds++
			}
			if len(tok) > 0 && tok[0] == '{' && strings.Contains(tok, ">") {
				wantEdges++
			}
		}
		if len(g.Commands) != wantCmds {
			t.Errorf("tokens %v: commands = %d, want %d", tokens, len(g.Commands), wantCmds)
		}
		if len(g.Edges) != wantEdges {
			t.Errorf("tokens %v: edges = %d, want %d", tokens, len(g.Edges), wantEdges)
		}
	}
}

func TestParseDuplicateFromEndpoint(t *testing.T) {
	tokens := strings.Fields("[ A /bin/true ] [ B /bin/true ] [ C /bin/true ] {A:1>B:0} {A:1>C:0}")
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected duplicate 'from' endpoint error, got nil")
	}
}

func TestParseDuplicateToEndpoint(t *testing.T) {
	tokens := strings.Fields("[ A /bin/true ] [ B /bin/true ] [ C /bin/true ] {A:1>C:0} {B:1>C:0}")
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected duplicate 'to' endpoint error, got nil")
	}
}

func TestParseMissingColon(t *testing.T) {
	tokens := []string{"{A1>B:0}"}
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected missing-colon error, got nil")
	}
}

func TestParseMissingBrace(t *testing.T) {
	tokens := []string{"{A:1>B:0"}
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected missing-brace error, got nil")
	}
}

func TestParseMissingArrow(t *testing.T) {
	tokens := []string{"{A:1B:0}"}
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected missing-arrow error, got nil")
	}
}

func TestParseLeftoverToken(t *testing.T) {
	tokens := strings.Fields("[ A /bin/true ] garbage")
	if _, err := Parse(tokens); err == nil {
		t.Fatal("expected leftover-token error, got nil")
	}
}

func TestParseUnreferencedEndpointIsPermissive(t *testing.T) {
	tokens := strings.Fields("[ A /bin/true ] {A:1>GHOST:0}")
	g, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	unref := g.UnreferencedEndpoints()
	if len(unref) != 1 || unref[0].Name != "GHOST" {
		t.Errorf("UnreferencedEndpoints() = %v, want [GHOST:0]", unref)
	}
}

func TestParseFanOutFanIn(t *testing.T) {
	tokens := strings.Fields(
		"[ P /bin/true ] [ T /usr/bin/ptee -r 0 1 2 ] [ C1 /bin/true ] [ C2 /bin/true ] " +
			"[ M /usr/bin/peet 3 4 ] [ Q /bin/true ] " +
			"{P:1>T:0} {T:1>C1:0} {T:2>C2:0} {C1:1>M:3} {C2:1>M:4} {M:1>Q:0}")
	g, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Commands) != 6 || len(g.Edges) != 6 {
		t.Fatalf("unexpected graph shape: %d commands, %d edges", len(g.Commands), len(g.Edges))
	}
}
