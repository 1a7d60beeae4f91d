package parser

import (
	"testing"

	"tabula/ast"
	"tabula/grid"
	"tabula/lexer"
)

func parseFormula(t *testing.T, input string) ast.Expression {
	t.Helper()
	p := New(lexer.New(input))
	expr := p.ParseFormula()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse %q: %v", input, errs)
	}
	if expr == nil {
		t.Fatalf("parse %q: nil expression", input)
	}
	return expr
}

func TestPrecedenceAndShape(t *testing.T) {
	cases := []struct {
		input     string
		canonical string
	}{
		{"1+2*3", "1+2*3"},
		{"(1+2)*3", "(1+2)*3"},
		{"1+2+3", "1+2+3"},
		{"1-(2-3)", "1-(2-3)"},
		{"1-2-3", "1-2-3"},
		{"8/4/2", "8/4/2"},
		{"8/(4/2)", "8/(4/2)"},
		{"1+(2+3)", "1+2+3"},
		{"2*(3/4)", "2*3/4"},
		{"-5", "-5"},
		{"--5", "-(-5)"},
		{"+A1", "+A1"},
		{"-(A1+1)", "-(A1+1)"},
		{"A1*-B2", "A1*-B2"},
		{" 1 +  2 * A1 ", "1+2*A1"},
		{"((((42))))", "42"},
		{"1e3+0.5", "1000+0.5"},
	}
	for _, tt := range cases {
		expr := parseFormula(t, tt.input)
		if got := ast.Print(expr); got != tt.canonical {
			t.Errorf("Print(parse(%q)) = %q, want %q", tt.input, got, tt.canonical)
		}
	}
}

// Re-parsing a canonical print must reproduce it exactly.
func TestPrintReparseFixpoint(t *testing.T) {
	inputs := []string{
		"1+2*3",
		"(1+2)*3",
		"1-(2-3)",
		"8/(4/2)",
		"-(A1+B2)*C3",
		"A1+A1*B2+A1",
		"-.5e+3/X1",
	}
	for _, input := range inputs {
		first := ast.Print(parseFormula(t, input))
		second := ast.Print(parseFormula(t, first))
		if first != second {
			t.Errorf("print not stable for %q: %q then %q", input, first, second)
		}
	}
}

func TestCellRefPositions(t *testing.T) {
	expr := parseFormula(t, "AB12")
	ref, ok := expr.(*ast.CellRef)
	if !ok {
		t.Fatalf("expected CellRef, got %T", expr)
	}
	want := grid.Position{Row: 11, Col: 27}
	if ref.Pos != want {
		t.Fatalf("expected %v, got %v", want, ref.Pos)
	}
}

// Out-of-bounds references parse; they only fail at evaluation time.
func TestOutOfBoundsRefParses(t *testing.T) {
	expr := parseFormula(t, "ZZZZ1+1")
	sum, ok := expr.(*ast.InfixExpression)
	if !ok {
		t.Fatalf("expected InfixExpression, got %T", expr)
	}
	ref, ok := sum.Left.(*ast.CellRef)
	if !ok {
		t.Fatalf("expected CellRef, got %T", sum.Left)
	}
	if ref.Pos != grid.None {
		t.Fatalf("expected None position, got %v", ref.Pos)
	}
	if got := ast.Print(expr); got != "ZZZZ1+1" {
		t.Fatalf("expected source text preserved, got %q", got)
	}
	if refs := ast.References(expr); len(refs) != 0 {
		t.Fatalf("out-of-bounds reference must not be reported, got %v", refs)
	}
}

func TestReferences(t *testing.T) {
	expr := parseFormula(t, "A1+A1*B2+A1")
	want := []grid.Position{
		{Row: 0, Col: 0},
		{Row: 1, Col: 1},
		{Row: 0, Col: 0},
	}
	got := ast.References(expr)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"1+",
		"(1",
		")",
		"*3",
		"1 2",
		"a1",
		"A1B",
		"1+%",
		"A",
		"1..2",
	}
	for _, input := range cases {
		p := New(lexer.New(input))
		expr := p.ParseFormula()
		if expr != nil || len(p.Errors()) == 0 {
			t.Errorf("parse %q: expected failure, got %v (errors %v)", input, expr, p.Errors())
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	input := "1+*2"
	p := New(lexer.New(input))
	if expr := p.ParseFormula(); expr != nil {
		t.Fatalf("expected parse failure")
	}
	out := FormatParseErrors(p.ErrorsDetailed(), input)
	if out == "" {
		t.Fatalf("expected formatted error output")
	}
}
