// Package formula parses and evaluates cell formulas. Evaluation errors are
// data: they come back as grid.FormulaError values, never as Go errors.
package formula

import (
	"errors"
	"fmt"

	"tabula/ast"
	"tabula/grid"
	"tabula/lexer"
	"tabula/parser"
)

// ErrParse wraps every formula parse failure.
var ErrParse = errors.New("formula parse error")

// Value is what a cell evaluates to: nil for empty, float64, string, or
// grid.FormulaError.
type Value any

// CellValuer is the slice of a cell the evaluator needs.
type CellValuer interface {
	Value() Value
}

// CellProvider is the read-only view a sheet exposes to the evaluator.
// GetCell returns nil when no cell lives at the position.
type CellProvider interface {
	GetCell(pos grid.Position) CellValuer
}

// Formula is a parsed formula body (the text after the '=' sign).
type Formula struct {
	root ast.Expression
}

func Parse(expression string) (*Formula, error) {
	p := parser.New(lexer.New(expression))
	root := p.ParseFormula()
	if errs := p.ErrorsDetailed(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrParse, parser.FormatParseErrors(errs[:1], expression))
	}
	if root == nil {
		return nil, ErrParse
	}
	return &Formula{root: root}, nil
}

// Expression returns the canonical re-print of the formula body; re-parsing
// it yields an equivalent formula.
func (f *Formula) Expression() string {
	return ast.Print(f.root)
}

// References lists the referenced positions in reading order with adjacent
// duplicates collapsed.
func (f *Formula) References() []grid.Position {
	return ast.References(f.root)
}

// Evaluate walks the formula against the given cell view. The result is a
// float64 or a grid.FormulaError.
func (f *Formula) Evaluate(cells CellProvider) Value {
	return eval(f.root, cells)
}
