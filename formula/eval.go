package formula

import (
	"math"
	"strconv"

	"tabula/ast"
	"tabula/grid"
)

func eval(e ast.Expression, cells CellProvider) Value {
	switch e := e.(type) {
	case *ast.NumberLiteral:
		return e.Value

	case *ast.CellRef:
		return evalRef(e, cells)

	case *ast.PrefixExpression:
		v := eval(e.Right, cells)
		if err, ok := v.(grid.FormulaError); ok {
			return err
		}
		if e.Operator == "-" {
			return -v.(float64)
		}
		return v

	case *ast.InfixExpression:
		// Left to right; the first error wins.
		lv := eval(e.Left, cells)
		if err, ok := lv.(grid.FormulaError); ok {
			return err
		}
		rv := eval(e.Right, cells)
		if err, ok := rv.(grid.FormulaError); ok {
			return err
		}

		l, r := lv.(float64), rv.(float64)
		var out float64
		switch e.Operator {
		case "+":
			out = l + r
		case "-":
			out = l - r
		case "*":
			out = l * r
		case "/":
			out = l / r
		}
		// Division by zero, overflow to infinity, NaN: all arithmetic errors.
		if math.IsInf(out, 0) || math.IsNaN(out) {
			return grid.ArithmeticError
		}
		return out
	}

	return grid.ValueError
}

// evalRef applies the reference rules: a missing or empty cell contributes
// zero, text contributes its full-string numeric reading or #VALUE!, and a
// referenced formula contributes its (possibly erroneous) value.
func evalRef(ref *ast.CellRef, cells CellProvider) Value {
	if !ref.Pos.IsValid() {
		return grid.RefError
	}
	cell := cells.GetCell(ref.Pos)
	if cell == nil {
		return 0.0
	}
	switch v := cell.Value().(type) {
	case nil:
		return 0.0
	case float64:
		return v
	case grid.FormulaError:
		return v
	case string:
		if v == "" {
			return 0.0
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return grid.ValueError
		}
		return n
	}
	return grid.ValueError
}

// FormatValue renders an evaluation result the way the grid printer and the
// front ends display it.
func FormatValue(v Value) string {
	switch v := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case grid.FormulaError:
		return v.Error()
	}
	return ""
}
