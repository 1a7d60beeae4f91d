package ast

import (
	"strconv"
	"strings"

	"tabula/grid"
)

// Print renders the expression with minimal parenthesization: a child is
// wrapped when its operator binds weaker than its parent's, or equally
// strongly while sitting on the right of '-' or '/'. An equal-precedence
// right child of '+' or '*' is printed bare, so re-parsing such output yields
// the left-nested tree: 1+(2+3) prints as 1+2+3 and 2*(3/4) as 2*3/4.
func Print(e Expression) string {
	var sb strings.Builder
	printExpr(&sb, e)
	return sb.String()
}

func printExpr(sb *strings.Builder, e Expression) {
	switch e := e.(type) {
	case *NumberLiteral:
		sb.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	case *CellRef:
		if e.Pos.IsValid() {
			sb.WriteString(e.Pos.String())
		} else {
			sb.WriteString(e.Token.Literal)
		}
	case *PrefixExpression:
		sb.WriteString(e.Operator)
		if isAtom(e.Right) {
			printExpr(sb, e.Right)
		} else {
			sb.WriteByte('(')
			printExpr(sb, e.Right)
			sb.WriteByte(')')
		}
	case *InfixExpression:
		printInfix(sb, e)
	}
}

func printInfix(sb *strings.Builder, e *InfixExpression) {
	parent := precedenceOf(e)

	left := precedence(e.Left)
	if left < parent {
		sb.WriteByte('(')
		printExpr(sb, e.Left)
		sb.WriteByte(')')
	} else {
		printExpr(sb, e.Left)
	}

	sb.WriteString(e.Operator)

	right := precedence(e.Right)
	if right < parent || (right == parent && (e.Operator == "-" || e.Operator == "/")) {
		sb.WriteByte('(')
		printExpr(sb, e.Right)
		sb.WriteByte(')')
	} else {
		printExpr(sb, e.Right)
	}
}

const (
	precSum     = 1
	precProduct = 2
	precPrefix  = 3
	precAtom    = 4
)

func precedence(e Expression) int {
	switch e := e.(type) {
	case *InfixExpression:
		return precedenceOf(e)
	case *PrefixExpression:
		return precPrefix
	default:
		return precAtom
	}
}

func precedenceOf(e *InfixExpression) int {
	if e.Operator == "+" || e.Operator == "-" {
		return precSum
	}
	return precProduct
}

func isAtom(e Expression) bool {
	switch e.(type) {
	case *NumberLiteral, *CellRef:
		return true
	}
	return false
}

// References collects the valid positions at CELLREF leaves in left-to-right
// order. Consecutive identical references coalesce; non-adjacent repeats stay.
// Out-of-bounds references are omitted: they never become graph edges.
func References(e Expression) []grid.Position {
	var refs []grid.Position
	walkRefs(e, &refs)
	return refs
}

func walkRefs(e Expression, refs *[]grid.Position) {
	switch e := e.(type) {
	case *CellRef:
		if !e.Pos.IsValid() {
			return
		}
		if n := len(*refs); n > 0 && (*refs)[n-1] == e.Pos {
			return
		}
		*refs = append(*refs, e.Pos)
	case *PrefixExpression:
		walkRefs(e.Right, refs)
	case *InfixExpression:
		walkRefs(e.Left, refs)
		walkRefs(e.Right, refs)
	}
}
