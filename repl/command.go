package repl

import (
	"fmt"
	"io"
	"strings"

	"tabula/grid"
	"tabula/spreadsheet"
)

// Action is one of the shell's commands.
type Action int

const (
	BadAction Action = iota
	ActionSet
	ActionClear
	ActionScope
	ActionValues
	ActionTexts
	ActionExit
)

// Command is a parsed input line. For set/clear, Pos carries the target
// (grid.None when the token did not parse); for set, Text is the payload
// with interior spacing preserved.
type Command struct {
	Action Action
	Pos    grid.Position
	Text   string
}

// ParseCommand splits an input line into a command. Anything unrecognized or
// missing its position token comes back as BadAction.
func ParseCommand(line string) Command {
	line = strings.TrimRight(line, "\r\n")
	word, rest := nextWord(line)
	switch word {
	case "set":
		posTok, text := nextWord(rest)
		if posTok == "" {
			return Command{Action: BadAction}
		}
		return Command{Action: ActionSet, Pos: grid.PositionFromString(posTok), Text: text}
	case "clear":
		posTok, _ := nextWord(rest)
		if posTok == "" {
			return Command{Action: BadAction}
		}
		return Command{Action: ActionClear, Pos: grid.PositionFromString(posTok)}
	case "scope":
		return Command{Action: ActionScope}
	case "value":
		return Command{Action: ActionValues}
	case "text":
		return Command{Action: ActionTexts}
	case "exit":
		return Command{Action: ActionExit}
	default:
		return Command{Action: BadAction}
	}
}

// nextWord peels the first whitespace-delimited word off s and returns it
// with the remainder, leading whitespace stripped from both.
func nextWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i+1:], " \t")
}

// Execute runs one command against the sheet, writing command output to out.
// It returns true when the shell should stop. Sheet errors are returned, not
// printed; the caller decides how to present them.
func Execute(sheet *spreadsheet.Sheet, cmd Command, out io.Writer) (bool, error) {
	switch cmd.Action {
	case ActionSet:
		return false, sheet.SetCell(cmd.Pos, cmd.Text)
	case ActionClear:
		return false, sheet.ClearCell(cmd.Pos)
	case ActionScope:
		size := sheet.PrintableSize()
		fmt.Fprintf(out, "(%d, %d)\n", size.Rows, size.Cols)
	case ActionValues:
		sheet.PrintValues(out)
	case ActionTexts:
		sheet.PrintTexts(out)
	case ActionExit:
		return true, nil
	default:
		fmt.Fprintln(out, "bad action")
	}
	return false, nil
}
