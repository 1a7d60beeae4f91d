package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"tabula/formula"
	"tabula/spreadsheet"
)

const PROMPT = "sheet> "

// Start runs the interactive shell until `exit` or end of input. When in and
// out are both terminals the line editor takes over; otherwise input is read
// line by line.
func Start(in io.Reader, out io.Writer) {
	sheet := spreadsheet.New()

	var (
		scanner *bufio.Scanner
		tty     *ttyInput
	)
	if ti, ok := newTTYInput(in, out); ok {
		tty = ti
		defer tty.Close()
	} else {
		scanner = bufio.NewScanner(in)
	}

	sessionOut := out
	if tty != nil {
		// In raw TTY mode, normalize LF to CRLF so lines start in column 0.
		sessionOut = newTTYLineWriter(out)
	}

	fmt.Fprintf(sessionOut, "Tabula - interactive sheet\n")
	fmt.Fprintf(sessionOut, "Commands: set <POS> <TEXT>, clear <POS>, scope, value, text, exit\n\n")

	for {
		var (
			line string
			ok   bool
		)
		if tty != nil {
			line, ok = tty.readLine(PROMPT)
		} else {
			fmt.Fprint(out, PROMPT)
			ok = scanner.Scan()
			line = scanner.Text()
		}
		if !ok {
			return
		}

		cmd := ParseCommand(line)
		if tty != nil && (cmd.Action == ActionValues || cmd.Action == ActionTexts) {
			clearScreen(sessionOut)
		}

		exit, err := Execute(sheet, cmd, sessionOut)
		if err != nil {
			fmt.Fprintln(sessionOut, ErrorMessage(err))
			continue
		}
		if exit {
			return
		}
	}
}

// ErrorMessage turns a sheet error into the line the shell shows the user.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, spreadsheet.ErrInvalidPosition):
		return "cell position is malformed or out of range"
	case errors.Is(err, spreadsheet.ErrCircularDependency):
		return "formula would introduce a circular dependency"
	case errors.Is(err, formula.ErrParse):
		return err.Error()
	default:
		return err.Error()
	}
}
