package main

import (
	"fmt"
	"os"

	"tabula/kernel"
	"tabula/repl"
	"tabula/spreadsheet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sub := os.Args[1]
	switch sub {
	case "-h", "--help", "help":
		usage()
		return
	case "repl":
		os.Exit(replCommand())
	case "serve":
		os.Exit(serveCommand(os.Args[2:]))
	case "kernel":
		os.Exit(kernelCommand(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  tabula <command> [arguments]\n")
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  repl                     start the interactive sheet shell\n")
	fmt.Fprintf(os.Stderr, "  serve [addr]             start the websocket sheet server (default :8080)\n")
	fmt.Fprintf(os.Stderr, "  kernel <connection_file> start the Jupyter kernel\n")
	fmt.Fprintf(os.Stderr, "  help                     show this help message\n")
}

func replCommand() int {
	repl.Start(os.Stdin, os.Stdout)
	return 0
}

func serveCommand(args []string) int {
	addr := ":8080"
	if len(args) > 0 {
		addr = args[0]
	}
	srv := spreadsheet.NewServer()
	if err := srv.Start(addr); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return 1
	}
	return 0
}

func kernelCommand(args []string) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: tabula kernel <connection_file>\n")
		return 2
	}
	k, err := kernel.NewKernel(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernel error: %v\n", err)
		return 1
	}
	if err := k.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "kernel error: %v\n", err)
		return 1
	}
	return 0
}
