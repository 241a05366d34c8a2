package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

type options struct {
	foreground bool
	configPath string
	command    []string
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [options] [--] command [args...]\n", name)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -n          Do not daemonize")
	fmt.Fprintln(w, "  -c <path>   Read configuration from path")
	fmt.Fprintln(w, "  -h          Print this help message")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Command will be run when an input device is attached or detached,")
	fmt.Fprintln(w, "or when a display output is connected or disconnected.")
}

// parseArgs returns the parsed options, or ok=false with the exit status
// to use when the process should stop here.
func parseArgs(args []string, stderr io.Writer) (opts options, code int, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	fs.BoolVar(&opts.foreground, "n", false, "do not daemonize")
	fs.StringVar(&opts.configPath, "c", "", "configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, 0, false
		}
		return opts, 1, false
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return opts, 1, false
	}
	opts.command = fs.Args()
	return opts, 0, true
}
