package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"
)

func main() {
	startGops()
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		if errors.Is(err, errNotFound) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logrus.Fatalf("%s: %v", os.Args[1], err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "get":
		return getCmd(rest, stdout)
	case "set", "put":
		return setCmd(rest, stdin)
	case "delete", "del":
		return deleteCmd(rest)
	case "keys":
		return keysCmd(rest, stdout)
	case "merge":
		return mergeCmd(rest, stdout)
	case "stats":
		return statsCmd(rest, stdout)
	case "snapshot":
		return snapshotCmd(rest, stdout)
	case "restore":
		return restoreCmd(rest, stdout)
	case "export":
		return exportCmd(rest, stdout)
	default:
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: bitcask <command> [options] [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  get       Print the value stored under a key")
	fmt.Fprintln(w, "  set       Store a value (argument, --file or stdin)")
	fmt.Fprintln(w, "  delete    Remove a key")
	fmt.Fprintln(w, "  keys      List live keys in order (--prefix to filter)")
	fmt.Fprintln(w, "  merge     Compact segments, keeping only live values")
	fmt.Fprintln(w, "  stats     Print store statistics as JSON")
	fmt.Fprintln(w, "  snapshot  Back up live pairs to a file or afs URL (gs://, s3://, mem://)")
	fmt.Fprintln(w, "  restore   Load a snapshot into a store")
	fmt.Fprintln(w, "  export    Copy live pairs into a SQLite table")
	fmt.Fprintln(w, "Common options: --config, --dir, --base, --segment-size, --sync, --log-level")
}

func startGops() {
	if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
		logrus.Warnf("gops: %v", err)
	}
}
