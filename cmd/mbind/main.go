// mbind CLI - packs and inspects class archives, checks mbind.toml
// manifests and runs the binding layer's end-to-end demo.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = warnings, 1 = notices, 2 = info, 3 = debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mbind [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  pack <classes.toml> -o <out.mar>   Pack class declarations into an archive\n")
		fmt.Fprintf(os.Stderr, "  list <archive.mar>...              Show the classes an archive declares\n")
		fmt.Fprintf(os.Stderr, "  check [-update] [dir]              Validate mbind.toml and its archives\n")
		fmt.Fprintf(os.Stderr, "  demo [dir]                         Run the end-to-end scenarios\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	configureLogging(*verbose)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	args := flag.Args()[1:]
	var err error
	switch flag.Arg(0) {
	case "pack":
		err = handlePackCommand(args)
	case "list":
		err = handleListCommand(args, os.Stdout)
	case "check":
		err = handleCheckCommand(args, os.Stdout)
	case "demo":
		err = handleDemoCommand(args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging maps -v onto commonlog, where verbosity -1 is the warning
// level.
func configureLogging(verbose int) {
	commonlog.Configure(verbose-1, nil)
}
