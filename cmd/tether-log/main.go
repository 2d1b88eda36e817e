// Command tether-log views and analyzes CBOR trace files written by
// tether-monitor with the -trace flag.
//
// Usage:
//
//	tether-log <command> [flags] <trace.cbor>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSONL or CSV format
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View only alarm decisions
//	tether-log view --category alarm trace.cbor
//
//	# Follow one loss episode
//	tether-log view --episode 3f2a9c1e-... trace.cbor
//
//	# Export to CSV
//	tether-log export --format csv -o trace.csv trace.cbor
//
//	# Keep one peripheral's probes from the last hour
//	tether-log filter --peripheral AA:BB:CC:DD:EE:FF --category probe \
//	    --time-start 2026-10-18T09:00:00Z -o probes.cbor trace.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tether-alarm/tether-go/cmd/tether-log/commands"
)

const usage = `tether-log - Tether Trace Analyzer

Usage:
  tether-log <command> [flags] <trace.cbor>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSONL or CSV format
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "tether-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// tracePath returns the single positional argument or exits with usage.
func tracePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tether-log view - View trace file in human-readable format

Usage:
  tether-log view [flags] <trace.cbor>

Flags:
`)
		fs.PrintDefaults()
	}

	component := fs.String("component", "", "Filter by component (monitor, reconnector, coordinator, transport)")
	category := fs.String("category", "", "Filter by category (probe, state, alarm, reconnect, error)")
	episode := fs.String("episode", "", "Filter by loss episode ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := tracePath(fs)

	filter := commands.ViewFilter{Episode: *episode}
	if *component != "" {
		c, err := commands.ParseComponentFlag(*component)
		if err != nil {
			fail(err)
		}
		filter.Component = &c
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tether-log export - Export trace file to JSONL or CSV format

Usage:
  tether-log export [flags] <trace.cbor>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := tracePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tether-log filter - Filter trace file and write to new file

Usage:
  tether-log filter [flags] -o <output.cbor> <trace.cbor>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.PeripheralID, "peripheral", "", "Filter by peripheral address")
	fs.StringVar(&opts.EpisodeID, "episode", "", "Filter by loss episode ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Include events at or after this time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Include events before this time (RFC3339)")
	fs.StringVar(&opts.Component, "component", "", "Filter by component (monitor, reconnector, coordinator, transport)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (probe, state, alarm, reconnect, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := tracePath(fs)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file required (-o)")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tether-log stats - Show statistics about the trace file

Usage:
  tether-log stats <trace.cbor>
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := tracePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
