package main

import (
	"flag"
	"fmt"
	"os"

	persistlog "endlessterrain.io/internal/persistence/log"
	"endlessterrain.io/internal/sim/stream"
)

func main() {
	var (
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		showChunk = flag.Bool("chunks", true, "print the final state of every chunk")
		fromTick  = flag.Uint64("from_tick", 0, "ignore events before this tick (optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop after this tick (inclusive, optional)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	files, err := persistlog.ListEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	sum := newSummary()
	for _, path := range files {
		err := persistlog.ReadEventFile(path, func(e stream.Event) error {
			if e.Tick < *fromTick {
				return nil
			}
			if *toTick != 0 && e.Tick > *toTick {
				return errStop
			}
			return sum.Add(e)
		})
		if err == errStop {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	sum.Print(os.Stdout, *showChunk)
	if len(sum.Violations) > 0 {
		os.Exit(1)
	}
}
