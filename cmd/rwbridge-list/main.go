// Command rwbridge-list scans the configured VST3 container roots and
// prints what it finds, without spawning a worker or loading anything.
// It is a diagnostic tool, the equivalent of the teacher's small
// cmd/tnctest-style utilities, not part of the bridge API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rack-wine/bridge/discovery"
	"github.com/spf13/pflag"
)

func main() {
	var prefix = pflag.StringP("prefix", "p", os.Getenv("WINEPREFIX"), "compatibility-runtime prefix to scan under")
	var root = pflag.StringArrayP("root", "r", nil, "additional root to scan (repeatable); replaces the defaults when given")
	var announce = pflag.Bool("announce", false, "advertise this host via DNS-SD while listing")
	var announcePort = pflag.Int("announce-port", 47100, "port to advertise when --announce is set")
	var verbose = pflag.BoolP("verbose", "v", false, "enable debug logging")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	var logger = log.Default()
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	var roots = *root
	if len(roots) == 0 {
		if *prefix == "" {
			fmt.Fprintln(os.Stderr, "no --prefix given and WINEPREFIX is unset; pass --root explicitly")
			os.Exit(1)
		}
		roots = discovery.DefaultRoots(*prefix)
	}

	var scanner = discovery.New(roots, logger)

	if *announce {
		var ctx, cancel = context.WithCancel(context.Background())
		defer cancel()

		go func() {
			if err := scanner.Announce(ctx, *announcePort); err != nil {
				logger.Error("dns-sd announce failed", "err", err)
			}
		}()

		// Give the responder a moment to bind before the scan output
		// interleaves with its own logging.
		time.Sleep(100 * time.Millisecond)
	}

	var found = scanner.Scan()
	if len(found) == 0 {
		fmt.Println("no plug-ins found")
		return
	}

	for _, d := range found {
		fmt.Printf("%-32s %-12s %s\n", d.Name, d.Category, d.Path)
	}
}
