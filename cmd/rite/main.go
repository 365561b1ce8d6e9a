// rite runs a process engine for a single owner, deploying any process
// definitions given on the command line.
//
// Usage:
//
//	rite <owner> [definition.json ...]
//
// Deployment-level switches are read from RITE_* environment variables; see
// the engine package.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rite-engine/rite/engine"
	"github.com/rite-engine/rite/process"
)

// newContext returns a cancelable context that is canceled when the process
// receives a SIGTERM or SIGINT.
func newContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case <-sig:
			cancel()
		}
	}()

	return ctx, cancel
}

func main() {
	if err := run(); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: %s <owner> [definition.json ...]", os.Args[0])
	}

	ctx, cancel := newContext()
	defer cancel()

	cfg, err := engine.LoadConfig()
	if err != nil {
		return err
	}

	options, err := cfg.Options()
	if err != nil {
		return err
	}

	e := engine.New(os.Args[1], options...)

	for _, path := range os.Args[2:] {
		def, err := readDefinition(path)
		if err != nil {
			return err
		}

		if _, err := e.Deploy(ctx, def); err != nil {
			return fmt.Errorf("unable to deploy %s: %w", path, err)
		}
	}

	return e.Run(ctx)
}

// readDefinition parses a process definition from a JSON file.
func readDefinition(path string) (*process.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def process.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	return &def, nil
}
