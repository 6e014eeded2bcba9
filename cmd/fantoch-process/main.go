// Command fantoch-process runs a single replication engine process: it
// parses its CLI flags, builds a runtime.Node, and
// serves peer and client connections until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/isgasho/fantoch/config"
	"github.com/isgasho/fantoch/internal/logging"
	"github.com/isgasho/fantoch/runtime"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fantoch-process", flag.ContinueOnError)

	// Basic is the only protocol wired into this binary, and it supports
	// running more than one protocol worker (Basic.Parallel() == true).
	const basicSupportsParallelism = true

	cfg, err := config.ParseProcessFlags(fs, args, basicSupportsParallelism)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := logging.Default(zerolog.InfoLevel)
	log = logging.WithProcess(log, uint64(cfg.ID), uint64(cfg.ShardID))

	node, err := runtime.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to construct node")
		if errors.Is(err, runtime.ErrBind) {
			return 2
		}
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	if err := node.Run(ctx); err != nil {
		log.Error().Err(err).Msg("node exited with error")
		switch {
		case errors.Is(err, runtime.ErrBind):
			return 2
		case errors.Is(err, runtime.ErrHandshake):
			return 3
		default:
			return 1
		}
	}
	return 0
}
