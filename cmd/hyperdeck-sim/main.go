// Command hyperdeck-sim runs a simulated deck for development and testing.
//
// Usage:
//
//	hyperdeck-sim [flags]
//
// Flags:
//
//	-addr string      Listen address (default "127.0.0.1:9993")
//	-fixture string   Deck fixture YAML path (default: built-in two-slot deck)
//	-log-level string Log level: debug, info, warn, error (default "info")
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/deckcontrol/hyperdeck-go/internal/simdeck"
)

var (
	addr     = flag.String("addr", "127.0.0.1:9993", "Listen address")
	fixture  = flag.String("fixture", "", "Deck fixture YAML path")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q", *logLevel)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	f := simdeck.DefaultFixture()
	if *fixture != "" {
		f, err = simdeck.LoadFixture(*fixture)
		if err != nil {
			return err
		}
	}

	srv, err := simdeck.New(f, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(*addr); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	return srv.Close()
}
