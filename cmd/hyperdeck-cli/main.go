// Command hyperdeck-cli is an interactive console for controlling a deck.
//
// Usage:
//
//	hyperdeck-cli -addr <host:port> [flags]
//
// Flags:
//
//	-addr string      Deck address (default "127.0.0.1:9993")
//	-profile string   Protocol profile YAML path
//	-capture string   Write a CBOR protocol capture to this file
//	-log-level string Log level: debug, info, warn, error (default "info")
//	-reconnect        Redial with backoff when the connection drops
//
// Interactive commands are listed by "help" at the prompt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckcontrol/hyperdeck-go/cmd/hyperdeck-cli/interactive"
	"github.com/deckcontrol/hyperdeck-go/pkg/config"
	"github.com/deckcontrol/hyperdeck-go/pkg/deck"
	"github.com/deckcontrol/hyperdeck-go/pkg/log"
	"github.com/deckcontrol/hyperdeck-go/pkg/redial"
	"github.com/deckcontrol/hyperdeck-go/pkg/transport"
)

type cliConfig struct {
	Addr      string
	Profile   string
	Capture   string
	LogLevel  string
	Reconnect bool
}

var cfg cliConfig

func init() {
	flag.StringVar(&cfg.Addr, "addr", "127.0.0.1:9993", "Deck address")
	flag.StringVar(&cfg.Profile, "profile", "", "Protocol profile YAML path")
	flag.StringVar(&cfg.Capture, "capture", "", "Write a CBOR protocol capture to this file")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.Reconnect, "reconnect", false, "Redial with backoff when the connection drops")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	profile := config.DefaultProfile()
	if cfg.Profile != "" {
		var err error
		profile, err = config.LoadProfile(cfg.Profile)
		if err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	loggers := []log.Logger{log.NewZerologAdapter(zl)}
	if cfg.Capture != "" {
		capture, err := log.NewFileLogger(cfg.Capture)
		if err != nil {
			return err
		}
		defer capture.Close()
		loggers = append(loggers, capture)
		zl.Info().Str("path", cfg.Capture).Msg("capturing protocol events")
	}

	d := deck.New(deck.Config{
		Address: cfg.Addr,
		Profile: profile,
		Logger:  log.NewMultiLogger(loggers...),
	})
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var kickReconnect func()
	if cfg.Reconnect {
		kickReconnect = startReconnect(ctx, d, zl)
	}

	if err := d.Connect(ctx); err != nil {
		if !cfg.Reconnect {
			return err
		}
		zl.Warn().Err(err).Msg("initial connect failed, retrying in background")
		kickReconnect()
	}

	console, err := interactive.New(d, cfg.Addr)
	if err != nil {
		return err
	}
	go console.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	return nil
}

// startReconnect redials whenever the session drops. The redialer is
// armed by the disconnect transition, not by polling; the returned
// function arms it manually for a failed initial connect.
func startReconnect(ctx context.Context, d *deck.Deck, zl zerolog.Logger) func() {
	kick := make(chan struct{}, 1)
	arm := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
	d.OnConnectionState(func(oldState, newState transport.State) {
		if newState == transport.StateDisconnected && oldState != transport.StateConnecting {
			arm()
		}
	})

	r := redial.New(func(ctx context.Context) error {
		return d.Connect(ctx)
	})
	r.OnAttempt = func(attempt int, delay time.Duration, err error) {
		zl.Warn().Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("redial failed")
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				zl.Warn().Msg("connection lost, redialing")
				if err := r.Run(ctx); err != nil {
					return
				}
				zl.Info().Msg("reconnected")
			}
		}
	}()
	return arm
}
