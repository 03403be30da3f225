// Command notifyctl is an operator CLI for the bus tracking API. It sends
// broadcasts and route tests and inspects route tokens and delivery history.
//
// Usage:
//
//	notifyctl [-api URL] [-timeout 30s] send-all [-title T] [-message M]
//	notifyctl [-api URL] test-route -route ID [-title T] [-message M]
//	notifyctl [-api URL] tokens -route ID
//	notifyctl [-api URL] history [-trip ID] [-limit N]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/bustracking/bustracking/internal/api/models"
	"github.com/bustracking/bustracking/internal/provider/resilience"
)

const defaultAPIURL = "http://localhost:8080"

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("notifyctl", flag.ContinueOnError)
	apiURL := global.String("api", envOr("NOTIFYCTL_API_URL", defaultAPIURL), "bus tracking API base URL")
	timeout := global.Duration("timeout", 30*time.Second, "per-request timeout")
	if err := global.Parse(args); err != nil {
		return usageError(err.Error())
	}

	rest := global.Args()
	if len(rest) == 0 {
		return usageError("usage: notifyctl [-api URL] <send-all|test-route|tokens|history> [flags]")
	}

	// Notifications are not idempotent, so a failed call is never retried.
	client := newAPIClient(*apiURL, resilience.ClientConfig{
		Name:       "api",
		Timeout:    *timeout,
		MaxRetries: 0,
	})

	cmd, cmdArgs := rest[0], rest[1:]
	var (
		raw json.RawMessage
		err error
	)
	switch cmd {
	case "send-all":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		title := fs.String("title", "", "notification title (server default when empty)")
		message := fs.String("message", "", "notification body (server default when empty)")
		if err := fs.Parse(cmdArgs); err != nil {
			return usageError(err.Error())
		}
		raw, err = client.sendAll(ctx, models.BroadcastRequest{Title: *title, Message: *message})

	case "test-route":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		route := fs.String("route", "", "route id (required)")
		title := fs.String("title", "", "notification title")
		message := fs.String("message", "", "notification body")
		if err := fs.Parse(cmdArgs); err != nil {
			return usageError(err.Error())
		}
		if *route == "" {
			return usageError("test-route: -route is required")
		}
		raw, err = client.testRoute(ctx, models.TestRouteRequest{RouteID: models.ID(*route), Title: *title, Message: *message})

	case "tokens":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		route := fs.String("route", "", "route id (required)")
		if err := fs.Parse(cmdArgs); err != nil {
			return usageError(err.Error())
		}
		if *route == "" {
			return usageError("tokens: -route is required")
		}
		raw, err = client.routeTokens(ctx, *route)

	case "history":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		trip := fs.String("trip", "", "only deliveries for this trip")
		limit := fs.Int("limit", 0, "maximum number of entries")
		if err := fs.Parse(cmdArgs); err != nil {
			return usageError(err.Error())
		}
		raw, err = client.history(ctx, *trip, *limit)

	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	if err != nil {
		return err
	}

	return printJSON(out, raw)
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Not JSON; print it as received.
		_, err = out.Write(append(raw, '\n'))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
