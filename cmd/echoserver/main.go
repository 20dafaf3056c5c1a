// Command echoserver runs the interoperability harness used by client test
// suites:
//
//	echoserver <port> [transport]
//
// Only the websocket transport is served. Sentinel lines go to stdout, logs
// to stderr, and anything read on stdin is copied to stderr.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ramory-l/sockhub"
	"github.com/ramory-l/sockhub/echo"
)

var (
	mainNS = flag.String("main", "/main", "namespace serving the echo events")
	delay  = flag.Duration("ns2-delay", 200*time.Millisecond, "delay of the sends triggered by /ns2 connections")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := run(logger, flag.Args()); err != nil {
		logger.Error("echo server failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: echoserver <port> [transport]")
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("port %q: %w", args[0], err)
	}
	if len(args) > 1 && args[1] != "websocket" {
		return fmt.Errorf("transport %q is not supported", args[1])
	}

	config, err := sockhub.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return err
	}
	broker := sockhub.NewBroker(config, sockhub.WithSlog(logger))
	defer broker.Close()

	h := echo.New(broker,
		echo.WithMainNamespace(*mainNS),
		echo.WithDelay(*delay),
		echo.WithLogger(logger),
	)

	go func() { _, _ = io.Copy(os.Stderr, os.Stdin) }()

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	h.Ready()

	srv := &http.Server{Handler: broker, ReadHeaderTimeout: 10 * time.Second}
	return srv.Serve(ln)
}
