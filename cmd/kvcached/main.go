// Command kvcached runs the RESP key-value server: the io_uring event loop
// on the calling goroutine, and an optional admin HTTP surface (metrics,
// pprof) on a background goroutine.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/cleanbaja/kvcache/internal/config"
	"github.com/cleanbaja/kvcache/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("kvcached: %w", err)
	}
	slog.SetDefault(logger)

	srv, err := server.New()
	if err != nil {
		return fmt.Errorf("kvcached: %w", err)
	}
	defer srv.Close()

	if addr, ok := adminAddr(); ok {
		admin := server.NewAdminServer(addr, srv.Registry())
		admin.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			admin.Shutdown(ctx)
		}()
	}

	return srv.Run()
}

// buildLogger configures slog per KVCACHE_LOG_LEVEL/KVCACHE_LOG_DIR: text
// handler to stderr by default, or hourly-rotated files under the given
// directory when one is set.
func buildLogger() (*slog.Logger, error) {
	var w io.Writer = os.Stderr

	if dir := os.Getenv("KVCACHE_LOG_DIR"); dir != "" {
		pattern := filepath.Join(dir, "kvcached.log.%Y%m%d%H")
		link := filepath.Join(dir, "kvcached.log")
		rl, err := rotatelogs.New(
			pattern,
			rotatelogs.WithLinkName(link),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		w = rl
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel()})
	return slog.New(handler), nil
}

func logLevel() slog.Level {
	switch os.Getenv("KVCACHE_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// adminAddr reports the admin surface's bind address and whether it
// should run at all: unset means the default address, set-but-empty
// disables it.
func adminAddr() (string, bool) {
	addr, set := os.LookupEnv("KVCACHE_ADMIN_ADDR")
	if !set {
		return config.DefaultAdminAddr, true
	}
	if addr == "" {
		return "", false
	}
	return addr, true
}
