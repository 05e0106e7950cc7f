// Package main implements the MCP server for the visual calendar store.
//
// The server exposes tools to list, read, create, rename, delete, import
// and export calendars and to maintain their storage. It communicates via
// stdio JSON-RPC (Model Context Protocol).
//
// Environment variables:
//   - CALENDAR_PROJECT_DIR: Optional. Directory holding the calendar store
//     and configuration. Defaults to the working directory.
//   - CALENDAR_STORAGE_BACKEND and the other CALENDAR_* settings select and
//     configure storage.
//   - DEBUG: Optional. Enable debug logging to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JamesPrial/visual-calendar/internal/app"
	"github.com/JamesPrial/visual-calendar/internal/mcpserver"
)

func projectDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("CALENDAR_PROJECT_DIR")); dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

func run() int {
	errLogger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "mcp-server"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := projectDir()
	if err != nil {
		errLogger.Error("Failed to determine project directory", "err", err)
		return 1
	}

	a, err := app.Open(ctx, app.Options{ProjectDir: dir, Prefix: "mcp-server"})
	if err != nil {
		errLogger.Error("Failed to open calendar storage", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			errLogger.Error("Failed to close calendar storage", "err", err)
		}
	}()

	srv, err := mcpserver.NewServer(mcpserver.NewCalendarTools(a.Store, a.Repo))
	if err != nil {
		errLogger.Error("Failed to create MCP server", "err", err)
		return 1
	}

	stdLogger := a.Logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})
	if err := server.ServeStdio(srv, server.WithErrorLogger(stdLogger)); err != nil {
		errLogger.Error("Server error", "err", err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(run())
}
