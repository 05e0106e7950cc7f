// Command calendar manages the saved calendars of a project from the
// terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/JamesPrial/visual-calendar/internal/app"
)

const version = "v1.0.0"

// CLI is the command tree.
type CLI struct {
	Version kong.VersionFlag
	Project string `help:"Project directory holding configuration and stores." type:"path" default:"." env:"CALENDAR_PROJECT_DIR"`

	List    ListCmd    `cmd:"" help:"List saved calendars." default:"1"`
	Show    ShowCmd    `cmd:"" help:"Show one calendar."`
	Create  CreateCmd  `cmd:"" help:"Create a calendar."`
	Rename  RenameCmd  `cmd:"" help:"Rename a calendar."`
	Delete  DeleteCmd  `cmd:"" help:"Delete a calendar."`
	Export  ExportCmd  `cmd:"" help:"Export a calendar as JSON."`
	Import  ImportCmd  `cmd:"" help:"Import an exported calendar."`
	Preview PreviewCmd `cmd:"" help:"Render a preview thumbnail from an HTML file."`
	Cleanup CleanupCmd `cmd:"" help:"Evict calendars beyond the retention limit."`
	Verify  VerifyCmd  `cmd:"" help:"Check the calendar index against stored documents."`
	Stats   StatsCmd   `cmd:"" help:"Show storage usage."`
}

// Context is passed to every command's Run method.
type Context struct {
	Ctx context.Context
	App *app.App
	In  io.Reader
	Out io.Writer
	Now func() time.Time
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var cli CLI
	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("calendar"),
		kong.Description("Manage saved visual calendars"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": version},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help and --version
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, app.Options{ProjectDir: cli.Project, Prefix: "calendar", Stderr: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(stderr, "Error: failed to close storage: %v\n", err)
		}
	}()

	err = kctx.Run(&Context{Ctx: ctx, App: a, In: stdin, Out: stdout, Now: time.Now})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
