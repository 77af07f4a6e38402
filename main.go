package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/d-singer/batdetect2-CLI/cmd"
	"github.com/d-singer/batdetect2-CLI/internal/buildinfo"
	"github.com/d-singer/batdetect2-CLI/internal/runtime"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=...".
var (
	version   = "dev"
	buildDate = ""
	commit    = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(buildinfo.NewContext(version, buildDate, commit))
	defer func() { _ = rt.Close() }()

	err := cmd.RootCommand(rt).ExecuteContext(ctx)
	code := cmd.ExitCode(err)
	switch code {
	case cmd.ExitInterrupted:
		fmt.Fprintln(os.Stderr, "Interrupted; completed batches are saved and the next run resumes from them.")
	case cmd.ExitError:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}
