// Package main is the entry point for the execution monitor CLI.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for NATS credentials and similar settings
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("execmon"),
		kong.Description("Live monitor for agent execution event streams."),
		kong.UsageOnError(),
		kongVars(),
	)

	var code int
	switch commandName(ctx.Command()) {
	case "watch":
		code = runWatch(cli.Watch, os.Stdout, os.Stderr)
	case "validate":
		code = runValidate(cli.Validate, os.Stdout)
	case "version":
		fmt.Printf("execmon version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", ctx.Command())
		code = 1
	}
	os.Exit(code)
}

// commandName strips positional placeholders from a kong command path.
func commandName(path string) string {
	fields := strings.Fields(path)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
