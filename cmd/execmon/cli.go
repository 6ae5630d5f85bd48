// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Watch    WatchCmd    `cmd:"" default:"withargs" help:"Monitor an execution event stream"`
	Validate ValidateCmd `cmd:"" help:"Check a recorded event stream for malformed lines"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// WatchCmd monitors a live or recorded event stream.
type WatchCmd struct {
	File     string `arg:"" optional:"" default:"-" help:"NDJSON event file, - for stdin"`
	Follow   bool   `short:"f" help:"Keep reading as the file grows"`
	NATSURL  string `name:"nats-url" help:"Subscribe to events over NATS instead of reading a file"`
	Subject  string `help:"NATS subject carrying events (overrides config)"`
	Config   string `help:"Config file path"`
	Plain    bool   `help:"Print log lines instead of the live view"`
	Snapshot string `help:"Write the final state as YAML to this path"`
	LogFile  string `name:"log-file" help:"Write diagnostic logs to this file"`
	LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Diagnostic log level"`
}

// ValidateCmd checks a recorded event stream.
type ValidateCmd struct {
	File string `arg:"" help:"NDJSON event file"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
