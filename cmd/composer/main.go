package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `usage:
  composer analyze [-config file] [-json] [-store] definition.yaml...
  composer resolve [-config file] [-arg name=value]... definition.yaml root
  composer serve [-config file]
  composer version`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return ExitConfigError
	}

	switch args[0] {
	case "analyze":
		return runAnalyze(args[1:], stdout, stderr)
	case "resolve":
		return runResolve(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "composer %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
	return ExitConfigError
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)
	logger.Info("starting composer",
		"version", Version,
		"config", *configPath,
	)

	server, err := NewServer(NewContainer(cfg, logger, true))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return exitCode(err, ExitConfigError)
	}

	if err := server.Start(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return exitCode(err, ExitHTTPServerError)
	}

	return ExitSuccess
}
