package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artpar/composer/internal/core/definition"
	"github.com/artpar/composer/internal/core/diag"
	"github.com/artpar/composer/internal/core/domain"
	"github.com/artpar/composer/internal/engine"
	"github.com/artpar/composer/internal/shell/runtime"
)

// =============================================================================
// analyze
// =============================================================================

// fileResult is the JSON output of one analysed file.
type fileResult struct {
	File   string         `json:"file"`
	Error  string         `json:"error,omitempty"`
	Report *domain.Report `json:"report,omitempty"`
}

func runAnalyze(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	asJSON := fs.Bool("json", false, "Print reports as JSON")
	persist := fs.Bool("store", false, "Persist reports to the configured database")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, usage)
		return ExitConfigError
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	logger := newLogger(cfg, stderr)

	c := NewContainer(cfg, logger, *persist)
	a, err := c.Analyzer()
	if err != nil {
		logger.Error("failed to create analyzer", "error", err)
		return exitCode(err, ExitConfigError)
	}
	if *persist {
		if s, err := c.Store(); err == nil {
			defer s.Close()
		}
	}

	sources := make([]engine.Source, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			return ExitInputError
		}
		sources = append(sources, engine.Source{File: path, Data: data})
	}

	outcomes := a.AnalyzeBatch(context.Background(), sources)
	if *asJSON {
		writeJSONResults(stdout, outcomes)
	} else {
		writeTextResults(stdout, outcomes)
	}

	for _, o := range outcomes {
		if o.Err != nil {
			return ExitInputError
		}
	}
	if engine.Failed(outcomes) {
		return ExitAnalysisFailed
	}
	return ExitSuccess
}

func writeJSONResults(w io.Writer, outcomes []engine.Outcome) {
	results := make([]fileResult, len(outcomes))
	for i, o := range outcomes {
		results[i] = fileResult{File: o.File, Report: o.Report}
		if o.Err != nil {
			results[i].Error = o.Err.Error()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)
}

func writeTextResults(w io.Writer, outcomes []engine.Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s: invalid definition: %v\n", o.File, o.Err)
			continue
		}
		r := o.Report
		for _, d := range r.Diagnostics {
			if d.Severity > diag.SeverityHidden {
				fmt.Fprintln(w, d.String())
			}
		}
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%s: %s %s (%d errors, %d warnings", o.File, r.Name, status, r.Errors, r.Warnings)
		if failed := r.FailedRoots(); len(failed) > 0 {
			fmt.Fprintf(w, "; failed roots: %s", strings.Join(failed, ", "))
		}
		fmt.Fprintln(w, ")")
	}
}

// =============================================================================
// resolve
// =============================================================================

// argFlags collects repeated -arg name=value flags.
type argFlags map[string]any

func (a argFlags) String() string {
	return fmt.Sprint(map[string]any(a))
}

func (a argFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("argument %q is not name=value", s)
	}
	a[name] = runtime.ParseLiteral(value)
	return nil
}

func runResolve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	rootArgs := argFlags{}
	fs.Var(rootArgs, "arg", "Argument value as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, usage)
		return ExitConfigError
	}
	path, root := fs.Arg(0), fs.Arg(1)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	logger := newLogger(cfg, stderr)

	a, err := NewContainer(cfg, logger, false).Analyzer()
	if err != nil {
		logger.Error("failed to create analyzer", "error", err)
		return exitCode(err, ExitConfigError)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return ExitInputError
	}

	v, err := a.Resolve(context.Background(), path, data, root, rootArgs)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		var parseErr *definition.ParseError
		switch {
		case errors.Is(err, engine.ErrAnalysisFailed):
			return ExitAnalysisFailed
		case errors.As(err, &parseErr), errors.Is(err, definition.ErrEmptyInput):
			return ExitInputError
		}
		return ExitResolveError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(runtime.Describe(v))
	return ExitSuccess
}
