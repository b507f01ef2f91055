// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the refingest CLI: a local control plane and
// one-shot runner for the bibliographic-attachment ingestion pipeline
// (spec §4.10/§4.11).
//
// Usage:
//
//	refingest serve                 Start the HTTP control plane
//	refingest ingest                Run one ingestion task to completion
//	refingest status                Show tasks known to a running server
//	refingest config                Show current configuration (masked)
//	refingest progress               Show the local progress.json hint file
//	refingest completion <shell>    Generate shell completion script
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/ui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to the runtime config JSON file (default: ./refingest_config.json)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument so subcommand flags
	// (e.g. "ingest --all-items") reach the subcommand's own FlagSet
	// instead of being rejected here.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `refingest - bibliographic attachment ingestion pipeline

Usage:
  refingest <command> [options]

Commands:
  serve         Start the HTTP control plane (spec C10)
  ingest        Run one ingestion task to completion and exit
  status        Show tasks known to a running control plane
  config        Show current configuration (sensitive fields masked)
  progress      Show the local progress.json optimization hint
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  -c, --config      Path to the runtime config JSON file
  -V, --version     Show version and exit

Examples:
  refingest serve --addr :8099
  refingest ingest --collections ABCD1234,EFGH5678
  refingest ingest --all-items --no-recursive
  refingest status --json
  refingest config

For detailed command help: refingest <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("refingest version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "serve":
		os.Exit(runServe(cmdArgs, *configPath, globals))
	case "ingest":
		os.Exit(runIngest(cmdArgs, *configPath, globals))
	case "status":
		runStatus(cmdArgs, globals)
	case "config":
		runConfig(cmdArgs, *configPath, globals)
	case "progress":
		runProgress(cmdArgs, globals)
	case "completion":
		runCompletion(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
