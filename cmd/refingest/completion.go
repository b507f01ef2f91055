// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/errors"
)

// bashCompletionTemplate is the bash completion script for refingest.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for refingest
# Installation:
#   source <(refingest completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(refingest completion bash)' >> ~/.bashrc

_refingest_completion() {
    local cur prev commands
    commands="serve ingest status config progress completion"

    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--version --json --no-color --verbose --quiet --config" -- ${cur}) )
        return 0
    fi

    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        serve)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--addr --data-dir" -- ${cur}) )
            fi
            ;;
        ingest)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--collections --all-items --interactive --no-recursive --page-size --data-dir --progress-file" -- ${cur}) )
            fi
            ;;
        status)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--server --task --timeout" -- ${cur}) )
            fi
            ;;
        config)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--set --reset" -- ${cur}) )
            fi
            ;;
        progress)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--progress-file --failed-only" -- ${cur}) )
            fi
            ;;
        completion)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _refingest_completion refingest
`

// zshCompletionTemplate is the zsh completion script for refingest.
const zshCompletionTemplate = `#compdef refingest

# Zsh completion script for refingest
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      refingest completion zsh > "${fpath[1]}/_refingest"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_refingest() {
    local -a commands
    commands=(
        'serve:Start the HTTP control plane'
        'ingest:Run one ingestion task to completion'
        'status:Show tasks known to a running control plane'
        'config:Show current configuration'
        'progress:Show the local progress.json hint'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--json[Output in JSON format]' \
        '--no-color[Disable color output]' \
        '--config[Path to the runtime config JSON file]:config file:_files -g "*.json"' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                serve)
                    _arguments \
                        '--addr[HTTP listen address]:address:' \
                        '--data-dir[Base directory for assets and intermediate markdown]:directory:_files -/'
                    ;;
                ingest)
                    _arguments \
                        '--collections[Comma-separated collection keys]:keys:' \
                        '--all-items[Ingest every item in the library]' \
                        '--interactive[Prompt to pick collections]' \
                        '--no-recursive[Do not expand into subcollections]' \
                        '--page-size[Override zotero.page_size for this run]:size:' \
                        '--data-dir[Base directory for assets and intermediate markdown]:directory:_files -/' \
                        '--progress-file[Path to progress.json]:file:_files'
                    ;;
                status)
                    _arguments \
                        '--server[Base URL of a running refingest server]:url:' \
                        '--task[Show one task by ID]:task id:' \
                        '--timeout[HTTP request timeout]:duration:'
                    ;;
                config)
                    _arguments \
                        '--set[Set one field as category.field=value]:field=value:' \
                        '--reset[Reset configuration to schema defaults]'
                    ;;
                progress)
                    _arguments \
                        '--progress-file[Path to progress.json]:file:_files' \
                        '--failed-only[Show only failed entries]'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_refingest
`

// fishCompletionTemplate is the fish completion script for refingest.
const fishCompletionTemplate = `# Fish completion script for refingest
# Installation:
#   1. Load completions for current session:
#      refingest completion fish | source
#   2. Install permanently:
#      refingest completion fish > ~/.config/fish/completions/refingest.fish

complete -c refingest -f -n "__fish_use_subcommand" -a "serve" -d "Start the HTTP control plane"
complete -c refingest -f -n "__fish_use_subcommand" -a "ingest" -d "Run one ingestion task to completion"
complete -c refingest -f -n "__fish_use_subcommand" -a "status" -d "Show tasks known to a running control plane"
complete -c refingest -f -n "__fish_use_subcommand" -a "config" -d "Show current configuration"
complete -c refingest -f -n "__fish_use_subcommand" -a "progress" -d "Show the local progress.json hint"
complete -c refingest -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c refingest -l version -d "Show version and exit"
complete -c refingest -l json -d "Output in JSON format"
complete -c refingest -l no-color -d "Disable color output"
complete -c refingest -l config -d "Path to the runtime config JSON file" -r

# serve command flags
complete -c refingest -n "__fish_seen_subcommand_from serve" -l addr -d "HTTP listen address" -r
complete -c refingest -n "__fish_seen_subcommand_from serve" -l data-dir -d "Base directory for assets and intermediate markdown" -r

# ingest command flags
complete -c refingest -n "__fish_seen_subcommand_from ingest" -l collections -d "Comma-separated collection keys" -r
complete -c refingest -n "__fish_seen_subcommand_from ingest" -l all-items -d "Ingest every item in the library"
complete -c refingest -n "__fish_seen_subcommand_from ingest" -l interactive -d "Prompt to pick collections"
complete -c refingest -n "__fish_seen_subcommand_from ingest" -l no-recursive -d "Do not expand into subcollections"
complete -c refingest -n "__fish_seen_subcommand_from ingest" -l page-size -d "Override zotero.page_size for this run" -r
complete -c refingest -n "__fish_seen_subcommand_from ingest" -l progress-file -d "Path to progress.json" -r

# status command flags
complete -c refingest -n "__fish_seen_subcommand_from status" -l server -d "Base URL of a running refingest server" -r
complete -c refingest -n "__fish_seen_subcommand_from status" -l task -d "Show one task by ID" -r

# config command flags
complete -c refingest -n "__fish_seen_subcommand_from config" -l set -d "Set one field as category.field=value" -r
complete -c refingest -n "__fish_seen_subcommand_from config" -l reset -d "Reset configuration to schema defaults"

# progress command flags
complete -c refingest -n "__fish_seen_subcommand_from progress" -l progress-file -d "Path to progress.json" -r
complete -c refingest -n "__fish_seen_subcommand_from progress" -l failed-only -d "Show only failed entries"

# completion command arguments
complete -c refingest -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c refingest -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c refingest -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, printing a
// shell-specific completion script for bash, zsh, or fish to stdout.
func runCompletion(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: refingest completion <shell>

Description:
  Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Examples:
  refingest completion bash
  source <(refingest completion bash)
  refingest completion zsh > "${fpath[1]}/_refingest"
  refingest completion fish > ~/.config/fish/completions/refingest.fish
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'refingest completion bash', 'refingest completion zsh', or 'refingest completion fish'",
		), globals.JSON)
	}

	switch shell := fs.Arg(0); shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell %q is not supported. Valid options: bash, zsh, fish", shell),
			"Run 'refingest completion bash', 'refingest completion zsh', or 'refingest completion fish'",
		), globals.JSON)
	}
}
