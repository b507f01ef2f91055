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
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/biblioforge/refingest/internal/errors"
	"github.com/biblioforge/refingest/internal/output"
	"github.com/biblioforge/refingest/internal/ui"
	"github.com/biblioforge/refingest/pkg/config"
)

// runConfig executes the 'config' CLI command: display the current
// runtime configuration with sensitive fields masked via
// pkg/config.MaskedSnapshot, or apply a --set/--reset change.
//
// Examples:
//
//	refingest config
//	refingest config --json
//	refingest config --set dify.base_url=http://localhost:5001/v1
//	refingest config --reset
func runConfig(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	sets := fs.StringArray("set", nil, "Set one field as category.field=value (repeatable)")
	reset := fs.Bool("reset", false, "Reset configuration to schema defaults")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: refingest config [options]

Description:
  Display the current runtime configuration. Fields the schema marks
  sensitive (API keys) are always masked, even in JSON output.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  refingest config
  refingest config --json
  refingest config --set dify.base_url=http://localhost:5001/v1
  refingest config --reset
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	provider, err := loadConfigProvider(resolveConfigPath(configPath))
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if *reset {
		if _, err := provider.Reset(); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot reset configuration", err.Error(),
				"This is a bug. Please report it", err), globals.JSON)
		}
		ui.Success("configuration reset to defaults")
	}

	if len(*sets) > 0 {
		patch, err := parseSetFlags(*sets)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if _, err := provider.Update(patch); err != nil {
			errors.FatalError(errors.NewConfigError(
				"Cannot apply configuration change", err.Error(),
				"Check the category.field name and value", err), globals.JSON)
		}
		ui.Success("configuration updated")
	}

	masked := config.MaskedSnapshot(provider.GetSnapshot(), provider.Schema())

	if globals.JSON {
		if err := output.JSON(masked.Data); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot encode configuration as JSON", err.Error(),
				"This is a bug. Please report it", err), globals.JSON)
		}
		return
	}
	printConfigHuman(masked)
}

// parseSetFlags turns "category.field=value" strings into the patch shape
// config.Provider.Update expects. Values are kept as strings; Provider's
// own coercion (pkg/config/coerce.go) converts them to the field's
// declared type.
func parseSetFlags(sets []string) (map[string]map[string]any, error) {
	patch := make(map[string]map[string]any)
	for _, s := range sets {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return nil, errors.NewInputError(
				"Invalid --set value",
				fmt.Sprintf("%q is not in category.field=value form", s),
				"Use e.g. --set dify.base_url=http://localhost:5001/v1")
		}
		key, value := s[:eq], s[eq+1:]
		dot := strings.IndexByte(key, '.')
		if dot < 0 {
			return nil, errors.NewInputError(
				"Invalid --set field",
				fmt.Sprintf("%q is not in category.field form", key),
				"Use e.g. --set dify.base_url=...")
		}
		category, field := key[:dot], key[dot+1:]
		if patch[category] == nil {
			patch[category] = make(map[string]any)
		}
		patch[category][field] = value
	}
	return patch, nil
}

func printConfigHuman(snap config.Snapshot) {
	ui.Header("refingest configuration")

	categories := make([]string, 0, len(snap.Data))
	for cat := range snap.Data {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		ui.SubHeader(cat + ":")
		fields := snap.Data[cat]
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		sort.Strings(names)
		for _, f := range names {
			fmt.Printf("  %-28s %v\n", f+":", fields[f])
		}
		fmt.Println()
	}
}
