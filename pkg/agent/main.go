/* Copyright 2025 Pagekeep Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"os"
	"strings"

	"github.com/pagekeep/pagekeep/pkg/agent/infra"
	"github.com/pagekeep/pagekeep/pkg/agent/term"
	"github.com/pkg/errors"

	// commands
	"github.com/pagekeep/pagekeep/pkg/agent/cmd/root"
	"github.com/pagekeep/pagekeep/pkg/agent/cmd/start"
	"github.com/pagekeep/pagekeep/pkg/agent/cmd/version"
)

// versionTag is populated during link time
var versionTag = "master"

// parseDataDir extracts the --dataDir flag value from command line
// arguments regardless of where it appears, because it can follow the
// subcommand and root.ParseFlags only parses flags before it.
func parseDataDir(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "--dataDir=") {
			return strings.TrimPrefix(arg, "--dataDir=")
		}
		if arg == "--dataDir" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	dataDir := parseDataDir(os.Args[1:])

	ctx, err := infra.Init(versionTag, dataDir)
	if err != nil {
		panic(errors.Wrap(err, "initializing environment"))
	}

	root.Register(start.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		term.Error(err.Error() + "\n")
		os.Exit(1)
	}
}
