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

// Package infra prepares the environment the agent runs in
package infra

import (
	"os"
	"path/filepath"

	"github.com/pagekeep/pagekeep/pkg/agent/config"
	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pkg/errors"
)

// Ctx holds the resolved runtime environment of the agent
type Ctx struct {
	Version    string
	Config     config.Config
	ConfigPath string
}

// Init resolves the config and data directories, creates the config file
// with defaults on first run, and applies the configured log level. An
// empty dataDirFlag falls back to a directory next to the config file.
func Init(version, dataDirFlag string) (*Ctx, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.Wrap(err, "resolving user config directory")
	}

	configPath := config.GetPath(configDir)

	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = filepath.Join(configDir, consts.PagekeepDirName)
	}

	cf, err := config.Init(configPath, dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "initializing config")
	}

	if err := os.MkdirAll(cf.DataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	log.SetLevel(cf.LogLevel)

	return &Ctx{Version: version, Config: cf, ConfigPath: configPath}, nil
}

// StorePath returns the path of the durable store database
func (c *Ctx) StorePath() string {
	return filepath.Join(c.Config.DataDir, consts.StoreDBFileName)
}

// CachePath returns the path of the byte cache directory
func (c *Ctx) CachePath() string {
	return filepath.Join(c.Config.DataDir, consts.CacheDirName)
}
