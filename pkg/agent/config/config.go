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

// Package config loads and writes the agent configuration file
package config

import (
	"os"
	"path/filepath"

	"github.com/pagekeep/pagekeep/pkg/agent/consts"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DefaultOriginEndpoint is the origin endpoint used when none is configured
const DefaultOriginEndpoint = "http://localhost:8000/api"

// Config holds the agent configuration
type Config struct {
	OriginEndpoint        string `yaml:"originEndpoint"`
	ListenAddr            string `yaml:"listenAddr"`
	DataDir               string `yaml:"dataDir"`
	CacheRetentionDays    int    `yaml:"cacheRetentionDays"`
	AnalyticsFlushMinutes int    `yaml:"analyticsFlushMinutes"`
	FetchTimeoutSeconds   int    `yaml:"fetchTimeoutSeconds"`
	StorageQuotaBytes     int64  `yaml:"storageQuotaBytes"`
	LogLevel              string `yaml:"logLevel"`
}

// Default returns a config populated with default values rooted at the given data directory
func Default(dataDir string) Config {
	return Config{
		OriginEndpoint:        DefaultOriginEndpoint,
		ListenAddr:            "127.0.0.1:3020",
		DataDir:               dataDir,
		CacheRetentionDays:    30,
		AnalyticsFlushMinutes: 5,
		FetchTimeoutSeconds:   15,
		StorageQuotaBytes:     2 << 30,
		LogLevel:              "info",
	}
}

// GetPath returns the path to the agent config file inside the given config directory
func GetPath(configDir string) string {
	return filepath.Join(configDir, consts.PagekeepDirName, consts.ConfigFilename)
}

// Read reads the config file at the given path
func Read(path string) (Config, error) {
	var ret Config

	b, err := os.ReadFile(path)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	err = yaml.Unmarshal(b, &ret)
	if err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	return ret, nil
}

// Write writes the config to the config file at the given path
func Write(path string, cf Config) error {
	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating the config directory")
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}

// Init populates a new config file with defaults if it does not exist yet,
// and returns the resulting config.
func Init(path, dataDir string) (Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Read(path)
	} else if !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "checking if config exists")
	}

	cf := Default(dataDir)
	if err := Write(path, cf); err != nil {
		return Config{}, errors.Wrap(err, "writing config")
	}

	return cf, nil
}
