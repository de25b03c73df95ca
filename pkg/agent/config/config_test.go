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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pagekeep/pagekeep/pkg/assert"
)

func TestInit_CreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagekeep", "pagekeeprc")

	cf, err := Init(path, filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err, "initializing config")
	}

	assert.Equal(t, cf.OriginEndpoint, DefaultOriginEndpoint, "origin endpoint mismatch")
	assert.Equal(t, cf.CacheRetentionDays, 30, "retention mismatch")
	assert.Equal(t, cf.ListenAddr, "127.0.0.1:3020", "listen addr mismatch")

	if _, err := os.Stat(path); err != nil {
		t.Fatal(err, "config file should exist")
	}
}

func TestInit_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagekeeprc")

	custom := Default(filepath.Join(dir, "data"))
	custom.CacheRetentionDays = 7
	custom.LogLevel = "debug"
	if err := Write(path, custom); err != nil {
		t.Fatal(err, "writing config")
	}

	cf, err := Init(path, "ignored")
	if err != nil {
		t.Fatal(err, "initializing config")
	}

	// an existing file wins over the defaults
	assert.Equal(t, cf.CacheRetentionDays, 7, "retention mismatch")
	assert.Equal(t, cf.LogLevel, "debug", "log level mismatch")
}

func TestReadWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagekeeprc")

	original := Default("/tmp/pagekeep-data")
	original.OriginEndpoint = "https://books.example.com/api"
	if err := Write(path, original); err != nil {
		t.Fatal(err, "writing config")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatal(err, "reading config")
	}

	assert.DeepEqual(t, got, original, "config mismatch")
}
