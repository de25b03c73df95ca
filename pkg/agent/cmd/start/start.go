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

package start

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagekeep/pagekeep/pkg/agent/api"
	"github.com/pagekeep/pagekeep/pkg/agent/cache"
	"github.com/pagekeep/pagekeep/pkg/agent/coordinator"
	"github.com/pagekeep/pagekeep/pkg/agent/infra"
	"github.com/pagekeep/pagekeep/pkg/agent/library"
	"github.com/pagekeep/pagekeep/pkg/agent/log"
	"github.com/pagekeep/pagekeep/pkg/agent/origin"
	"github.com/pagekeep/pagekeep/pkg/agent/proxy"
	"github.com/pagekeep/pagekeep/pkg/agent/reader"
	"github.com/pagekeep/pagekeep/pkg/agent/store"
	"github.com/pagekeep/pagekeep/pkg/agent/term"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// shellPaths are warmed into the shared cache when an agent version installs
var shellPaths = []string{"/"}

// NewCmd returns a new start command
func NewCmd(ctx infra.Ctx) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the agent",
		Long:  "Start the offline-first agent: durable store, intercept proxy, and sync coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx)
		},
	}

	return cmd
}

func run(ctx infra.Ctx) error {
	cf := ctx.Config

	db, err := store.Open(ctx.StorePath())
	if err != nil {
		return errors.Wrap(err, "opening durable store")
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		if !store.IsCorrupt(err) {
			return errors.Wrap(err, "migrating durable store")
		}

		// last resort: a schema from the future cannot be used as-is
		log.ErrorWrap(err, "durable store is corrupt")
		if err := store.Reset(db); err != nil {
			return errors.Wrap(err, "resetting durable store")
		}
	}

	byteCache, err := cache.Open(cache.Config{Path: ctx.CachePath()})
	if err != nil {
		return errors.Wrap(err, "opening byte cache")
	}
	defer byteCache.Close()

	fetchTimeout := time.Duration(cf.FetchTimeoutSeconds) * time.Second
	o := origin.NewClient(cf.OriginEndpoint, ctx.Version, fetchTimeout)

	p := proxy.New(db, byteCache, o, fetchTimeout)

	warm := func() error {
		warmCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return p.WarmShell(warmCtx, shellPaths)
	}
	if _, err := p.Supervisor.Install(ctx.Version, warm); err != nil {
		// starting offline: the shell warms later, interception must not
		log.ErrorWrap(err, "warming app shell")
		if _, err := p.Supervisor.Install(ctx.Version, nil); err != nil {
			return errors.Wrap(err, "installing intercept agent")
		}
	}
	if _, err := p.Supervisor.Activate(); err != nil {
		return errors.Wrap(err, "activating intercept agent")
	}

	coord := coordinator.New(db, byteCache, o, p, cf.CacheRetentionDays)
	coord.DrainSchedule = fmt.Sprintf("@every %dm", cf.AnalyticsFlushMinutes)
	if err := coord.Start(); err != nil {
		return errors.Wrap(err, "starting coordinator")
	}
	defer coord.Stop()

	lib := library.New(db, coord, cf.DataDir, cf.StorageQuotaBytes)
	rdr := reader.NewManager(db, o)
	rdr.FlushInterval = time.Duration(cf.AnalyticsFlushMinutes) * time.Minute

	router := api.NewRouter(&api.API{
		Library:     lib,
		Reader:      rdr,
		Coordinator: coord,
		Proxy:       p,
	})

	srv := &http.Server{
		Addr:    cf.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "serving agent")
		}
	}()

	term.Successf("agent listening on %s\n", cf.ListenAddr)
	log.WithFields(log.Fields{
		"addr":    cf.ListenAddr,
		"origin":  cf.OriginEndpoint,
		"dataDir": cf.DataDir,
	}).Info("agent started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithFields(log.Fields{"signal": sig.String()}).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down the server")
	}

	return nil
}
