// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	perps "github.com/luxfi/perps"
	"github.com/luxfi/perps/vms/perpsvm"
	"github.com/luxfi/perps/vms/perpsvm/config"
	"github.com/luxfi/perps/vms/perpsvm/metrics"
)

const readHeaderTimeout = 10 * time.Second

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a perps node serving the JSON-RPC API",
		RunE:  runFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	cfg, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, cfg, newLogger(cfg.LogLevel))
}

// Run serves the VM until ctx is done or the server fails.
func Run(ctx context.Context, cfg *Config, logger log.Logger) error {
	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", log.Err(err))
		}
	}()

	process := prometheus.NewRegistry()
	if err := process.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	registry := metric.NewRegistry()

	vm := perpsvm.New(cfg.Config, logger, registry)
	if err := vm.Initialize(ctx, db); err != nil {
		return err
	}
	defer func() {
		if err := vm.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to shut down VM", log.Err(err))
		}
	}()
	if err := vm.SetState(ctx, perps.NormalOp); err != nil {
		return err
	}

	gatherer := prometheus.Gatherers{process, metrics.Gatherer(registry)}
	handler, err := NewHandler(ctx, vm, gatherer, cfg.AllowedOrigins)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(int(cfg.HTTPPort))))
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving API", log.String("address", listener.Addr().String()))
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if k := vm.Keeper(); k != nil {
		g.Go(func() error {
			return k.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		// If shutdown times out, make sure the server is still shutdown.
		_ = server.Close()
		return err
	})
	return g.Wait()
}

// openDatabase opens badger under dataDir, or an in-memory database when
// dataDir is empty.
func openDatabase(dataDir string) (database.Database, error) {
	if dataDir == "" {
		return memdb.New(), nil
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, err
	}
	db, err := badgerdb.New(
		dataDir,
		nil, // configBytes - use default
		"",  // namespace
		nil, // metrics
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newLogger(level string) log.Logger {
	if level == config.LogLevelOff {
		return log.NewNoOpLogger()
	}
	return log.NewLogger("perpsvm")
}
