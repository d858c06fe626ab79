package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/minesweep-relay/internal/api"
	"github.com/MJE43/minesweep-relay/internal/config"
	"github.com/MJE43/minesweep-relay/internal/logging"
	"github.com/MJE43/minesweep-relay/internal/protocol"
	"github.com/MJE43/minesweep-relay/internal/server"
	"github.com/MJE43/minesweep-relay/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "sweeper-server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	log := logging.New("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db store.DB
	if cfg.Server.DBPath != "" {
		sqlite, err := store.NewSQLiteDB(cfg.Server.DBPath)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer sqlite.Close()
		if err := sqlite.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
		db = sqlite
	}

	transport, err := protocol.ListenUDP(cfg.Server.UDPAddr, protocol.WithReadTimeout(cfg.Server.ReadTimeout))
	if err != nil {
		return err
	}
	defer transport.Close()

	srv := server.New(transport, db, server.Options{
		Seeded:        cfg.Server.Seeded,
		ServerSeed:    cfg.Server.ServerSeed,
		MaxSessions:   cfg.Server.MaxSessions,
		MaxCells:      cfg.Server.MaxCells,
		EngineVersion: api.EngineVersion,
	}, logging.New("server"))

	log.WithFields(logrus.Fields{
		"udp_addr":       transport.LocalAddr().String(),
		"admin_addr":     cfg.Server.AdminAddr,
		"db_path":        cfg.Server.DBPath,
		"seeded":         cfg.Server.Seeded,
		"engine_version": api.EngineVersion,
		"git_commit":     api.GitCommit,
	}).Info("sweeper server starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})

	if cfg.Server.AdminAddr != "" {
		httpServer := &http.Server{
			Addr:         cfg.Server.AdminAddr,
			Handler:      api.NewServer(db, srv, logging.New("api")).Routes(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 35 * time.Second,
		}
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.WithField("active_sessions", srv.ActiveSessions()).Info("sweeper server stopped")
	return err
}
