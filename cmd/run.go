package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"building_monitor/internal/handlers"
	"building_monitor/internal/logger"
	"building_monitor/internal/models"
	"building_monitor/internal/server"
	"building_monitor/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var errRoundNotClean = errors.New("one or more rounds did not finish clean")

func newRunCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every group until interrupted and serve the operator API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			log := logger.Get(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.monitoring.RunAll(gctx)
			})
			if cfg.HTTP.Enabled {
				services := service.NewService(a.monitoring, a.events, credentials(cfg.Auth))
				api := handlers.NewHandler(services, log, a.registry)
				srv := &server.Server{}
				g.Go(func() error {
					log.Infow("http_listening", "port", cfg.HTTP.Port)
					return srv.Run(cfg.HTTP.Port, api.InitRoutes())
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					return srv.Shutdown(sctx)
				})
			}

			log.Infow("monitor_started", "groups", len(a.monitoring.Groups()))
			err = g.Wait()
			log.Infow("monitor_stopped", "err", err)
			return err
		},
	}
}

func newOnceCmd(o *rootOptions) *cobra.Command {
	var groups []string
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single round per group and print the round reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			log := logger.Get(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log, groups)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			reports, err := a.monitoring.RunOnce(ctx)
			if err != nil {
				return err
			}
			if err := printReports(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			for _, r := range reports {
				if r.Outcome != models.RoundAllClean {
					return errRoundNotClean
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "group to run (repeatable; default all)")
	return cmd
}

func printReports(w io.Writer, reports []models.RoundReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("print reports: %w", err)
	}
	return nil
}
