package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floorVault/internal/api"
	"floorVault/internal/config"
	"floorVault/internal/keeper"
)

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PrivateKey == "" {
		return fmt.Errorf("private key is required (set KEEPER_PRIVATE_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	k, err := keeper.New(keeper.Config{
		Caller:       st.caller,
		Interval:     cfg.Interval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Samples:      cfg.Samples,
		AdjustEvery:  cfg.AdjustEvery,
	}, st.vault, st.keeperStore, logger.Named("keeper"))
	if err != nil {
		return err
	}

	redacted := cfg.Redacted()
	logger.Info("keeper start",
		zap.String("rpc", redacted.RPCURL),
		zap.String("pool", cfg.Pool),
		zap.String("vault", cfg.Vault),
		zap.String("caller", st.caller.Hex()),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("events_out", cfg.EventsOut),
		zap.Duration("interval", cfg.Interval),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := k.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.HTTPAddr != "" {
		srv := api.NewServer(st.vault, st.caller, logger.Named("api")).HTTPServer(cfg.HTTPAddr)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("keeper stopped")
	return nil
}
