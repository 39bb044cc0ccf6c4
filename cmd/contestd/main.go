// Command contestd runs the SaferWinning contest ledger with its randomness
// oracle, scheduled draws and JSON API.
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

	"github.com/golang-jwt/jwt/v5"

	"github.com/SAFERMOON/SAFERWINNING/internal/asset"
	"github.com/SAFERMOON/SAFERWINNING/internal/automation"
	"github.com/SAFERMOON/SAFERWINNING/internal/config"
	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/httpapi"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/vrf"
)

const serviceName = "contestd"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CONTEST_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("contestd exited")
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	assetCfg, err := cfg.Asset.Build()
	if err != nil {
		return err
	}
	token, err := asset.New(assetCfg, logger)
	if err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	if _, err := token.Attach(ctx, store); err != nil {
		return fmt.Errorf("attach asset ledger: %w", err)
	}

	contestCfg, err := cfg.Contest.Build()
	if err != nil {
		return err
	}
	c, err := contest.New(contestCfg, token, store, logger)
	if err != nil {
		return fmt.Errorf("create contest: %w", err)
	}

	oracle, err := vrf.New(vrf.Config{
		SigningSecret: []byte(cfg.Oracle.SigningSecret),
		QueueSize:     cfg.Oracle.QueueSize,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create randomness oracle: %w", err)
	}
	oracle.Register(c.Consumer(), c)
	if cfg.Oracle.InitialFunding > 0 {
		if _, err := oracle.Fund(ctx, c.Consumer(), cfg.Oracle.InitialFunding); err != nil {
			return fmt.Errorf("fund randomness oracle: %w", err)
		}
	}
	c.WithOracle(oracle)

	if err := c.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate contest: %w", err)
	}

	oracle.Start(ctx)
	defer oracle.Stop()

	if cfg.Contest.DrawSchedule != "" {
		sched, err := automation.New(cfg.Contest.DrawSchedule, contestCfg.Owner, c, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	publicKey, err := loadPublicKey(cfg.Auth)
	if err != nil {
		return err
	}
	if publicKey == nil {
		logger.Warn("no auth public key configured; trusting X-User-ID header")
	}

	api := httpapi.New(c, token, oracle, logger, httpapi.Options{
		Version:           version,
		RequireNeoAddress: cfg.Server.RequireNeoAddress,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		PublicKey:         publicKey,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Router(ctx),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("contest API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown")
	}
	return nil
}

func loadPublicKey(cfg config.AuthConfig) (interface{}, error) {
	pem, err := cfg.PublicKey()
	if err != nil || pem == nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse auth public key: %w", err)
	}
	return key, nil
}
