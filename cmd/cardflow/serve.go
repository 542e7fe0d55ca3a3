package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-3ds/acquirer"
	"github.com/alovak/cardflow-3ds/gateway"
	"github.com/alovak/cardflow-3ds/internal/config"
	"github.com/alovak/cardflow-3ds/internal/logger"
	"github.com/alovak/cardflow-3ds/issuer"
	"github.com/alovak/cardflow-3ds/merchant"
)

type app interface {
	Start() error
	Shutdown()
}

func issuerCmd() *cobra.Command {
	return roleCmd("issuer", "Run the issuer (ISO 8583 authorization and cardholder challenge)",
		func(log *slog.Logger, path string) (app, error) {
			cfg := issuer.DefaultConfig()
			if err := config.Load(path, "issuer", cfg); err != nil {
				return nil, err
			}
			return issuer.NewApp(log, cfg), nil
		})
}

func acquirerCmd() *cobra.Command {
	return roleCmd("acquirer", "Run the acquirer (BIN routing to issuers over ISO 8583)",
		func(log *slog.Logger, path string) (app, error) {
			cfg := acquirer.DefaultConfig()
			if err := config.Load(path, "acquirer", cfg); err != nil {
				return nil, err
			}
			return acquirer.NewApp(log, cfg), nil
		})
}

func gatewayCmd() *cobra.Command {
	return roleCmd("gateway", "Run the payment gateway",
		func(log *slog.Logger, path string) (app, error) {
			cfg := gateway.DefaultConfig()
			if err := config.Load(path, "gateway", cfg); err != nil {
				return nil, err
			}
			return gateway.NewApp(log, cfg), nil
		})
}

func merchantCmd() *cobra.Command {
	return roleCmd("merchant", "Run the merchant backend",
		func(log *slog.Logger, path string) (app, error) {
			cfg := merchant.DefaultConfig()
			if err := config.Load(path, "merchant", cfg); err != nil {
				return nil, err
			}
			return merchant.NewApp(log, cfg), nil
		})
}

// roleCmd runs one role until SIGINT or SIGTERM.
func roleCmd(role, short string, build func(*slog.Logger, string) (app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   role,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			env, _ := cmd.Flags().GetString("env")
			log := logger.New(env)

			a, err := build(log, path)
			if err != nil {
				return fmt.Errorf("loading %s config: %w", role, err)
			}
			if err := a.Start(); err != nil {
				return fmt.Errorf("starting %s: %w", role, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			log.Info("shutting down", slog.String("role", role))
			a.Shutdown()
			return nil
		},
	}
}
