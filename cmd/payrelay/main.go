// Command payrelay runs the payment gateway server: the settlement
// endpoints and the MCP relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	payrelay "github.com/payrelay/payrelay-go"
	"github.com/payrelay/payrelay-go/gateway"
	"github.com/payrelay/payrelay-go/settle"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "payrelay",
		Short: "Gasless stablecoin payment gateway and MCP relay",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "payrelay.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := gateway.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "payrelay").Logger()

	opts := []gateway.ServerOption{
		gateway.WithListenAddress(cfg.Server.ListenAddr),
		gateway.WithLogger(logger),
		gateway.WithAllowedOrigins(cfg.CORS.AllowedOrigins),
		gateway.WithDevMode(cfg.DevMode()),
		gateway.WithSessionProvider(&gateway.JWTSessionProvider{
			CookieName: cfg.Session.CookieName,
			Secret:     []byte(cfg.Session.Secret),
		}),
	}
	if cfg.Facilitator.MainnetURL != "" {
		opts = append(opts, gateway.WithFacilitatorClient(payrelay.NetworkMainnet,
			settle.NewFacilitatorClient(cfg.Facilitator.MainnetURL)))
	}
	if cfg.Facilitator.TestnetURL != "" {
		opts = append(opts, gateway.WithFacilitatorClient(payrelay.NetworkTestnet,
			settle.NewFacilitatorClient(cfg.Facilitator.TestnetURL)))
	}

	server := gateway.New(opts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.ListenAddr).Msg("starting gateway")
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(ctx)
	}
}
