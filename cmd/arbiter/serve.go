package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/danielpatrickdp/continuity-arbiter/internal/state"
	"github.com/danielpatrickdp/continuity-arbiter/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var dbPath, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Arbiter gRPC API backed by SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			store, err := state.NewStore(cfg.Store.Path, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			lis, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
			}
			svc := session.NewService(store, cfg.SessionConfig(), logger)
			gs := transport.NewGRPCServer(svc, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Info("serving",
				zap.String("addr", lis.Addr().String()),
				zap.String("db", cfg.Store.Path),
				zap.String("service", transport.ServiceName))
			if err := transport.Serve(ctx, gs, lis, cfg.Server.ShutdownTimeout); err != nil {
				return err
			}
			logger.Info("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides store.path)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
