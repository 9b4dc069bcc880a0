package main

import (
	"fmt"

	"github.com/emprops/job-gateway/pkg/gateway"
	"github.com/emprops/job-gateway/pkg/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway: admission, fan-out, and ingress",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		gw := gateway.New(cfg)

		ctx, cancel := withCancelOnSignal()
		defer cancel()

		log.Info("gateway starting")
		if err := gw.Run(ctx); err != nil {
			return fmt.Errorf("gateway exited: %w", err)
		}
		log.Info("gateway stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen-addr", "", "HTTP/websocket listen address (overrides JOB_GATEWAY_LISTEN_ADDR)")
	serveCmd.Flags().String("redis-addr", "", "Redis address (overrides JOB_GATEWAY_REDIS_ADDR)")
	serveCmd.Flags().String("auth-secret", "", "Shared secret for monitor/token auth (overrides JOB_GATEWAY_AUTH_SECRET)")
}
