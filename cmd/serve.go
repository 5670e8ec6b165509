package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/crash-cli/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve EB scoring and interval estimates over HTTP",
	Long: `Loads the fitted model once and serves it to concurrent requests:

  GET  /health         liveness
  GET  /v1/model       model terms, coefficients, scale and alpha
  POST /v1/safety      SPF, EB weight, EB safety and ARP per segment
  POST /v1/intervals   mu_hat, var(eta), CI and PI bands per design row`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		m, err := loadModel("")
		if err != nil {
			return err
		}

		return api.New(cfg.Server, m).ListenAndServe(ctx, cfg.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
