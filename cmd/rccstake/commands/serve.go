package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rccstake/rccstake/internal/api"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the position feed over HTTP and WebSocket",
		Long: `Run the read-only feed: GET /position, GET /pending, /ws for a snapshot
stream, /metrics and /health.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.ListenAddr = listen
			}
			app, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			server := api.NewServer(cfg.API, app.Engine, app.Metrics, GetVersion())
			if err := server.Start(ctx); err != nil {
				return err
			}
			Info("Feed listening on " + server.Addr().String())

			err = follow(ctx, app, interval, nil)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := server.Stop(shutdownCtx); stopErr != nil && err == nil {
				err = stopErr
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "How often to re-read the position")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides api.listen_addr)")
	return cmd
}
