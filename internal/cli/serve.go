package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/abcsmc/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: `Serve the stored analyses over HTTP: a dashboard with the analyses, their
generations and posteriors, and a JSON API under /api/runs.

Examples:
  abcsmc serve                       # listen on $ABCSMC_ADDR or 127.0.0.1:5000
  abcsmc serve --addr 0.0.0.0:8080`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	logger.Info("serving dashboard", zap.String("addr", addr), zap.String("db", cfg.Database.URL))

	server := web.NewServer(web.Config{Addr: addr, ShutdownTimeout: cfg.Server.ShutdownTimeout}, app.History, logger)
	return server.Start(ctx)
}
