package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/petitionlens/internal/pipeline"
	"github.com/ppiankov/petitionlens/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the constituency store over HTTP",
	Long: `Serve exposes the store and topic map to the web views and the JSON API.

The datasets are reloaded whenever they are replaced on disk. With
--refresh-cron the server also refreshes them on a schedule.

Example:
  petitionlens serve
  petitionlens serve --addr :8080 --views ./views
  petitionlens serve --refresh-cron "@daily"`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().String("views", "", "directory of static views served at /")
	serveCmd.Flags().String("refresh-cron", "", "cron schedule for background refreshes (empty = never)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("data.views_dir", serveCmd.Flags().Lookup("views"))
	_ = viper.BindPFlag("server.refresh_cron", serveCmd.Flags().Lookup("refresh-cron"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var opts []server.Option
	if cfg.Server.RefreshCron != "" {
		p, err := pipeline.New(cfg, logger)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithRefresher(p))
	}
	srv := server.New(cfg, logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, oglNotice)
	fmt.Fprintf(os.Stderr, "✓ Serving %s on %s\n", cfg.Data.Dir, cfg.Server.Addr)
	return srv.Run(ctx)
}
