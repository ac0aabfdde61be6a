package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dropzone/internal/app"
	"dropzone/internal/config"
	"dropzone/internal/logging"
)

func main() {
	cmd, err := newRootCommand()
	if err != nil {
		log.Fatalf("Failed to set up command: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "dropzone",
		Short: "Local upload server with a live directory listing",
		Long: `dropzone accepts raw and multipart uploads over HTTP, stores them in a
directory without ever overwriting or leaving partial files, and pushes the
directory listing to connected browsers whenever it changes.

Every flag can also be set through a DROPZONE_* environment variable,
for example DROPZONE_MAX_UPLOAD_SIZE=2GiB.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	if err := config.BindFlags(cmd, v); err != nil {
		return nil, err
	}
	return cmd, nil
}
