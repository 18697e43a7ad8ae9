package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/chaos-io/nobg/rembg"
	"github.com/chaos-io/nobg/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve remove/refine over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "listen address (default \":8080\")")
	cmd.Flags().Bool("allow-url-fetch", false, "accept a url form field and download the image server-side")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen, _ = cmd.Flags().GetString("listen")
	}
	if cmd.Flags().Changed("allow-url-fetch") {
		cfg.AllowURLFetch, _ = cmd.Flags().GetBool("allow-url-fetch")
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	backend := cfg.BackendConfig()
	srv := server.New(func(opts rembg.Options) (rembg.Remover, error) {
		return rembg.New(cfg.Backend, opts, backend)
	}, cfg.RemoverOptions(), cfg.Thresholds, server.WithURLFetch(cfg.AllowURLFetch))

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (backend %s)\n", cfg.Listen, cfg.Backend)
	return srv.Run(cmd.Context(), cfg.Listen)
}
