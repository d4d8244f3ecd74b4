package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xhad/recall/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			service, documentStore, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer documentStore.Close()

			srv := server.New(service, server.Config{
				Port:      cfg.Server.Port,
				RateLimit: cfg.Server.RateLimit,
				Burst:     cfg.Server.Burst,
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8000, "Port to listen on")

	return cmd
}
