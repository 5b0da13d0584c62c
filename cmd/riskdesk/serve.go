package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the risk assessment, transaction chat and compliance dashboard API.

Without provider credentials the server still starts. Already cached
compliance pages are served; anything that needs the provider answers that
the service is not configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			opts := server.Options{
				Addr: addr,
				Ping: a.store.DB().PingContext,
				Data: a.store,
			}

			client, err := a.provider()
			switch {
			case common.IsConfigError(err):
				slog.Warn("LLM provider not configured; serving without provider-backed endpoints", "error", err)
				opts.Unavailable = err
				if opts.Pages, err = a.cachedPages(); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				defer client.Close()
				if opts.Assessor, err = a.assessor(client); err != nil {
					return err
				}
				if opts.Chat, err = a.chat(client); err != nil {
					return err
				}
				if opts.Pages, err = a.pages(client); err != nil {
					return err
				}
			}

			slog.Info("Starting riskdesk API", "addr", addr, "database", a.cfg.Database)
			return server.New(opts).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}
