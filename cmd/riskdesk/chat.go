package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/riskdesk/internal/chat"
	"github.com/Veraticus/riskdesk/internal/cli"
	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/config"
	"github.com/Veraticus/riskdesk/internal/tui"
	"github.com/Veraticus/riskdesk/internal/tui/themes"
)

type chatOptions struct {
	customerID string
	query      string
	chartPath  string
	theme      string
}

func chatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about a customer's transactions",
		Long: `Ask questions about a customer's transactions. With --query the answer is
printed once; otherwise an interactive console opens.

Examples:
  riskdesk chat --customer C1001
  riskdesk chat --customer C1001 --query "Which payment methods do I use most?" --chart methods.png`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			client, err := a.provider()
			if err != nil {
				if common.IsConfigError(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatError(chat.NotConfiguredMessage))
				}
				return err
			}
			defer client.Close()

			pipeline, err := a.chat(client)
			if err != nil {
				return err
			}

			if opts.query != "" {
				return runChatOnce(cmd.Context(), cmd.OutOrStdout(), pipeline, opts)
			}
			return tui.Run(cmd.Context(),
				tui.WithChat(pipeline),
				tui.WithCustomer(opts.customerID),
				tui.WithTheme(themes.ByName(opts.theme)),
			)
		},
	}
	cmd.Flags().StringVar(&opts.customerID, "customer", "", "customer id or account number")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "answer a single question and exit")
	cmd.Flags().StringVar(&opts.chartPath, "chart", "", "write the answer's chart to this PNG file")
	cmd.Flags().StringVar(&opts.theme, "theme", "default", "console theme (default, catppuccin)")
	return cmd
}

func runChatOnce(ctx context.Context, out io.Writer, chatter tui.Chatter, opts chatOptions) error {
	res := chatter.Handle(ctx, chat.Query{Text: opts.query, CustomerID: opts.customerID})
	fmt.Fprintln(out, res.Response)

	if res.Output != nil && res.Output.Summary != "" && res.Output.Summary != res.Response {
		fmt.Fprintln(out, cli.SubtleStyle.Render(res.Output.Summary))
	}
	if res.Fallback != chat.FallbackNone {
		fmt.Fprintln(out, cli.FormatWarning("AI analysis unavailable; a standard "+string(res.Fallback)+" answer was used"))
	}

	if opts.chartPath == "" {
		return nil
	}
	if res.Output == nil || res.Output.Visualization == "" {
		fmt.Fprintln(out, cli.FormatWarning("No chart was produced for this question"))
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(res.Output.Visualization)
	if err != nil {
		return fmt.Errorf("failed to decode chart: %w", err)
	}
	path := config.ExpandPath(opts.chartPath)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess("Chart written to "+path))
	return nil
}
