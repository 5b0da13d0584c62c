package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/riskdesk/internal/cache"
	"github.com/Veraticus/riskdesk/internal/cli"
)

type pageScorer interface {
	Page(ctx context.Context, key cache.Key, regenerate bool) (*cache.PageResult, error)
}

type scoreOptions struct {
	customerID string
	from       int
	to         int
	regenerate bool
}

// scoreReport summarizes a scoring run.
type scoreReport struct {
	last     *cache.PageResult
	states   map[cache.State]int
	degraded int
	pages    int
}

func scoreCmd() *cobra.Command {
	var (
		opts  scoreOptions
		purge bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score dashboard pages into the risk cache",
		Long: `Score pages of the compliance dashboard so later reads are served from the
cache. Pages already cached are skipped unless --regenerate is given.

Examples:
  riskdesk score                     # every page of the full dataset
  riskdesk score --from 3 --to 5
  riskdesk score --customer C1001 --regenerate
  riskdesk score --purge             # drop every cached page first`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			client, err := a.provider()
			if err != nil {
				return err
			}
			defer client.Close()

			pages, err := a.pages(client)
			if err != nil {
				return err
			}
			if purge {
				n, err := pages.Purge()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Removed %d cache files", n)))
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Scored pages stay cached; rerun the same command to continue.")
			defer stop()

			report, err := runScore(ctx, cmd.OutOrStdout(), pages, opts)
			if err != nil {
				if handler.WasInterrupted() && errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			printScoreReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.customerID, "customer", "", "score only this customer's transactions")
	cmd.Flags().IntVar(&opts.from, "from", 1, "first page")
	cmd.Flags().IntVar(&opts.to, "to", 0, "last page (default: last available)")
	cmd.Flags().BoolVar(&opts.regenerate, "regenerate", false, "rescore pages that are already cached")
	cmd.Flags().BoolVar(&purge, "purge", false, "delete every cached page before scoring")
	return cmd
}

// runScore walks the page range. The first page fetched reports the total,
// which bounds the range when --to is unset.
func runScore(ctx context.Context, out io.Writer, pages pageScorer, opts scoreOptions) (scoreReport, error) {
	report := scoreReport{states: make(map[cache.State]int)}
	from := max(1, opts.from)

	first, err := pages.Page(ctx, cache.Key{CustomerID: opts.customerID, Page: from}, opts.regenerate)
	if err != nil {
		return report, err
	}
	report.add(first)

	to := first.TotalPages
	if opts.to > 0 {
		to = min(opts.to, first.TotalPages)
	}
	if to <= first.Page {
		return report, nil
	}

	bar := progressbar.NewOptions(to-first.Page,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Scoring pages...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(out); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)

	for page := first.Page + 1; page <= to; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := pages.Page(ctx, cache.Key{CustomerID: opts.customerID, Page: page}, opts.regenerate)
		if err != nil {
			return report, fmt.Errorf("page %d: %w", page, err)
		}
		report.add(res)
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
	return report, nil
}

func (r *scoreReport) add(res *cache.PageResult) {
	r.pages++
	r.states[res.State]++
	if res.Fallback != "" {
		r.degraded++
	}
	r.last = res
}

func printScoreReport(out io.Writer, r scoreReport) {
	if r.last == nil {
		return
	}
	stats := r.last.Stats
	fmt.Fprintln(out, cli.RenderBox("Risk cache", cli.RenderFields(
		cli.Field{Label: "Pages processed", Value: fmt.Sprintf("%d of %d", r.pages, r.last.TotalPages)},
		cli.Field{Label: "Newly scored", Value: fmt.Sprint(r.states[cache.StateMiss] + r.states[cache.StateCorrupt] + r.states[cache.StateForcedRefresh])},
		cli.Field{Label: "Served from cache", Value: fmt.Sprint(r.states[cache.StateHit])},
		cli.Field{Label: "Degraded pages", Value: fmt.Sprint(r.degraded)},
		cli.Field{Label: "High risk (cached)", Value: fmt.Sprint(stats.HighRiskCount)},
		cli.Field{Label: "Average score", Value: fmt.Sprintf("%.1f", stats.AvgRiskScore)},
	)))
}
