package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/riskdesk/internal/cli"
	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/ingest"
	"github.com/Veraticus/riskdesk/internal/model"
)

type transactionSaver interface {
	SaveTransactions(ctx context.Context, txs []model.Transaction) (int, error)
}

type importOptions struct {
	customerID string
	dryRun     bool
}

func importCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from CSV or OFX/QFX files",
		Long: `Import branch transaction exports into the database.

CSV files need a header row using the transaction field names
(transaction_id, customer_id, transaction_amount, timestamp, ...). OFX and QFX bank
statements are mapped onto the same fields.

Examples:
  riskdesk import exports/branch_2024_03.csv
  riskdesk import --customer C1001 ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			_, err = importFiles(cmd.Context(), cmd.OutOrStdout(), a.store, files, opts)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.customerID, "customer", "", "customer id for rows that lack one")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "d", false, "parse files without saving")
	return cmd
}

// expandFiles resolves glob patterns, keeping plain paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, common.NewUserError("No files found to import. Check the path or glob pattern.", common.ErrInvalidInput)
	}
	return files, nil
}

// importFiles parses every file and saves the transactions, deduplicated by
// id across files. It returns the number saved.
func importFiles(ctx context.Context, out io.Writer, store transactionSaver, files []string, opts importOptions) (int, error) {
	seen := make(map[string]struct{})
	var all []model.Transaction

	for _, path := range files {
		txs, err := parseFile(ctx, path, opts)
		if err != nil {
			return 0, err
		}
		added := 0
		for _, tx := range txs {
			if _, dup := seen[tx.ID]; dup {
				continue
			}
			seen[tx.ID] = struct{}{}
			all = append(all, tx)
			added++
		}
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s: %d transactions", filepath.Base(path), added)))
	}

	if opts.dryRun {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Dry run: %d transactions parsed, nothing saved", len(all))))
		return 0, nil
	}

	saved, err := store.SaveTransactions(ctx, all)
	if err != nil {
		return 0, fmt.Errorf("failed to save transactions: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions", saved)))
	return saved, nil
}

func parseFile(ctx context.Context, path string, opts importOptions) ([]model.Transaction, error) {
	parser, err := ingest.ForPath(path, ingest.Options{CustomerID: opts.customerID})
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // user-supplied import path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txs, err := parser.ParseFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return txs, nil
}
