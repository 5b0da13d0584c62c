package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/riskdesk/internal/cli"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/rules"
)

type transactionLookup interface {
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
}

type ruleInput struct {
	condition string
	category  string
	factor    string
	score     int
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and extend the rule base",
	}
	cmd.AddCommand(rulesListCmd(), rulesAddCmd(), rulesEvalCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rules in the rule base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := rules.Open(appCfg.RulesPath)
			if err != nil {
				return err
			}
			listRules(cmd.OutOrStdout(), store)
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var in ruleInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a rule to the rule base",
		Long: `Append a rule. The condition uses transaction field names joined by "and".

Example:
  riskdesk rules add --condition "transaction_amount > 50000 and method_of_transaction == 'ATM'" \
    --score 70 --category high --factor "Large ATM withdrawal"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := rules.Open(appCfg.RulesPath)
			if err != nil {
				return err
			}
			rule, err := addRule(store, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added rule %d to %s", rule.Number, store.Path())))
			return nil
		},
	}
	cmd.Flags().StringVar(&in.condition, "condition", "", "rule condition")
	cmd.Flags().IntVar(&in.score, "score", 0, "risk score added when the rule matches (0-100)")
	cmd.Flags().StringVar(&in.category, "category", "", "risk category (low, medium, high, very high)")
	cmd.Flags().StringVar(&in.factor, "factor", "", "risk factor text")
	_ = cmd.MarkFlagRequired("condition")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("factor")
	return cmd
}

func rulesEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <transaction-id>",
		Short: "Evaluate the rule base against a stored transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return evalRules(cmd.Context(), cmd.OutOrStdout(), a.store, a.rules, args[0])
		},
	}
}

func listRules(out io.Writer, store *rules.Store) {
	parsed := store.Rules()
	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d rules", len(parsed))))
	for _, r := range parsed {
		fmt.Fprintf(out, "%3d  %s  %s\n     %s\n",
			r.Number,
			cli.FormatScore(r.Score, r.Category),
			r.Factor,
			cli.SubtleStyle.Render(r.Condition))
	}
	if skipped := countNonBlank(store.Text()) - len(parsed); skipped > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d lines could not be parsed and are ignored", skipped)))
	}
}

func countNonBlank(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// addRule formats, validates and appends a rule numbered after the highest
// existing one.
func addRule(store *rules.Store, in ruleInput) (model.Rule, error) {
	category, err := model.ParseCategory(in.category)
	if err != nil {
		return model.Rule{}, err
	}
	if in.score < 0 || in.score > 100 {
		return model.Rule{}, fmt.Errorf("score %d is outside 0..100", in.score)
	}
	line := rules.FormatLine(store.NextNumber(), strings.TrimSpace(in.condition), in.score, category, in.factor)
	rule, err := rules.ParseLine(line)
	if err != nil {
		return model.Rule{}, fmt.Errorf("invalid rule: %w", err)
	}
	if err := store.Append(line); err != nil {
		return model.Rule{}, err
	}
	return rule, nil
}

func evalRules(ctx context.Context, out io.Writer, lookup transactionLookup, store *rules.Store, id string) error {
	tx, err := lookup.GetTransactionByID(ctx, id)
	if err != nil {
		return err
	}
	verdict := rules.Evaluate(tx, store.Rules())
	fmt.Fprintln(out, cli.RenderBox("Rule evaluation", cli.RenderFields(
		cli.Field{Label: "Transaction", Value: tx.ID},
		cli.Field{Label: "Rule score", Value: cli.FormatScore(verdict.RiskScore, verdict.RiskCategory)},
		cli.Field{Label: "Factors", Value: cli.Bullets(verdict.RiskFactors)},
	)))
	return nil
}
