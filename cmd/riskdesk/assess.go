package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/riskdesk/internal/cli"
	"github.com/Veraticus/riskdesk/internal/model"
)

type customerAssessor interface {
	Assess(ctx context.Context, customerID string) (*model.Assessment, error)
}

func assessCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "assess <customer-id>",
		Short: "Produce a combined risk assessment for a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			assessor, err := a.assessor(client)
			if err != nil {
				return err
			}
			return runAssess(cmd.Context(), cmd.OutOrStdout(), assessor, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the assessment as JSON")
	return cmd
}

func runAssess(ctx context.Context, out io.Writer, assessor customerAssessor, customerID string, asJSON bool) error {
	assessment, err := assessor.Assess(ctx, customerID)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(assessment)
	}
	_, err = fmt.Fprintln(out, renderAssessment(assessment))
	return err
}

func renderAssessment(a *model.Assessment) string {
	c := a.Combined
	body := cli.RenderFields(
		cli.Field{Label: "Customer", Value: a.CustomerID},
		cli.Field{Label: "Combined risk", Value: cli.FormatScore(c.RiskScore, c.RiskCategory)},
		cli.Field{Label: "Profile risk", Value: cli.FormatScore(a.Profile.RiskScore, a.Profile.RiskCategory)},
		cli.Field{Label: "Latest transaction", Value: cli.FormatScore(a.Latest.RiskScore, a.Latest.RiskCategory)},
		cli.Field{Label: "Transactions", Value: fmt.Sprintf("%d total, %d fraud-labelled", a.TotalTransactions, a.RiskyTransactions)},
		cli.Field{Label: "Recent high risk", Value: strconv.Itoa(a.Summary.HighRisk)},
		cli.Field{Label: "Rule base updated", Value: strconv.FormatBool(a.RuleUpdated)},
	)

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(cli.FormatTitle("Risk factors"))
	b.WriteString("\n")
	b.WriteString(cli.Bullets(c.RiskFactors))
	if c.Explanation != "" {
		b.WriteString("\n\n")
		b.WriteString(c.Explanation)
	}
	if c.Recommendation != "" {
		b.WriteString("\n\n")
		b.WriteString(cli.FormatInfo(c.Recommendation))
	}
	if len(a.Degraded) > 0 {
		b.WriteString("\n\n")
		b.WriteString(cli.FormatWarning("Fallbacks used: " + strings.Join(a.Degraded, ", ")))
	}
	return cli.RenderBox("Risk assessment", b.String())
}
