package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/prompts"
)

// Class is the classifier's verdict on whether a query needs transaction data.
type Class string

// Query classes.
const (
	ClassTransactions   Class = "TRANSACTIONS"
	ClassNoTransactions Class = "NO_TRANSACTIONS"
)

// DefaultKeywords route a query straight to the data path.
var DefaultKeywords = []string{
	"transaction", "transactions", "fraud", "amount", "spent", "spending",
	"payment", "method", "balance", "deposit", "withdrawal", "transfer",
	"history", "chart", "graph", "average", "total", "suspicious", "location",
}

// Classifier decides whether a query is about the customer's transactions.
// A keyword hit decides without asking the provider.
type Classifier struct {
	client   llm.Client
	prompts  *prompts.Builder
	keywords []string
}

// NewClassifier creates a classifier. A nil or empty keyword list uses
// DefaultKeywords.
func NewClassifier(client llm.Client, keywords []string) (*Classifier, error) {
	if client == nil {
		return nil, common.NewConfigError("query_classifier", errors.New("no LLM client"))
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			normalized = append(normalized, k)
		}
	}
	return &Classifier{client: client, prompts: prompts.MustNew(), keywords: normalized}, nil
}

// MatchesKeyword reports whether query contains any keyword, ignoring case.
func (c *Classifier) MatchesKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Classify returns the query's class. Provider failures and any answer
// other than exactly one tag classify as ClassNoTransactions.
func (c *Classifier) Classify(ctx context.Context, query string) Class {
	if c.MatchesKeyword(query) {
		return ClassTransactions
	}

	prompt, err := c.prompts.ClassifyQuery(query)
	if err != nil {
		common.LogError(err, "Failed to render classification prompt", nil)
		return ClassNoTransactions
	}
	resp, err := c.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: llm.Temperature(0),
		MaxTokens:   10,
	})
	if err != nil {
		common.LogFallback("query_classifier", string(ClassNoTransactions), err, common.Fields{"query_length": len(query)})
		return ClassNoTransactions
	}

	switch answer := Class(strings.ToUpper(strings.TrimSpace(resp.Text))); answer {
	case ClassTransactions, ClassNoTransactions:
		return answer
	default:
		slog.Debug("Unrecognized classification", "answer", resp.Text)
		return ClassNoTransactions
	}
}
