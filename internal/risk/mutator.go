package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/metrics"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/prompts"
	"github.com/Veraticus/riskdesk/internal/rules"
)

const (
	mutatorComponent = "rule_mutator"

	// NoUpdateSentinel is the reply that declines a rule update.
	NoUpdateSentinel = "No rule update needed"
)

// Mutator asks the provider for a new rule when a verdict says the rule
// base missed something, and appends the answer to the rule store.
type Mutator struct {
	client  llm.Client
	store   *rules.Store
	prompts *prompts.Builder
}

// NewMutator creates a rule mutation agent.
func NewMutator(client llm.Client, store *rules.Store) (*Mutator, error) {
	if client == nil {
		return nil, common.NewConfigError(mutatorComponent, errors.New("no LLM client"))
	}
	if store == nil {
		return nil, common.NewConfigError(mutatorComponent, errors.New("no rule store"))
	}
	return &Mutator{client: client, store: store, prompts: prompts.MustNew()}, nil
}

// ProposeUpdate returns true when a rule was appended. Nothing is sent
// unless verdict.RuleUpdateNeeded is set. A reply mentioning "Rule" without
// the decline sentinel is appended verbatim; its syntax is not checked, and
// a line the parser cannot read is skipped at evaluation time.
func (m *Mutator) ProposeUpdate(ctx context.Context, tx model.Transaction, verdict model.Verdict) (bool, error) {
	if !verdict.RuleUpdateNeeded {
		return false, nil
	}

	prompt, err := m.prompts.RuleUpdate(m.store.Text(), m.store.NextNumber(), &tx, verdict)
	if err != nil {
		return false, err
	}

	resp, err := m.client.Complete(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		err = common.ProviderError("propose rule", err)
		metrics.RuleUpdates.WithLabelValues("error").Inc()
		common.LogError(err, "Rule update proposal failed", common.Fields{"transaction_id": tx.ID})
		return false, err
	}

	reply := strings.TrimSpace(resp.Text)
	if !strings.Contains(reply, "Rule") || strings.Contains(reply, NoUpdateSentinel) {
		metrics.RuleUpdates.WithLabelValues("skipped").Inc()
		slog.Debug("No rule update proposed", "transaction_id", tx.ID)
		return false, nil
	}

	if err := m.store.Append(reply); err != nil {
		metrics.RuleUpdates.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to store proposed rule: %w", err)
	}

	metrics.RuleUpdates.WithLabelValues("applied").Inc()
	slog.Info("Appended proposed rule", "transaction_id", tx.ID, "rule", reply)
	return true, nil
}
