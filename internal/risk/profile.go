package risk

import (
	"context"
	"crypto/md5" //nolint:gosec // used for a stable score, not for security
	"errors"
	"fmt"
	"math/big"

	"github.com/Veraticus/riskdesk/internal/common"
	"github.com/Veraticus/riskdesk/internal/llm"
	"github.com/Veraticus/riskdesk/internal/model"
	"github.com/Veraticus/riskdesk/internal/prompts"
	"github.com/Veraticus/riskdesk/internal/service"
)

const profileComponent = "profile_scorer"

// Profile flag scores used when the provider is unavailable.
const (
	sanctionsScore  = 90
	pepScore        = 70
	unverifiedScore = 60
)

// ProfileScorer assesses customers from their KYC profile.
type ProfileScorer struct {
	client   llm.Client
	profiles service.ProfileSource
	prompts  *prompts.Builder
}

// NewProfileScorer creates a profile scorer.
func NewProfileScorer(client llm.Client, profiles service.ProfileSource) (*ProfileScorer, error) {
	if client == nil {
		return nil, common.NewConfigError(profileComponent, errors.New("no LLM client"))
	}
	if profiles == nil {
		return nil, common.NewConfigError(profileComponent, errors.New("no profile source"))
	}
	return &ProfileScorer{client: client, profiles: profiles, prompts: prompts.MustNew()}, nil
}

// Assess scores customerID's profile. A customer without a profile gets the
// deterministic mock verdict and an error matching common.ErrDataNotFound.
// When the provider fails the verdict is derived from the profile flags.
func (p *ProfileScorer) Assess(ctx context.Context, customerID string) Result[model.Verdict] {
	profile, err := p.profiles.Profile(ctx, customerID)
	if err != nil {
		if !errors.Is(err, common.ErrDataNotFound) {
			err = fmt.Errorf("failed to load profile: %w", err)
		}
		recordFallback(profileComponent, FallbackMock, err, common.Fields{"customer_id": customerID})
		return Result[model.Verdict]{Value: MockProfileVerdict(customerID), Err: err, Fallback: FallbackMock}
	}

	verdict, err := p.assessWithLLM(ctx, profile)
	if err != nil {
		recordFallback(profileComponent, FallbackRuleOnly, err, common.Fields{"customer_id": customerID})
		return Result[model.Verdict]{Value: FlagVerdict(profile), Err: err, Fallback: FallbackRuleOnly}
	}
	return Result[model.Verdict]{Value: verdict}
}

func (p *ProfileScorer) assessWithLLM(ctx context.Context, profile *model.KYCProfile) (model.Verdict, error) {
	prompt, err := p.prompts.ProfileRisk(profile)
	if err != nil {
		return model.Verdict{}, err
	}
	resp, err := p.client.Complete(ctx, llm.Request{Prompt: prompt, JSON: true, Temperature: llm.Temperature(0)})
	if err != nil {
		return model.Verdict{}, common.ProviderError("assess profile", err)
	}
	var pv providerVerdict
	if err := llm.DecodeJSON(resp.Text, &pv); err != nil {
		return model.Verdict{}, err
	}
	v := pv.verdict()
	v.RuleUpdateNeeded = false
	return v, nil
}

// MockProfileScore is 30 plus the md5 of the customer id modulo 45, so it
// falls in 30-74 and is stable per customer.
func MockProfileScore(customerID string) int {
	sum := md5.Sum([]byte(customerID)) //nolint:gosec // see import
	n := new(big.Int).SetBytes(sum[:])
	return 30 + int(new(big.Int).Mod(n, big.NewInt(45)).Int64())
}

// MockProfileVerdict is the verdict for customers that cannot be profiled.
func MockProfileVerdict(customerID string) model.Verdict {
	score := MockProfileScore(customerID)
	category := model.CategoryLow
	if score >= 60 {
		category = model.CategoryMedium
	}
	return model.Verdict{
		RiskScore:    score,
		RiskCategory: category,
		RiskFactors: []string{
			"Customer profile analysis based on limited data",
			"Automated risk assessment due to API limitations",
		},
		Explanation: fmt.Sprintf("This is an automated risk assessment for customer %s based on available KYC data.", customerID),
	}
}

// FlagVerdict scores a profile from its screening flags alone. The highest
// flag wins; a profile with no flags gets the mock score.
func FlagVerdict(profile *model.KYCProfile) model.Verdict {
	v := model.Verdict{RiskFactors: []string{}}

	raise := func(score int, factor string) {
		v.RiskScore = max(v.RiskScore, score)
		v.RiskFactors = append(v.RiskFactors, factor)
	}
	if profile.SanctionsHit {
		raise(sanctionsScore, "Sanctions screening hit")
	}
	if profile.PEP {
		raise(pepScore, "Politically exposed person")
	}
	if !profile.IDVerified {
		raise(unverifiedScore, "Identity document not verified")
	}
	if !profile.AddressVerified {
		v.RiskFactors = append(v.RiskFactors, "Address not verified")
	}

	if v.RiskScore == 0 {
		mock := MockProfileVerdict(profile.CustomerID)
		v.RiskScore = mock.RiskScore
		v.RiskCategory = mock.RiskCategory
	} else {
		v.RiskCategory = model.CategoryForScore(v.RiskScore)
	}
	v.Explanation = fmt.Sprintf("Profile assessed from %d screening flags.", len(v.RiskFactors))
	return v
}
