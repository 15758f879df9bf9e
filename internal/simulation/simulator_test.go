package simulation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/fraud"
	"github.com/opensource-finance/claimhawk/internal/payout"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func highRiskClaim() *domain.Claim {
	return &domain.Claim{
		ID:              "claim-a",
		EstimatedAmount: 100000,
		Documents:       []domain.Document{},
		VoiceData: &domain.VoiceData{
			Confidence: 0.3,
			Transcript: "total loss stolen vandalism",
		},
	}
}

func cleanClaim() *domain.Claim {
	incident := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	return &domain.Claim{
		ID:              "claim-b",
		EstimatedAmount: 1000,
		Documents:       []domain.Document{{ID: "docA"}, {ID: "docB"}},
		Description:     "Minor collision at signal, 40 characters long text",
		VoiceData:       &domain.VoiceData{Confidence: 0.9},
		ClaimDetails:    domain.ClaimDetails{IncidentDate: &incident},
	}
}

type failingPolicy struct {
	panics bool
}

func (failingPolicy) Name() string        { return "failing" }
func (failingPolicy) Version() string     { return "0" }
func (failingPolicy) Scale() domain.Scale { return domain.ScalePoints }

func (p failingPolicy) Score(context.Context, *domain.Claim) (domain.FraudAnalysis, error) {
	if p.panics {
		panic("scoring exploded")
	}
	return domain.FraudAnalysis{}, errors.New("scoring unavailable")
}

func TestSimulate(t *testing.T) {
	sim := New(fraud.NewPointsPolicy())
	ctx := context.Background()

	t.Run("HighRiskRejected", func(t *testing.T) {
		r := sim.Simulate(ctx, highRiskClaim())
		if r.FraudScore < 50 {
			t.Errorf("expected score >= 50, got %.1f", r.FraudScore)
		}
		if r.Approved || r.AutoApproved {
			t.Error("expected rejection")
		}
		if r.ApprovedAmount != 0 {
			t.Errorf("expected approvedAmount 0, got %.2f", r.ApprovedAmount)
		}
		for _, tag := range []string{
			domain.RuleHighRiskRejection,
			domain.RuleMissingDocuments,
			domain.RuleInsufficientDesc,
			domain.RuleMissingIncidentDate,
			domain.RuleLowVoiceConfidence,
			domain.RuleSeniorReviewRequired,
		} {
			if !contains(r.RulesTriggered, tag) {
				t.Errorf("expected %s in %v", tag, r.RulesTriggered)
			}
		}
		if len(r.Gaps) != 4 {
			t.Errorf("expected 4 gaps, got %v", r.Gaps)
		}
		if NextStatus(r) != domain.StatusFraudReview {
			t.Errorf("expected FRAUD_REVIEW, got %s", NextStatus(r))
		}
	})

	t.Run("CleanClaimAutoApproved", func(t *testing.T) {
		r := sim.Simulate(ctx, cleanClaim())
		if r.FraudScore != 0 {
			t.Errorf("expected score 0, got %.1f", r.FraudScore)
		}
		if !r.Approved || !r.AutoApproved {
			t.Error("expected auto approval")
		}
		if r.ApprovedAmount != 1000 {
			t.Errorf("expected 1000, got %.2f", r.ApprovedAmount)
		}
		if len(r.Gaps) != 0 {
			t.Errorf("expected no gaps, got %v", r.Gaps)
		}
		if !contains(r.RulesTriggered, domain.RuleAutoApproved) {
			t.Errorf("expected AUTO_APPROVED in %v", r.RulesTriggered)
		}
		if NextStatus(r) != domain.StatusApproved {
			t.Errorf("expected APPROVED, got %s", NextStatus(r))
		}
	})

	t.Run("PartialApprovalFloors", func(t *testing.T) {
		c := cleanClaim()
		c.EstimatedAmount = 60001.5
		r := sim.Simulate(ctx, c)
		if r.FraudScore != 30 {
			t.Fatalf("expected score 30, got %.1f", r.FraudScore)
		}
		if !r.Approved || r.AutoApproved {
			t.Error("expected partial approval")
		}
		if r.ApprovedAmount != 48001 {
			t.Errorf("expected 48001, got %.2f", r.ApprovedAmount)
		}
		if NextStatus(r) != domain.StatusManualReview {
			t.Errorf("expected MANUAL_REVIEW, got %s", NextStatus(r))
		}
	})

	t.Run("NilClaim", func(t *testing.T) {
		r := sim.Simulate(ctx, nil)
		if r == nil {
			t.Fatal("expected a result")
		}
		if contains(r.RulesTriggered, domain.RuleSystemError) {
			t.Errorf("nil claim should be scored, not fall back: %v", r.RulesTriggered)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		r1 := sim.Simulate(ctx, highRiskClaim())
		r2 := sim.Simulate(ctx, highRiskClaim())
		if !reflect.DeepEqual(r1, r2) {
			t.Errorf("expected identical results:\n%+v\n%+v", r1, r2)
		}
	})

	t.Run("RejectedAboveSixty", func(t *testing.T) {
		for _, amount := range []float64{60000, 250000} {
			c := highRiskClaim()
			c.EstimatedAmount = amount
			r := sim.Simulate(ctx, c)
			if r.FraudScore >= 60 && r.ApprovedAmount != 0 {
				t.Errorf("score %.0f: expected approvedAmount 0, got %.2f", r.FraudScore, r.ApprovedAmount)
			}
		}
	})
}

func TestSimulateFallback(t *testing.T) {
	ctx := context.Background()

	cases := map[string]*Simulator{
		"Error":    New(failingPolicy{}),
		"Panic":    New(failingPolicy{panics: true}),
		"NoPolicy": New(nil),
	}
	for name, sim := range cases {
		t.Run(name, func(t *testing.T) {
			r := sim.Evaluate(ctx, cleanClaim())
			if r.Approved || r.ApprovedAmount != 0 {
				t.Error("fallback must not approve")
			}
			if r.FraudScore != FallbackScore {
				t.Errorf("expected score %.0f, got %.1f", FallbackScore, r.FraudScore)
			}
			if !reflect.DeepEqual(r.RulesTriggered, []string{domain.RuleSystemError}) {
				t.Errorf("expected [SYSTEM_ERROR], got %v", r.RulesTriggered)
			}
			if NextStatus(r) != domain.StatusManualReview {
				t.Errorf("expected MANUAL_REVIEW, got %s", NextStatus(r))
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("AttachesBreakdown", func(t *testing.T) {
		sim := New(fraud.NewPointsPolicy())
		r := sim.Evaluate(ctx, highRiskClaim())
		if r.GapAnalysis == nil || r.Payout == nil {
			t.Fatal("expected gap analysis and payout")
		}
		if r.Payout.Policy != domain.PayoutDeduction {
			t.Errorf("expected default payout policy, got %s", r.Payout.Policy)
		}
		if r.RiskLevel != domain.RiskHigh {
			t.Errorf("expected high risk, got %s", r.RiskLevel)
		}
		if r.FraudScale != domain.ScalePoints || r.Policy != domain.PolicyPoints {
			t.Errorf("unexpected scale/policy %s %s", r.FraudScale, r.Policy)
		}
	})

	t.Run("CoveragePayout", func(t *testing.T) {
		sim := New(fraud.NewPointsPolicy(), WithPayoutPolicy(payout.NewCoveragePolicy()))
		c := cleanClaim()
		c.Type = domain.ClaimTypeMedical
		r := sim.Evaluate(ctx, c)
		if r.Payout == nil || r.Payout.Policy != domain.PayoutCoverage {
			t.Fatalf("expected coverage payout, got %+v", r.Payout)
		}
		if r.Payout.CalculatedAmount != 900 {
			t.Errorf("expected 900, got %.2f", r.Payout.CalculatedAmount)
		}
	})

	t.Run("WeightedPolicyStatus", func(t *testing.T) {
		sim := New(fraud.NewWeightedPolicy(fraud.DefaultWeights))
		c := highRiskClaim()
		c.VoiceData.Transcript = "total loss stolen vandalism hit and run"
		c.SubmittedAt = time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
		r := sim.Evaluate(ctx, c)
		if r.FraudScale != domain.ScaleUnit {
			t.Errorf("expected unit scale, got %s", r.FraudScale)
		}
		if r.Approved {
			t.Error("expected rejection")
		}
		if NextStatus(r) != domain.StatusFraudReview {
			t.Errorf("expected FRAUD_REVIEW, got %s", NextStatus(r))
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		sim := New(fraud.NewPointsPolicy())
		want := sim.Evaluate(ctx, highRiskClaim())

		var wg sync.WaitGroup
		errs := make(chan string, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got := sim.Evaluate(ctx, highRiskClaim())
				if !reflect.DeepEqual(want, got) {
					errs <- "result differs"
				}
			}()
		}
		wg.Wait()
		close(errs)
		for e := range errs {
			t.Error(e)
		}
	})
}

func TestNextStatus(t *testing.T) {
	cases := []struct {
		name string
		r    *domain.SimulationResult
		want domain.ClaimStatus
	}{
		{"Nil", nil, domain.StatusManualReview},
		{"AutoApproved", &domain.SimulationResult{AutoApproved: true}, domain.StatusApproved},
		{"PointsAbove", &domain.SimulationResult{FraudScore: 71, FraudScale: domain.ScalePoints}, domain.StatusFraudReview},
		{"PointsAt", &domain.SimulationResult{FraudScore: 70, FraudScale: domain.ScalePoints}, domain.StatusManualReview},
		{"UnitAbove", &domain.SimulationResult{FraudScore: 0.75, FraudScale: domain.ScaleUnit}, domain.StatusFraudReview},
		{"UnitBelow", &domain.SimulationResult{FraudScore: 0.5, FraudScale: domain.ScaleUnit}, domain.StatusManualReview},
		{"NoScaleIsPoints", &domain.SimulationResult{FraudScore: 95}, domain.StatusFraudReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextStatus(tc.r); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
