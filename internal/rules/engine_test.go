package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

func testClaim() *domain.Claim {
	return &domain.Claim{
		ID:              "claim-001",
		TenantID:        "tenant-001",
		ClaimantID:      "claimant-001",
		Type:            domain.ClaimTypeAccident,
		EstimatedAmount: 5000,
		Description:     "Rear-ended at a red light",
		Documents:       []domain.Document{{ID: "d1"}},
		VoiceData:       &domain.VoiceData{Transcript: "The car was STOLEN overnight", Confidence: 0.85},
		ClaimDetails:    domain.ClaimDetails{Severity: "Severe", Location: "Pune"},
		SubmittedAt:     time.Date(2024, 6, 1, 23, 15, 0, 0, time.UTC),
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 0, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "amount > 100.0",
		Points:     10,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}

	engine.UnloadRule("", "test-rule-001")
	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules after unload, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	defer engine.Close()

	cases := map[string]string{
		"Syntax":     "this is not valid CEL !!!",
		"StringType": "claim_type + \"x\"",
		"UnknownVar": "balance > 10.0",
	}
	for name, expr := range cases {
		t.Run(name, func(t *testing.T) {
			err := engine.LoadRule(&domain.RuleConfig{ID: "invalid", Expression: expr, Enabled: true})
			if err == nil {
				t.Errorf("expected error for %q", expr)
			}
		})
	}
	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules must not load, got %d", engine.RulesCount())
	}
}

func TestEvaluateClaim(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	defer engine.Close()

	rules := []*domain.RuleConfig{
		{ID: "b-keyword", Expression: `transcript.contains("stolen")`, Points: 12, Factor: "Theft reported", Enabled: true},
		{ID: "a-severe", Expression: `claim_type == "accident" && severity == "severe"`, Points: 8, Enabled: true, Name: "Severe accident"},
		{ID: "c-late", Expression: "submission_hour >= 23 ? 4.0 : 0.0", Enabled: true},
		{ID: "d-nomatch", Expression: "doc_count > 5", Points: 50, Enabled: true},
		{ID: "e-disabled", Expression: "true", Points: 99, Enabled: false},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	hits, err := engine.EvaluateClaim(context.Background(), testClaim())
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %+v", hits)
	}

	want := []struct {
		id     string
		points float64
		factor string
	}{
		{"a-severe", 8, "Severe accident"},
		{"b-keyword", 12, "Theft reported"},
		{"c-late", 4, ""},
	}
	for i, w := range want {
		if hits[i].RuleID != w.id || hits[i].Points != w.points || hits[i].Factor != w.factor {
			t.Errorf("hit %d: expected %+v, got %+v", i, w, hits[i])
		}
	}
}

func TestEvaluateErrorRule(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "div-zero",
		Expression: "doc_count / (doc_count - 1) > 0",
		Points:     5,
		Enabled:    true,
	})

	hits, _ := engine.EvaluateClaim(context.Background(), testClaim())
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Err == "" {
		t.Error("expected evaluation error to be reported")
	}
	if hits[0].Points != 0 {
		t.Errorf("errored rule must not score, got %.1f", hits[0].Points)
	}
}

func TestTenantScoping(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "global", Expression: "true", Points: 1, Enabled: true})
	engine.LoadRule(&domain.RuleConfig{ID: "own", TenantID: "tenant-001", Expression: "true", Points: 2, Enabled: true})
	engine.LoadRule(&domain.RuleConfig{ID: "other", TenantID: "tenant-002", Expression: "true", Points: 4, Enabled: true})

	hits, _ := engine.EvaluateClaim(context.Background(), testClaim())
	total := 0.0
	for _, h := range hits {
		total += h.Points
	}
	if total != 3 {
		t.Errorf("expected global+own points 3, got %.0f (%+v)", total, hits)
	}
	if n := len(engine.GetLoadedRules("tenant-002")); n != 2 {
		t.Errorf("expected 2 rules visible to tenant-002, got %d", n)
	}
}

func TestVelocityRule(t *testing.T) {
	var calls int32
	velocityGetter := func(ctx context.Context, tenantID, claimantID string, windowSecs int) (int64, error) {
		atomic.AddInt32(&calls, 1)
		if claimantID != "claimant-001" || windowSecs != 3600 {
			return 0, fmt.Errorf("unexpected lookup %s %d", claimantID, windowSecs)
		}
		return 4, nil
	}

	engine, _ := NewEngine(velocityGetter, 3600, 5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:          "repeat-claimant",
		Name:        "Repeat claimant",
		Description: "Flags claimants with many recent claims",
		Version:     "1.0.0",
		Expression:  "claims_count > 3",
		Points:      25,
		Enabled:     true,
	})

	hits, _ := engine.EvaluateClaim(context.Background(), testClaim())
	if len(hits) != 1 || hits[0].Points != 25 {
		t.Fatalf("expected repeat-claimant hit, got %+v", hits)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected one velocity lookup, got %d", calls)
	}
}

func TestVelocitySkippedWhenUnused(t *testing.T) {
	velocityGetter := func(ctx context.Context, tenantID, claimantID string, windowSecs int) (int64, error) {
		return 0, errors.New("should not be called")
	}
	engine, _ := NewEngine(velocityGetter, 3600, 5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "amount", Expression: "amount > 1000.0", Points: 3, Enabled: true})
	hits, err := engine.EvaluateClaim(context.Background(), testClaim())
	if err != nil || len(hits) != 1 {
		t.Errorf("expected single hit, got %+v %v", hits, err)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 3)
	defer engine.Close()

	// Load multiple rules
	for i := 0; i < 10; i++ {
		engine.LoadRule(&domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%02d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "amount > 0.0",
			Points:     1,
			Enabled:    true,
		})
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	hits, err := engine.EvaluateClaim(context.Background(), testClaim())
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}
	if len(hits) != 10 {
		t.Fatalf("expected 10 hits, got %d", len(hits))
	}
	for i, h := range hits {
		if h.RuleID != fmt.Sprintf("rule-%02d", i) {
			t.Errorf("hit %d out of order: %s", i, h.RuleID)
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "old", Expression: "true", Points: 1, Enabled: true})

	err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "new-1", Expression: "has_voice", Points: 1, Enabled: true},
		{ID: "new-2", Expression: "voice_confidence < 0.5", Points: 1, Enabled: true},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}

	// A broken rule set leaves the current rules in place
	err = engine.ReloadRules([]*domain.RuleConfig{{ID: "bad", Expression: "(((", Enabled: true}})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 2 {
		t.Errorf("expected rules unchanged after failed reload, got %d", engine.RulesCount())
	}
}

func TestActivation(t *testing.T) {
	act := Activation(&domain.Claim{}, 0)
	if act["submission_hour"] != int64(-1) {
		t.Errorf("expected -1 for unknown hour, got %v", act["submission_hour"])
	}
	if act["has_voice"] != false {
		t.Error("expected has_voice false")
	}

	act = Activation(testClaim(), 7)
	if act["transcript"] != strings.ToLower("The car was STOLEN overnight") {
		t.Errorf("expected lowercase transcript, got %v", act["transcript"])
	}
	if act["claims_count"] != int64(7) {
		t.Errorf("expected claims_count 7, got %v", act["claims_count"])
	}
}

func TestReloadTenantRules(t *testing.T) {
	engine, _ := NewEngine(nil, 0, 5)
	engine.LoadRule(&domain.RuleConfig{ID: "global", Expression: "true", Points: 1, Enabled: true})
	engine.LoadRule(&domain.RuleConfig{ID: "a-old", TenantID: "tenant-a", Expression: "true", Points: 1, Enabled: true})
	engine.LoadRule(&domain.RuleConfig{ID: "b-rule", TenantID: "tenant-b", Expression: "true", Points: 1, Enabled: true})

	err := engine.ReloadTenantRules("tenant-a", []*domain.RuleConfig{
		{ID: "a-new", Expression: "amount > 10.0", Points: 5, Enabled: true},
		{ID: "a-off", Expression: "true", Points: 5, Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	ids := func(tenantID string) []string {
		var out []string
		for _, r := range engine.GetLoadedRules(tenantID) {
			out = append(out, r.ID)
		}
		return out
	}

	if got := ids("tenant-a"); strings.Join(got, ",") != "a-new,global" {
		t.Errorf("unexpected tenant-a rules %v", got)
	}
	if got := ids("tenant-b"); strings.Join(got, ",") != "b-rule,global" {
		t.Errorf("unexpected tenant-b rules %v", got)
	}

	if err := engine.ReloadTenantRules("tenant-a", []*domain.RuleConfig{{ID: "bad", Expression: "(((", Enabled: true}}); err == nil {
		t.Fatal("expected reload error")
	}
	if got := ids("tenant-a"); strings.Join(got, ",") != "a-new,global" {
		t.Errorf("expected rules unchanged after failed reload, got %v", got)
	}
}
