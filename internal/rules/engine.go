// Package rules provides the CEL-Go based custom fraud rule engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// Engine is the CEL-based rule evaluation engine.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	compiledRules  map[string]*CompiledRule
	velocityGetter VelocityGetter
	velocityWindow int
	maxWorkers     int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config       *domain.RuleConfig
	Program      cel.Program
	UsesVelocity bool
}

// VelocityGetter returns the number of claims a claimant filed in a time window.
type VelocityGetter func(ctx context.Context, tenantID, claimantID string, windowSecs int) (int64, error)

// NewEngine creates a new rule evaluation engine.
func NewEngine(velocityGetter VelocityGetter, velocityWindowSecs, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with claim variables
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("doc_count", cel.IntType),
		cel.Variable("description_length", cel.IntType),
		cel.Variable("has_voice", cel.BoolType),
		cel.Variable("voice_confidence", cel.DoubleType),
		cel.Variable("transcript", cel.StringType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("location", cel.StringType),
		// -1 when the submission time is unknown
		cel.Variable("submission_hour", cel.IntType),
		cel.Variable("claims_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		compiledRules:  make(map[string]*CompiledRule),
		velocityGetter: velocityGetter,
		velocityWindow: velocityWindowSecs,
		maxWorkers:     maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	if cfg.ID == "" {
		return fmt.Errorf("rule id is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[ruleKey(cfg)] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnloadRule removes a rule from the engine.
func (e *Engine) UnloadRule(tenantID, ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, tenantID+"/"+ruleID)
}

// EvaluateClaim evaluates every rule visible to the claim's tenant in
// parallel. Only rules that matched or failed are returned, ordered by rule ID.
func (e *Engine) EvaluateClaim(ctx context.Context, claim *domain.Claim) ([]domain.RuleHit, error) {
	if claim == nil {
		return nil, nil
	}

	rules := e.rulesFor(claim.TenantID)
	if len(rules) == 0 {
		return nil, nil
	}

	// Get velocity count only when a rule needs it
	var claimsCount int64
	if e.velocityGetter != nil && e.velocityWindow > 0 && claim.ClaimantID != "" && anyUsesVelocity(rules) {
		count, err := e.velocityGetter(ctx, claim.TenantID, claim.ClaimantID, e.velocityWindow)
		if err == nil {
			claimsCount = count
		}
	}

	activation := Activation(claim, claimsCount)

	// Parallel evaluation using worker pool pattern
	results := make([]*domain.RuleHit, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	hits := make([]domain.RuleHit, 0, len(results))
	for _, r := range results {
		if r != nil {
			hits = append(hits, *r)
		}
	}
	return hits, nil
}

// Activation builds the CEL variables for a claim.
func Activation(claim *domain.Claim, claimsCount int64) map[string]any {
	conf, hasVoice := claim.VoiceConfidence()
	hour := int64(-1)
	if !claim.SubmittedAt.IsZero() {
		hour = int64(claim.SubmittedAt.Hour())
	}

	return map[string]any{
		"claim": map[string]any{
			"id":               claim.ID,
			"claimant_id":      claim.ClaimantID,
			"policy_number":    claim.PolicyNumber,
			"type":             string(claim.Type),
			"amount":           claim.Amount,
			"estimated_amount": claim.EstimatedAmount,
		},
		"amount":             claim.ClaimedAmount(),
		"claim_type":         string(claim.Type),
		"doc_count":          int64(claim.DocumentCount()),
		"description_length": int64(len(claim.Description)),
		"has_voice":          hasVoice,
		"voice_confidence":   conf,
		"transcript":         strings.ToLower(claim.Transcript()),
		"severity":           strings.ToLower(claim.ClaimDetails.Severity),
		"location":           claim.ClaimDetails.Location,
		"submission_hour":    hour,
		"claims_count":       claimsCount,
	}
}

// evaluateRule evaluates a single rule. It returns nil when the rule did not match.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) *domain.RuleHit {
	start := time.Now()

	hit := &domain.RuleHit{
		RuleID: rule.Config.ID,
		Factor: rule.Config.Factor,
	}
	if hit.Factor == "" {
		hit.Factor = rule.Config.Name
	}

	// Evaluate CEL expression
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		hit.Err = fmt.Sprintf("evaluation error: %v", err)
		hit.ProcessMs = time.Since(start).Milliseconds()
		return hit
	}

	hit.Points = toPoints(out, rule.Config.Points)
	hit.ProcessMs = time.Since(start).Milliseconds()
	if hit.Points == 0 {
		return nil
	}
	return hit
}

// toPoints converts a CEL value to points. A true bool yields the configured
// points; numbers are taken as-is.
func toPoints(val ref.Val, points float64) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return points
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}

func (e *Engine) rulesFor(tenantID string) []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Config.TenantID == "" || rule.Config.TenantID == tenantID {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Config.ID != rules[j].Config.ID {
			return rules[i].Config.ID < rules[j].Config.ID
		}
		return rules[i].Config.TenantID < rules[j].Config.TenantID
	})
	return rules
}

func anyUsesVelocity(rules []*CompiledRule) bool {
	for _, r := range rules {
		if r.UsesVelocity {
			return true
		}
	}
	return false
}

func ruleKey(cfg *domain.RuleConfig) string {
	return cfg.TenantID + "/" + cfg.ID
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules replaces every loaded rule, global and tenant, with configs.
// On error the previous rules stay loaded.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[ruleKey(cfg)] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// ReloadTenantRules replaces the rules owned by tenantID, leaving global and
// other tenants' rules in place. On error the previous rules stay loaded.
func (e *Engine) ReloadTenantRules(tenantID string, configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule, len(e.compiledRules))
	for key, rule := range e.compiledRules {
		if rule.Config.TenantID != tenantID {
			newRules[key] = rule
		}
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		owned := *cfg
		owned.TenantID = tenantID

		compiled, err := e.compileRule(&owned)
		if err != nil {
			return err
		}
		newRules[ruleKey(&owned)] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the rule configurations visible to a tenant.
func (e *Engine) GetLoadedRules(tenantID string) []*domain.RuleConfig {
	rules := e.rulesFor(tenantID)
	out := make([]*domain.RuleConfig, 0, len(rules))
	for _, compiled := range rules {
		out = append(out, compiled.Config)
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:       cfg,
		Program:      program,
		UsesVelocity: strings.Contains(cfg.Expression, "claims_count"),
	}, nil
}
