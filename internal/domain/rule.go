package domain

// RuleConfig defines a custom fraud rule evaluated by the CEL engine.
type RuleConfig struct {
	ID          string `json:"id" yaml:"id"`
	TenantID    string `json:"tenantId" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`

	// CEL expression to evaluate against the claim variables.
	// A bool result adds Points when true; a numeric result is added as-is.
	Expression string `json:"expression" yaml:"expression"`

	// Points added when a boolean expression matches.
	Points float64 `json:"points" yaml:"points"`

	// Factor is the human-readable risk factor reported on a match.
	Factor string `json:"factor" yaml:"factor"`

	// Whether rule is active
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// RuleHit is a custom rule that contributed points to a claim.
type RuleHit struct {
	RuleID    string  `json:"ruleId"`
	Points    float64 `json:"points"`
	Factor    string  `json:"factor"`
	ProcessMs int64   `json:"processMs"`
	Err       string  `json:"error,omitempty"`
}
