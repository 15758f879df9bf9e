// Package domain defines the core interfaces and types for ClaimHawk.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Claim operations
	CreateClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	ListClaims(ctx context.Context, tenantID string, filter ClaimFilter) ([]*Claim, error)
	UpdateClaimStatus(ctx context.Context, tenantID string, claimID string, status ClaimStatus) error
	CountClaimsByClaimant(ctx context.Context, tenantID string, claimantID string, since time.Time) (int64, error)

	// SaveSimulation overwrites the claim's last simulation and sets its status.
	SaveSimulation(ctx context.Context, tenantID string, claimID string, sim *SimulationResult, status ClaimStatus) error

	// AddDocument and SetVoiceData touch only their own column.
	AddDocument(ctx context.Context, tenantID string, claimID string, doc Document) error
	SetVoiceData(ctx context.Context, tenantID string, claimID string, voice *VoiceData) error

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ClaimFilter narrows ListClaims.
type ClaimFilter struct {
	Status     ClaimStatus
	ClaimantID string
	Limit      int
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDB"`
	PostgresSSLMode  string `json:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}
