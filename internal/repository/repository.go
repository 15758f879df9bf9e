// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record already exists")
)

const (
	// DefaultListLimit bounds ListClaims when the filter sets no limit.
	DefaultListLimit = 50

	// MaxListLimit is the largest page ListClaims will return.
	MaxListLimit = 500
)

var claimColumns = []string{
	"id", "tenant_id", "claimant_id", "policy_number", "type",
	"amount", "estimated_amount", "description",
	"documents", "voice_data", "claim_details", "simulation",
	"status", "submitted_at", "created_at", "updated_at",
}

var ruleColumns = []string{
	"id", "tenant_id", "name", "description", "version",
	"expression", "points", "factor", "enabled",
	"created_at", "updated_at",
}

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		sb:     statementBuilder(cfg.Driver),
		now:    func() time.Time { return time.Now().UTC() },
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// statementBuilder returns a query builder using the driver's placeholder style.
func statementBuilder(driver string) sq.StatementBuilderType {
	if driver == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// CreateClaim inserts a new claim and returns ErrConflict if the ID is taken.
func (r *SQLRepository) CreateClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	insert, err := r.claimInsert(tenantID, claim)
	if err != nil {
		return err
	}

	query, args, err := insert.Suffix("ON CONFLICT (id, tenant_id) DO NOTHING").ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: claim %s", ErrConflict, claim.ID)
	}
	return nil
}

// claimInsert fills the claim's defaults and builds its INSERT.
func (r *SQLRepository) claimInsert(tenantID string, claim *domain.Claim) (sq.InsertBuilder, error) {
	if tenantID == "" {
		return sq.InsertBuilder{}, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if claim == nil || claim.ID == "" {
		return sq.InsertBuilder{}, fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}

	now := r.now()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	claim.UpdatedAt = now
	claim.TenantID = tenantID
	if claim.Status == "" {
		claim.Status = domain.StatusPending
	}
	if claim.Documents == nil {
		claim.Documents = []domain.Document{}
	}

	documents, err := json.Marshal(claim.Documents)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal documents: %w", err)
	}
	voice, err := json.Marshal(claim.VoiceData)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal voice data: %w", err)
	}
	details, err := json.Marshal(claim.ClaimDetails)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal claim details: %w", err)
	}
	simulation, err := json.Marshal(claim.Simulation)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal simulation: %w", err)
	}

	return r.sb.Insert("claims").
		Columns(claimColumns...).
		Values(
			claim.ID, tenantID, claim.ClaimantID, claim.PolicyNumber, string(claim.Type),
			claim.Amount, claim.EstimatedAmount, claim.Description,
			string(documents), string(voice), string(details), string(simulation),
			string(claim.Status), claim.SubmittedAt.UTC(), claim.CreatedAt.UTC(), claim.UpdatedAt,
		), nil
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query, args, err := r.sb.Select(claimColumns...).
		From("claims").
		Where(sq.Eq{"tenant_id": tenantID, "id": claimID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	claim, err := scanClaim(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ListClaims returns a tenant's claims, newest first.
func (r *SQLRepository) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	where := sq.Eq{"tenant_id": tenantID}
	if filter.Status != "" {
		where["status"] = string(filter.Status)
	}
	if filter.ClaimantID != "" {
		where["claimant_id"] = filter.ClaimantID
	}

	query, args, err := r.sb.Select(claimColumns...).
		From("claims").
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := []*domain.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// UpdateClaimStatus sets a claim's status.
func (r *SQLRepository) UpdateClaimStatus(ctx context.Context, tenantID string, claimID string, status domain.ClaimStatus) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	return r.update(ctx, tenantID, claimID, sq.Eq{"status": string(status)})
}

// SaveSimulation overwrites the claim's last simulation and sets its status.
func (r *SQLRepository) SaveSimulation(ctx context.Context, tenantID string, claimID string, sim *domain.SimulationResult, status domain.ClaimStatus) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	simulation, err := json.Marshal(sim)
	if err != nil {
		return fmt.Errorf("marshal simulation: %w", err)
	}

	return r.update(ctx, tenantID, claimID, sq.Eq{
		"simulation": string(simulation),
		"status":     string(status),
	})
}

// AddDocument appends doc to the claim's documents in a single statement,
// leaving every other column untouched.
func (r *SQLRepository) AddDocument(ctx context.Context, tenantID string, claimID string, doc domain.Document) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	appendDoc := sq.Expr("json_insert(documents, '$[#]', json(?))", string(encoded))
	if r.driver == "postgres" {
		appendDoc = sq.Expr("(documents::jsonb || jsonb_build_array(?::jsonb))::text", string(encoded))
	}

	return r.update(ctx, tenantID, claimID, sq.Eq{"documents": appendDoc})
}

// SetVoiceData replaces the claim's voice statement.
func (r *SQLRepository) SetVoiceData(ctx context.Context, tenantID string, claimID string, voice *domain.VoiceData) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	encoded, err := json.Marshal(voice)
	if err != nil {
		return fmt.Errorf("marshal voice data: %w", err)
	}

	return r.update(ctx, tenantID, claimID, sq.Eq{"voice_data": string(encoded)})
}

// update applies set to one claim and reports ErrNotFound when no row matched.
func (r *SQLRepository) update(ctx context.Context, tenantID, claimID string, set sq.Eq) error {
	set["updated_at"] = r.now()

	query, args, err := r.sb.Update("claims").
		SetMap(set).
		Where(sq.Eq{"tenant_id": tenantID, "id": claimID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountClaimsByClaimant counts a claimant's claims created at or after since.
func (r *SQLRepository) CountClaimsByClaimant(ctx context.Context, tenantID string, claimantID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if claimantID == "" {
		return 0, nil
	}

	query, args, err := r.sb.Select("COUNT(*)").
		From("claims").
		Where(sq.Eq{"tenant_id": tenantID, "claimant_id": claimantID}).
		Where(sq.GtOrEq{"created_at": since.UTC()}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	rule.TenantID = tenantID

	now := r.now()
	query, args, err := r.sb.Insert("rule_configs").
		Columns(ruleColumns...).
		Values(
			rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
			rule.Expression, rule.Points, rule.Factor, boolToInt(rule.Enabled),
			now, now,
		).
		Suffix(`ON CONFLICT (id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			points = excluded.points,
			factor = excluded.factor,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// ListRuleConfigs returns all rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query, args, err := r.sb.Select("id", "tenant_id", "name", "description", "version",
		"expression", "points", "factor", "enabled").
		From("rule_configs").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.RuleConfig{}
	for rows.Next() {
		var rule domain.RuleConfig
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Version,
			&rule.Expression, &rule.Points, &rule.Factor, &enabled,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// DeleteRuleConfig removes a rule configuration.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query, args, err := r.sb.Delete("rule_configs").
		Where(sq.Eq{"tenant_id": tenantID, "id": ruleID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var claim domain.Claim
	var claimType, status string
	var documents, voice, details, simulation string

	if err := row.Scan(
		&claim.ID, &claim.TenantID, &claim.ClaimantID, &claim.PolicyNumber, &claimType,
		&claim.Amount, &claim.EstimatedAmount, &claim.Description,
		&documents, &voice, &details, &simulation,
		&status, &claim.SubmittedAt, &claim.CreatedAt, &claim.UpdatedAt,
	); err != nil {
		return nil, err
	}
	claim.Type = domain.ClaimType(claimType)
	claim.Status = domain.ClaimStatus(status)

	if err := json.Unmarshal([]byte(documents), &claim.Documents); err != nil {
		return nil, fmt.Errorf("decode documents for claim %s: %w", claim.ID, err)
	}
	if err := json.Unmarshal([]byte(voice), &claim.VoiceData); err != nil {
		return nil, fmt.Errorf("decode voice data for claim %s: %w", claim.ID, err)
	}
	if err := json.Unmarshal([]byte(details), &claim.ClaimDetails); err != nil {
		return nil, fmt.Errorf("decode claim details for claim %s: %w", claim.ID, err)
	}
	if err := json.Unmarshal([]byte(simulation), &claim.Simulation); err != nil {
		return nil, fmt.Errorf("decode simulation for claim %s: %w", claim.ID, err)
	}
	if claim.Documents == nil {
		claim.Documents = []domain.Document{}
	}
	return &claim, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
