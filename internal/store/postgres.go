package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/askmany/askmany/pkg/types"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// DefaultPostgresConfig returns sensible defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:         "localhost",
		Port:         5432,
		Database:     "askmany",
		SSLMode:      "disable",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		ConnLifetime: 5 * time.Minute,
	}
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS models (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(256) NOT NULL UNIQUE,
			api_endpoint TEXT NOT NULL,
			credential_key VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id BIGSERIAL PRIMARY KEY,
			prompt_text TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id BIGSERIAL PRIMARY KEY,
			prompt_id BIGINT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
			model_id BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			response_text TEXT NOT NULL,
			response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			tokens_used INTEGER,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_prompt ON results(prompt_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_model ON results(model_id)`,
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key VARCHAR(255) PRIMARY KEY,
			setting_value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateModel(ctx context.Context, m *types.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO models (name, api_endpoint, credential_key, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, m.Name, m.APIEndpoint, m.CredentialKey, m.IsActive).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetModel(ctx context.Context, id int64) (*types.Model, error) {
	return s.scanModel(s.db.QueryRowContext(ctx, `
		SELECT id, name, api_endpoint, credential_key, is_active, created_at, updated_at
		FROM models WHERE id = $1`, id))
}

func (s *PostgresStore) GetModelByName(ctx context.Context, name string) (*types.Model, error) {
	return s.scanModel(s.db.QueryRowContext(ctx, `
		SELECT id, name, api_endpoint, credential_key, is_active, created_at, updated_at
		FROM models WHERE name = $1`, name))
}

func (s *PostgresStore) scanModel(row *sql.Row) (*types.Model, error) {
	var m types.Model
	err := row.Scan(&m.ID, &m.Name, &m.APIEndpoint, &m.CredentialKey, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListModels(ctx context.Context, activeOnly bool) ([]types.Model, error) {
	query := `
		SELECT id, name, api_endpoint, credential_key, is_active, created_at, updated_at
		FROM models`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []types.Model
	for rows.Next() {
		var m types.Model
		if err := rows.Scan(&m.ID, &m.Name, &m.APIEndpoint, &m.CredentialKey, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *PostgresStore) UpdateModel(ctx context.Context, m *types.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE models
		SET name = $1, api_endpoint = $2, credential_key = $3, is_active = $4, updated_at = now()
		WHERE id = $5`,
		m.Name, m.APIEndpoint, m.CredentialKey, m.IsActive, m.ID)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetModelActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE models SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set model active: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteModel(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, p *Prompt) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO prompts (prompt_text, tags, is_favorite)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		p.Text, string(tags), p.IsFavorite).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id int64) (*Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt_text, tags, is_favorite, created_at
		FROM prompts WHERE id = $1`, id)

	p, err := scanPrompt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query prompt: %w", err)
	}
	return p, nil
}

func scanPrompt(scan func(...any) error) (*Prompt, error) {
	var (
		p        Prompt
		tagsJSON string
	)
	if err := scan(&p.ID, &p.Text, &tagsJSON, &p.IsFavorite, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPrompts(ctx context.Context, filter PromptFilter) ([]Prompt, error) {
	query := `
		SELECT id, prompt_text, tags, is_favorite, created_at
		FROM prompts`

	var conds []string
	var args []any
	if filter.FavoriteOnly {
		conds = append(conds, `is_favorite = TRUE`)
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		conds = append(conds, fmt.Sprintf(`tags::jsonb ? $%d`, len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	} else if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	return s.queryPrompts(ctx, query, args...)
}

func (s *PostgresStore) SearchPrompts(ctx context.Context, text string) ([]Prompt, error) {
	return s.queryPrompts(ctx, `
		SELECT id, prompt_text, tags, is_favorite, created_at
		FROM prompts WHERE prompt_text ILIKE $1
		ORDER BY created_at DESC`,
		"%"+text+"%")
}

func (s *PostgresStore) queryPrompts(ctx context.Context, query string, args ...any) ([]Prompt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

func (s *PostgresStore) SetPromptFavorite(ctx context.Context, id int64, favorite bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE prompts SET is_favorite = $1 WHERE id = $2`, favorite, id)
	if err != nil {
		return fmt.Errorf("set prompt favorite: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePrompt(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *Result) error {
	var tokens sql.NullInt64
	if r.TokensUsed != nil {
		tokens = sql.NullInt64{Int64: int64(*r.TokensUsed), Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO results (prompt_id, model_id, response_text, response_time, tokens_used)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, saved_at`,
		r.PromptID, r.ModelID, r.ResponseText, r.ResponseTime, tokens).Scan(&r.ID, &r.SavedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResultsByPrompt(ctx context.Context, promptID int64) ([]Result, error) {
	return s.queryResults(ctx, `
		SELECT r.id, r.prompt_id, r.model_id, m.name, r.response_text, r.response_time, r.tokens_used, r.saved_at
		FROM results r
		JOIN models m ON r.model_id = m.id
		WHERE r.prompt_id = $1
		ORDER BY r.saved_at DESC`,
		promptID)
}

func (s *PostgresStore) ListResults(ctx context.Context, limit, offset int) ([]Result, error) {
	query := `
		SELECT r.id, r.prompt_id, r.model_id, m.name, r.response_text, r.response_time, r.tokens_used, r.saved_at
		FROM results r
		JOIN models m ON r.model_id = m.id
		ORDER BY r.saved_at DESC`

	var args []any
	if limit > 0 {
		args = append(args, limit, offset)
		query += ` LIMIT $1 OFFSET $2`
	}

	return s.queryResults(ctx, query, args...)
}

func (s *PostgresStore) queryResults(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r      Result
			tokens sql.NullInt64
		)
		err := rows.Scan(&r.ID, &r.PromptID, &r.ModelID, &r.ModelName, &r.ResponseText, &r.ResponseTime, &tokens, &r.SavedAt)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if tokens.Valid {
			t := int(tokens.Int64)
			r.TokensUsed = &t
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) DeleteResultsByPrompt(ctx context.Context, promptID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE prompt_id = $1`, promptID)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (setting_key, setting_value)
		VALUES ($1, $2)
		ON CONFLICT (setting_key)
		DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var setting Setting
	err := s.db.QueryRowContext(ctx, `
		SELECT setting_key, setting_value, updated_at
		FROM settings WHERE setting_key = $1`, key).
		Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query setting: %w", err)
	}
	return &setting, nil
}
