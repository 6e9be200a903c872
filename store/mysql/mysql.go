// Package mysql provides the MySQL-backed implementation of core.Store. The
// schema is bootstrapped on construction, so pointing the store at an empty
// database is enough to run.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/hupe1980/defimesh/core"
)

// Options configures the MySQL store connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store persists all DefiMesh collections in MySQL. One row per execution
// carries the full state blob as JSON plus status and timestamps; decisions,
// reasoning steps, risk assessments, transactions and balance observations
// are append-only rows referencing their execution.
type Store struct {
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// New opens a MySQL connection pool for the given DSN, verifies connectivity
// and bootstraps the schema. The caller owns the returned store and should
// Close it on shutdown.
func New(dsn string, optFns ...func(o *Options)) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("mysql dsn must not be empty")
	}

	opts := Options{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 10 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS portfolios (
        id VARCHAR(36) PRIMARY KEY,
        user_id VARCHAR(64) NOT NULL,
        wallet_address VARCHAR(128) NOT NULL,
        chain_id BIGINT NOT NULL DEFAULT 1,
        created_at BIGINT NOT NULL,
        UNIQUE KEY uniq_portfolio_wallet (wallet_address)
)`,
		`CREATE TABLE IF NOT EXISTS agent_executions (
        execution_id VARCHAR(36) PRIMARY KEY,
        portfolio_id VARCHAR(36) NOT NULL,
        state_data JSON NOT NULL,
        status VARCHAR(16) NOT NULL,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_execution_portfolio (portfolio_id),
        INDEX idx_execution_updated (updated_at)
)`,
		`CREATE TABLE IF NOT EXISTS agent_decisions (
        id VARCHAR(36) PRIMARY KEY,
        execution_id VARCHAR(36) NOT NULL,
        portfolio_id VARCHAR(36) NOT NULL,
        agent_name VARCHAR(64) NOT NULL,
        decision_type VARCHAR(32) NOT NULL,
        decision_data JSON,
        reasoning TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_decision_execution (execution_id)
)`,
		`CREATE TABLE IF NOT EXISTS agent_reasoning (
        id VARCHAR(36) PRIMARY KEY,
        execution_id VARCHAR(36) NOT NULL,
        agent_name VARCHAR(64) NOT NULL,
        step_number INT NOT NULL,
        reasoning_text TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_reasoning_execution (execution_id)
)`,
		`CREATE TABLE IF NOT EXISTS risk_assessments (
        id VARCHAR(36) PRIMARY KEY,
        execution_id VARCHAR(36) NOT NULL,
        portfolio_id VARCHAR(36) NOT NULL,
        protocol VARCHAR(64) NOT NULL,
        risk_score DOUBLE NOT NULL,
        risk_factors JSON,
        safe TINYINT(1) NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_risk_execution (execution_id)
)`,
		`CREATE TABLE IF NOT EXISTS executed_transactions (
        id VARCHAR(36) PRIMARY KEY,
        execution_id VARCHAR(36) NOT NULL,
        portfolio_id VARCHAR(36) NOT NULL,
        tx_hash VARCHAR(80) NOT NULL,
        protocol VARCHAR(64) DEFAULT '',
        action VARCHAR(32) DEFAULT '',
        asset VARCHAR(32) DEFAULT '',
        amount DOUBLE NOT NULL DEFAULT 0,
        status VARCHAR(16) NOT NULL DEFAULT 'success',
        created_at BIGINT NOT NULL,
        INDEX idx_transaction_execution (execution_id)
)`,
		`CREATE TABLE IF NOT EXISTS balances (
        id VARCHAR(36) PRIMARY KEY,
        portfolio_id VARCHAR(36) NOT NULL,
        asset VARCHAR(32) NOT NULL,
        location VARCHAR(64) NOT NULL,
        amount DOUBLE NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_balance_portfolio (portfolio_id)
)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// UpsertPortfolio inserts the portfolio and, when the wallet address is
// already taken, returns the existing portfolio id instead. The unique key
// on wallet_address makes repeat calls idempotent.
func (s *Store) UpsertPortfolio(ctx context.Context, p core.Portfolio) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	const stmt = `INSERT INTO portfolios (id, user_id, wallet_address, chain_id, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, p.ID, p.UserID, p.WalletAddress, p.ChainID, p.CreatedAt.Unix())
	if err == nil {
		return p.ID, nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		var id string
		row := s.db.QueryRowContext(ctx, `SELECT id FROM portfolios WHERE wallet_address = ?`, p.WalletAddress)
		if err := row.Scan(&id); err != nil {
			return "", fmt.Errorf("resolve existing portfolio: %w", err)
		}
		return id, nil
	}
	return "", fmt.Errorf("insert portfolio: %w", err)
}

// GetPortfolioByWallet returns the portfolio keyed by wallet address.
func (s *Store) GetPortfolioByWallet(ctx context.Context, walletAddress string) (*core.Portfolio, error) {
	const stmt = `SELECT id, user_id, wallet_address, chain_id, created_at FROM portfolios WHERE wallet_address = ?`
	row := s.db.QueryRowContext(ctx, stmt, walletAddress)

	var p core.Portfolio
	var createdAt int64
	if err := row.Scan(&p.ID, &p.UserID, &p.WalletAddress, &p.ChainID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("portfolio for wallet %s: %w", walletAddress, core.ErrNotFound)
		}
		return nil, fmt.Errorf("query portfolio: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &p, nil
}

// InsertExecution creates a new execution row and returns the assigned id.
func (s *Store) InsertExecution(ctx context.Context, rec core.ExecutionRecord) (string, error) {
	if rec.ExecutionID == "" {
		rec.ExecutionID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.State != nil {
		rec.State.ExecutionID = rec.ExecutionID
	}

	blob, err := json.Marshal(rec.State)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}

	const stmt = `INSERT INTO agent_executions (execution_id, portfolio_id, state_data, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt, rec.ExecutionID, rec.PortfolioID, blob, rec.Status, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("insert execution: %w", err)
	}
	return rec.ExecutionID, nil
}

// GetExecution returns the stored record for an execution id.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*core.ExecutionRecord, error) {
	const stmt = `SELECT execution_id, portfolio_id, state_data, status, created_at, updated_at
        FROM agent_executions WHERE execution_id = ?`
	row := s.db.QueryRowContext(ctx, stmt, executionID)

	rec, err := scanExecution(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", executionID, core.ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// UpdateExecution replaces the state blob and status for an execution.
func (s *Store) UpdateExecution(ctx context.Context, executionID string, state *core.ExecutionState, status string) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	updatedAt := time.Now().UTC()
	if state != nil && !state.UpdatedAt.IsZero() {
		updatedAt = state.UpdatedAt
	}

	const stmt = `UPDATE agent_executions SET state_data = ?, status = ?, updated_at = ? WHERE execution_id = ?`
	res, err := s.db.ExecContext(ctx, stmt, blob, status, updatedAt.Unix(), executionID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL also reports 0 when the row exists but nothing changed;
		// distinguish a genuinely missing row.
		var exists int
		row := s.db.QueryRowContext(ctx, `SELECT 1 FROM agent_executions WHERE execution_id = ?`, executionID)
		if scanErr := row.Scan(&exists); errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("execution %s: %w", executionID, core.ErrNotFound)
		}
	}
	return nil
}

// ListRecentExecutions returns up to limit records, newest first.
func (s *Store) ListRecentExecutions(ctx context.Context, limit int) ([]core.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const stmt = `SELECT execution_id, portfolio_id, state_data, status, created_at, updated_at
        FROM agent_executions ORDER BY created_at DESC, execution_id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []core.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanExecution(scan func(dest ...any) error) (*core.ExecutionRecord, error) {
	var rec core.ExecutionRecord
	var blob []byte
	var createdAt, updatedAt int64
	if err := scan(&rec.ExecutionID, &rec.PortfolioID, &blob, &rec.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		rec.State = &core.ExecutionState{}
		if err := json.Unmarshal(blob, rec.State); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

// AppendDecision inserts an immutable decision record.
func (s *Store) AppendDecision(ctx context.Context, rec core.DecisionRecord) error {
	fillDefaults(&rec.ID, &rec.CreatedAt)

	var data []byte
	if rec.DecisionData != nil {
		var err error
		if data, err = json.Marshal(rec.DecisionData); err != nil {
			return fmt.Errorf("encode decision data: %w", err)
		}
	}

	const stmt = `INSERT INTO agent_decisions (id, execution_id, portfolio_id, agent_name, decision_type, decision_data, reasoning, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.ExecutionID, rec.PortfolioID, rec.AgentName, rec.DecisionType, data, rec.Reasoning, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// AppendReasoning inserts an immutable reasoning entry.
func (s *Store) AppendReasoning(ctx context.Context, rec core.ReasoningEntry) error {
	fillDefaults(&rec.ID, &rec.CreatedAt)

	const stmt = `INSERT INTO agent_reasoning (id, execution_id, agent_name, step_number, reasoning_text, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.ExecutionID, rec.AgentName, rec.StepNumber, rec.Reasoning, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert reasoning: %w", err)
	}
	return nil
}

// AppendRiskRecord inserts an immutable risk-assessment record.
func (s *Store) AppendRiskRecord(ctx context.Context, rec core.RiskRecord) error {
	fillDefaults(&rec.ID, &rec.CreatedAt)

	var factors []byte
	if rec.Factors != nil {
		var err error
		if factors, err = json.Marshal(rec.Factors); err != nil {
			return fmt.Errorf("encode risk factors: %w", err)
		}
	}

	const stmt = `INSERT INTO risk_assessments (id, execution_id, portfolio_id, protocol, risk_score, risk_factors, safe, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.ExecutionID, rec.PortfolioID, rec.Protocol, rec.Score, factors, rec.Safe, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert risk assessment: %w", err)
	}
	return nil
}

// AppendTransaction inserts an immutable executed-transaction record.
func (s *Store) AppendTransaction(ctx context.Context, rec core.TransactionRecord) error {
	fillDefaults(&rec.ID, &rec.CreatedAt)

	const stmt = `INSERT INTO executed_transactions (id, execution_id, portfolio_id, tx_hash, protocol, action, asset, amount, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.ExecutionID, rec.PortfolioID, rec.TxHash, rec.Protocol, rec.Action, rec.Asset, rec.Amount, rec.Status, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// AppendBalance inserts a balance observation.
func (s *Store) AppendBalance(ctx context.Context, rec core.BalanceRecord) error {
	fillDefaults(&rec.ID, &rec.CreatedAt)

	const stmt = `INSERT INTO balances (id, portfolio_id, asset, location, amount, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.PortfolioID, rec.Asset, rec.Location, rec.Amount, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

// ListRecentDecisions returns up to limit decision records, newest first.
func (s *Store) ListRecentDecisions(ctx context.Context, limit int) ([]core.DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const stmt = `SELECT id, execution_id, portfolio_id, agent_name, decision_type, decision_data, reasoning, created_at
        FROM agent_decisions ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []core.DecisionRecord
	for rows.Next() {
		var rec core.DecisionRecord
		var data []byte
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ExecutionID, &rec.PortfolioID, &rec.AgentName, &rec.DecisionType, &data, &rec.Reasoning, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.DecisionData); err != nil {
				return nil, fmt.Errorf("decode decision data: %w", err)
			}
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRecentReasoning returns up to limit reasoning entries, newest first.
func (s *Store) ListRecentReasoning(ctx context.Context, limit int) ([]core.ReasoningEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const stmt = `SELECT id, execution_id, agent_name, step_number, reasoning_text, created_at
        FROM agent_reasoning ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("list reasoning: %w", err)
	}
	defer rows.Close()

	var out []core.ReasoningEntry
	for rows.Next() {
		var rec core.ReasoningEntry
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ExecutionID, &rec.AgentName, &rec.StepNumber, &rec.Reasoning, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reasoning: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func fillDefaults(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}
