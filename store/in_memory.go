package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/defimesh/core"
)

// InMemoryStore is a volatile core.Store implementation keeping all
// collections in process-local maps and slices. It is safe for concurrent
// access and best suited for tests, demos and degraded local operation.
// Stored states are cloned on the way in and out to prevent external
// mutation of internal records.
type InMemoryStore struct {
	mu           sync.RWMutex
	portfolios   map[string]core.Portfolio // keyed by wallet address
	executions   map[string]*core.ExecutionRecord
	decisions    []core.DecisionRecord
	reasoning    []core.ReasoningEntry
	risks        []core.RiskRecord
	transactions []core.TransactionRecord
	balances     []core.BalanceRecord
}

var _ core.Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		portfolios: make(map[string]core.Portfolio),
		executions: make(map[string]*core.ExecutionRecord),
	}
}

// UpsertPortfolio returns the existing portfolio id for the wallet address
// or creates a new portfolio. Repeat calls with the same wallet never create
// a second record.
func (s *InMemoryStore) UpsertPortfolio(_ context.Context, p core.Portfolio) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.portfolios[p.WalletAddress]; ok {
		return existing.ID, nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.portfolios[p.WalletAddress] = p
	return p.ID, nil
}

// GetPortfolioByWallet returns the portfolio keyed by wallet address.
func (s *InMemoryStore) GetPortfolioByWallet(_ context.Context, walletAddress string) (*core.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[walletAddress]
	if !ok {
		return nil, fmt.Errorf("portfolio for wallet %s: %w", walletAddress, core.ErrNotFound)
	}
	return &p, nil
}

// InsertExecution creates a new execution record, assigning an id when the
// caller left it empty.
func (s *InMemoryStore) InsertExecution(_ context.Context, rec core.ExecutionRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
		rec.State = rec.State.Clone()
		rec.State.ExecutionID = rec.ExecutionID
	}
	stored := rec
	s.executions[rec.ExecutionID] = &stored
	return rec.ExecutionID, nil
}

// GetExecution returns a copy of the stored record for an execution id.
func (s *InMemoryStore) GetExecution(_ context.Context, executionID string) (*core.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, core.ErrNotFound)
	}
	out := *rec
	if rec.State != nil {
		out.State = rec.State.Clone()
	}
	return &out, nil
}

// UpdateExecution replaces the state blob and status for an existing
// execution. Last write wins.
func (s *InMemoryStore) UpdateExecution(_ context.Context, executionID string, state *core.ExecutionState, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", executionID, core.ErrNotFound)
	}
	rec.Status = status
	if state != nil {
		rec.State = state.Clone()
		rec.UpdatedAt = state.UpdatedAt
	} else {
		rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ListRecentExecutions returns up to limit records, newest first.
func (s *InMemoryStore) ListRecentExecutions(_ context.Context, limit int) ([]core.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ExecutionRecord, 0, len(s.executions))
	for _, rec := range s.executions {
		cp := *rec
		if rec.State != nil {
			cp.State = rec.State.Clone()
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AppendDecision inserts an immutable decision record.
func (s *InMemoryStore) AppendDecision(_ context.Context, rec core.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillAuditDefaults(&rec.ID, &rec.CreatedAt)
	s.decisions = append(s.decisions, rec)
	return nil
}

// AppendReasoning inserts an immutable reasoning entry.
func (s *InMemoryStore) AppendReasoning(_ context.Context, rec core.ReasoningEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillAuditDefaults(&rec.ID, &rec.CreatedAt)
	s.reasoning = append(s.reasoning, rec)
	return nil
}

// AppendRiskRecord inserts an immutable risk-assessment record.
func (s *InMemoryStore) AppendRiskRecord(_ context.Context, rec core.RiskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillAuditDefaults(&rec.ID, &rec.CreatedAt)
	s.risks = append(s.risks, rec)
	return nil
}

// AppendTransaction inserts an immutable executed-transaction record.
func (s *InMemoryStore) AppendTransaction(_ context.Context, rec core.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillAuditDefaults(&rec.ID, &rec.CreatedAt)
	s.transactions = append(s.transactions, rec)
	return nil
}

// AppendBalance inserts a balance observation.
func (s *InMemoryStore) AppendBalance(_ context.Context, rec core.BalanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fillAuditDefaults(&rec.ID, &rec.CreatedAt)
	s.balances = append(s.balances, rec)
	return nil
}

// ListRecentDecisions returns up to limit decision records, newest first.
func (s *InMemoryStore) ListRecentDecisions(_ context.Context, limit int) ([]core.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastReversed(s.decisions, limit), nil
}

// ListRecentReasoning returns up to limit reasoning entries, newest first.
func (s *InMemoryStore) ListRecentReasoning(_ context.Context, limit int) ([]core.ReasoningEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastReversed(s.reasoning, limit), nil
}

// ReasoningByExecution returns the stored reasoning entries for one
// execution in insertion order. Not part of core.Store; used by tests and
// the inspection tooling.
func (s *InMemoryStore) ReasoningByExecution(executionID string) []core.ReasoningEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ReasoningEntry
	for _, rec := range s.reasoning {
		if rec.ExecutionID == executionID {
			out = append(out, rec)
		}
	}
	return out
}

func fillAuditDefaults(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

// lastReversed copies the newest entries of an append-ordered slice, newest
// first.
func lastReversed[T any](in []T, limit int) []T {
	n := len(in)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(in) - 1; i >= len(in)-n; i-- {
		out = append(out, in[i])
	}
	return out
}
