// Package oracle defines how the orchestrating agent obtains routing
// decisions. An Oracle sees a bounded snapshot of the execution state, never
// the state itself, and answers with the next agent to run plus the
// reasoning behind the choice.
//
// The package ships two deterministic oracles (Rules and Scripted) for
// reproducible runs and tests; LLM-backed oracles live in the openai and
// anthropic subpackages.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/defimesh/core"
)

// SystemPrompt is the role instruction shared by the LLM-backed oracles.
const SystemPrompt = "You are the orchestrating agent of a DeFi portfolio management system. " +
	"Decide which specialist agent runs next. Respond with a single JSON object and nothing else."

// Snapshot is the bounded view of an execution handed to an oracle. It
// carries the latest output of each specialist plus a short reasoning tail,
// not the full history.
type Snapshot struct {
	UserInput     string
	WalletAddress string
	ChainID       int64
	Balances      map[string]float64
	Positions     map[string]core.Position

	Proposal   *core.Proposal
	Risk       *core.RiskAssessment
	Forecast   *core.Forecast
	Validation *core.ValidationResult

	ActionItems          int
	ExecutedTransactions int

	RecentReasoning []string
	IterationCount  int
	MaxIterations   int
	RiskThreshold   float64
}

// Decision is an oracle's answer: which agent runs next and why.
type Decision struct {
	NextAgent string `json:"next_agent"`
	Reasoning string `json:"reasoning"`
}

// Oracle produces routing decisions for the orchestrating agent.
type Oracle interface {
	Decide(ctx context.Context, snap Snapshot) (*Decision, error)
}

// BuildPrompt renders a snapshot into the routing prompt used by the
// LLM-backed oracles. Map-valued fields are JSON-encoded, which keeps key
// order stable between calls.
func BuildPrompt(snap Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User request: %s\n", snap.UserInput)
	fmt.Fprintf(&b, "Wallet: %s (chain %d)\n", snap.WalletAddress, snap.ChainID)
	fmt.Fprintf(&b, "Balances: %s\n", compactJSON(snap.Balances))
	fmt.Fprintf(&b, "Positions: %s\n", compactJSON(snap.Positions))

	b.WriteString("\nLatest agent outputs:\n")
	fmt.Fprintf(&b, "- Strategy proposal: %s\n", optionalJSON(snap.Proposal))
	fmt.Fprintf(&b, "- Risk assessment: %s\n", optionalJSON(snap.Risk))
	fmt.Fprintf(&b, "- Market forecast: %s\n", optionalJSON(snap.Forecast))
	fmt.Fprintf(&b, "- Validation: %s\n", optionalJSON(snap.Validation))
	fmt.Fprintf(&b, "- Executed transactions: %d\n", snap.ExecutedTransactions)

	b.WriteString("\nRecent reasoning:\n")
	if len(snap.RecentReasoning) == 0 {
		b.WriteString("- none\n")
	}
	for _, entry := range snap.RecentReasoning {
		fmt.Fprintf(&b, "- %s\n", entry)
	}

	fmt.Fprintf(&b, "\nIteration %d of %d.\n", snap.IterationCount, snap.MaxIterations)

	b.WriteString("\nRouting rules:\n")
	b.WriteString("- Always check risk BEFORE executing any trade.\n")
	b.WriteString("- Don't call the same agent twice in a row.\n")
	fmt.Fprintf(&b, "- The risk threshold is %.1f; scores at or above it are unsafe.\n", snap.RiskThreshold)
	fmt.Fprintf(&b, "- Available agents: %s.\n", strings.Join(core.Routes(), ", "))
	fmt.Fprintf(&b, "- Respond with %q when the request is fully handled.\n", core.RouteEnd)

	b.WriteString("\nRespond with a single JSON object: {\"next_agent\": \"<agent id or END>\", \"reasoning\": \"<why>\"}")

	return b.String()
}

// ParseDecision extracts a Decision from a raw oracle reply. Markdown code
// fences are stripped before decoding. A missing next_agent defaults to END
// and missing reasoning gets a placeholder, so a sparse but well-formed
// reply never fails.
func ParseDecision(raw string) (*Decision, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var decision Decision
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		return nil, fmt.Errorf("parse routing decision: %w", err)
	}

	if decision.NextAgent == "" {
		decision.NextAgent = core.RouteEnd
	}
	if decision.Reasoning == "" {
		decision.Reasoning = "No reasoning provided"
	}
	return &decision, nil
}

func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return "{}"
	}
	return string(raw)
}

func optionalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return "none"
	}
	return string(raw)
}

// Rules is a deterministic oracle that walks the canonical pipeline:
// strategy, forecast, risk, execution, follow-ups, validation, END. It
// never routes the same agent twice in a row and never schedules execution
// before a safe risk assessment exists.
type Rules struct{}

var _ Oracle = (*Rules)(nil)

// NewRules creates the deterministic rule-based oracle.
func NewRules() *Rules { return &Rules{} }

// Decide implements Oracle.
func (r *Rules) Decide(ctx context.Context, snap Snapshot) (*Decision, error) {
	switch {
	case snap.Proposal == nil:
		return &Decision{
			NextAgent: core.RouteStrategy,
			Reasoning: "No strategy proposal yet, asking the strategy agent to analyze the portfolio",
		}, nil
	case snap.Forecast == nil:
		return &Decision{
			NextAgent: core.RouteForecast,
			Reasoning: "Gathering a market outlook before committing to the proposal",
		}, nil
	case snap.Risk == nil:
		return &Decision{
			NextAgent: core.RouteRisk,
			Reasoning: "A proposal exists but its risk has not been assessed",
		}, nil
	case snap.Proposal.Action == core.ActionMigrate && snap.Risk.Safe && snap.ExecutedTransactions == 0:
		return &Decision{
			NextAgent: core.RouteStrategy,
			Reasoning: "Risk cleared the migration, sending it back to the strategy agent for execution",
		}, nil
	case snap.ExecutedTransactions > 0 && snap.ActionItems == 0:
		return &Decision{
			NextAgent: core.RouteProductivity,
			Reasoning: "Recording follow-up actions for the executed migration",
		}, nil
	case snap.Validation == nil:
		return &Decision{
			NextAgent: core.RouteValidation,
			Reasoning: "All stages ran, asking the validation agent to check the outcome",
		}, nil
	default:
		return &Decision{
			NextAgent: core.RouteEnd,
			Reasoning: "The request is fully handled",
		}, nil
	}
}

// Scripted is an oracle that replays a fixed sequence of decisions and then
// answers END. Useful in tests and demos where the routing path must be
// exact.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	next      int
}

var _ Oracle = (*Scripted)(nil)

// NewScripted creates an oracle that replays the given decisions in order.
func NewScripted(decisions ...Decision) *Scripted {
	return &Scripted{decisions: decisions}
}

// Decide implements Oracle.
func (s *Scripted) Decide(ctx context.Context, snap Snapshot) (*Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.decisions) {
		return &Decision{NextAgent: core.RouteEnd, Reasoning: "Script exhausted"}, nil
	}
	decision := s.decisions[s.next]
	s.next++
	return &decision, nil
}
