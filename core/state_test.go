package core

import (
	"strings"
	"testing"
)

func TestNewExecutionState_Defaults(t *testing.T) {
	s := NewExecutionState("p1", "optimize yield", "0xabc", 1)

	if s.NextAgent != RouteOrchestrator {
		t.Fatalf("expected initial route %q, got %q", RouteOrchestrator, s.NextAgent)
	}
	if s.IterationCount != 0 {
		t.Errorf("expected iteration count 0, got %d", s.IterationCount)
	}
	if s.AgentReasoning == nil || len(s.AgentReasoning) != 0 {
		t.Errorf("expected empty non-nil reasoning chain, got %#v", s.AgentReasoning)
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		t.Error("UpdatedAt must not precede CreatedAt")
	}
}

func TestExecutionState_AppendReasoning(t *testing.T) {
	s := NewExecutionState("p1", "", "0xabc", 1)

	s.AppendReasoning("Orchestrator", "route to defi_agent")
	s.AppendReasoning("DeFi_Agent", "migrate to Compound")

	if len(s.AgentReasoning) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(s.AgentReasoning))
	}
	if s.AgentReasoning[0] != "Orchestrator: route to defi_agent" {
		t.Errorf("unexpected first entry %q", s.AgentReasoning[0])
	}
	if !strings.HasPrefix(s.AgentReasoning[1], "DeFi_Agent: ") {
		t.Errorf("entry should be prefixed with the agent name, got %q", s.AgentReasoning[1])
	}
}

func TestExecutionState_RecentReasoning(t *testing.T) {
	s := NewExecutionState("p1", "", "0xabc", 1)
	for _, text := range []string{"a", "b", "c", "d"} {
		s.AppendReasoning("Agent", text)
	}

	recent := s.RecentReasoning(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0] != "Agent: c" || recent[1] != "Agent: d" {
		t.Errorf("expected the last two entries in order, got %v", recent)
	}

	if got := s.RecentReasoning(10); len(got) != 4 {
		t.Errorf("window larger than chain should return all entries, got %d", len(got))
	}
	if got := s.RecentReasoning(0); got != nil {
		t.Errorf("non-positive window should return nil, got %v", got)
	}

	// Mutating the returned slice must not touch the chain.
	recent[0] = "changed"
	if s.AgentReasoning[2] != "Agent: c" {
		t.Error("RecentReasoning must return a copy")
	}
}

func TestExecutionState_Clone(t *testing.T) {
	s := NewExecutionState("p1", "input", "0xabc", 1)
	s.Balances["USDC"] = 10000
	s.Positions["Aave"] = Position{Asset: "USDC", Amount: 10000, APY: 0.05}
	s.Proposal = &Proposal{Action: ActionMigrate, Destination: "Compound"}
	s.RiskAssessment = &RiskAssessment{Score: 3.2, Safe: true, Factors: map[string]float64{"tvl": 0.8}}
	s.AppendReasoning("Agent", "step")
	s.AppendError("boom")

	clone := s.Clone()
	if clone == s {
		t.Fatal("Clone should return a different pointer")
	}

	clone.Balances["USDC"] = 1
	clone.Positions["Aave"] = Position{Asset: "USDC", Amount: 1, APY: 0.01}
	clone.Proposal.Destination = "Other"
	clone.RiskAssessment.Factors["tvl"] = 0
	clone.AppendReasoning("Agent", "extra")
	clone.AppendError("extra")

	if s.Balances["USDC"] != 10000 {
		t.Error("clone balance mutation leaked into original")
	}
	if s.Positions["Aave"].Amount != 10000 {
		t.Error("clone position mutation leaked into original")
	}
	if s.Proposal.Destination != "Compound" {
		t.Error("clone proposal mutation leaked into original")
	}
	if s.RiskAssessment.Factors["tvl"] != 0.8 {
		t.Error("clone factor mutation leaked into original")
	}
	if len(s.AgentReasoning) != 1 || len(s.ErrorMessages) != 1 {
		t.Error("clone appends leaked into original")
	}
}

func TestKnownRoute(t *testing.T) {
	for _, id := range Routes() {
		if !KnownRoute(id) {
			t.Errorf("route %q should be known", id)
		}
	}
	if !KnownRoute(RouteEnd) {
		t.Error("terminal sentinel should be a known route value")
	}
	if KnownRoute("defi-agent") {
		t.Error("unknown identifier must not be accepted")
	}
	if KnownRoute("") {
		t.Error("empty identifier must not be accepted")
	}
}
