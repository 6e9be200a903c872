// Package market defines the data sources agents consult to evaluate yield
// opportunities: opportunity feeds, protocol risk profiles and asset
// forecasts. The Catalog implementation serves all three from static data so
// runs are reproducible; live feeds can be swapped in behind the same
// interfaces.
package market

import (
	"context"

	"github.com/hupe1980/defimesh/core"
)

// Opportunity is a yield offer for one asset on one protocol.
type Opportunity struct {
	Protocol string  `json:"protocol" yaml:"protocol"`
	Asset    string  `json:"asset" yaml:"asset"`
	APY      float64 `json:"apy" yaml:"apy"`
}

// RiskProfile captures how risky a protocol is considered, on a 0 to 10
// scale where higher is riskier, plus the weighted factors behind the score.
type RiskProfile struct {
	Score   float64            `json:"score" yaml:"score"`
	Factors map[string]float64 `json:"factors" yaml:"factors"`
}

// OpportunitySource lists current yield opportunities.
type OpportunitySource interface {
	// Opportunities returns offers for the given asset. An empty asset
	// returns all known offers. Order is stable between calls.
	Opportunities(ctx context.Context, asset string) ([]Opportunity, error)
}

// RiskScorer evaluates protocol risk.
type RiskScorer interface {
	// ScoreProtocol returns the risk score and contributing factors for a
	// protocol. Unknown protocols get a conservative default rather than
	// an error.
	ScoreProtocol(ctx context.Context, protocol string) (float64, map[string]float64, error)
}

// Forecaster produces a market outlook for an asset.
type Forecaster interface {
	Forecast(ctx context.Context, asset string) (*core.Forecast, error)
}
