package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/defimesh/coordination"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/logging"
	"github.com/hupe1980/defimesh/market"
)

// ForecastOptions configures the forecast agent.
type ForecastOptions struct {
	// DefaultAsset is forecast when no proposal names an asset.
	DefaultAsset string

	Logger logging.Logger
}

// ForecastAgent attaches a market outlook for the asset under consideration.
type ForecastAgent struct {
	Base
	forecaster   market.Forecaster
	defaultAsset string
}

var _ core.Agent = (*ForecastAgent)(nil)

// NewForecastAgent creates the forecast agent.
func NewForecastAgent(coord *coordination.Layer, forecaster market.Forecaster, optFns ...func(o *ForecastOptions)) *ForecastAgent {
	opts := ForecastOptions{
		DefaultAsset: "USDC",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ForecastAgent{
		Base:         NewBase("PredictionAgent", core.RouteForecast, coord, opts.Logger),
		forecaster:   forecaster,
		defaultAsset: opts.DefaultAsset,
	}
}

// Execute implements core.Agent.
func (a *ForecastAgent) Execute(ctx context.Context, state *core.ExecutionState) (*core.ExecutionState, error) {
	asset := a.defaultAsset
	if state.Proposal != nil && state.Proposal.Asset != "" {
		asset = state.Proposal.Asset
	}

	forecast, err := a.forecaster.Forecast(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", asset, err)
	}
	state.Forecast = forecast

	text := fmt.Sprintf("%s outlook is %s at %.2f confidence over %s",
		forecast.Asset, forecast.Outlook, forecast.Confidence, forecast.Horizon)
	a.LogReasoning(ctx, state, text)
	a.RecordDecision(ctx, state, "market_forecast", map[string]any{
		"asset":      forecast.Asset,
		"outlook":    forecast.Outlook,
		"confidence": forecast.Confidence,
	}, text)

	state.NextAgent = core.RouteOrchestrator
	return state, nil
}
