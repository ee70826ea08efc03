package catalog

import (
	"maps"
	"slices"

	"github.com/neoclaw-ai/completions/internal/provider"
)

const perMillion = 1_000_000.0

// Price is the USD list price for one model.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// PriceTable maps model ids to prices. A model's presence in a provider's
// table is what assigns it to that provider.
type PriceTable map[string]Price

var anthropicPrices = PriceTable{
	"claude-3-haiku-20240307":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-7-sonnet-20250219": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4-5":          {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-opus-4-20250514":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-opus-4-1":            {InputPerMillion: 15.00, OutputPerMillion: 75.00},
}

var openAIPrices = PriceTable{
	"gpt-4o":       {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":  {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":      {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini": {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"gpt-4.1-nano": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"o3-mini":      {InputPerMillion: 1.10, OutputPerMillion: 4.40},
	"o4-mini":      {InputPerMillion: 1.10, OutputPerMillion: 4.40},
}

var perplexityPrices = PriceTable{
	"sonar":               {InputPerMillion: 1.00, OutputPerMillion: 1.00},
	"sonar-pro":           {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"sonar-reasoning":     {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"sonar-reasoning-pro": {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"sonar-deep-research": {InputPerMillion: 2.00, OutputPerMillion: 8.00},
}

var googlePrices = PriceTable{
	"gemini-1.5-flash":      {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"gemini-1.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"gemini-2.0-flash":      {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gemini-2.0-flash-lite": {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"gemini-2.5-flash":      {InputPerMillion: 0.30, OutputPerMillion: 2.50},
	"gemini-2.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 10.00},
}

// Prices returns a copy of the built-in price table for kind.
func Prices(kind provider.Kind) PriceTable {
	switch kind {
	case provider.Anthropic:
		return maps.Clone(anthropicPrices)
	case provider.OpenAI:
		return maps.Clone(openAIPrices)
	case provider.Perplexity:
		return maps.Clone(perplexityPrices)
	case provider.Google:
		return maps.Clone(googlePrices)
	default:
		return nil
	}
}

// DefaultPriceTables returns the built-in tables for every provider.
func DefaultPriceTables() map[provider.Kind]PriceTable {
	out := make(map[provider.Kind]PriceTable, len(provider.Kinds()))
	for _, kind := range provider.Kinds() {
		out[kind] = Prices(kind)
	}
	return out
}

// Models returns the table's model ids sorted.
func (t PriceTable) Models() []string {
	return slices.Sorted(maps.Keys(t))
}

// Cost returns the USD cost of usage at price p.
func (p Price) Cost(usage provider.TokenUsage) float64 {
	inputCost := (float64(usage.InputTokens) / perMillion) * p.InputPerMillion
	outputCost := (float64(usage.OutputTokens) / perMillion) * p.OutputPerMillion
	return inputCost + outputCost
}
