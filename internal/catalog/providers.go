// Package catalog holds the static model and tool registries: which provider
// owns a model, what it costs, and which tools each provider can offer.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/neoclaw-ai/completions/internal/provider"
)

// ErrUnknownModel is returned when no provider's price table lists a model.
var ErrUnknownModel = errors.New("unknown model")

// Providers resolves model ids to the provider that owns them. It is
// read-only after construction and safe for concurrent use.
type Providers struct {
	tables map[provider.Kind]PriceTable
}

// NewProviders copies tables and verifies that no model id appears under
// more than one provider.
func NewProviders(tables map[provider.Kind]PriceTable) (*Providers, error) {
	p := &Providers{tables: make(map[provider.Kind]PriceTable, len(tables))}
	for kind, table := range tables {
		p.tables[kind] = maps.Clone(table)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

// Default returns the catalog built from the built-in price tables.
func Default() *Providers {
	p, err := NewProviders(DefaultPriceTables())
	if err != nil {
		panic(fmt.Sprintf("built-in price tables overlap: %v", err))
	}
	return p
}

// Check reports every model id listed by more than one provider.
func (p *Providers) Check() error {
	owners := map[string][]provider.Kind{}
	for _, kind := range provider.Kinds() {
		for model := range p.tables[kind] {
			owners[model] = append(owners[model], kind)
		}
	}

	var errs []error
	for _, model := range slices.Sorted(maps.Keys(owners)) {
		kinds := owners[model]
		if len(kinds) < 2 {
			continue
		}
		names := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			names = append(names, string(kind))
		}
		errs = append(errs, fmt.Errorf("model %q is listed by %s", model, strings.Join(names, ", ")))
	}
	return errors.Join(errs...)
}

// Resolve returns the provider whose price table lists model. Tables are
// checked in provider.Kinds order and there is no fallback.
func (p *Providers) Resolve(model string) (provider.Kind, error) {
	for _, kind := range provider.Kinds() {
		if _, ok := p.tables[kind][model]; ok {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
}

// Models returns the sorted model ids owned by kind.
func (p *Providers) Models(kind provider.Kind) []string {
	return p.tables[kind].Models()
}

// Price returns the list price of a model under kind.
func (p *Providers) Price(kind provider.Kind, model string) (Price, bool) {
	price, ok := p.tables[kind][model]
	return price, ok
}

// EstimateUSD returns the estimated cost of usage for a model.
// Returns ok=false when the model is not priced under kind.
func (p *Providers) EstimateUSD(kind provider.Kind, model string, usage provider.TokenUsage) (usd float64, ok bool) {
	price, ok := p.Price(kind, model)
	if !ok {
		return 0, false
	}
	return price.Cost(usage), true
}
