package strategy

import (
	"spread_trader/internal/config"
	"spread_trader/internal/core"
	"spread_trader/internal/market"
)

// BasketNav trades the basket instrument against its theoretical NAV. A
// positive spread means the basket is rich: the canonical unit shorts one
// basket share and buys the equal-weighted components.
type BasketNav struct {
	cfg      config.BasketNavConfig
	widths   map[string]float64
	seasonal *seasonalAdjuster
}

var _ core.ISignalSource = (*BasketNav)(nil)

func NewBasketNav(cfg config.BasketNavConfig, widths map[string]float64) *BasketNav {
	return &BasketNav{
		cfg:      cfg,
		widths:   widths,
		seasonal: newSeasonalAdjuster(),
	}
}

func (b *BasketNav) Name() string { return "basket_nav" }

func (b *BasketNav) ComputeSignal(snapshot map[string]core.Security, cs *core.Case) (*core.Signal, error) {
	etf, ok := midPrice(snapshot, market.BasketETF)
	if !ok {
		return nil, nil
	}
	nav, ok := market.NAV(snapshot)
	if !ok {
		return nil, nil
	}

	spread := etf - nav
	if cs != nil {
		spread = b.seasonal.Adjust(cs.Tick, spread)
	}

	componentWeight := 1.0 / float64(len(market.Stocks))
	legs := map[string]float64{market.BasketETF: -1}
	rtCost := b.widths[market.BasketETF]
	for _, s := range market.Stocks {
		legs[s] = componentWeight
		rtCost += componentWeight * b.widths[s]
	}

	return &core.Signal{
		Name:          b.Name(),
		SDollars:      spread,
		EntryDollars:  b.cfg.EntryDollars,
		RTCostDollars: rtCost,
		Legs:          legs,
	}, nil
}
