package strategy

import (
	"fmt"
	"math"

	"spread_trader/internal/config"
	"spread_trader/internal/core"
)

// PairCoint trades the cointegration residual between two instruments:
// z = log(a) - (c + beta*log(b)). A positive residual means a is rich
// against b, so the canonical unit shorts a and buys the hedge in b.
type PairCoint struct {
	cfg      config.PairConfig
	widths   map[string]float64
	seasonal *seasonalAdjuster
}

var _ core.ISignalSource = (*PairCoint)(nil)

func NewPairCoint(cfg config.PairConfig, widths map[string]float64) *PairCoint {
	return &PairCoint{
		cfg:      cfg,
		widths:   widths,
		seasonal: newSeasonalAdjuster(),
	}
}

func (p *PairCoint) Name() string {
	return fmt.Sprintf("pair_%s_%s", p.cfg.A, p.cfg.B)
}

func (p *PairCoint) ComputeSignal(snapshot map[string]core.Security, cs *core.Case) (*core.Signal, error) {
	pa, ok := midPrice(snapshot, p.cfg.A)
	if !ok {
		return nil, nil
	}
	pb, ok := midPrice(snapshot, p.cfg.B)
	if !ok {
		return nil, nil
	}

	z := math.Log(pa) - (p.cfg.C + p.cfg.Beta*math.Log(pb))
	if cs != nil {
		z = p.seasonal.Adjust(cs.Tick, z)
	}

	// Dollars per share of a; the hedge keeps the unit roughly
	// dollar-neutral at current prices.
	sDollars := z * pa
	hedge := p.cfg.Beta * pa / pb

	entry := p.cfg.EntryAbs
	if entry <= 0 {
		entry = p.cfg.EntryStd * p.cfg.Std * pa
	}
	rtCost := p.widths[p.cfg.A] + hedge*p.widths[p.cfg.B]

	return &core.Signal{
		Name:          p.Name(),
		SDollars:      sDollars,
		EntryDollars:  entry,
		RTCostDollars: rtCost,
		Legs: map[string]float64{
			p.cfg.A: -1,
			p.cfg.B: hedge,
		},
	}, nil
}
