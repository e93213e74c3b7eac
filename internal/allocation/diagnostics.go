package allocation

// Diagnostics is a read-only trace of one Allocate call: what each signal
// scored, what the optimizer chose, and which throttles were in force. It
// feeds logging, metrics, and the live monitor; it is not part of the
// control contract. Reasons lists every throttle that fired on the tick,
// or ["ok"] when none did.
type Diagnostics struct {
	Edges        map[string]float64 `json:"edges"`
	Sigmas       map[string]float64 `json:"sigmas"`
	RegimeRatios map[string]float64 `json:"regime_ratios"`
	Weights      map[string]float64 `json:"weights"`
	Active       []string           `json:"active"`
	VolScale     float64            `json:"vol_scale"`
	Drawdown     float64            `json:"drawdown"`
	Reasons      []string           `json:"reasons"`
}
