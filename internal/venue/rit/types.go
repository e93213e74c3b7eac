package rit

// Wire representations of the simulator's REST API payloads.

type caseResponse struct {
	Name           string `json:"name"`
	Period         int    `json:"period"`
	Tick           int    `json:"tick"`
	TicksPerPeriod int    `json:"ticks_per_period"`
	TotalPeriods   int    `json:"total_periods"`
	Status         string `json:"status"`
}

type securityResponse struct {
	Ticker      string  `json:"ticker"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	Position    float64 `json:"position"`
	VWAP        float64 `json:"vwap"`
	Volume      float64 `json:"volume"`
	Realized    float64 `json:"realized"`
	Unrealized  float64 `json:"unrealized"`
	IsTradeable bool    `json:"is_tradeable"`
}

type orderResponse struct {
	OrderID        int64   `json:"order_id"`
	Period         int     `json:"period"`
	Tick           int     `json:"tick"`
	Trader         string  `json:"trader_id"`
	Ticker         string  `json:"ticker"`
	Type           string  `json:"type"`
	Quantity       float64 `json:"quantity"`
	Action         string  `json:"action"`
	Price          float64 `json:"price"`
	QuantityFilled float64 `json:"quantity_filled"`
	VWAP           float64 `json:"vwap"`
	Status         string  `json:"status"`
}

type bookResponse struct {
	Bids []orderResponse `json:"bids"`
	Asks []orderResponse `json:"asks"`
}

type traderResponse struct {
	TraderID  string  `json:"trader_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	NLV       float64 `json:"nlv"`
}
