package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTicksTotal           = "spread_trader_ticks_total"
	MetricOrdersSubmittedTotal = "spread_trader_orders_submitted_total"
	MetricOrdersCancelledTotal = "spread_trader_orders_cancelled_total"
	MetricRiskRejectionsTotal  = "spread_trader_risk_rejections_total"
	MetricZombiesEvictedTotal  = "spread_trader_zombies_evicted_total"
	MetricGrossExposure        = "spread_trader_gross_exposure"
	MetricNetExposure          = "spread_trader_net_exposure"
	MetricTargetPosition       = "spread_trader_target_position"
	MetricSignalEdge           = "spread_trader_signal_edge"
	MetricSignalWeight         = "spread_trader_signal_weight"
	MetricVolScale             = "spread_trader_vol_scale"
	MetricDrawdown             = "spread_trader_drawdown"
	MetricTickLatency          = "spread_trader_tick_duration_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	TicksTotal           metric.Int64Counter
	OrdersSubmittedTotal metric.Int64Counter
	OrdersCancelledTotal metric.Int64Counter
	RiskRejectionsTotal  metric.Int64Counter
	ZombiesEvictedTotal  metric.Int64Counter
	GrossExposure        metric.Float64ObservableGauge
	NetExposure          metric.Float64ObservableGauge
	TargetPosition       metric.Float64ObservableGauge
	SignalEdge           metric.Float64ObservableGauge
	SignalWeight         metric.Float64ObservableGauge
	VolScale             metric.Float64ObservableGauge
	Drawdown             metric.Float64ObservableGauge
	TickLatency          metric.Float64Histogram

	// State for observable gauges
	mu             sync.RWMutex
	grossExposure  float64
	netExposure    float64
	volScale       float64
	drawdown       float64
	targetPosMap   map[string]float64
	signalEdgeMap  map[string]float64
	signalWghtMap  map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			volScale:      1.0,
			targetPosMap:  make(map[string]float64),
			signalEdgeMap: make(map[string]float64),
			signalWghtMap: make(map[string]float64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TicksTotal, err = meter.Int64Counter(MetricTicksTotal, metric.WithDescription("Total ticks processed"))
	if err != nil {
		return err
	}

	m.OrdersSubmittedTotal, err = meter.Int64Counter(MetricOrdersSubmittedTotal, metric.WithDescription("Total orders submitted to the venue"))
	if err != nil {
		return err
	}

	m.OrdersCancelledTotal, err = meter.Int64Counter(MetricOrdersCancelledTotal, metric.WithDescription("Total cancel requests sent"))
	if err != nil {
		return err
	}

	m.RiskRejectionsTotal, err = meter.Int64Counter(MetricRiskRejectionsTotal, metric.WithDescription("Total venue risk-limit rejections"))
	if err != nil {
		return err
	}

	m.ZombiesEvictedTotal, err = meter.Int64Counter(MetricZombiesEvictedTotal, metric.WithDescription("Tracked orders evicted after the unknown-order TTL"))
	if err != nil {
		return err
	}

	m.TickLatency, err = meter.Float64Histogram(MetricTickLatency, metric.WithDescription("Wall-clock duration of one tick"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.GrossExposure, err = meter.Float64ObservableGauge(MetricGrossExposure, metric.WithDescription("Projected gross exposure of the target portfolio"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.grossExposure)
			return nil
		}))
	if err != nil {
		return err
	}

	m.NetExposure, err = meter.Float64ObservableGauge(MetricNetExposure, metric.WithDescription("Projected net exposure of the target portfolio"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.netExposure)
			return nil
		}))
	if err != nil {
		return err
	}

	m.VolScale, err = meter.Float64ObservableGauge(MetricVolScale, metric.WithDescription("Current volatility scale on the gross budget"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.volScale)
			return nil
		}))
	if err != nil {
		return err
	}

	m.Drawdown, err = meter.Float64ObservableGauge(MetricDrawdown, metric.WithDescription("Running drawdown (peak NLV minus current NLV)"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.drawdown)
			return nil
		}))
	if err != nil {
		return err
	}

	m.TargetPosition, err = meter.Float64ObservableGauge(MetricTargetPosition, metric.WithDescription("Target position per instrument"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for ticker, val := range m.targetPosMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("ticker", ticker)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.SignalEdge, err = meter.Float64ObservableGauge(MetricSignalEdge, metric.WithDescription("Net edge per signal"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for name, val := range m.signalEdgeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("signal", name)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.SignalWeight, err = meter.Float64ObservableGauge(MetricSignalWeight, metric.WithDescription("Optimized weight per signal"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for name, val := range m.signalWghtMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("signal", name)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetExposure(gross, net float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grossExposure = gross
	m.netExposure = net
}

func (m *MetricsHolder) SetVolScale(scale float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volScale = scale
}

func (m *MetricsHolder) SetDrawdown(dd float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drawdown = dd
}

func (m *MetricsHolder) SetTargetPosition(ticker string, shares float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetPosMap[ticker] = shares
}

func (m *MetricsHolder) SetSignal(name string, edge, weight float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalEdgeMap[name] = edge
	m.signalWghtMap[name] = weight
}

// Counter and histogram helpers. Nil-safe so callers can run before
// InitMetrics has been wired (tests, replay).

func (m *MetricsHolder) IncTicks(ctx context.Context) {
	if m.TicksTotal != nil {
		m.TicksTotal.Add(ctx, 1)
	}
}

func (m *MetricsHolder) IncOrdersSubmitted(ctx context.Context, n int64) {
	if m.OrdersSubmittedTotal != nil {
		m.OrdersSubmittedTotal.Add(ctx, n)
	}
}

func (m *MetricsHolder) IncOrdersCancelled(ctx context.Context, n int64) {
	if m.OrdersCancelledTotal != nil {
		m.OrdersCancelledTotal.Add(ctx, n)
	}
}

func (m *MetricsHolder) IncRiskRejections(ctx context.Context) {
	if m.RiskRejectionsTotal != nil {
		m.RiskRejectionsTotal.Add(ctx, 1)
	}
}

func (m *MetricsHolder) IncZombiesEvicted(ctx context.Context, n int64) {
	if m.ZombiesEvictedTotal != nil {
		m.ZombiesEvictedTotal.Add(ctx, n)
	}
}

func (m *MetricsHolder) ObserveTickLatency(ctx context.Context, ms float64) {
	if m.TickLatency != nil {
		m.TickLatency.Record(ctx, ms)
	}
}
