package metrics

import (
	"math"
	"math/big"
	"strconv"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks the ledger-level state of the lending engine.
type LendingMetrics struct {
	poolLiquidity  *prometheus.GaugeVec
	poolEscrowed   *prometheus.GaugeVec
	activeLoans    *prometheus.GaugeVec
	feeBalance     *prometheus.GaugeVec
	protocolPaused prometheus.Gauge
	rollbacks      *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			poolLiquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_liquidity",
				Help: "Unborrowed liquidity held by each basket in asset base units.",
			}, []string{"pool"}),
			poolEscrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_escrowed",
				Help: "Partial repayments escrowed by each basket in asset base units.",
			}, []string{"pool"}),
			activeLoans: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_active_loans",
				Help: "Number of loans awaiting repayment or default per basket.",
			}, []string{"pool"}),
			feeBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_fee_balance",
				Help: "Platform fees held by the registry per asset.",
			}, []string{"asset"}),
			protocolPaused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_protocol_paused",
				Help: "Set to 1 while the protocol-wide pause is engaged.",
			}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_rollbacks_total",
				Help: "Operations aborted after external effects were compensated.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			lendingRegistry.poolLiquidity,
			lendingRegistry.poolEscrowed,
			lendingRegistry.activeLoans,
			lendingRegistry.feeBalance,
			lendingRegistry.protocolPaused,
			lendingRegistry.rollbacks,
		)
	})
	return lendingRegistry
}

// RecordPool updates the basket gauges.
func (m *LendingMetrics) RecordPool(id uint64, liquidity, escrowed *uint256.Int, active int) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(id, 10)
	m.poolLiquidity.WithLabelValues(label).Set(amountToFloat(liquidity))
	m.poolEscrowed.WithLabelValues(label).Set(amountToFloat(escrowed))
	m.activeLoans.WithLabelValues(label).Set(float64(active))
}

func (m *LendingMetrics) RecordFees(asset string, amount *uint256.Int) {
	if m == nil {
		return
	}
	m.feeBalance.WithLabelValues(asset).Set(amountToFloat(amount))
}

func (m *LendingMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.protocolPaused.Set(1)
		return
	}
	m.protocolPaused.Set(0)
}

func (m *LendingMetrics) RecordRollback(operation string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(operation).Inc()
}

func amountToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, _ := new(big.Float).SetInt(value.ToBig()).Float64()
	if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
		return math.MaxFloat64
	}
	return floatVal
}
