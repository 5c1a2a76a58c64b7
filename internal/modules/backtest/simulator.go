// Package backtest replays classifier probabilities against price history
// through a two-state position machine and reports trade statistics.
//
// Transaction costs and slippage are not modeled.
package backtest

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/model"
	"github.com/twsight/twsight/pkg/formulas"
)

// MinBars is the minimum series length for a meaningful simulation.
const MinBars = 50

// Config holds the probability thresholds driving the state machine.
// Both comparisons are strict: P(up) exactly at a threshold triggers nothing.
type Config struct {
	BuyThreshold      float64 `json:"buy_threshold"`
	SellThreshold     float64 `json:"sell_threshold"`
	IncludeStochastic bool    `json:"include_stochastic"`
}

// DefaultConfig returns the standard 0.60/0.40 thresholds.
func DefaultConfig() Config {
	return Config{BuyThreshold: 0.60, SellThreshold: 0.40}
}

// Trade is one completed round trip. Immutable once created; owned by the
// simulation run that produced it.
type Trade struct {
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Return     float64 `json:"return"`
}

// Stats summarizes a simulation. When Error is non-empty the metrics are
// zeroed — a failure never reports partial numbers.
type Stats struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	WinRatePct     float64 `json:"win_rate_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradeCount     int     `json:"trade_count"`
	Trades         []Trade `json:"trades,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Simulator runs probability-driven backtests.
type Simulator struct {
	log zerolog.Logger
}

// NewSimulator creates a simulator.
func NewSimulator(log zerolog.Logger) *Simulator {
	return &Simulator{log: log.With().Str("component", "backtest").Logger()}
}

// Run replays the payload's probabilities over the bar series.
//
// State machine, initial state Flat:
//   - Flat -> Long when P(up) > buy threshold; entry at close[t].
//   - While Long, each session's return compounds into the equity curve.
//   - Long -> Flat when P(up) < sell threshold; the decision at t executes
//     at t+1, so the exit price is close[t+1] — no same-bar lookahead.
//   - A position still open at series end is force-closed at the final close.
func (s *Simulator) Run(series domain.BarSeries, payload *model.Payload, cfg Config) Stats {
	if len(series) < MinBars {
		return Stats{Error: "insufficient data"}
	}
	if payload == nil || payload.Forest == nil {
		return Stats{Error: "no model provided"}
	}

	probs, ok := model.PredictSeries(payload, series, cfg.IncludeStochastic)
	if !ok {
		return Stats{Error: "failed to compute features"}
	}

	trades, equity := replay(series.Closes(), probs, cfg)

	var totalReturn, winRate float64
	if len(trades) > 0 {
		wins := 0
		for _, t := range trades {
			totalReturn += t.Return
			if t.Return > 0 {
				wins++
			}
		}
		winRate = float64(wins) / float64(len(trades))
	}

	maxDrawdown := 0.0
	if dd := formulas.MaxDrawdown(equity); dd != nil {
		maxDrawdown = *dd
	}

	s.log.Debug().
		Int("trades", len(trades)).
		Float64("total_return", totalReturn).
		Msg("Backtest complete")

	return Stats{
		TotalReturnPct: round2(totalReturn * 100),
		WinRatePct:     round2(winRate * 100),
		MaxDrawdownPct: round2(maxDrawdown * 100),
		TradeCount:     len(trades),
		Trades:         trades,
	}
}

// replay walks the state machine over aligned closes and probabilities.
// The equity curve compounds daily returns only while a position is held.
func replay(closes, probs []float64, cfg Config) ([]Trade, []float64) {
	holding := false
	entryPrice := 0.0
	var trades []Trade
	equity := []float64{1.0}

	for i := 0; i < len(probs)-1; i++ {
		currentPrice := closes[i]
		nextPrice := closes[i+1]
		p := probs[i]

		if !holding {
			if p > cfg.BuyThreshold {
				holding = true
				entryPrice = currentPrice
			}
			continue
		}

		// Mark to market while in the position.
		if currentPrice != 0 {
			dailyReturn := (nextPrice - currentPrice) / currentPrice
			equity = append(equity, equity[len(equity)-1]*(1+dailyReturn))
		}

		if p < cfg.SellThreshold {
			exitPrice := nextPrice
			trades = append(trades, Trade{
				EntryPrice: entryPrice,
				ExitPrice:  exitPrice,
				Return:     (exitPrice - entryPrice) / entryPrice,
			})
			holding = false
		}
	}

	if holding {
		exitPrice := closes[len(closes)-1]
		trades = append(trades, Trade{
			EntryPrice: entryPrice,
			ExitPrice:  exitPrice,
			Return:     (exitPrice - entryPrice) / entryPrice,
		})
	}

	return trades, equity
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
