// Package analysis orchestrates the decision-support paths: rule scoring,
// model-probability snapshots, universe scans, training, and backtests.
// It owns the data-source wiring so the scoring and model packages stay
// pure.
package analysis

// KeyMetrics are the OHLCV-derived display metrics on a snapshot. Nil
// means the series is too short for that window.
type KeyMetrics struct {
	Return1D      *float64 `json:"return_1d"`
	Return5D      *float64 `json:"return_5d"`
	Volatility20D *float64 `json:"volatility_20d"`
	VolumeRatio   *float64 `json:"volume_ratio_20d"`
}

// Snapshot is the per-ticker probability view: last close, model direction,
// and headline metrics.
type Snapshot struct {
	Ticker     string     `json:"ticker"`
	Name       string     `json:"name"`
	LastClose  float64    `json:"last_close"`
	Direction  string     `json:"direction"` // "UP" or "DOWN"
	ProbUp     float64    `json:"prob_up"`
	Confidence float64    `json:"confidence"` // |prob_up - 0.5| * 2, in [0,1]
	KeyMetrics KeyMetrics `json:"key_metrics"`
	ModelUsed  bool       `json:"model_used"`
}
