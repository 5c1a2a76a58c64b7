// Package scoring defines the rule-based signal model: discrete signals,
// integer scores, and the ordered, auditable factor detail trail.
package scoring

// Signal is the discrete recommendation for a ticker.
type Signal string

const (
	SignalStrongBuy Signal = "STRONG_BUY"
	SignalBuy       Signal = "BUY"
	SignalWait      Signal = "WAIT"
	SignalSell      Signal = "SELL"
)

// Class categorizes one factor's reading in the detail trail.
type Class string

const (
	ClassBullish Class = "BULLISH"
	ClassBearish Class = "BEARISH"
	ClassNeutral Class = "NEUTRAL"
	ClassWarning Class = "WARNING"
	ClassNoData  Class = "NO_DATA"
)

// OperationStyle describes which trading style a ticker's current behavior
// suits. Purely descriptive; it never affects the score.
type OperationStyle string

const (
	StyleDayTrading OperationStyle = "DAY_TRADING"
	StyleSwing      OperationStyle = "SWING"
	StylePosition   OperationStyle = "POSITION"
	StyleRangeBound OperationStyle = "RANGE_BOUND"
	StyleUnknown    OperationStyle = "UNKNOWN"
)

// Horizon selects the scoring mode.
type Horizon string

const (
	HorizonShort Horizon = "short" // technical, short-horizon
	HorizonLong  Horizon = "long"  // fundamental, long-horizon
)

// Detail is one factor evaluation in the trail. The trail's order is the
// fixed evaluation order of factors and is preserved for auditability.
type Detail struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
	Class  Class  `json:"class"`
	Reason string `json:"reason"`
}

// Result is one scorer invocation's immutable output.
type Result struct {
	Ticker  string         `json:"ticker"`
	Name    string         `json:"name,omitempty"`
	IsETF   bool           `json:"is_etf"`
	Signal  Signal         `json:"signal"`
	Score   int            `json:"score"`
	Details []Detail       `json:"details"`
	Style   OperationStyle `json:"operation_style,omitempty"`
	Horizon Horizon        `json:"horizon"`
}
