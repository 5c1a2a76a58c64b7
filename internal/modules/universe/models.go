// Package universe owns the scannable ticker universe: the stock listing
// with name resolution, and the concurrent scanner that fans scoring out
// across it.
package universe

// Stock is one listed instrument in the universe.
type Stock struct {
	Code     string `json:"code"`   // 4-digit exchange code, e.g. "2330"
	Name     string `json:"name"`   // Chinese name
	Ticker   string `json:"ticker"` // provider symbol, e.g. "2330.TW"
	Market   string `json:"market"`
	IsETF    bool   `json:"is_etf"`
	IsActive bool   `json:"is_active"`
}

// DefaultUniverse is the default scan list: large-cap leaders plus the
// liquid dividend ETFs.
var DefaultUniverse = []string{
	"2330.TW", "2317.TW", "2454.TW", "2308.TW", "2382.TW",
	"2881.TW", "2882.TW", "2891.TW", "2886.TW",
	"0050.TW", "0056.TW", "00878.TW",
}

// Sectors maps a sector filter to its ticker subset.
var Sectors = map[string][]string{
	"all":     DefaultUniverse,
	"semi":    {"2330.TW", "2454.TW", "2303.TW", "2308.TW"},
	"finance": {"2881.TW", "2882.TW", "2886.TW", "2891.TW"},
	"etf":     {"0050.TW", "0056.TW", "00878.TW", "00919.TW"},
}

// SectorTickers returns the ticker subset for a sector filter, falling
// back to the default universe for unknown names.
func SectorTickers(sector string) []string {
	if tickers, ok := Sectors[sector]; ok {
		return tickers
	}
	return DefaultUniverse
}

// IsETFCode reports whether an exchange code denotes an ETF (the "00"
// prefix convention on the Taiwan exchange).
func IsETFCode(code string) bool {
	return len(code) >= 2 && code[:2] == "00"
}
