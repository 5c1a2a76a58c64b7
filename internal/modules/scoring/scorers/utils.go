package scorers

import (
	"github.com/twsight/twsight/internal/modules/scoring"
)

// noData builds the degraded detail row for a factor with missing inputs.
// Degraded rows contribute nothing to the score; they exist so the trail
// stays complete and auditable.
func noData(metric string) scoring.Detail {
	return scoring.Detail{
		Metric: metric,
		Value:  "N/A",
		Class:  scoring.ClassNoData,
		Reason: "Insufficient data",
	}
}
