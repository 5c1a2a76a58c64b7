package formulas

// MaxDrawdown calculates the largest peak-to-trough decline of an equity
// curve, as a positive fraction (0.25 = 25% decline from peak).
// Returns nil when the curve is too short to have a drawdown.
func MaxDrawdown(equity []float64) *float64 {
	if len(equity) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := equity[0]

	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return &maxDrawdown
}
