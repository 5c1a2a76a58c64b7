package model

import (
	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/features"
)

// NeutralProbability is the fallback P(up) when no usable model exists.
const NeutralProbability = 0.5

// PredictLatest returns P(up) for the most recent session of the series.
// ok is false when the model could not be applied; the probability then is
// the neutral fallback, and callers must flag that no model was used.
func PredictLatest(p *Payload, series domain.BarSeries, includeStochastic bool) (prob float64, ok bool) {
	if p == nil || p.Forest == nil || len(p.FeatureColumns) == 0 {
		return NeutralProbability, false
	}

	frame := features.Build(series, features.Options{IncludeStochastic: includeStochastic})
	if frame.Empty() {
		return NeutralProbability, false
	}

	// Row applies the payload alignment rule: listed-but-absent and
	// undefined cells become zero, unlisted features are ignored.
	row := frame.Row(frame.Len()-1, p.FeatureColumns)
	return p.Forest.PredictProb(row), true
}

// PredictSeries returns P(up) for every session of the series, aligned by
// index with the input bars. ok is false when features could not be built.
func PredictSeries(p *Payload, series domain.BarSeries, includeStochastic bool) (probs []float64, ok bool) {
	if p == nil || p.Forest == nil || len(p.FeatureColumns) == 0 {
		return nil, false
	}

	frame := features.Build(series, features.Options{IncludeStochastic: includeStochastic})
	if frame.Empty() || frame.Len() != len(series) {
		return nil, false
	}

	probs = make([]float64, frame.Len())
	for i := range probs {
		probs[i] = p.Forest.PredictProb(frame.Row(i, p.FeatureColumns))
	}
	return probs, true
}
