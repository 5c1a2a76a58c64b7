package model

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/twsight/twsight/internal/domain"
	"github.com/twsight/twsight/internal/modules/features"
)

// MinTrainingRows is the minimum usable dataset size. Below it the trainer
// fails descriptively instead of fitting on insufficient data.
const MinTrainingRows = 50

// Metrics holds held-out evaluation results. ROCAUC is nil when the test
// set contains a single class and the curve is unavailable.
type Metrics struct {
	Accuracy float64  `json:"accuracy" msgpack:"accuracy"`
	ROCAUC   *float64 `json:"roc_auc,omitempty" msgpack:"roc_auc"`
}

// TrainResult is the outcome of a successful training run.
type TrainResult struct {
	Payload     *Payload    `json:"payload"`
	Metrics     Metrics     `json:"metrics"`
	TrainRows   int         `json:"train_rows"`
	TestRows    int         `json:"test_rows"`
	Hyperparams Hyperparams `json:"hyperparams"`
}

// Trainer fits the direction classifier with a walk-forward protocol.
type Trainer struct {
	log zerolog.Logger
}

// NewTrainer creates a trainer.
func NewTrainer(log zerolog.Logger) *Trainer {
	return &Trainer{log: log.With().Str("component", "trainer").Logger()}
}

// TrainOnSeries builds labeled features from one or more raw bar series
// (pooled across tickers) and trains on the combined frame.
func (t *Trainer) TrainOnSeries(series []domain.BarSeries, testFraction float64, includeStochastic bool) (*TrainResult, error) {
	opts := features.Options{IncludeLabel: true, IncludeStochastic: includeStochastic}

	frames := make([]*features.Frame, 0, len(series))
	for _, s := range series {
		f := features.Build(s, opts)
		if !f.Empty() {
			frames = append(frames, f)
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("train: no valid data")
	}

	// Concat re-sorts by timestamp so pooling cannot leak a per-ticker
	// grouping order into the chronological split.
	combined := features.Concat(frames...)
	return t.TrainOnFrame(combined, testFraction, includeStochastic)
}

// TrainOnFrame trains on a pre-built labeled feature frame.
//
// The split is strictly chronological: rows sorted by timestamp, rows with
// any undefined cell dropped, earliest (1-testFraction) rows train, the
// remainder is the held-out test set.
func (t *Trainer) TrainOnFrame(frame *features.Frame, testFraction float64, includeStochastic bool) (*TrainResult, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("train: empty dataset")
	}
	if !frame.HasColumn(features.LabelColumn) {
		return nil, fmt.Errorf("train: dataset has no %q column", features.LabelColumn)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("train: test fraction %.2f out of range (0,1)", testFraction)
	}

	featureCols := make([]string, 0, len(frame.Columns()))
	for _, c := range frame.Columns() {
		if c != features.LabelColumn {
			featureCols = append(featureCols, c)
		}
	}

	allCols := append(append([]string{}, featureCols...), features.LabelColumn)
	clean := frame.SortByDate().DropUndefined(allCols)

	n := clean.Len()
	if n < MinTrainingRows {
		return nil, fmt.Errorf("train: too few rows: %d (need %d)", n, MinTrainingRows)
	}

	splitIdx := int(float64(n) * (1 - testFraction))

	x := clean.Matrix(featureCols)
	labelCol := clean.Column(features.LabelColumn)
	y := make([]int, n)
	for i, v := range labelCol {
		if v > 0 {
			y[i] = 1
		}
	}

	xTrain, yTrain := x[:splitIdx], y[:splitIdx]
	xTest, yTest := x[splitIdx:], y[splitIdx:]

	hp := HyperparamsForSize(len(xTrain))

	t.log.Info().
		Int("train_rows", len(xTrain)).
		Int("test_rows", len(xTest)).
		Int("num_trees", hp.NumTrees).
		Int("max_depth", hp.MaxDepth).
		Msg("Training direction classifier")

	forest := TrainForest(xTrain, yTrain, hp)
	if forest == nil {
		return nil, fmt.Errorf("train: forest training failed")
	}

	metrics := evaluate(forest, xTest, yTest)

	payload := &Payload{
		Forest:         forest,
		FeatureColumns: featureCols,
		Metadata: Metadata{
			FeatureSetVersion: FeatureSetVersion,
			TrainedAt:         time.Now().UTC(),
			TrainRows:         len(xTrain),
			TestRows:          len(xTest),
			Metrics:           metrics,
			Hyperparams:       hp,
		},
	}

	return &TrainResult{
		Payload:     payload,
		Metrics:     metrics,
		TrainRows:   len(xTrain),
		TestRows:    len(xTest),
		Hyperparams: hp,
	}, nil
}

// evaluate computes accuracy and ROC-AUC on the held-out set.
func evaluate(forest *Forest, xTest [][]float64, yTest []int) Metrics {
	if len(xTest) == 0 {
		return Metrics{}
	}

	probs := make([]float64, len(xTest))
	correct := 0
	for i, row := range xTest {
		probs[i] = forest.PredictProb(row)
		pred := 0
		if probs[i] >= 0.5 {
			pred = 1
		}
		if pred == yTest[i] {
			correct++
		}
	}

	m := Metrics{Accuracy: round4(float64(correct) / float64(len(xTest)))}

	if auc, ok := rocAUC(probs, yTest); ok {
		rounded := round4(auc)
		m.ROCAUC = &rounded
	}
	return m
}

// rocAUC computes the area under the ROC curve. A single-class test set has
// no curve; ok is false and the metric degrades to "unavailable".
func rocAUC(scores []float64, labels []int) (float64, bool) {
	ones := 0
	for _, l := range labels {
		ones += l
	}
	if ones == 0 || ones == len(labels) {
		return 0, false
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	sorted := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	for i, src := range idx {
		sorted[i] = scores[src]
		classes[i] = labels[src] == 1
	}

	tpr, fpr, _ := stat.ROC(nil, sorted, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)
	if math.IsNaN(auc) {
		return 0, false
	}
	return auc, true
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
