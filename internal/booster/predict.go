package booster

import (
	"fmt"
	"math"
	"sort"
)

// DefaultTopK is the number of ranked class indices attached to a result
// when the caller does not ask for a specific count.
const DefaultTopK = 2

// Margins scores fv into the raw per-group margin vector. Every
// accumulator starts at the base margin and trees contribute strictly in
// stored order, which keeps floating-point rounding identical to the
// trainer. Pure; an error leaves the document untouched and usable.
func (d *ModelDocument) Margins(fv FeatureVector) ([]float64, error) {
	row := d.row(fv)
	margins := make([]float64, d.NumClass)
	for i := range margins {
		margins[i] = d.BaseMargin
	}
	for i := range d.Trees {
		w, err := d.Trees[i].evaluate(row)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		margins[d.TreeClass[i]] += w
	}
	return margins, nil
}

// Probabilities converts a margin vector into class probabilities: the
// logistic sigmoid for a single margin (two-class models, emitted as
// [1-p, p]), a max-shifted softmax otherwise. Entries are finite,
// non-negative and sum to 1 within 1e-9.
func Probabilities(margins []float64) []float64 {
	if len(margins) == 1 {
		p := sigmoid(margins[0])
		return []float64{1 - p, p}
	}
	return softmax(margins)
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func softmax(margins []float64) []float64 {
	max := margins[0]
	for _, m := range margins[1:] {
		if m > max {
			max = m
		}
	}
	probs := make([]float64, len(margins))
	var sum float64
	for i, m := range margins {
		e := math.Exp(m - max)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Predict scores fv and assembles the full result with DefaultTopK ranked
// classes.
func (d *ModelDocument) Predict(fv FeatureVector) (*PredictionResult, error) {
	return d.PredictTopK(fv, DefaultTopK)
}

// PredictTopK is Predict with an explicit ranked-class count. Values below
// 1 fall back to DefaultTopK and the count is capped at the class count.
func (d *ModelDocument) PredictTopK(fv FeatureVector, k int) (*PredictionResult, error) {
	margins, err := d.Margins(fv)
	if err != nil {
		return nil, err
	}
	probs := Probabilities(margins)
	if k < 1 {
		k = DefaultTopK
	}
	if k > len(probs) {
		k = len(probs)
	}
	return &PredictionResult{
		ModelVersion:  d.Version,
		Margins:       margins,
		Probabilities: probs,
		PredClass:     argmax(probs),
		TopK:          topK(probs, k),
		Calibration:   d.Calibration,
	}, nil
}

// argmax returns the index of the largest entry; exact ties keep the
// lowest index.
func argmax(probs []float64) int {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best
}

// topK ranks class indices by descending probability, ascending index on
// exact ties.
func topK(probs []float64, k int) []int {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})
	return order[:k]
}
