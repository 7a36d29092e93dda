// Package booster evaluates serialized gradient-boosted decision-tree
// ensembles without depending on the library that trained them. It parses
// an XGBoost unified-JSON artifact into an immutable ModelDocument and
// reproduces the trainer's margins and probabilities deterministically,
// including the trainer's missing-value routing.
//
// The package is a pure computation core: it performs no I/O beyond the
// bytes handed to Load, no logging and no retries. Fetching, caching and
// serving live in internal/ml.
package booster

import "math"

// Missing marks a feature that was observed but carries no usable value.
// It is distinct from zero and from leaving the name out of the vector;
// a missing value routes every split through its stored default branch.
func Missing() float64 { return math.NaN() }

// FeatureVector maps model feature names to values. Use Missing() for
// observed-but-unusable values; names absent from the map score as missing
// too, and names the model does not know are ignored.
type FeatureVector map[string]float64

// Tree is one regression tree in node-indexed parallel-array form, index 0
// being the root. Index -1 in both Left and Right marks a leaf; Load
// guarantees a node is a leaf exactly when both children are -1.
type Tree struct {
	Left        []int
	Right       []int
	SplitIndex  []int
	Threshold   []float64
	Weight      []float64
	DefaultLeft []bool
}

// NumNodes returns the tree's node count.
func (t *Tree) NumNodes() int { return len(t.Left) }

// Calibration carries externally computed reliability statistics for a
// model version. The engine never computes these; they ride along on
// results verbatim for downstream display.
type Calibration struct {
	Method string  `json:"method,omitempty"`
	Bins   int     `json:"bins,omitempty"`
	ECE    float64 `json:"ece"`
	MCE    float64 `json:"mce"`
}

// FeatureDriver is one entry of an externally computed explanation: a
// scored feature and its deviation from a reference population value.
// The engine passes drivers through untouched.
type FeatureDriver struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	Reference float64 `json:"reference"`
	Score     float64 `json:"score"`
	Direction string  `json:"direction,omitempty"`
}

// ModelDocument is a validated in-memory model. Construct one with Load;
// the loading caller may set Version and attach Calibration before sharing
// the document, after which it must never be mutated. A shared document is
// safe for concurrent use by any number of goroutines.
type ModelDocument struct {
	// Version identifies the artifact this document was parsed from.
	Version string

	Objective    string
	FeatureNames []string

	// NumClass is the margin accumulator group count; 1 means a two-class
	// logistic model whose probability vector still has two entries.
	NumClass int

	// BaseMargin seeds every accumulator, already converted from the
	// trainer's base score (log-odds when the score is a probability).
	BaseMargin float64

	Trees []Tree

	// TreeClass[i] is the accumulator group Trees[i] contributes to.
	TreeClass []int

	Calibration *Calibration
}

// Classes returns the length of the probability vector this model emits.
func (d *ModelDocument) Classes() int {
	if d.NumClass == 1 {
		return 2
	}
	return d.NumClass
}

// row resolves fv into the document's dense feature order. Names the
// caller did not supply come back as NaN, same as an explicit Missing().
func (d *ModelDocument) row(fv FeatureVector) []float64 {
	row := make([]float64, len(d.FeatureNames))
	for i, name := range d.FeatureNames {
		if v, ok := fv[name]; ok {
			row[i] = v
		} else {
			row[i] = math.NaN()
		}
	}
	return row
}

// PredictionResult is the outcome of scoring one FeatureVector. Margins
// has one entry per accumulator group (a single entry for two-class
// models); Probabilities always has one entry per class and sums to 1.
type PredictionResult struct {
	ModelVersion  string          `json:"model_version,omitempty"`
	Margins       []float64       `json:"margins"`
	Probabilities []float64       `json:"probabilities"`
	PredClass     int             `json:"pred_class"`
	TopK          []int           `json:"top_k"`
	Calibration   *Calibration    `json:"calibration,omitempty"`
	Drivers       []FeatureDriver `json:"drivers,omitempty"`
}
