package booster

import (
	"errors"
	"math"
	"testing"
)

// splitTree builds a three-node tree: one split at the root, two leaves.
func splitTree(feature int, threshold, left, right float64, defaultLeft bool) Tree {
	return Tree{
		Left:        []int{1, -1, -1},
		Right:       []int{2, -1, -1},
		SplitIndex:  []int{feature, 0, 0},
		Threshold:   []float64{threshold, 0, 0},
		Weight:      []float64{0, left, right},
		DefaultLeft: []bool{defaultLeft, false, false},
	}
}

func leafTree(weight float64) Tree {
	return Tree{
		Left:        []int{-1},
		Right:       []int{-1},
		SplitIndex:  []int{0},
		Threshold:   []float64{0},
		Weight:      []float64{weight},
		DefaultLeft: []bool{false},
	}
}

func TestWalkRouting(t *testing.T) {
	tree := splitTree(0, 10, -1.0, 1.0, true)
	cases := []struct {
		name  string
		value float64
		want  float64
	}{
		{"below threshold goes left", 5, -1.0},
		{"equal threshold goes right", 10, 1.0},
		{"above threshold goes right", 15, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tree.evaluate([]float64{tc.value})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tc.want {
				t.Errorf("leaf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWalkDefaultBranchFlag(t *testing.T) {
	// Two trees identical except for the default flag must route the same
	// missing-valued input to different leaves.
	leftDefault := splitTree(0, 10, -1.0, 1.0, true)
	rightDefault := splitTree(0, 10, -1.0, 1.0, false)
	row := []float64{math.NaN()}

	gotLeft, err := leftDefault.evaluate(row)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	gotRight, err := rightDefault.evaluate(row)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if gotLeft != -1.0 || gotRight != 1.0 {
		t.Errorf("default routing = (%v, %v), want (-1, 1)", gotLeft, gotRight)
	}
	if gotLeft == gotRight {
		t.Errorf("flipping the default flag did not change the reached leaf")
	}
}

func TestWalkSingleLeaf(t *testing.T) {
	tree := leafTree(0.25)
	got, err := tree.evaluate([]float64{math.NaN()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != 0.25 {
		t.Errorf("leaf = %v, want 0.25", got)
	}
}

func TestWalkDeepSpine(t *testing.T) {
	// A walk down the longest path of a valid tree stays within the
	// node-count budget.
	tree := Tree{
		Left:        []int{1, 3, -1, 5, -1, -1, -1},
		Right:       []int{2, 4, -1, 6, -1, -1, -1},
		SplitIndex:  []int{0, 0, 0, 0, 0, 0, 0},
		Threshold:   []float64{10, 10, 0, 10, 0, 0, 0},
		Weight:      []float64{0, 0, 9, 0, 9, 0.5, 9},
		DefaultLeft: []bool{false, false, false, false, false, false, false},
	}
	got, err := tree.evaluate([]float64{1})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != 0.5 {
		t.Errorf("leaf = %v, want 0.5", got)
	}
}

func TestWalkDetectsCycle(t *testing.T) {
	// Passes the structural load checks (indices in range, no lone child)
	// yet never reaches a leaf. The walk bound must trip.
	cyclic := Tree{
		Left:        []int{1, 0},
		Right:       []int{1, 0},
		SplitIndex:  []int{0, 0},
		Threshold:   []float64{10, 10},
		Weight:      []float64{0, 0},
		DefaultLeft: []bool{false, false},
	}
	if _, err := cyclic.evaluate([]float64{1}); !errors.Is(err, ErrCorruptTree) {
		t.Fatalf("error = %v, want ErrCorruptTree", err)
	}
}

func TestCorruptTreeFailsOnlyThatCall(t *testing.T) {
	doc := &ModelDocument{
		FeatureNames: []string{"x"},
		NumClass:     1,
		Trees: []Tree{{
			Left:        []int{1, 0},
			Right:       []int{1, 0},
			SplitIndex:  []int{0, 0},
			Threshold:   []float64{10, 10},
			Weight:      []float64{0, 0},
			DefaultLeft: []bool{false, false},
		}},
		TreeClass: []int{0},
	}
	if _, err := doc.Margins(FeatureVector{"x": 1}); !errors.Is(err, ErrCorruptTree) {
		t.Fatalf("error = %v, want ErrCorruptTree", err)
	}

	healthy := &ModelDocument{
		FeatureNames: []string{"x"},
		NumClass:     1,
		Trees:        []Tree{leafTree(0.4)},
		TreeClass:    []int{0},
	}
	margins, err := healthy.Margins(FeatureVector{"x": 1})
	if err != nil {
		t.Fatalf("healthy document after corrupt one: %v", err)
	}
	if margins[0] != 0.4 {
		t.Errorf("margin = %v, want 0.4", margins[0])
	}
}
