package booster

import "math"

// evaluate walks one tree over a dense feature row and returns the weight
// of the reached leaf. A missing value (NaN) takes the node's stored
// default branch; a present value goes left when strictly below the
// threshold, right otherwise. The walk is bounded by the node count; a
// well-formed tree reaches a leaf within that many hops, so running out
// of budget means the child indices cycle.
func (t *Tree) evaluate(row []float64) (float64, error) {
	idx := 0
	for steps := t.NumNodes(); steps > 0; steps-- {
		if t.Left[idx] == -1 {
			return t.Weight[idx], nil
		}
		v := row[t.SplitIndex[idx]]
		switch {
		case math.IsNaN(v):
			if t.DefaultLeft[idx] {
				idx = t.Left[idx]
			} else {
				idx = t.Right[idx]
			}
		case v < t.Threshold[idx]:
			idx = t.Left[idx]
		default:
			idx = t.Right[idx]
		}
	}
	return 0, ErrCorruptTree
}
