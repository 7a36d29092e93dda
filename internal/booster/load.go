package booster

import (
	"encoding/json"
	"fmt"
	"math"
)

// Wire schema of the XGBoost >=1.0 unified JSON format. Model parameters
// arrive as quoted strings ("num_class": "4"), hence json.Number.
type modelJSON struct {
	Learner learnerJSON `json:"learner"`
}

type learnerJSON struct {
	FeatureNames      []string            `json:"feature_names"`
	GradientBooster   gradientBoosterJSON `json:"gradient_booster"`
	LearnerModelParam learnerParamJSON    `json:"learner_model_param"`
	Objective         objectiveJSON       `json:"objective"`
}

type learnerParamJSON struct {
	BaseScore  json.Number `json:"base_score"`
	NumClass   json.Number `json:"num_class"`
	NumFeature json.Number `json:"num_feature"`
}

type objectiveJSON struct {
	Name string `json:"name"`
}

type gradientBoosterJSON struct {
	Model boosterModelJSON `json:"model"`
}

type boosterModelJSON struct {
	Trees    []treeJSON `json:"trees"`
	TreeInfo []int      `json:"tree_info"`
}

type treeJSON struct {
	BaseWeights     []float64     `json:"base_weights"`
	DefaultLeft     []int         `json:"default_left"`
	LeftChildren    []int         `json:"left_children"`
	RightChildren   []int         `json:"right_children"`
	SplitConditions []float64     `json:"split_conditions"`
	SplitIndices    []int         `json:"split_indices"`
	TreeParam       treeParamJSON `json:"tree_param"`
}

type treeParamJSON struct {
	NumNodes json.Number `json:"num_nodes"`
}

// Objectives the engine can reproduce. Anything else is refused at load
// time rather than approximated.
const (
	ObjectiveBinaryLogistic = "binary:logistic"
	ObjectiveMultiSoftprob  = "multi:softprob"
)

// Load parses and validates a serialized model. Every structural problem
// is rejected here so evaluation code can assume well-formedness; a
// non-nil error always means no document, never a partial one.
func Load(raw []byte) (*ModelDocument, error) {
	var m modelJSON
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	learner := m.Learner

	if len(learner.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: learner.feature_names is empty", ErrFormat)
	}
	if nf, err := learner.LearnerModelParam.NumFeature.Int64(); err == nil && nf > 0 && int(nf) != len(learner.FeatureNames) {
		return nil, fmt.Errorf("%w: num_feature %d disagrees with %d feature names", ErrFormat, nf, len(learner.FeatureNames))
	}

	objective := learner.Objective.Name
	groups := 1
	switch objective {
	case "":
		return nil, fmt.Errorf("%w: learner.objective.name is empty", ErrFormat)
	case ObjectiveBinaryLogistic:
	case ObjectiveMultiSoftprob:
		n, err := learner.LearnerModelParam.NumClass.Int64()
		if err != nil || n < 2 {
			return nil, fmt.Errorf("%w: multi:softprob needs num_class >= 2, got %q", ErrFormat, learner.LearnerModelParam.NumClass)
		}
		groups = int(n)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedObjective, objective)
	}

	base, err := learner.LearnerModelParam.BaseScore.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: base_score %q: %v", ErrFormat, learner.LearnerModelParam.BaseScore, err)
	}
	margin := base
	if base > 0 && base < 1 {
		// The trainer stores a probability-scale base score; margins
		// accumulate on the log-odds scale.
		margin = math.Log(base / (1 - base))
	}

	model := learner.GradientBooster.Model
	if len(model.Trees) == 0 {
		return nil, fmt.Errorf("%w: model has no trees", ErrFormat)
	}
	if len(model.TreeInfo) != len(model.Trees) {
		return nil, fmt.Errorf("%w: tree_info covers %d of %d trees", ErrFormat, len(model.TreeInfo), len(model.Trees))
	}

	doc := &ModelDocument{
		Objective:    objective,
		FeatureNames: learner.FeatureNames,
		NumClass:     groups,
		BaseMargin:   margin,
		Trees:        make([]Tree, 0, len(model.Trees)),
		TreeClass:    make([]int, len(model.Trees)),
	}
	for i, cls := range model.TreeInfo {
		if cls < 0 || cls >= groups {
			return nil, fmt.Errorf("%w: tree %d assigned to class %d of %d", ErrFormat, i, cls, groups)
		}
		doc.TreeClass[i] = cls
	}
	for i := range model.Trees {
		tree, err := convertTree(&model.Trees[i], len(learner.FeatureNames))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		doc.Trees = append(doc.Trees, tree)
	}
	return doc, nil
}

func convertTree(raw *treeJSON, numFeatures int) (Tree, error) {
	nodes, err := raw.TreeParam.NumNodes.Int64()
	if err != nil || nodes <= 0 {
		return Tree{}, fmt.Errorf("%w: tree_param.num_nodes %q", ErrFormat, raw.TreeParam.NumNodes)
	}
	n := int(nodes)
	if len(raw.LeftChildren) != n || len(raw.RightChildren) != n ||
		len(raw.SplitIndices) != n || len(raw.SplitConditions) != n ||
		len(raw.BaseWeights) != n || len(raw.DefaultLeft) != n {
		return Tree{}, fmt.Errorf("%w: parallel arrays disagree with num_nodes=%d", ErrFormat, n)
	}

	t := Tree{
		Left:        raw.LeftChildren,
		Right:       raw.RightChildren,
		SplitIndex:  raw.SplitIndices,
		Threshold:   raw.SplitConditions,
		Weight:      raw.BaseWeights,
		DefaultLeft: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		left, right := t.Left[i], t.Right[i]
		switch {
		case left == -1 && right == -1:
			// leaf
		case left == -1 || right == -1:
			return Tree{}, fmt.Errorf("%w: node %d has exactly one child", ErrFormat, i)
		default:
			if left < 0 || left >= n || right < 0 || right >= n {
				return Tree{}, fmt.Errorf("%w: node %d children (%d,%d) out of range", ErrFormat, i, left, right)
			}
			if fi := t.SplitIndex[i]; fi < 0 || fi >= numFeatures {
				return Tree{}, fmt.Errorf("%w: node %d split index %d outside %d features", ErrFormat, i, fi, numFeatures)
			}
		}
		t.DefaultLeft[i] = raw.DefaultLeft[i] != 0
	}
	return t, nil
}
