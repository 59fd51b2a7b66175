package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Aggregation selects how per-tree outputs are combined.
type Aggregation string

const (
	// AggregateMean averages leaf probabilities, as a random forest does.
	AggregateMean Aggregation = "mean"
	// AggregateLogit sums leaf margins onto a base margin and applies the
	// sigmoid, as a gradient-boosted ensemble does.
	AggregateLogit Aggregation = "logit"
)

// Node is one entry of a flattened decision tree. A node whose Left and
// Right are both non-positive is a leaf carrying Value. Internal nodes go
// left when x[Feature] <= Threshold (or < Threshold for strict ensembles).
type Node struct {
	Feature   int     `mapstructure:"feature"`
	Threshold float64 `mapstructure:"threshold"`
	Left      int     `mapstructure:"left"`
	Right     int     `mapstructure:"right"`
	Value     float64 `mapstructure:"value"`
}

func (n Node) leaf() bool { return n.Left <= 0 && n.Right <= 0 }

// TreeEnsemble is a classifier built from flattened decision trees.
type TreeEnsemble struct {
	trees       [][]Node
	aggregation Aggregation
	baseMargin  float64
	strict      bool
	width       int
}

// NewTreeEnsemble validates trees and returns an ensemble. baseScore is a
// probability used as the starting point for logit aggregation.
func NewTreeEnsemble(trees [][]Node, agg Aggregation, baseScore float64) (*TreeEnsemble, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no trees", ErrInvalidArtifact)
	}
	switch agg {
	case "":
		agg = AggregateMean
	case AggregateMean, AggregateLogit:
	default:
		return nil, fmt.Errorf("%w: unknown aggregation %q", ErrInvalidArtifact, agg)
	}

	width := 0
	for ti, nodes := range trees {
		if len(nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrInvalidArtifact, ti)
		}
		for i, n := range nodes {
			if n.leaf() {
				continue
			}
			// Children must follow their parent so evaluation always terminates.
			if n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) {
				return nil, fmt.Errorf("%w: tree %d node %d has invalid children %d/%d", ErrInvalidArtifact, ti, i, n.Left, n.Right)
			}
			if n.Feature < 0 {
				return nil, fmt.Errorf("%w: tree %d node %d has negative feature index", ErrInvalidArtifact, ti, i)
			}
			width = max(width, n.Feature+1)
		}
	}

	e := &TreeEnsemble{trees: trees, aggregation: agg, width: width}
	if agg == AggregateLogit {
		e.baseMargin = logit(baseScore)
	}
	return e, nil
}

func (e *TreeEnsemble) PredictProba(x []float64) (float64, error) {
	if len(x) < e.width {
		return 0, fmt.Errorf("%w: got %d, need at least %d", ErrDimension, len(x), e.width)
	}

	sum := 0.0
	for _, nodes := range e.trees {
		sum += e.eval(nodes, x)
	}

	if e.aggregation == AggregateLogit {
		return sigmoid(e.baseMargin + sum), nil
	}
	return math.Min(1, math.Max(0, sum/float64(len(e.trees)))), nil
}

func (e *TreeEnsemble) eval(nodes []Node, x []float64) float64 {
	i := 0
	for {
		n := nodes[i]
		if n.leaf() {
			return n.Value
		}
		v := x[n.Feature]
		if v < n.Threshold || (!e.strict && v == n.Threshold) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Width returns the minimum input width the ensemble reads.
func (e *TreeEnsemble) Width() int { return e.width }

// boosterNode is one node of a gradient-boosting JSON tree dump, where
// splits are named "f<index>" and children are nested.
type boosterNode struct {
	NodeID         int           `mapstructure:"nodeid"`
	Leaf           *float64      `mapstructure:"leaf"`
	Split          string        `mapstructure:"split"`
	SplitCondition float64       `mapstructure:"split_condition"`
	Yes            int           `mapstructure:"yes"`
	No             int           `mapstructure:"no"`
	Missing        int           `mapstructure:"missing"`
	Children       []boosterNode `mapstructure:"children"`
}

// maxTreeDepth bounds booster flattening against malformed child links.
const maxTreeDepth = 64

// newBoosterEnsemble converts nested booster trees into a strict, logit
// aggregated TreeEnsemble.
func newBoosterEnsemble(roots []boosterNode, baseScore float64) (*TreeEnsemble, error) {
	trees := make([][]Node, 0, len(roots))
	for ti, root := range roots {
		nodes, err := flattenBooster(root)
		if err != nil {
			return nil, fmt.Errorf("%w: booster tree %d: %v", ErrInvalidArtifact, ti, err)
		}
		trees = append(trees, nodes)
	}
	e, err := NewTreeEnsemble(trees, AggregateLogit, baseScore)
	if err != nil {
		return nil, err
	}
	e.strict = true
	return e, nil
}

func flattenBooster(root boosterNode) ([]Node, error) {
	byID := map[int]boosterNode{}
	var collect func(n boosterNode)
	collect = func(n boosterNode) {
		byID[n.NodeID] = n
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(root)

	var nodes []Node
	var emit func(id, depth int) (int, error)
	emit = func(id, depth int) (int, error) {
		if depth > maxTreeDepth {
			return 0, fmt.Errorf("tree deeper than %d", maxTreeDepth)
		}
		n, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("node %d is referenced but not defined", id)
		}
		idx := len(nodes)
		if n.Leaf != nil {
			nodes = append(nodes, Node{Left: -1, Right: -1, Value: *n.Leaf})
			return idx, nil
		}
		feature, err := parseSplit(n.Split)
		if err != nil {
			return 0, fmt.Errorf("node %d: %w", id, err)
		}
		nodes = append(nodes, Node{Feature: feature, Threshold: n.SplitCondition})
		left, err := emit(n.Yes, depth+1)
		if err != nil {
			return 0, err
		}
		right, err := emit(n.No, depth+1)
		if err != nil {
			return 0, err
		}
		nodes[idx].Left = left
		nodes[idx].Right = right
		return idx, nil
	}

	if _, err := emit(root.NodeID, 0); err != nil {
		return nil, err
	}
	return nodes, nil
}

func parseSplit(split string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(split, "f"))
	if err != nil || !strings.HasPrefix(split, "f") || idx < 0 {
		return 0, fmt.Errorf("unsupported split feature %q", split)
	}
	return idx, nil
}
