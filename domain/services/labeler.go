package services

import (
	"fmt"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

// LabelSet carries every derived label for a forest, keyed by node ID.
// Short labels ("B3") are unique within a tree; the tree letter wraps
// through the alphabet while the tree index does not, so the index is the
// one to use for deterministic color/identity assignment.
type LabelSet struct {
	Short      map[valueobjects.NodeID]string
	TreeLetter map[valueobjects.NodeID]string
	TreeIndex  map[valueobjects.NodeID]int
}

// Labeler derives human-addressable short codes for every message. Labels
// are recomputed from scratch on every structural change rather than
// maintained incrementally; at the node counts conversations reach, the
// recomputation is cheap and the correctness is free.
type Labeler struct{}

// NewLabeler creates a labeler
func NewLabeler() *Labeler {
	return &Labeler{}
}

// Generate computes all labels for the forest. Roots are lettered A, B, C…
// in discovery order, wrapping modulo 26 after the 26th tree; within a
// tree, ordinals follow a breadth-first traversal ordered by creation time
// among siblings. The result is fully determined by the node set and its
// timestamps, regardless of input order, provided timestamps are distinct.
func (l *Labeler) Generate(forest *aggregates.Forest) LabelSet {
	set := LabelSet{
		Short:      make(map[valueobjects.NodeID]string),
		TreeLetter: make(map[valueobjects.NodeID]string),
		TreeIndex:  make(map[valueobjects.NodeID]int),
	}

	for treeIndex, root := range forest.Roots() {
		letter := string(rune('A' + treeIndex%26))

		ordinal := 1
		queue := []valueobjects.NodeID{root.ID()}
		visited := map[valueobjects.NodeID]bool{root.ID(): true}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			set.Short[current] = fmt.Sprintf("%s%d", letter, ordinal)
			set.TreeLetter[current] = letter
			set.TreeIndex[current] = treeIndex
			ordinal++

			for _, child := range forest.Children(current) {
				if !visited[child.ID()] {
					visited[child.ID()] = true
					queue = append(queue, child.ID())
				}
			}
		}
	}

	return set
}
