package services

import (
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
)

// Layout constants. Assistant nodes render larger than user nodes because
// they hold streamed long-form text.
const (
	defaultUserWidth       = 220.0
	defaultUserHeight      = 90.0
	defaultAssistantWidth  = 340.0
	defaultAssistantHeight = 170.0

	siblingGap = 40.0  // horizontal gap between sibling subtrees
	rankGap    = 60.0  // vertical gap between depth ranks
	treeMargin = 120.0 // horizontal margin between packed trees
)

// LayoutEngine computes non-overlapping canvas positions for every message,
// tree by tree. Only primary parent/child edges matter here; reference
// edges are ignored. A node the user has dragged keeps its saved position
// unconditionally, and new nodes joining an already-arranged tree are
// placed next to their parent instead of re-laying-out the whole tree.
type LayoutEngine struct{}

// NewLayoutEngine creates a layout engine
func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{}
}

// Layout returns a position for every message in the forest. Measured
// sizes may be supplied per node; nodes without a measurement fall back to
// the role's default size.
func (e *LayoutEngine) Layout(forest *aggregates.Forest, measured map[valueobjects.NodeID]valueobjects.Size) map[valueobjects.NodeID]valueobjects.Position {
	positions := make(map[valueobjects.NodeID]valueobjects.Position)
	if forest.Len() == 0 {
		return positions
	}

	// Saved positions win outright.
	for id, pos := range forest.Positions() {
		positions[id] = pos
	}

	xCursor := 0.0
	for _, root := range forest.Roots() {
		subtree := forest.Subtree(root.ID())

		anyPinned := false
		allPinned := true
		for _, msg := range subtree {
			if _, ok := forest.Position(msg.ID()); ok {
				anyPinned = true
			} else {
				allPinned = false
			}
		}

		switch {
		case allPinned:
			// Nothing to place; the user arranged the whole tree.
		case anyPinned:
			e.placeIncremental(forest, subtree, measured, positions)
		default:
			width := e.placeTree(forest, root, measured, positions, xCursor)
			xCursor += width + treeMargin
		}
	}

	return positions
}

// PlaceChild positions a brand-new node adjacent to its already-positioned
// parent, fanning siblings out horizontally. Used when a single node joins
// a tree the user has arranged, to avoid repositioning everything else.
func (e *LayoutEngine) PlaceChild(parent valueobjects.Position, parentSize valueobjects.Size, childSize valueobjects.Size, siblingOrdinal int) valueobjects.Position {
	x := parent.X() + float64(siblingOrdinal)*(childSize.Width()+siblingGap)
	y := parent.Y() + parentSize.Height() + rankGap
	pos, _ := valueobjects.NewPosition(x, y)
	return pos
}

// placeIncremental fills in positions for the unplaced nodes of a tree the
// user has partially arranged. Parents are visited before children
// (Subtree is breadth-first), so a run of new nodes chains downward.
func (e *LayoutEngine) placeIncremental(
	forest *aggregates.Forest,
	subtree []*entities.Message,
	measured map[valueobjects.NodeID]valueobjects.Size,
	positions map[valueobjects.NodeID]valueobjects.Position,
) {
	for _, msg := range subtree {
		if _, placed := positions[msg.ID()]; placed {
			continue
		}

		parentID, hasParent := forest.Parent(msg.ID())
		parentPos, parentPlaced := positions[parentID]
		if !hasParent || !parentPlaced {
			// A detached or not-yet-placed parent: drop the node at the
			// origin of its own column rather than guessing.
			pos, _ := valueobjects.NewPosition(0, 0)
			positions[msg.ID()] = pos
			continue
		}

		ordinal := 0
		for _, sibling := range forest.Children(parentID) {
			if sibling.ID().Equals(msg.ID()) {
				break
			}
			ordinal++
		}

		parentMsg, err := forest.Get(parentID)
		parentSize := valueobjects.Size{}
		if err == nil {
			parentSize = e.sizeOf(parentMsg, measured)
		}
		positions[msg.ID()] = e.PlaceChild(parentPos, parentSize, e.sizeOf(msg, measured), ordinal)
	}
}

// placeTree runs the layered layout for one fully-unarranged tree, offset
// to xCursor, and returns the tree's bounding width so the caller can pack
// the next tree to the right of it.
func (e *LayoutEngine) placeTree(
	forest *aggregates.Forest,
	root *entities.Message,
	measured map[valueobjects.NodeID]valueobjects.Size,
	positions map[valueobjects.NodeID]valueobjects.Position,
	xCursor float64,
) float64 {
	// Row heights per depth rank.
	rankHeights := make(map[int]float64)
	var walkRanks func(id valueobjects.NodeID, depth int)
	walkRanks = func(id valueobjects.NodeID, depth int) {
		msg, err := forest.Get(id)
		if err != nil {
			return
		}
		size := e.sizeOf(msg, measured)
		if size.Height() > rankHeights[depth] {
			rankHeights[depth] = size.Height()
		}
		for _, child := range forest.Children(id) {
			walkRanks(child.ID(), depth+1)
		}
	}
	walkRanks(root.ID(), 0)

	rankY := make(map[int]float64)
	y := 0.0
	for depth := 0; depth < len(rankHeights); depth++ {
		rankY[depth] = y
		y += rankHeights[depth] + rankGap
	}

	extents := make(map[valueobjects.NodeID]float64)
	var measureExtent func(id valueobjects.NodeID) float64
	measureExtent = func(id valueobjects.NodeID) float64 {
		msg, err := forest.Get(id)
		if err != nil {
			return 0
		}
		own := e.sizeOf(msg, measured).Width()
		children := forest.Children(id)
		if len(children) == 0 {
			extents[id] = own
			return own
		}
		total := 0.0
		for i, child := range children {
			if i > 0 {
				total += siblingGap
			}
			total += measureExtent(child.ID())
		}
		if own > total {
			total = own
		}
		extents[id] = total
		return total
	}
	treeWidth := measureExtent(root.ID())

	// Each node is centered over its children's combined extent; sibling
	// extents are disjoint, so boxes cannot overlap.
	var place func(id valueobjects.NodeID, left float64, depth int)
	place = func(id valueobjects.NodeID, left float64, depth int) {
		msg, err := forest.Get(id)
		if err != nil {
			return
		}
		size := e.sizeOf(msg, measured)
		x := left + (extents[id]-size.Width())/2
		pos, _ := valueobjects.NewPosition(x, rankY[depth])
		positions[id] = pos

		childLeft := left
		children := forest.Children(id)
		if childTotal := e.childExtent(children, extents); childTotal < extents[id] {
			childLeft += (extents[id] - childTotal) / 2
		}
		for _, child := range children {
			place(child.ID(), childLeft, depth+1)
			childLeft += extents[child.ID()] + siblingGap
		}
	}
	place(root.ID(), xCursor, 0)

	return treeWidth
}

func (e *LayoutEngine) childExtent(children []*entities.Message, extents map[valueobjects.NodeID]float64) float64 {
	total := 0.0
	for i, child := range children {
		if i > 0 {
			total += siblingGap
		}
		total += extents[child.ID()]
	}
	return total
}

// sizeOf resolves a node's rendered size, falling back to role defaults
// when no measurement has arrived yet.
func (e *LayoutEngine) sizeOf(msg *entities.Message, measured map[valueobjects.NodeID]valueobjects.Size) valueobjects.Size {
	if measured != nil {
		if size, ok := measured[msg.ID()]; ok && !size.IsZero() {
			return size
		}
	}
	if msg.Role() == entities.RoleAssistant {
		size, _ := valueobjects.NewSize(defaultAssistantWidth, defaultAssistantHeight)
		return size
	}
	size, _ := valueobjects.NewSize(defaultUserWidth, defaultUserHeight)
	return size
}
