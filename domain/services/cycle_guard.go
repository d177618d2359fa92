package services

import (
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

// CycleGuard decides whether a cross-tree reference would make a message
// depend on itself through its own ancestry. The check is deliberately
// narrow: it inspects the ancestor chain only, not chains of reference
// edges referencing each other (A→B, B→A stays legal). The product treats
// a hit as a warning, never as a hard rejection.
type CycleGuard struct{}

// NewCycleGuard creates a cycle guard
func NewCycleGuard() *CycleGuard {
	return &CycleGuard{}
}

// WouldCreateCycle reports whether toID already lies on the strict ancestor
// chain of fromID. A node is not its own ancestor, so a self-reference is
// not a cycle by this definition; referencing one's immediate parent is.
func (g *CycleGuard) WouldCreateCycle(forest *aggregates.Forest, fromID, toID valueobjects.NodeID) bool {
	chain := forest.AncestorChain(fromID)
	if len(chain) == 0 {
		return false
	}
	// chain[0] is fromID itself; only true ancestors count.
	for _, msg := range chain[1:] {
		if msg.ID().Equals(toID) {
			return true
		}
	}
	return false
}

// CyclicReferences returns every existing reference edge that trips the
// guard, for render-time warning indicators.
func (g *CycleGuard) CyclicReferences(forest *aggregates.Forest) []aggregates.ReferenceEdge {
	var flagged []aggregates.ReferenceEdge
	for _, ref := range forest.References() {
		if g.WouldCreateCycle(forest, ref.SourceID, ref.TargetID) {
			flagged = append(flagged, ref)
		}
	}
	return flagged
}
