package aggregates

import (
	"sort"
	"time"

	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	pkgerrors "loom-backend/pkg/errors"
)

// maxNodes bounds a single conversation. Typical forests are tens to low
// hundreds of nodes; the limit exists to stop a runaway client.
const maxNodes = 10000

// ReferenceEdge is a secondary, non-tree link from one message to another
// tree. It never participates in the parent/child acyclicity invariant.
type ReferenceEdge struct {
	SourceID valueobjects.NodeID
	TargetID valueobjects.NodeID
}

// Forest is the aggregate root for one conversation: every message tree the
// user has branched, the cross-tree reference edges, and the user-arranged
// canvas positions. The parent/child relation is acyclic; a node whose
// stored parent cannot be found is treated as a root rather than failing
// the whole load.
type Forest struct {
	id         valueobjects.ConversationID
	nodes      map[valueobjects.NodeID]*entities.Message
	order      []valueobjects.NodeID // insertion order; drives root discovery
	references []ReferenceEdge
	positions  map[valueobjects.NodeID]valueobjects.Position
	createdAt  time.Time
	updatedAt  time.Time
	version    int
	events     []events.DomainEvent
}

// NewForest creates an empty conversation forest
func NewForest(id valueobjects.ConversationID) (*Forest, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("conversation ID required")
	}
	now := time.Now()
	return &Forest{
		id:        id,
		nodes:     make(map[valueobjects.NodeID]*entities.Message),
		positions: make(map[valueobjects.NodeID]valueobjects.Position),
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}, nil
}

// ReconstructForest rebuilds a forest from stored data. Messages arrive in
// stored order, which becomes the root-discovery order for labeling.
// References whose endpoints no longer exist are dropped.
func ReconstructForest(
	id valueobjects.ConversationID,
	messages []*entities.Message,
	references []ReferenceEdge,
	positions map[valueobjects.NodeID]valueobjects.Position,
) (*Forest, error) {
	forest, err := NewForest(id)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if _, exists := forest.nodes[msg.ID()]; exists {
			continue
		}
		forest.nodes[msg.ID()] = msg
		forest.order = append(forest.order, msg.ID())
	}
	for _, ref := range references {
		if _, ok := forest.nodes[ref.SourceID]; !ok {
			continue
		}
		if _, ok := forest.nodes[ref.TargetID]; !ok {
			continue
		}
		forest.references = append(forest.references, ref)
	}
	for id, pos := range positions {
		if _, ok := forest.nodes[id]; ok {
			forest.positions[id] = pos
		}
	}
	return forest, nil
}

// ID returns the conversation's identifier
func (f *Forest) ID() valueobjects.ConversationID {
	return f.id
}

// Version returns the aggregate version
func (f *Forest) Version() int {
	return f.version
}

// UpdatedAt returns when the forest last changed
func (f *Forest) UpdatedAt() time.Time {
	return f.updatedAt
}

// Insert adds a message. The parent must be absent (root) or already present.
func (f *Forest) Insert(msg *entities.Message) error {
	if msg == nil {
		return pkgerrors.NewValidationError("message cannot be nil")
	}
	if _, exists := f.nodes[msg.ID()]; exists {
		return pkgerrors.NewConflictError("message already exists in forest")
	}
	if !msg.ParentID().IsZero() {
		if _, ok := f.nodes[msg.ParentID()]; !ok {
			return pkgerrors.NewNotFoundError("parent message")
		}
	}
	if len(f.nodes) >= maxNodes {
		return pkgerrors.NewConflictError("maximum messages reached")
	}
	f.nodes[msg.ID()] = msg
	f.order = append(f.order, msg.ID())
	f.touch()
	return nil
}

// Get retrieves a message by ID
func (f *Forest) Get(id valueobjects.NodeID) (*entities.Message, error) {
	msg, ok := f.nodes[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("message")
	}
	return msg, nil
}

// Has reports whether a message exists
func (f *Forest) Has(id valueobjects.NodeID) bool {
	_, ok := f.nodes[id]
	return ok
}

// Len returns the number of messages
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Messages returns every message in insertion order
func (f *Forest) Messages() []*entities.Message {
	out := make([]*entities.Message, 0, len(f.order))
	for _, id := range f.order {
		if msg, ok := f.nodes[id]; ok {
			out = append(out, msg)
		}
	}
	return out
}

// Parent resolves a message's effective parent. A stored parent that no
// longer exists degrades the node to a root.
func (f *Forest) Parent(id valueobjects.NodeID) (valueobjects.NodeID, bool) {
	msg, ok := f.nodes[id]
	if !ok || msg.ParentID().IsZero() {
		return valueobjects.NodeID{}, false
	}
	if _, exists := f.nodes[msg.ParentID()]; !exists {
		return valueobjects.NodeID{}, false
	}
	return msg.ParentID(), true
}

// Roots returns every effective root in insertion order
func (f *Forest) Roots() []*entities.Message {
	var roots []*entities.Message
	for _, id := range f.order {
		msg, ok := f.nodes[id]
		if !ok {
			continue
		}
		if _, hasParent := f.Parent(id); !hasParent {
			roots = append(roots, msg)
		}
	}
	return roots
}

// Children returns a message's direct children ordered by creation time
func (f *Forest) Children(id valueobjects.NodeID) []*entities.Message {
	var children []*entities.Message
	for _, childID := range f.order {
		if parent, ok := f.Parent(childID); ok && parent.Equals(id) {
			children = append(children, f.nodes[childID])
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].CreatedAt().Before(children[j].CreatedAt())
	})
	return children
}

// IsLeaf reports whether no other message names this one as parent. Only
// the most recent node of an unbranched chain may still be edited in place.
func (f *Forest) IsLeaf(id valueobjects.NodeID) bool {
	for _, childID := range f.order {
		if parent, ok := f.Parent(childID); ok && parent.Equals(id) {
			return false
		}
	}
	return true
}

// AncestorChain walks parent links from the node up to its root, returning
// the chain node-first. A visited set protects against a malformed cyclic
// parent chain in stored data.
func (f *Forest) AncestorChain(id valueobjects.NodeID) []*entities.Message {
	var chain []*entities.Message
	visited := make(map[valueobjects.NodeID]bool)
	current := id
	for {
		if visited[current] {
			break
		}
		visited[current] = true
		msg, ok := f.nodes[current]
		if !ok {
			break
		}
		chain = append(chain, msg)
		parent, hasParent := f.Parent(current)
		if !hasParent {
			break
		}
		current = parent
	}
	return chain
}

// RootOf resolves the root of the tree containing the given node
func (f *Forest) RootOf(id valueobjects.NodeID) (*entities.Message, error) {
	chain := f.AncestorChain(id)
	if len(chain) == 0 {
		return nil, pkgerrors.NewNotFoundError("message")
	}
	return chain[len(chain)-1], nil
}

// Subtree collects the node and every descendant breadth-first
func (f *Forest) Subtree(id valueobjects.NodeID) []*entities.Message {
	root, ok := f.nodes[id]
	if !ok {
		return nil
	}
	var out []*entities.Message
	visited := map[valueobjects.NodeID]bool{id: true}
	queue := []*entities.Message{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		out = append(out, current)
		for _, child := range f.Children(current.ID()) {
			if !visited[child.ID()] {
				visited[child.ID()] = true
				queue = append(queue, child)
			}
		}
	}
	return out
}

// DeleteSubtree removes the node and every descendant, cascading to
// reference edges and position records that fall inside the removed set.
// The removed IDs are returned so callers can cascade persistence cleanup.
func (f *Forest) DeleteSubtree(id valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	if _, ok := f.nodes[id]; !ok {
		return nil, pkgerrors.NewNotFoundError("message")
	}

	subtree := f.Subtree(id)
	removed := make([]valueobjects.NodeID, 0, len(subtree))
	removedSet := make(map[valueobjects.NodeID]bool, len(subtree))
	for _, msg := range subtree {
		removed = append(removed, msg.ID())
		removedSet[msg.ID()] = true
	}

	for _, rid := range removed {
		delete(f.nodes, rid)
		delete(f.positions, rid)
	}

	kept := f.order[:0]
	for _, oid := range f.order {
		if !removedSet[oid] {
			kept = append(kept, oid)
		}
	}
	f.order = kept

	refs := f.references[:0]
	for _, ref := range f.references {
		if !removedSet[ref.SourceID] && !removedSet[ref.TargetID] {
			refs = append(refs, ref)
		}
	}
	f.references = refs

	f.touch()
	f.addEvent(events.NewSubtreeDeleted(f.id, id, removed, f.updatedAt))
	return removed, nil
}

// AddReference records a cross-tree reference edge. Duplicates are
// idempotent. Cycle detection is the caller's concern: the product warns
// about cyclic references but never blocks them.
func (f *Forest) AddReference(sourceID, targetID valueobjects.NodeID) error {
	if _, ok := f.nodes[sourceID]; !ok {
		return pkgerrors.NewNotFoundError("reference source")
	}
	if _, ok := f.nodes[targetID]; !ok {
		return pkgerrors.NewNotFoundError("reference target")
	}
	for _, ref := range f.references {
		if ref.SourceID.Equals(sourceID) && ref.TargetID.Equals(targetID) {
			return nil
		}
	}
	f.references = append(f.references, ReferenceEdge{SourceID: sourceID, TargetID: targetID})
	f.touch()
	return nil
}

// RemoveReference deletes a reference edge if present
func (f *Forest) RemoveReference(sourceID, targetID valueobjects.NodeID) {
	refs := f.references[:0]
	changed := false
	for _, ref := range f.references {
		if ref.SourceID.Equals(sourceID) && ref.TargetID.Equals(targetID) {
			changed = true
			continue
		}
		refs = append(refs, ref)
	}
	f.references = refs
	if changed {
		f.touch()
	}
}

// References returns all reference edges
func (f *Forest) References() []ReferenceEdge {
	out := make([]ReferenceEdge, len(f.references))
	copy(out, f.references)
	return out
}

// ReferencesFrom returns the targets referenced by a given message
func (f *Forest) ReferencesFrom(sourceID valueobjects.NodeID) []valueobjects.NodeID {
	var targets []valueobjects.NodeID
	for _, ref := range f.references {
		if ref.SourceID.Equals(sourceID) {
			targets = append(targets, ref.TargetID)
		}
	}
	return targets
}

// SetPosition records a user-arranged position. Once set, automatic layout
// must not override it.
func (f *Forest) SetPosition(id valueobjects.NodeID, pos valueobjects.Position) error {
	if _, ok := f.nodes[id]; !ok {
		return pkgerrors.NewNotFoundError("message")
	}
	f.positions[id] = pos
	f.touch()
	return nil
}

// Position returns the saved position for a node, if any
func (f *Forest) Position(id valueobjects.NodeID) (valueobjects.Position, bool) {
	pos, ok := f.positions[id]
	return pos, ok
}

// Positions returns a copy of all saved positions
func (f *Forest) Positions() map[valueobjects.NodeID]valueobjects.Position {
	out := make(map[valueobjects.NodeID]valueobjects.Position, len(f.positions))
	for id, pos := range f.positions {
		out[id] = pos
	}
	return out
}

// GetUncommittedEvents returns forest events plus every node's events
func (f *Forest) GetUncommittedEvents() []events.DomainEvent {
	all := make([]events.DomainEvent, len(f.events))
	copy(all, f.events)
	for _, id := range f.order {
		if msg, ok := f.nodes[id]; ok {
			all = append(all, msg.GetUncommittedEvents()...)
		}
	}
	return all
}

// MarkEventsAsCommitted clears all uncommitted events
func (f *Forest) MarkEventsAsCommitted() {
	f.events = []events.DomainEvent{}
	for _, msg := range f.nodes {
		msg.MarkEventsAsCommitted()
	}
}

func (f *Forest) addEvent(event events.DomainEvent) {
	f.events = append(f.events, event)
}

func (f *Forest) touch() {
	f.updatedAt = time.Now()
	f.version++
}
