package aggregates

import (
	"time"

	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	pkgerrors "loom-backend/pkg/errors"
)

// Block is one node on the shared planning canvas. Unlike the conversation
// forest there is no tree invariant here: blocks are a free graph and
// cycles are meaningful.
type Block struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      string                `json:"status"`
	Position    valueobjects.Position `json:"position"`
}

// CanvasEdge links two blocks on the planning canvas
type CanvasEdge struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Canvas is the aggregate for one shared planning canvas. It is mutated
// concurrently by multiple participants through the reconciler; remote
// mutations apply with last-write-wins, so every apply method here is
// written to be safe under any arrival order.
type Canvas struct {
	id        valueobjects.CanvasID
	blocks    map[string]*Block
	edges     map[string]*CanvasEdge
	updatedAt time.Time
	events    []events.DomainEvent
}

// NewCanvas creates an empty canvas
func NewCanvas(id valueobjects.CanvasID) (*Canvas, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("canvas ID required")
	}
	return &Canvas{
		id:        id,
		blocks:    make(map[string]*Block),
		edges:     make(map[string]*CanvasEdge),
		updatedAt: time.Now(),
		events:    []events.DomainEvent{},
	}, nil
}

// ReconstructCanvas rebuilds a canvas from stored data
func ReconstructCanvas(id valueobjects.CanvasID, blocks []*Block, edges []*CanvasEdge) (*Canvas, error) {
	canvas, err := NewCanvas(id)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if b != nil && b.ID != "" {
			copied := *b
			canvas.blocks[b.ID] = &copied
		}
	}
	for _, e := range edges {
		if e != nil && e.ID != "" {
			copied := *e
			canvas.edges[e.ID] = &copied
		}
	}
	return canvas, nil
}

// ID returns the canvas identifier
func (c *Canvas) ID() valueobjects.CanvasID {
	return c.id
}

// Blocks returns a copy of all blocks
func (c *Canvas) Blocks() []*Block {
	out := make([]*Block, 0, len(c.blocks))
	for _, b := range c.blocks {
		copied := *b
		out = append(out, &copied)
	}
	return out
}

// Edges returns a copy of all edges
func (c *Canvas) Edges() []*CanvasEdge {
	out := make([]*CanvasEdge, 0, len(c.edges))
	for _, e := range c.edges {
		copied := *e
		out = append(out, &copied)
	}
	return out
}

// GetBlock returns a copy of one block
func (c *Canvas) GetBlock(id string) (*Block, bool) {
	b, ok := c.blocks[id]
	if !ok {
		return nil, false
	}
	copied := *b
	return &copied, true
}

// IsEmpty reports whether the canvas holds no state worth syncing
func (c *Canvas) IsEmpty() bool {
	return len(c.blocks) == 0 && len(c.edges) == 0
}

// UpdatedAt returns when the canvas last changed
func (c *Canvas) UpdatedAt() time.Time {
	return c.updatedAt
}

// AddBlock adds a block. Re-adding an existing ID is a no-op: concurrent
// adds of the same block must converge without duplicates.
func (c *Canvas) AddBlock(block Block) bool {
	if block.ID == "" {
		return false
	}
	if _, exists := c.blocks[block.ID]; exists {
		return false
	}
	c.blocks[block.ID] = &block
	c.touch()
	c.addEvent(events.NewCanvasBlockChanged(c.id, block.ID, "add", c.updatedAt))
	return true
}

// UpdateBlock replaces a block's fields unconditionally (last write wins;
// arrival order is the only ordering authority). Updating an unknown ID
// inserts it, so an update that races ahead of its add still lands.
func (c *Canvas) UpdateBlock(block Block) bool {
	if block.ID == "" {
		return false
	}
	c.blocks[block.ID] = &block
	c.touch()
	c.addEvent(events.NewCanvasBlockChanged(c.id, block.ID, "update", c.updatedAt))
	return true
}

// RemoveBlock deletes a block and cascades to every edge touching it
func (c *Canvas) RemoveBlock(id string) bool {
	if _, exists := c.blocks[id]; !exists {
		return false
	}
	delete(c.blocks, id)
	for edgeID, edge := range c.edges {
		if edge.SourceID == id || edge.TargetID == id {
			delete(c.edges, edgeID)
		}
	}
	c.touch()
	c.addEvent(events.NewCanvasBlockChanged(c.id, id, "delete", c.updatedAt))
	return true
}

// AddEdge adds an edge; idempotent on ID
func (c *Canvas) AddEdge(edge CanvasEdge) bool {
	if edge.ID == "" {
		return false
	}
	if _, exists := c.edges[edge.ID]; exists {
		return false
	}
	c.edges[edge.ID] = &edge
	c.touch()
	c.addEvent(events.NewCanvasEdgeChanged(c.id, edge.ID, "add", c.updatedAt))
	return true
}

// RemoveEdge deletes an edge if present
func (c *Canvas) RemoveEdge(id string) bool {
	if _, exists := c.edges[id]; !exists {
		return false
	}
	delete(c.edges, id)
	c.touch()
	c.addEvent(events.NewCanvasEdgeChanged(c.id, id, "delete", c.updatedAt))
	return true
}

// MergeSnapshot folds a peer's full state into this canvas additively:
// entries already present locally are never overwritten, so a sync response
// cannot clobber an in-progress local edit with stale remote data.
func (c *Canvas) MergeSnapshot(blocks []*Block, edges []*CanvasEdge) (added int) {
	for _, b := range blocks {
		if b == nil || b.ID == "" {
			continue
		}
		if _, exists := c.blocks[b.ID]; exists {
			continue
		}
		copied := *b
		c.blocks[b.ID] = &copied
		added++
	}
	for _, e := range edges {
		if e == nil || e.ID == "" {
			continue
		}
		if _, exists := c.edges[e.ID]; exists {
			continue
		}
		copied := *e
		c.edges[e.ID] = &copied
		added++
	}
	if added > 0 {
		c.touch()
	}
	return added
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Canvas) GetUncommittedEvents() []events.DomainEvent {
	out := make([]events.DomainEvent, len(c.events))
	copy(out, c.events)
	return out
}

// MarkEventsAsCommitted clears the uncommitted events
func (c *Canvas) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}
}

func (c *Canvas) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}

func (c *Canvas) touch() {
	c.updatedAt = time.Now()
}
