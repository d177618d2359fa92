package memory

import (
	"context"
	"sync"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

type canvasRecord struct {
	blocks []*aggregates.Block
	edges  []*aggregates.CanvasEdge
}

// CanvasRepository is an in-memory ports.CanvasRepository for local
// development and tests.
type CanvasRepository struct {
	mu       sync.RWMutex
	canvases map[valueobjects.CanvasID]*canvasRecord
}

// NewCanvasRepository creates an empty in-memory repository
func NewCanvasRepository() *CanvasRepository {
	return &CanvasRepository{
		canvases: make(map[valueobjects.CanvasID]*canvasRecord),
	}
}

// LoadCanvas reconstructs the canvas from stored state; unknown canvases
// load empty
func (r *CanvasRepository) LoadCanvas(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.canvases[id]
	if !ok {
		return aggregates.NewCanvas(id)
	}
	return aggregates.ReconstructCanvas(id, rec.blocks, rec.edges)
}

// SaveCanvas persists the full canvas state
func (r *CanvasRepository) SaveCanvas(ctx context.Context, canvas *aggregates.Canvas) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.canvases[canvas.ID()] = &canvasRecord{
		blocks: canvas.Blocks(),
		edges:  canvas.Edges(),
	}
	return nil
}

var _ ports.CanvasRepository = (*CanvasRepository)(nil)
