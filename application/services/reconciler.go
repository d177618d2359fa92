package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	pkgerrors "loom-backend/pkg/errors"

	"go.uber.org/zap"
)

// Reconciler state machine states
type ReconcilerState int

const (
	StateDisconnected ReconcilerState = iota
	StateConnecting
	StateConnected
)

// Event names on the collaboration channel
const (
	EventCanvasOp     = "canvas_op"
	EventSyncRequest  = "sync_request"
	EventSyncResponse = "sync_response"
)

// Canvas operation actions
const (
	ActionAddBlock    = "add_block"
	ActionUpdateBlock = "update_block"
	ActionDeleteBlock = "delete_block"
	ActionAddEdge     = "add_edge"
	ActionDeleteEdge  = "delete_edge"
)

// CanvasOp is the wire shape of one steady-state mutation
type CanvasOp struct {
	Action   string                 `json:"action"`
	Block    *aggregates.Block      `json:"block,omitempty"`
	Edge     *aggregates.CanvasEdge `json:"edge,omitempty"`
	TargetID string                 `json:"target_id,omitempty"`
}

// syncRequestPayload asks any peer with state for a full snapshot
type syncRequestPayload struct {
	RequesterID string `json:"requester_id"`
}

// syncResponsePayload carries a peer's full node/edge sets
type syncResponsePayload struct {
	Blocks []*aggregates.Block      `json:"blocks"`
	Edges  []*aggregates.CanvasEdge `json:"edges"`
}

const (
	// syncRequestDelay lets the participant's own persisted load finish
	// before asking peers for state.
	syncRequestDelay = 500 * time.Millisecond

	// cursorFlushInterval bounds outbound presence traffic; rapid local
	// movement coalesces into the latest sample per tick.
	cursorFlushInterval = 100 * time.Millisecond
)

// Reconciler keeps one participant's view of a shared canvas converged
// with its peers. Local mutations apply optimistically and broadcast
// fire-and-forget; remote mutations apply with last-write-wins, arrival
// order being the only ordering authority. Two participants editing the
// same block concurrently converge on whichever update lands last at each
// observer — a documented trade-off, not a defect. No participant ever
// holds a lock.
type Reconciler struct {
	canvas    *aggregates.Canvas
	transport ports.Transport
	presence  ports.PresenceRecord
	logger    *zap.Logger

	mu    sync.Mutex
	state ReconcilerState

	pendingCursor *ports.CursorPosition
	stopFlush     chan struct{}
	flushOnce     sync.Once

	syncDelay     time.Duration
	flushInterval time.Duration
}

// NewReconciler creates a reconciler for one participant. The transport is
// injected so tests can substitute an in-memory fake.
func NewReconciler(canvas *aggregates.Canvas, transport ports.Transport, presence ports.PresenceRecord, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		canvas:        canvas,
		transport:     transport,
		presence:      presence,
		logger:        logger,
		state:         StateDisconnected,
		stopFlush:     make(chan struct{}),
		syncDelay:     syncRequestDelay,
		flushInterval: cursorFlushInterval,
	}
}

// State returns the current connection state
func (r *Reconciler) State() ReconcilerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Canvas returns the reconciled aggregate
func (r *Reconciler) Canvas() *aggregates.Canvas {
	return r.canvas
}

// Connect joins the channel, announces presence, and schedules the sync
// request. Absence of any peer response is a normal condition: the
// participant simply proceeds with whatever local state it already has.
func (r *Reconciler) Connect(ctx context.Context, channelID string) error {
	r.mu.Lock()
	if r.state != StateDisconnected {
		r.mu.Unlock()
		return pkgerrors.NewConflictError("reconciler already connected")
	}
	r.state = StateConnecting
	r.mu.Unlock()

	r.transport.Subscribe(EventCanvasOp, r.handleCanvasOp)
	r.transport.Subscribe(EventSyncRequest, r.handleSyncRequest)
	r.transport.Subscribe(EventSyncResponse, r.handleSyncResponse)

	if err := r.transport.Join(ctx, channelID); err != nil {
		r.mu.Lock()
		r.state = StateDisconnected
		r.mu.Unlock()
		return pkgerrors.NewExternalError("failed to join collaboration channel", err)
	}

	// Presence with a null cursor until the first movement.
	r.presence.Cursor = nil
	if err := r.transport.Track(ctx, r.presence); err != nil {
		r.logger.Warn("presence announcement failed", zap.Error(err))
	}

	r.mu.Lock()
	r.state = StateConnected
	r.mu.Unlock()

	time.AfterFunc(r.syncDelay, r.requestSync)
	go r.cursorFlushLoop(ctx)

	r.logger.Info("joined collaboration channel",
		zap.String("channelID", channelID),
		zap.String("participantID", r.transport.SelfID()),
	)
	return nil
}

// Close leaves the channel and stops background work
func (r *Reconciler) Close(ctx context.Context) error {
	r.flushOnce.Do(func() { close(r.stopFlush) })
	r.mu.Lock()
	r.state = StateDisconnected
	r.mu.Unlock()
	return r.transport.Leave(ctx)
}

// AddBlock applies a local block addition and broadcasts it
func (r *Reconciler) AddBlock(block aggregates.Block) {
	r.mu.Lock()
	applied := r.canvas.AddBlock(block)
	r.mu.Unlock()
	if applied {
		r.broadcast(CanvasOp{Action: ActionAddBlock, Block: &block})
	}
}

// UpdateBlock applies a local block update and broadcasts it
func (r *Reconciler) UpdateBlock(block aggregates.Block) {
	r.mu.Lock()
	r.canvas.UpdateBlock(block)
	r.mu.Unlock()
	r.broadcast(CanvasOp{Action: ActionUpdateBlock, Block: &block})
}

// DeleteBlock applies a local block deletion and broadcasts it
func (r *Reconciler) DeleteBlock(id string) {
	r.mu.Lock()
	applied := r.canvas.RemoveBlock(id)
	r.mu.Unlock()
	if applied {
		r.broadcast(CanvasOp{Action: ActionDeleteBlock, TargetID: id})
	}
}

// AddEdge applies a local edge addition and broadcasts it
func (r *Reconciler) AddEdge(edge aggregates.CanvasEdge) {
	r.mu.Lock()
	applied := r.canvas.AddEdge(edge)
	r.mu.Unlock()
	if applied {
		r.broadcast(CanvasOp{Action: ActionAddEdge, Edge: &edge})
	}
}

// DeleteEdge applies a local edge deletion and broadcasts it
func (r *Reconciler) DeleteEdge(id string) {
	r.mu.Lock()
	applied := r.canvas.RemoveEdge(id)
	r.mu.Unlock()
	if applied {
		r.broadcast(CanvasOp{Action: ActionDeleteEdge, TargetID: id})
	}
}

// MoveCursor records a local cursor movement. Samples coalesce: only the
// latest position is flushed on the next tick.
func (r *Reconciler) MoveCursor(pos ports.CursorPosition) {
	r.mu.Lock()
	r.pendingCursor = &pos
	r.mu.Unlock()
}

// requestSync broadcasts the sync request once connected
func (r *Reconciler) requestSync() {
	if r.State() != StateConnected {
		return
	}
	payload, err := json.Marshal(syncRequestPayload{RequesterID: r.transport.SelfID()})
	if err != nil {
		return
	}
	r.transport.Send(EventSyncRequest, payload)
}

// handleSyncRequest answers a joining peer directly (not broadcast) with a
// full snapshot, but only if this participant actually holds state.
func (r *Reconciler) handleSyncRequest(senderID string, payload []byte) {
	var req syncRequestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		r.logger.Warn("malformed sync request", zap.Error(err))
		return
	}
	if req.RequesterID == r.transport.SelfID() {
		return
	}

	r.mu.Lock()
	empty := r.canvas.IsEmpty()
	snapshot := syncResponsePayload{
		Blocks: r.canvas.Blocks(),
		Edges:  r.canvas.Edges(),
	}
	r.mu.Unlock()

	if empty {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	r.transport.SendTo(req.RequesterID, EventSyncResponse, data)
}

// handleSyncResponse merges a peer snapshot additively: entries already
// present locally are kept, so stale remote data cannot clobber an
// in-progress local edit.
func (r *Reconciler) handleSyncResponse(senderID string, payload []byte) {
	var resp syncResponsePayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		r.logger.Warn("malformed sync response", zap.Error(err))
		return
	}
	r.mu.Lock()
	added := r.canvas.MergeSnapshot(resp.Blocks, resp.Edges)
	r.mu.Unlock()
	if added > 0 {
		r.logger.Info("merged peer snapshot",
			zap.String("from", senderID),
			zap.Int("entriesAdded", added),
		)
	}
}

// handleCanvasOp applies a remote mutation with last-write-wins
func (r *Reconciler) handleCanvasOp(senderID string, payload []byte) {
	var op CanvasOp
	if err := json.Unmarshal(payload, &op); err != nil {
		r.logger.Warn("malformed canvas op", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch op.Action {
	case ActionAddBlock:
		if op.Block != nil {
			r.canvas.AddBlock(*op.Block) // idempotent on duplicate ID
		}
	case ActionUpdateBlock:
		if op.Block != nil {
			r.canvas.UpdateBlock(*op.Block) // unconditional replace
		}
	case ActionDeleteBlock:
		r.canvas.RemoveBlock(op.TargetID) // cascades to touching edges
	case ActionAddEdge:
		if op.Edge != nil {
			r.canvas.AddEdge(*op.Edge)
		}
	case ActionDeleteEdge:
		r.canvas.RemoveEdge(op.TargetID)
	default:
		r.logger.Warn("unknown canvas op action",
			zap.String("action", op.Action),
			zap.String("from", senderID),
		)
	}
}

// broadcast sends an op to all peers, fire-and-forget
func (r *Reconciler) broadcast(op CanvasOp) {
	payload, err := json.Marshal(op)
	if err != nil {
		r.logger.Error("failed to marshal canvas op", zap.Error(err))
		return
	}
	r.transport.Send(EventCanvasOp, payload)
}

// cursorFlushLoop publishes the latest pending cursor sample on a fixed
// tick; the pending sample is flushed, never dropped.
func (r *Reconciler) cursorFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopFlush:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			pending := r.pendingCursor
			r.pendingCursor = nil
			r.mu.Unlock()

			if pending == nil {
				continue
			}
			record := r.presence
			record.Cursor = pending
			if err := r.transport.Track(ctx, record); err != nil {
				r.logger.Debug("cursor flush failed", zap.Error(err))
			}
		}
	}
}
