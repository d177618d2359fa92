package memory

import (
	"context"
	"sort"
	"sync"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
)

// storedMessage keeps the mutable message fields the repository owns.
// Entities are reconstructed fresh on every load so callers never share
// mutable state through the store.
type storedMessage struct {
	msg       *entities.Message
	content   string
	collapsed bool
}

type forestRecord struct {
	messages   map[valueobjects.NodeID]*storedMessage
	order      []valueobjects.NodeID
	references []aggregates.ReferenceEdge
	positions  map[valueobjects.NodeID]valueobjects.Position
}

// ForestRepository is an in-memory ports.ForestRepository for local
// development and tests.
type ForestRepository struct {
	mu      sync.RWMutex
	forests map[valueobjects.ConversationID]*forestRecord
}

// NewForestRepository creates an empty in-memory repository
func NewForestRepository() *ForestRepository {
	return &ForestRepository{
		forests: make(map[valueobjects.ConversationID]*forestRecord),
	}
}

func (r *ForestRepository) record(id valueobjects.ConversationID) *forestRecord {
	rec, ok := r.forests[id]
	if !ok {
		rec = &forestRecord{
			messages:  make(map[valueobjects.NodeID]*storedMessage),
			positions: make(map[valueobjects.NodeID]valueobjects.Position),
		}
		r.forests[id] = rec
	}
	return rec
}

// LoadForest reconstructs the forest from stored state. An unknown
// conversation loads as an empty forest, matching the lazy-creation
// behavior of the DynamoDB implementation.
func (r *ForestRepository) LoadForest(ctx context.Context, id valueobjects.ConversationID) (*aggregates.Forest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.forests[id]
	if !ok {
		return aggregates.NewForest(id)
	}

	messages := make([]*entities.Message, 0, len(rec.order))
	for _, nodeID := range rec.order {
		stored, ok := rec.messages[nodeID]
		if !ok {
			continue
		}
		content, err := valueobjects.NewMessageContent(stored.content)
		if err != nil {
			return nil, err
		}
		msg, err := entities.ReconstructMessage(
			stored.msg.ID(),
			stored.msg.ParentID(),
			stored.msg.Role(),
			content,
			stored.msg.CreatedAt(),
			stored.msg.UpdatedAt(),
			stored.collapsed,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt().Before(messages[j].CreatedAt())
	})

	references := make([]aggregates.ReferenceEdge, len(rec.references))
	copy(references, rec.references)
	positions := make(map[valueobjects.NodeID]valueobjects.Position, len(rec.positions))
	for nodeID, pos := range rec.positions {
		positions[nodeID] = pos
	}

	return aggregates.ReconstructForest(id, messages, references, positions)
}

// AppendMessage persists a newly inserted message
func (r *ForestRepository) AppendMessage(ctx context.Context, id valueobjects.ConversationID, msg *entities.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	if _, exists := rec.messages[msg.ID()]; !exists {
		rec.order = append(rec.order, msg.ID())
	}
	rec.messages[msg.ID()] = &storedMessage{
		msg:       msg,
		content:   msg.Content().Text(),
		collapsed: msg.IsCollapsed(),
	}
	return nil
}

// UpdateMessageContent persists the settled text of a message
func (r *ForestRepository) UpdateMessageContent(ctx context.Context, id valueobjects.ConversationID, nodeID valueobjects.NodeID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	if stored, ok := rec.messages[nodeID]; ok {
		stored.content = content
	}
	return nil
}

// SetCollapsed persists the collapsed flag of a message
func (r *ForestRepository) SetCollapsed(ctx context.Context, id valueobjects.ConversationID, nodeID valueobjects.NodeID, collapsed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	if stored, ok := rec.messages[nodeID]; ok {
		stored.collapsed = collapsed
	}
	return nil
}

// DeleteMessages removes a batch of messages with cascade
func (r *ForestRepository) DeleteMessages(ctx context.Context, id valueobjects.ConversationID, nodeIDs []valueobjects.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	removed := make(map[valueobjects.NodeID]bool, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		removed[nodeID] = true
		delete(rec.messages, nodeID)
		delete(rec.positions, nodeID)
	}

	order := rec.order[:0]
	for _, nodeID := range rec.order {
		if !removed[nodeID] {
			order = append(order, nodeID)
		}
	}
	rec.order = order

	refs := rec.references[:0]
	for _, ref := range rec.references {
		if !removed[ref.SourceID] && !removed[ref.TargetID] {
			refs = append(refs, ref)
		}
	}
	rec.references = refs
	return nil
}

// SaveReference persists a cross-tree reference edge, idempotently
func (r *ForestRepository) SaveReference(ctx context.Context, id valueobjects.ConversationID, ref aggregates.ReferenceEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	for _, existing := range rec.references {
		if existing.SourceID.Equals(ref.SourceID) && existing.TargetID.Equals(ref.TargetID) {
			return nil
		}
	}
	rec.references = append(rec.references, ref)
	return nil
}

// DeleteReference removes a cross-tree reference edge
func (r *ForestRepository) DeleteReference(ctx context.Context, id valueobjects.ConversationID, ref aggregates.ReferenceEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	refs := rec.references[:0]
	for _, existing := range rec.references {
		if existing.SourceID.Equals(ref.SourceID) && existing.TargetID.Equals(ref.TargetID) {
			continue
		}
		refs = append(refs, existing)
	}
	rec.references = refs
	return nil
}

// SavePositions persists a batch of user-arranged positions
func (r *ForestRepository) SavePositions(ctx context.Context, id valueobjects.ConversationID, positions map[valueobjects.NodeID]valueobjects.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(id)
	for nodeID, pos := range positions {
		rec.positions[nodeID] = pos
	}
	return nil
}

var _ ports.ForestRepository = (*ForestRepository)(nil)
