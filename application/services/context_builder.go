package services

import (
	"sort"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"

	"go.uber.org/zap"
)

// ExclusionPredicate marks messages that must not reach the responder.
// It is applied as the very last step of context building, after the
// chronological sort, so exclusion is enforced rather than advisory.
type ExclusionPredicate func(*entities.Message) bool

// ContextBuilder computes the exact transcript submitted to the external
// responder for a reply request. This is the product's transparency
// guarantee: what this component returns is precisely what the responder
// sees, nothing more.
type ContextBuilder struct {
	logger *zap.Logger
}

// NewContextBuilder creates a context builder
func NewContextBuilder(logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{logger: logger}
}

// Build assembles the ordered, de-duplicated context for a reply to
// targetID. The target's ancestry chain comes first (root-first), then
// each referenced tree, resolved to its root and expanded breadth-first.
// Duplicates keep their first occurrence (ancestry wins over reference
// expansion), and the merged sequence is re-sorted chronologically so the
// responder receives one coherent linear transcript rather than a
// chain-then-branch concatenation. Unresolvable references are skipped.
func (b *ContextBuilder) Build(
	forest *aggregates.Forest,
	targetID valueobjects.NodeID,
	referencedIDs []valueobjects.NodeID,
	exclude ExclusionPredicate,
) ([]ports.ContextMessage, error) {
	chain := forest.AncestorChain(targetID)
	if len(chain) == 0 {
		return nil, pkgerrors.NewNotFoundError("context target")
	}

	collected := make([]*entities.Message, 0, len(chain))
	seen := make(map[valueobjects.NodeID]bool)

	// Ancestry, root-first.
	for i := len(chain) - 1; i >= 0; i-- {
		msg := chain[i]
		if !seen[msg.ID()] {
			seen[msg.ID()] = true
			collected = append(collected, msg)
		}
	}

	// Referenced trees: resolve each target up to its root, then pull in
	// the whole tree.
	for _, refID := range referencedIDs {
		if !forest.Has(refID) {
			b.logger.Debug("skipping unresolved reference target",
				zap.String("targetID", refID.String()),
			)
			continue
		}
		root, err := forest.RootOf(refID)
		if err != nil {
			continue
		}
		for _, msg := range forest.Subtree(root.ID()) {
			if !seen[msg.ID()] {
				seen[msg.ID()] = true
				collected = append(collected, msg)
			}
		}
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].CreatedAt().Before(collected[j].CreatedAt())
	})

	// Exclusion runs last, after the sort, so nothing filtered can sneak
	// back in through a later step.
	out := make([]ports.ContextMessage, 0, len(collected))
	for _, msg := range collected {
		if exclude != nil && exclude(msg) {
			continue
		}
		out = append(out, ports.ContextMessage{
			Role:    string(msg.Role()),
			Content: msg.Content().Text(),
		})
	}
	return out, nil
}
