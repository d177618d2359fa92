package ports

import (
	"context"
)

// ContextMessage is one entry of the transcript submitted to the external
// responder. Internal node IDs and timestamps never cross this boundary.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReplyOptions selects the model/provider for one reply request
type ReplyOptions struct {
	Model    string
	Provider string
}

// ReplyStream yields incremental text deltas. Recv returns io.EOF after
// the stream's explicit end marker; Close releases the connection and may
// be called at any time to stop an in-progress stream cleanly.
type ReplyStream interface {
	Recv() (string, error)
	Close() error
}

// Responder is the port for the external text-generation backend
type Responder interface {
	// Stream submits the ordered context and returns an incremental stream
	Stream(ctx context.Context, messages []ContextMessage, opts ReplyOptions) (ReplyStream, error)

	// Complete submits the ordered context and waits for the full text
	Complete(ctx context.Context, messages []ContextMessage, opts ReplyOptions) (string, error)
}
