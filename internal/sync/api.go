// Package sync pushes locally-pending records to the server and pulls
// paginated server changes, reconciling them against the record store.
package sync

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// PushResponse reports per-record validation rejections. A rejected record
// stays PENDING locally and is retried on later cycles; the rest of the
// batch is acknowledged normally.
type PushResponse struct {
	Rejected []RejectedRecord `json:"errors"`
}

type RejectedRecord struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"schema_error_message,omitempty"`
}

// PullResponse is one page of server changes. Token is an opaque cursor the
// client persists only after the page has been applied; More signals that
// another page should be requested immediately.
type PullResponse struct {
	Records []json.RawMessage `json:"records"`
	Token   string            `json:"process_token"`
	More    bool              `json:"more"`
}

// API is the network client the coordinator drives. HTTP details live in the
// implementation; failures are returned as-is and treated as transient.
type API interface {
	Push(ctx context.Context, resource string, records []json.RawMessage) (*PushResponse, error)
	Pull(ctx context.Context, resource string, token string, limit int) (*PullResponse, error)
}
