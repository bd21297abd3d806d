// Package clipcache stores recorded reply clips keyed by message id.
//
// The cache is the sole replay predicate: a message can be replayed from
// cache iff Get returns a clip for its id. A failing or unavailable backend
// degrades replay to unavailable; it is never fatal to a session.
//
// The package includes a BadgerDB-backed implementation for persistent use
// and an in-memory implementation for testing and ephemeral sessions.
package clipcache

import (
	"context"
	"errors"

	"github.com/lingopod/lingopod/pkg/jsontime"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no clip exists for a message id.
	ErrNotFound = errors.New("clipcache: not found")
)

// Meta describes a stored clip's audio payload.
type Meta struct {
	MIMEType   string `msgpack:"mime_type" json:"mime_type"`
	SampleRate int    `msgpack:"sample_rate" json:"sample_rate"`
	Channels   int    `msgpack:"channels" json:"channels"`
	DurationMs int64  `msgpack:"duration_ms" json:"duration_ms"`
	ResponseID string `msgpack:"response_id" json:"response_id"`
}

// Clip is one recorded reply, written once per completed recording.
type Clip struct {
	ID        string
	Data      []byte
	ByteSize  int64
	CreatedAt jsontime.Milli
	Meta      Meta
}

// Store is the interface for a clip cache over a single keyspace.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the clip for a message id.
	// Returns ErrNotFound if no clip has been stored for the id.
	Get(ctx context.Context, id string) (*Clip, error)

	// Put stores a clip for a message id. Overwrites any existing clip.
	Put(ctx context.Context, id string, data []byte, meta Meta) error

	// Delete removes a clip. No error if the id does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
