// Package audit records order lifecycle events outside the transactional
// store. Entries are best-effort: a failed write is logged, never surfaced to
// the caller whose operation already succeeded.
package audit

import (
	"context"
	"sync"
	"time"
)

const (
	ActionOrderPlaced        = "order_placed"
	ActionOrderStatusChanged = "order_status_changed"
)

// Entry is one audit log document.
type Entry struct {
	Action    string                 `bson:"action" json:"action"`
	EntityID  string                 `bson:"entity_id" json:"entityId"`
	ActorID   string                 `bson:"actor_id,omitempty" json:"actorId,omitempty"`
	Data      map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"createdAt"`
}

// Recorder stores entries and reads back one entity's trail, newest first.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	History(ctx context.Context, entityID string, limit int64) ([]Entry, error)
}

type nopRecorder struct{}

// Nop discards every entry.
func Nop() Recorder {
	return nopRecorder{}
}

func (nopRecorder) Record(context.Context, Entry) error { return nil }

func (nopRecorder) History(context.Context, string, int64) ([]Entry, error) { return []Entry{}, nil }

// Memory keeps entries in process; used when no Mongo URI is configured and
// by tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) History(_ context.Context, entityID string, limit int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		if m.entries[i].EntityID == entityID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}
