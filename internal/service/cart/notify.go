package cart

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type NotificationKind string

const (
	KindAdded   NotificationKind = "added"
	KindRemoved NotificationKind = "removed"
	KindCleared NotificationKind = "cleared"
	KindError   NotificationKind = "error"
)

// Notification is the short user-facing message emitted by the Store.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	LineID  string           `json:"lineId,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) {
	fields := []zap.Field{zap.String("kind", string(note.Kind)), zap.String("line_id", note.LineID)}
	if note.Kind == KindError {
		n.logger.Warn(note.Message, fields...)
		return
	}
	n.logger.Info(note.Message, fields...)
}

// Recorder keeps notifications in memory. Sessions hand them to the HTTP
// layer, which drains them into the response.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
	next  Notifier
}

// NewRecorder records and then forwards to next, which may be nil.
func NewRecorder(next Notifier) *Recorder {
	if next == nil {
		next = nopNotifier{}
	}
	return &Recorder{next: next}
}

func (r *Recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
	r.next.Notify(ctx, n)
}

// Drain returns everything recorded so far and forgets it.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notes
	r.notes = nil
	return out
}
