package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/storage"
)

// recorder persists a conversation snapshot on every state the Machine commits.
// Save failures are logged and the last one is kept for result.
type recorder struct {
	id    string
	store storage.Store
	model string
	now   func() time.Time
	log   *slog.Logger

	mu      sync.Mutex
	conv    *storage.Conversation
	lastErr error
}

func (r *recorder) observe(ctx context.Context, s discussion.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.conv == nil {
		conv, err := storage.NewConversation(r.id, s, now)
		if err != nil {
			// Nothing to record until the conversation has started.
			return
		}
		conv.Model = r.model
		r.conv = conv
	} else if err := r.conv.Snapshot(s, now); err != nil {
		return
	}

	if err := r.store.SaveConversation(context.WithoutCancel(ctx), r.conv); err != nil {
		r.lastErr = err
		r.log.WarnContext(ctx, "Conversation snapshot not saved", "status", r.conv.Status, "error", err)
		return
	}
	r.lastErr = nil
}

// result returns a copy of the latest snapshot.
func (r *recorder) result() (*storage.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conv == nil {
		return nil, r.lastErr
	}
	c := *r.conv
	return &c, r.lastErr
}
