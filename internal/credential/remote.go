package credential

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/observability"
)

// RemoteSelector asks a connected client for a key. OpenSelectKey only raises
// the request; the key arrives later through Select.
type RemoteSelector struct {
	store  *Store
	events domain.EventPublisher
	now    func() time.Time

	mu      sync.Mutex
	pending bool
}

func NewRemoteSelector(store *Store, events domain.EventPublisher) *RemoteSelector {
	if events == nil {
		events = domain.DiscardEvents{}
	}
	return &RemoteSelector{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

func (r *RemoteSelector) HasSelectedKey(ctx context.Context) (bool, error) {
	return r.store.HasSelectedKey(ctx)
}

// OpenSelectKey marks a selection as pending and notifies clients. It returns
// immediately and the caller carries on as if a key had been chosen.
func (r *RemoteSelector) OpenSelectKey(ctx context.Context) error {
	r.mu.Lock()
	r.pending = true
	r.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("credential selection requested")
	r.events.Publish(domain.Event{
		Type: domain.EventCredentialRequired,
		At:   r.now(),
	})
	return nil
}

// Select stores the key supplied by the client and clears the pending flag.
func (r *RemoteSelector) Select(key string) error {
	if err := r.store.Set(key); err != nil {
		return err
	}
	r.mu.Lock()
	r.pending = false
	r.mu.Unlock()
	return nil
}

func (r *RemoteSelector) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}
