package booking

import (
	"context"
	"fmt"
	"time"

	"basket-booking/internal/cache"
	"basket-booking/internal/logging"
	"basket-booking/internal/models"
)

// Store is the typed spreadsheet access the booking logic needs.
// *sheets.Store implements it.
type Store interface {
	ListSessions(ctx context.Context) ([]models.Session, error)
	ListRegistrations(ctx context.Context, list models.List) ([]models.Registration, error)
	AppendRegistration(ctx context.Context, list models.List, r models.Registration) error
	UpsertSession(ctx context.Context, s models.Session) (bool, error)
	DeleteSession(ctx context.Context, date, time string) (bool, error)

	ListFamilies(ctx context.Context) ([]models.Family, error)
	ListChildren(ctx context.Context) ([]models.Child, error)
	UpsertFamily(ctx context.Context, f models.Family) error
	UpsertChild(ctx context.Context, c models.Child) error
}

// Snapshot is the normalized content of the sessions, confirmed and
// waitlist tabs at LoadedAt. It is never modified after loading.
type Snapshot struct {
	Sessions  []models.Session
	Confirmed []models.Registration
	Waitlist  []models.Registration
	LoadedAt  time.Time
}

const snapshotKey = "booking"

// Loader serves snapshots from a cache owned by the caller.
type Loader struct {
	store Store
	cache *cache.Cache[*Snapshot]
	now   func() time.Time
}

func NewLoader(store Store, c *cache.Cache[*Snapshot]) *Loader {
	return &Loader{store: store, cache: c, now: time.Now}
}

// Snapshot returns the cached snapshot, loading it when the TTL has passed
// or after Invalidate.
func (l *Loader) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap, _, err := l.cache.Get(ctx, snapshotKey, l.load)
	return snap, err
}

// Invalidate must follow every write to the sessions or registration tabs.
func (l *Loader) Invalidate() {
	l.cache.Invalidate(snapshotKey)
}

func (l *Loader) load(ctx context.Context) (*Snapshot, error) {
	sessions, err := l.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	confirmed, err := l.store.ListRegistrations(ctx, models.ListConfirmed)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	waitlist, err := l.store.ListRegistrations(ctx, models.ListWaitlist)
	if err != nil {
		return nil, fmt.Errorf("load waitlist: %w", err)
	}
	snap := &Snapshot{
		Sessions:  sessions,
		Confirmed: confirmed,
		Waitlist:  waitlist,
		LoadedAt:  l.now(),
	}
	logging.FromContext(ctx).Debug("snapshot loaded",
		"sessions", len(sessions), "confirmed", len(confirmed), "waitlist", len(waitlist))
	return snap, nil
}
