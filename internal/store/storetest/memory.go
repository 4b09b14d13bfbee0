// Package storetest provides an in-memory store.BookingRepository for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookingdesk/backend/internal/domain"
	"bookingdesk/backend/internal/store"
)

// MemoryRepo keeps bookings in a map. InTx holds one mutex for the whole
// transaction and discards writes when fn fails.
type MemoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]domain.Booking
	nextID int64
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		rows: map[int64]domain.Booking{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{repo: r, rows: make(map[int64]domain.Booking, len(r.rows)), nextID: r.nextID}
	for id, b := range r.rows {
		tx.rows[id] = b
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.rows = tx.rows
	r.nextID = tx.nextID
	return nil
}

// Len reports the number of committed bookings.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type memoryTx struct {
	repo   *MemoryRepo
	rows   map[int64]domain.Booking
	nextID int64
}

func (t *memoryTx) LockSlot(ctx context.Context, date domain.Date, clock domain.Clock) error {
	return ctx.Err()
}

func (t *memoryTx) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	out := make([]domain.Booking, 0, len(t.rows))
	for _, b := range t.rows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (t *memoryTx) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	b, ok := t.rows[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (t *memoryTx) FindConflict(ctx context.Context, date domain.Date, clock domain.Clock, scheduledAt time.Time, excludeID int64) (*domain.Booking, error) {
	for id, b := range t.rows {
		if id == excludeID {
			continue
		}
		if b.Date == date && b.Time == clock && b.ScheduledAt.Equal(scheduledAt) {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if t.slotTaken(b, 0) {
		return domain.Booking{}, store.ErrConflict
	}
	t.nextID++
	b.ID = t.nextID
	b.Created = t.repo.now()
	b.ScheduledAt = b.ScheduledAt.UTC()
	t.rows[b.ID] = b
	return b, nil
}

func (t *memoryTx) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	existing, ok := t.rows[b.ID]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	if t.slotTaken(b, b.ID) {
		return domain.Booking{}, store.ErrConflict
	}
	b.Created = existing.Created
	t.rows[b.ID] = b
	return b, nil
}

func (t *memoryTx) DeleteBooking(ctx context.Context, id int64) error {
	if _, ok := t.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

// slotTaken mirrors the unique index on (date, time).
func (t *memoryTx) slotTaken(b domain.Booking, excludeID int64) bool {
	for id, other := range t.rows {
		if id != excludeID && other.Date == b.Date && other.Time == b.Time {
			return true
		}
	}
	return false
}
