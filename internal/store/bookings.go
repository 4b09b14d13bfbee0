package store

import (
	"context"
	"time"

	"bookingdesk/backend/internal/domain"
)

// BookingTx is the booking store bound to one open transaction.
type BookingTx interface {
	ListBookings(ctx context.Context) ([]domain.Booking, error)
	GetBooking(ctx context.Context, id int64) (domain.Booking, error)
	// FindConflict returns a booking occupying the slot, ignoring excludeID
	// when it is non-zero. A nil booking means the slot is free.
	FindConflict(ctx context.Context, date domain.Date, clock domain.Clock, scheduledAt time.Time, excludeID int64) (*domain.Booking, error)
	InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	DeleteBooking(ctx context.Context, id int64) error

	// LockSlot serialises writers on the same slot until the transaction ends.
	LockSlot(ctx context.Context, date domain.Date, clock domain.Clock) error
}

type BookingRepository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
}
