package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bookingdesk/backend/internal/domain"
)

type Type string

const (
	TypeBookingCreated Type = "booking.created"
	TypeBookingUpdated Type = "booking.updated"
	TypeBookingDeleted Type = "booking.deleted"
)

// Event is the envelope written for every committed booking change.
type Event struct {
	ID         string          `json:"event_id"`
	Type       Type            `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Booking    BookingSnapshot `json:"booking"`
}

type BookingSnapshot struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Service     string    `json:"service"`
	Notes       string    `json:"notes"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func New(t Type, b domain.Booking) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Booking: BookingSnapshot{
			ID:          b.ID,
			Name:        b.Name,
			Email:       b.Email,
			Phone:       b.Phone,
			Service:     b.Service,
			Notes:       b.Notes,
			Date:        b.Date.String(),
			Time:        b.Time.String(),
			Status:      b.StatusOrDefault(),
			ScheduledAt: b.ScheduledAt.UTC(),
		},
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
