package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

const DefaultStatus = "pending"

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Name        string    `bun:"name,notnull"`
	Email       string    `bun:"email,notnull"`
	Phone       string    `bun:"phone,notnull"`
	Service     string    `bun:"service,notnull"`
	Notes       string    `bun:"notes,notnull"`
	Date        Date      `bun:"date,type:date,notnull"`
	Time        Clock     `bun:"time,type:time,notnull"`
	Status      *string   `bun:"status"`
	Created     time.Time `bun:"created,notnull"`
	ScheduledAt time.Time `bun:"scheduled_at,notnull"`
}

// StatusOrDefault reports the stored status, or DefaultStatus when none is set.
func (b Booking) StatusOrDefault() string {
	if b.Status == nil || *b.Status == "" {
		return DefaultStatus
	}
	return *b.Status
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if b.Created.IsZero() {
			b.Created = time.Now().UTC()
		}
		b.ScheduledAt = b.ScheduledAt.UTC()
	}
	return nil
}
