package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"bookingdesk/backend/internal/domain"
	"bookingdesk/backend/internal/store"
)

const (
	uniqueViolation    = "23505"
	slotConstraintName = "bookings_slot_key"
)

// mutableColumns are rewritten by UpdateBooking; id and created never change.
var mutableColumns = []string{
	"name",
	"email",
	"phone",
	"service",
	"notes",
	"date",
	"time",
	"status",
	"scheduled_at",
}

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

// InTx runs fn in one transaction. It commits when fn returns nil and rolls
// back on error or panic; the connection is released either way.
func (r *BookingRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, bookingTx{tx: tx})
	})
}

func (r bookingTx) LockSlot(ctx context.Context, date domain.Date, clock domain.Clock) error {
	_, err := r.tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", domain.SlotKey(date, clock)).Exec(ctx)
	return err
}

func (r bookingTx) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	rows := make([]domain.Booking, 0)
	err := r.tx.NewSelect().
		Model(&rows).
		OrderExpr("scheduled_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		normalizeTimes(&rows[i])
	}
	return rows, nil
}

func (r bookingTx) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	var b domain.Booking
	err := r.tx.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, store.ErrNotFound
		}
		return domain.Booking{}, err
	}
	normalizeTimes(&b)
	return b, nil
}

func (r bookingTx) FindConflict(ctx context.Context, date domain.Date, clock domain.Clock, scheduledAt time.Time, excludeID int64) (*domain.Booking, error) {
	var b domain.Booking
	q := r.tx.NewSelect().
		Model(&b).
		Where(`"date" = ?`, date).
		Where(`"time" = ?`, clock).
		Where("scheduled_at = ?", scheduledAt.UTC()).
		Limit(1)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	normalizeTimes(&b)
	return &b, nil
}

func (r bookingTx) InsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b
	m.ID = 0

	err := r.tx.NewInsert().
		Model(&m).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, translateWriteError(err)
	}
	normalizeTimes(&m)
	return m, nil
}

func (r bookingTx) UpdateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := b
	m.ScheduledAt = m.ScheduledAt.UTC()

	res, err := r.tx.NewUpdate().
		Model(&m).
		Column(mutableColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Booking{}, translateWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, err
	}
	if affected == 0 {
		return domain.Booking{}, store.ErrNotFound
	}
	return m, nil
}

func (r bookingTx) DeleteBooking(ctx context.Context, id int64) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == slotConstraintName {
		return store.ErrConflict
	}
	return err
}

func normalizeTimes(b *domain.Booking) {
	b.Created = b.Created.UTC()
	b.ScheduledAt = b.ScheduledAt.UTC()
}
