package bookings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bookingdesk/backend/internal/domain"
	"bookingdesk/backend/internal/events"
	"bookingdesk/backend/internal/store"
)

type Service struct {
	repo      store.BookingRepository
	validate  *validator.Validate
	loc       *time.Location
	publisher events.Publisher
	log       *slog.Logger
}

type Option func(*Service)

// WithLocation sets the business timezone used to interpret booking slots.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(repo store.BookingRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		validate:  newValidator(),
		loc:       time.UTC,
		publisher: events.Nop{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.bookings"))
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

type CreateInput struct {
	Name    string `json:"name" validate:"required,min=3"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,min=7"`
	Service string `json:"service" validate:"required,min=3"`
	Notes   string `json:"notes"`
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `json:"time" validate:"required,clock"`
	Status  string `json:"status"`
}

func (in *CreateInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Service = strings.TrimSpace(in.Service)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.Status = strings.TrimSpace(in.Status)
}

// UpdateInput carries a partial update; nil fields keep their stored value.
type UpdateInput struct {
	Name    *string `json:"name" validate:"omitnil,min=3"`
	Email   *string `json:"email" validate:"omitnil,email"`
	Phone   *string `json:"phone" validate:"omitnil,min=7"`
	Service *string `json:"service" validate:"omitnil,min=3"`
	Notes   *string `json:"notes"`
	Date    *string `json:"date" validate:"omitnil,datetime=2006-01-02"`
	Time    *string `json:"time" validate:"omitnil,clock"`
	Status  *string `json:"status"`
}

func (in *UpdateInput) normalize() {
	for _, p := range []*string{in.Name, in.Email, in.Phone, in.Service, in.Date, in.Time, in.Status} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Booking, error) {
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return domain.Booking{}, err
	}

	date, err := domain.ParseDate(in.Date)
	if err != nil {
		return domain.Booking{}, validationError("invalid booking", FieldError{Field: "date", Message: err.Error()})
	}
	clock, err := domain.ParseClock(in.Time)
	if err != nil {
		return domain.Booking{}, validationError("invalid booking", FieldError{Field: "time", Message: err.Error()})
	}

	b := domain.Booking{
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Service:     in.Service,
		Notes:       in.Notes,
		Date:        date,
		Time:        clock,
		Status:      optionalStatus(in.Status),
		ScheduledAt: domain.NormalizeScheduledAt(date, clock, s.loc),
	}

	var out domain.Booking
	err = s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		if err := ensureSlotFree(ctx, tx, b, 0); err != nil {
			return err
		}
		created, err := tx.InsertBooking(ctx, b)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, events.TypeBookingCreated, out)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Booking, error) {
	if err := validateID(id); err != nil {
		return domain.Booking{}, err
	}

	var out domain.Booking
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Booking, error) {
	var out []domain.Booking
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		rows, err := tx.ListBookings(ctx)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Booking{}
	}
	return out, nil
}

// Update applies the supplied fields to an existing booking. When the slot
// moves, scheduled_at is recomputed and the new slot must be free.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (domain.Booking, error) {
	if err := validateID(id); err != nil {
		return domain.Booking{}, err
	}
	in.normalize()
	if err := s.validateInput(in); err != nil {
		return domain.Booking{}, err
	}

	var (
		date  *domain.Date
		clock *domain.Clock
	)
	if in.Date != nil {
		d, err := domain.ParseDate(*in.Date)
		if err != nil {
			return domain.Booking{}, validationError("invalid booking", FieldError{Field: "date", Message: err.Error()})
		}
		date = &d
	}
	if in.Time != nil {
		c, err := domain.ParseClock(*in.Time)
		if err != nil {
			return domain.Booking{}, validationError("invalid booking", FieldError{Field: "time", Message: err.Error()})
		}
		clock = &c
	}

	var out domain.Booking
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			b.Name = *in.Name
		}
		if in.Email != nil {
			b.Email = *in.Email
		}
		if in.Phone != nil {
			b.Phone = *in.Phone
		}
		if in.Service != nil {
			b.Service = *in.Service
		}
		if in.Notes != nil {
			b.Notes = *in.Notes
		}
		if in.Status != nil {
			b.Status = optionalStatus(*in.Status)
		}

		moved := false
		if date != nil && *date != b.Date {
			b.Date = *date
			moved = true
		}
		if clock != nil && *clock != b.Time {
			b.Time = *clock
			moved = true
		}
		if moved {
			b.ScheduledAt = domain.NormalizeScheduledAt(b.Date, b.Time, s.loc)
			if err := ensureSlotFree(ctx, tx, b, b.ID); err != nil {
				return err
			}
		}

		updated, err := tx.UpdateBooking(ctx, b)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, events.TypeBookingUpdated, out)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := validateID(id); err != nil {
		return err
	}

	var deleted domain.Booking
	err := s.repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteBooking(ctx, id); err != nil {
			return err
		}
		deleted = b
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.TypeBookingDeleted, deleted)
	return nil
}

// ensureSlotFree locks the booking's slot for the rest of the transaction
// and fails with store.ErrConflict when another booking already holds it.
func ensureSlotFree(ctx context.Context, tx store.BookingTx, b domain.Booking, excludeID int64) error {
	if err := tx.LockSlot(ctx, b.Date, b.Time); err != nil {
		return err
	}
	existing, err := tx.FindConflict(ctx, b.Date, b.Time, b.ScheduledAt, excludeID)
	if err != nil {
		return err
	}
	if existing != nil {
		return store.ErrConflict
	}
	return nil
}

// publish runs after commit; a failed publish never fails the request.
func (s *Service) publish(ctx context.Context, t events.Type, b domain.Booking) {
	if err := s.publisher.Publish(ctx, events.New(t, b)); err != nil {
		s.log.Warn("booking event publish failed",
			slog.Any("err", err),
			slog.String("event_type", string(t)),
			slog.Int64("booking_id", b.ID),
		)
	}
}

func optionalStatus(status string) *string {
	if status == "" {
		return nil
	}
	return &status
}
