package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"bookingdesk/backend/internal/domain"
	"bookingdesk/backend/internal/service/bookings"
	"bookingdesk/backend/internal/store"
)

const (
	APIPrefix = "/api"

	conflictMessage = "This time slot is already booked. Please choose a different time slot or date."
)

type bookingsService interface {
	Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
	Get(ctx context.Context, id int64) (domain.Booking, error)
	List(ctx context.Context) ([]domain.Booking, error)
	Update(ctx context.Context, id int64, in bookings.UpdateInput) (domain.Booking, error)
	Delete(ctx context.Context, id int64) error
}

type BookingsHandler struct {
	svc bookingsService
	log *slog.Logger
}

func NewBookingsHandler(svc bookingsService, log *slog.Logger) *BookingsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BookingsHandler{
		svc: svc,
		log: log.With(slog.String("component", "http.bookings")),
	}
}

func (h *BookingsHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET(APIPrefix+"/bookings", h.List)
	router.POST(APIPrefix+"/booking", h.Create)
	router.GET(APIPrefix+"/booking/:id", h.Get)
	router.PUT(APIPrefix+"/booking/:id", h.Update)
	router.DELETE(APIPrefix+"/booking/:id", h.Delete)
}

func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	log := h.requestLog(r, "ListBookings")

	rows, err := h.svc.List(r.Context())
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	out := make([]bookingResponse, 0, len(rows))
	for _, b := range rows {
		out = append(out, toBookingResponse(b))
	}

	log.Debug("bookings listed", slog.Int("count", len(out)))
	h.write(w, log, http.StatusOK, out)
}

func (h *BookingsHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	log := h.requestLog(r, "GetBooking")

	id, ok := h.bookingID(w, log, ps)
	if !ok {
		return
	}

	b, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, log.With(slog.Int64("booking_id", id)), err)
		return
	}
	h.write(w, log, http.StatusOK, toBookingResponse(b))
}

func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	log := h.requestLog(r, "CreateBooking")

	var in bookings.CreateInput
	if !h.decode(w, r, log, &in) {
		return
	}

	b, err := h.svc.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("booking create conflict", slog.String("date", in.Date), slog.String("time", in.Time))
		}
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"booking created",
		slog.Int64("booking_id", b.ID),
		slog.String("date", b.Date.String()),
		slog.String("time", b.Time.String()),
		slog.Time("scheduled_at", b.ScheduledAt),
	)
	h.write(w, log, http.StatusCreated, toBookingResponse(b))
}

func (h *BookingsHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	log := h.requestLog(r, "UpdateBooking")

	id, ok := h.bookingID(w, log, ps)
	if !ok {
		return
	}
	log = log.With(slog.Int64("booking_id", id))

	var in bookings.UpdateInput
	if !h.decode(w, r, log, &in) {
		return
	}

	if _, err := h.svc.Update(r.Context(), id, in); err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info("booking updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingsHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	log := h.requestLog(r, "DeleteBooking")

	id, ok := h.bookingID(w, log, ps)
	if !ok {
		return
	}
	log = log.With(slog.Int64("booking_id", id))

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info("booking deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingsHandler) requestLog(r *http.Request, handler string) *slog.Logger {
	return h.log.With(
		slog.String("handler", handler),
		slog.String("request_id", RequestIDFromContext(r.Context())),
	)
}

func (h *BookingsHandler) bookingID(w http.ResponseWriter, log *slog.Logger, ps httprouter.Params) (int64, bool) {
	raw := ps.ByName("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		log.Warn("invalid request", slog.String("reason", "invalid_id"), slog.String("id", raw))
		h.writeError(w, log, http.StatusUnprocessableEntity, "invalid booking id", map[string]any{
			"id": "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func (h *BookingsHandler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		log.Warn("invalid request", slog.String("reason", "body_too_large"))
		h.writeError(w, log, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return false
	}

	log.Warn("invalid request", slog.String("reason", "malformed_body"), slog.Any("err", err))
	h.writeError(w, log, http.StatusUnprocessableEntity, "invalid request body", map[string]any{
		"body": err.Error(),
	})
	return false
}

func (h *BookingsHandler) writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var vErr *bookings.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("booking not found")
		h.writeError(w, log, http.StatusNotFound, "Booking not found", nil)
	case errors.Is(err, store.ErrConflict):
		h.writeError(w, log, http.StatusConflict, conflictMessage, nil)
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		details := make(map[string]any, len(vErr.Fields))
		for _, f := range vErr.Fields {
			details[f.Field] = f.Message
		}
		h.writeError(w, log, http.StatusUnprocessableEntity, "invalid booking", details)
	default:
		log.Error("booking request failed", slog.Any("err", err))
		h.writeError(w, log, http.StatusInternalServerError, "internal error", nil)
	}
}

func (h *BookingsHandler) writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string, details map[string]any) {
	if err := writeErrorJSON(w, status, msg, details); err != nil {
		log.Error("failed to write error response", slog.Any("err", err))
	}
}

func (h *BookingsHandler) write(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		log.Error("failed to write response", slog.Any("err", err))
	}
}
