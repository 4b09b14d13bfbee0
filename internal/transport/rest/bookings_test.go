package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"bookingdesk/backend/internal/domain"
	"bookingdesk/backend/internal/service/bookings"
	"bookingdesk/backend/internal/store/storetest"
)

type fakeService struct {
	createFn func(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
	getFn    func(ctx context.Context, id int64) (domain.Booking, error)
	listFn   func(ctx context.Context) ([]domain.Booking, error)
	updateFn func(ctx context.Context, id int64, in bookings.UpdateInput) (domain.Booking, error)
	deleteFn func(ctx context.Context, id int64) error
}

func (f fakeService) Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error) {
	return f.createFn(ctx, in)
}

func (f fakeService) Get(ctx context.Context, id int64) (domain.Booking, error) {
	return f.getFn(ctx, id)
}

func (f fakeService) List(ctx context.Context) ([]domain.Booking, error) {
	return f.listFn(ctx)
}

func (f fakeService) Update(ctx context.Context, id int64, in bookings.UpdateInput) (domain.Booking, error) {
	return f.updateFn(ctx, id, in)
}

func (f fakeService) Delete(ctx context.Context, id int64) error {
	return f.deleteFn(ctx, id)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	svc := bookings.NewService(storetest.NewMemoryRepo(),
		bookings.WithLocation(loc),
		bookings.WithLogger(discardLogger()),
	)
	return newRouterFor(svc)
}

func newRouterFor(svc bookingsService) http.Handler {
	log := discardLogger()
	return NewRouter(NewBookingsHandler(svc, log), NewHealthHandler(log), log, RouterOptions{
		RequestTimeout: time.Second,
		MaxBodyBytes:   1 << 16,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

const aliceJSON = `{
	"name": "Alice",
	"email": "alice@example.com",
	"phone": "5551234567",
	"service": "Haircut",
	"date": "2024-06-01",
	"time": "14:00",
	"scheduled_at": "1999-01-01T00:00:00Z"
}`

func TestCreateBooking_ReturnsNormalizedRecord(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/booking", aliceJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}

	got := decodeBody[map[string]any](t, rec)
	if got["id"].(float64) <= 0 {
		t.Fatalf("id = %v, want positive", got["id"])
	}
	if got["scheduled_at"] != "2024-06-01T18:00:00Z" {
		t.Fatalf("scheduled_at = %v", got["scheduled_at"])
	}
	if got["status"] != "pending" {
		t.Fatalf("status = %v, want pending", got["status"])
	}
	if got["time"] != "14:00:00" || got["date"] != "2024-06-01" {
		t.Fatalf("slot = %v %v", got["date"], got["time"])
	}
	if got["notes"] != "" {
		t.Fatalf("notes = %v, want empty", got["notes"])
	}
	if _, ok := got["created"].(string); !ok {
		t.Fatalf("created missing: %v", got)
	}
}

func TestCreateBooking_SameSlotConflicts(t *testing.T) {
	h := newTestServer(t)

	if rec := do(t, h, http.MethodPost, "/api/booking", aliceJSON); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/booking", aliceJSON)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", rec.Code)
	}
	body := decodeBody[errorResponse](t, rec)
	if !strings.Contains(body.Error, "already booked") {
		t.Fatalf("error = %q", body.Error)
	}

	list := decodeBody[[]bookingResponse](t, do(t, h, http.MethodGet, "/api/bookings", ""))
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
}

func TestCreateBooking_ValidationDetailsEveryField(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/booking", `{"name":"Al","email":"nope","phone":"123","service":"X","date":"06/01/2024","time":"2pm"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	body := decodeBody[errorResponse](t, rec)
	for _, field := range []string{"name", "email", "phone", "service", "date", "time"} {
		if _, ok := body.Details[field]; !ok {
			t.Fatalf("details missing %q: %v", field, body.Details)
		}
	}
}

func TestCreateBooking_MalformedBody(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/booking", `{"name":`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestCreateBooking_BodyTooLarge(t *testing.T) {
	log := discardLogger()
	svc := fakeService{createFn: func(context.Context, bookings.CreateInput) (domain.Booking, error) {
		t.Fatalf("service must not be called")
		return domain.Booking{}, nil
	}}
	h := NewRouter(NewBookingsHandler(svc, log), NewHealthHandler(log), log, RouterOptions{MaxBodyBytes: 16})

	rec := do(t, h, http.MethodPost, "/api/booking", aliceJSON)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestBookingLifecycle(t *testing.T) {
	h := newTestServer(t)

	created := decodeBody[bookingResponse](t, do(t, h, http.MethodPost, "/api/booking", aliceJSON))
	path := "/api/booking/" + itoa(created.ID)

	got := decodeBody[bookingResponse](t, do(t, h, http.MethodGet, path, ""))
	if got != created {
		t.Fatalf("get = %+v, want %+v", got, created)
	}

	rec := do(t, h, http.MethodPut, path, `{"name":"Alice Smith","status":"confirmed"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("update body = %q, want empty", rec.Body.String())
	}

	updated := decodeBody[bookingResponse](t, do(t, h, http.MethodGet, path, ""))
	if updated.Name != "Alice Smith" || updated.Status != "confirmed" {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.ID != created.ID || !updated.Created.Equal(created.Created) ||
		updated.Date != created.Date || updated.Time != created.Time ||
		!updated.ScheduledAt.Equal(created.ScheduledAt) {
		t.Fatalf("immutable fields changed: %+v vs %+v", updated, created)
	}

	if rec := do(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, path, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
	if body := decodeBody[errorResponse](t, rec); body.Error != "Booking not found" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestUpdateBooking_MoveOntoTakenSlot(t *testing.T) {
	h := newTestServer(t)

	do(t, h, http.MethodPost, "/api/booking", aliceJSON)
	other := decodeBody[bookingResponse](t, do(t, h, http.MethodPost, "/api/booking",
		strings.Replace(aliceJSON, `"14:00"`, `"15:00"`, 1)))

	rec := do(t, h, http.MethodPut, "/api/booking/"+itoa(other.ID), `{"time":"14:00"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/booking/"+itoa(other.ID), `{"time":"16:30"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	moved := decodeBody[bookingResponse](t, do(t, h, http.MethodGet, "/api/booking/"+itoa(other.ID), ""))
	if moved.ScheduledAt.Format(time.RFC3339) != "2024-06-01T20:30:00Z" {
		t.Fatalf("scheduled_at = %s", moved.ScheduledAt)
	}
}

func TestUpdateBooking_Missing(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPut, "/api/booking/42", `{"name":"Nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBookingID_Invalid(t *testing.T) {
	h := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/booking/abc"},
		{http.MethodGet, "/api/booking/0"},
		{http.MethodDelete, "/api/booking/-3"},
		{http.MethodPut, "/api/booking/1.5"},
	} {
		rec := do(t, h, tc.method, tc.path, `{}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s %s status = %d, want 422", tc.method, tc.path, rec.Code)
		}
	}
}

func TestListBookings_EmptyIsArray(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/bookings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body = %s, want []", got)
	}
}

func TestServiceFailureIsOpaque(t *testing.T) {
	svc := fakeService{listFn: func(context.Context) ([]domain.Booking, error) {
		return nil, errors.New("pq: connection refused to 10.0.0.5")
	}}
	h := newRouterFor(svc)

	rec := do(t, h, http.MethodGet, "/api/bookings", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("10.0.0.5")) {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
	if body := decodeBody[errorResponse](t, rec); body.Error != "internal error" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestServicePanicRecovered(t *testing.T) {
	svc := fakeService{getFn: func(context.Context, int64) (domain.Booking, error) {
		panic("boom")
	}}
	h := newRouterFor(svc)

	rec := do(t, h, http.MethodGet, "/api/booking/1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRequestTimeoutReachesService(t *testing.T) {
	svc := fakeService{listFn: func(ctx context.Context) ([]domain.Booking, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected request deadline")
		}
		return nil, nil
	}}
	h := newRouterFor(svc)

	if rec := do(t, h, http.MethodGet, "/api/bookings", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
