package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"bookingdesk/backend/internal/domain"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type bookingResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Service     string    `json:"service"`
	Notes       string    `json:"notes"`
	Time        string    `json:"time"`
	Date        string    `json:"date"`
	Status      string    `json:"status"`
	Created     time.Time `json:"created"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		Name:        b.Name,
		Email:       b.Email,
		Phone:       b.Phone,
		Service:     b.Service,
		Notes:       b.Notes,
		Time:        b.Time.String(),
		Date:        b.Date.String(),
		Status:      b.StatusOrDefault(),
		Created:     b.Created.UTC(),
		ScheduledAt: b.ScheduledAt.UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, msg string, details map[string]any) error {
	return writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
