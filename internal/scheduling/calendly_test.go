package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendly struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	lastQuery map[string]string
	lastBody  map[string]any
	canceled  []string
	slotsHits atomic.Int32
	failSlots int32
}

func newFakeCalendly(t *testing.T) *fakeCalendly {
	f := &fakeCalendly{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", f.handleMe)
	mux.HandleFunc("/event_types", f.handleEventTypes)
	mux.HandleFunc("/event_type_available_times", f.handleAvailable)
	mux.HandleFunc("/invitees", f.handleCreate)
	mux.HandleFunc("/scheduled_events", f.handleScheduled)
	mux.HandleFunc("/scheduled_events/", f.handleEventSub)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCalendly) client(t *testing.T) *Calendly {
	c, err := NewCalendly(CalendlyConfig{
		APIToken:   "token",
		BaseURL:    f.srv.URL,
		RetryDelay: time.Millisecond,
		MaxRetries: 3,
	})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC) }
	return c
}

func (f *fakeCalendly) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeCalendly) handleMe(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	writeJSON(w, map[string]any{"resource": map[string]any{
		"uri":                  f.srv.URL + "/users/U1",
		"current_organization": f.srv.URL + "/organizations/O1",
	}})
}

func (f *fakeCalendly) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"collection": []map[string]any{
		{"uri": f.srv.URL + "/event_types/E1", "name": "30 Minute Meeting", "duration": 30, "active": true},
	}})
}

func (f *fakeCalendly) handleAvailable(w http.ResponseWriter, r *http.Request) {
	n := f.slotsHits.Add(1)
	if n <= f.failSlots {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	f.recordQuery(r)
	writeJSON(w, map[string]any{"collection": []map[string]any{
		{"status": "available", "start_time": "2025-01-06T14:00:00.000000Z"},
		{"status": "unavailable", "start_time": "2025-01-06T15:00:00Z"},
		{"status": "available", "start_time": "2025-01-07T10:00:00Z"},
	}})
}

func (f *fakeCalendly) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.lastBody = body
	f.mu.Unlock()
	if body["start_time"] == "2025-01-09T10:00:00Z" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"slot taken"}`))
		return
	}
	writeJSON(w, map[string]any{"resource": map[string]any{
		"uri":   f.srv.URL + "/scheduled_events/EV9/invitees/I9",
		"event": f.srv.URL + "/scheduled_events/EV9",
	}})
}

func (f *fakeCalendly) handleScheduled(w http.ResponseWriter, r *http.Request) {
	f.recordQuery(r)
	writeJSON(w, map[string]any{"collection": []map[string]any{
		{"uri": f.srv.URL + "/scheduled_events/EV1", "name": "30 Minute Meeting", "start_time": "2025-01-08T10:00:00Z"},
		{"uri": f.srv.URL + "/scheduled_events/EV2", "name": "30 Minute Meeting", "start_time": "2025-01-09T10:00:00Z"},
	}})
}

func (f *fakeCalendly) handleEventSub(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/invitees"):
		email := "jane@x.com"
		if strings.Contains(r.URL.Path, "EV2") {
			email = "someone@else.com"
		}
		writeJSON(w, map[string]any{"collection": []map[string]any{{"name": "Jane Doe", "email": email}}})
	case strings.HasSuffix(r.URL.Path, "/cancellation") && r.Method == http.MethodPost:
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.mu.Lock()
		f.canceled = append(f.canceled, strings.TrimSuffix(r.URL.Path, "/cancellation"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":{}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCalendly) recordQuery(r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewCalendly_RequiresToken(t *testing.T) {
	_, err := NewCalendly(CalendlyConfig{})
	assert.Error(t, err)
}

func TestCalendly_ListAvailableSlots(t *testing.T) {
	f := newFakeCalendly(t)
	c := f.client(t)

	// 起点早于 now 会被钳到 now+5min，跨度超过 7 天会被截断
	w := Window{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC),
	}
	slots, err := c.ListAvailableSlots(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "2025-01-06T14:00:00Z", slots[0].Start)
	assert.Equal(t, "2025-01-06T14:30:00Z", slots[0].End)
	assert.Equal(t, "2025-01-07T10:00:00Z", slots[1].Start)

	f.mu.Lock()
	q := f.lastQuery
	f.mu.Unlock()
	assert.Equal(t, f.srv.URL+"/event_types/E1", q["event_type"])
	assert.Equal(t, "2025-01-06T08:05:00Z", q["start_time"])
	assert.Equal(t, "2025-01-13T08:05:00Z", q["end_time"])
}

func TestCalendly_ListAvailableSlotsRetriesServerErrors(t *testing.T) {
	f := newFakeCalendly(t)
	f.failSlots = 2
	c := f.client(t)

	slots, err := c.ListAvailableSlots(context.Background(), Window{
		Start: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, slots, 2)
	assert.Equal(t, int32(3), f.slotsHits.Load())
}

func TestCalendly_WindowInPastReturnsEmpty(t *testing.T) {
	f := newFakeCalendly(t)
	c := f.client(t)

	slots, err := c.ListAvailableSlots(context.Background(), Window{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Equal(t, int32(0), f.slotsHits.Load())
}

func TestCalendly_CreateBooking(t *testing.T) {
	f := newFakeCalendly(t)
	c := f.client(t)

	b, err := c.CreateBooking(context.Background(), Slot{Start: "2025-01-06T14:00:00Z"}, Invitee{Name: "Jane Doe", Email: "jane@x.com"})
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL+"/scheduled_events/EV9", b.URI)
	assert.Equal(t, "2025-01-06T14:00:00Z", b.ConfirmationTime)

	f.mu.Lock()
	body := f.lastBody
	f.mu.Unlock()
	invitee, ok := body["invitee"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Jane", invitee["first_name"])
	assert.Equal(t, "Doe", invitee["last_name"])
	assert.Equal(t, "UTC", invitee["timezone"])
}

func TestCalendly_CreateBookingClientError(t *testing.T) {
	f := newFakeCalendly(t)
	c := f.client(t)

	_, err := c.CreateBooking(context.Background(), Slot{Start: "2025-01-09T10:00:00Z"}, Invitee{Name: "Jane", Email: "jane@x.com"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "slot taken")
}

func TestCalendly_FindBookingsFiltersByInvitee(t *testing.T) {
	f := newFakeCalendly(t)
	c := f.client(t)

	events, err := c.FindBookings(context.Background(), "jane@x.com")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, f.srv.URL+"/scheduled_events/EV1", events[0].URI)
	assert.Equal(t, "Jane Doe", events[0].InviteeName)
	assert.Equal(t, "2025-01-08T10:00:00Z", events[0].Time)

	f.mu.Lock()
	q := f.lastQuery
	f.mu.Unlock()
	assert.Equal(t, "jane@x.com", q["invitee_email"])
	assert.Equal(t, "active", q["status"])
	assert.Equal(t, f.srv.URL+"/organizations/O1", q["organization"])
}

func TestCalendly_CancelBooking(t *testing.T) {
	f := newFakeCalendly(t)
	c := f.client(t)

	require.NoError(t, c.CancelBooking(context.Background(), f.srv.URL+"/scheduled_events/EV1"))
	f.mu.Lock()
	assert.Equal(t, []string{"/scheduled_events/EV1"}, f.canceled)
	f.mu.Unlock()

	err := c.CancelBooking(context.Background(), f.srv.URL+"/scheduled_events/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, c.CancelBooking(context.Background(), ""), ErrNotFound)
}
