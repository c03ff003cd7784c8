package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSlots() []Slot {
	return []Slot{
		{Start: "2025-01-06T14:00:00Z", End: "2025-01-06T14:30:00Z"},
		{Start: "2025-01-06T10:00:00Z", End: "2025-01-06T10:30:00Z"},
		{Start: "2025-01-07T15:00:00Z", End: "2025-01-07T15:30:00Z"},
	}
}

func TestMemoryProvider_ListAvailableSlots(t *testing.T) {
	p := NewMemoryProvider(testSlots()...)
	ctx := context.Background()

	w := Window{
		Start: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
	}
	got, err := p.ListAvailableSlots(ctx, w)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-01-06T10:00:00Z", got[0].Start)
	assert.Equal(t, "2025-01-06T14:00:00Z", got[1].Start)

	empty, err := p.ListAvailableSlots(ctx, Window{Start: w.End.AddDate(1, 0, 0), End: w.End.AddDate(1, 0, 1)})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMemoryProvider_BookFindCancel(t *testing.T) {
	p := NewMemoryProvider(testSlots()...)
	ctx := context.Background()
	slot := testSlots()[0]

	b, err := p.CreateBooking(ctx, slot, Invitee{Name: "Jane", Email: "jane@x.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, b.URI)
	assert.Equal(t, slot.Start, b.ConfirmationTime)

	_, err = p.CreateBooking(ctx, slot, Invitee{Name: "Bob", Email: "bob@x.com"})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	w := Window{Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	free, err := p.ListAvailableSlots(ctx, w)
	require.NoError(t, err)
	assert.Len(t, free, 2)

	events, err := p.FindBookings(ctx, "JANE@x.com")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, b.URI, events[0].URI)
	assert.Equal(t, "Jane", events[0].InviteeName)

	require.NoError(t, p.CancelBooking(ctx, b.URI))
	assert.ErrorIs(t, p.CancelBooking(ctx, b.URI), ErrNotFound)

	events, err = p.FindBookings(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.Empty(t, events)

	free, err = p.ListAvailableSlots(ctx, w)
	require.NoError(t, err)
	assert.Len(t, free, 3)
}

func TestMemoryProvider_CreateBookingRequiresEmail(t *testing.T) {
	p := NewMemoryProvider(testSlots()...)
	_, err := p.CreateBooking(context.Background(), testSlots()[0], Invitee{Name: "Jane"})
	assert.Error(t, err)
}

func TestMemoryProvider_Seed(t *testing.T) {
	p := NewMemoryProvider()
	uri := p.Seed(Slot{Start: "2025-01-10T09:00:00Z"}, Invitee{Name: "Jane", Email: "jane@x.com"})

	events, err := p.FindBookings(context.Background(), "jane@x.com")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uri, events[0].URI)
}

func TestMemoryProvider_CanceledContext(t *testing.T) {
	p := NewMemoryProvider(testSlots()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ListAvailableSlots(ctx, Window{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateSlots_SkipsWeekendsAndPast(t *testing.T) {
	// 2025-01-03 是周五
	from := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)
	slots := GenerateSlots(from, 4, []int{10, 14}, 30*time.Minute)

	var starts []string
	for _, s := range slots {
		starts = append(starts, s.Start)
	}
	assert.Equal(t, []string{
		"2025-01-03T14:00:00Z",
		"2025-01-06T10:00:00Z",
		"2025-01-06T14:00:00Z",
	}, starts)
	assert.Equal(t, "2025-01-03T14:30:00Z", slots[0].End)
}
