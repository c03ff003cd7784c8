package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryProvider 是进程内的排期实现，用于本地演示和测试
type MemoryProvider struct {
	mu       sync.Mutex
	slots    map[string]Slot
	bookings map[string]*memoryBooking
	seq      int
}

type memoryBooking struct {
	uri      string
	slot     Slot
	invitee  Invitee
	canceled bool
}

func NewMemoryProvider(slots ...Slot) *MemoryProvider {
	p := &MemoryProvider{
		slots:    make(map[string]Slot, len(slots)),
		bookings: make(map[string]*memoryBooking),
	}
	for _, s := range slots {
		p.slots[s.Start] = s
	}
	return p
}

// GenerateSlots 生成从 from 开始 days 天内、工作日指定整点的时段
func GenerateSlots(from time.Time, days int, hours []int, duration time.Duration) []Slot {
	var out []Slot
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for d := 0; d < days; d++ {
		cur := day.AddDate(0, 0, d)
		if cur.Weekday() == time.Saturday || cur.Weekday() == time.Sunday {
			continue
		}
		for _, h := range hours {
			start := cur.Add(time.Duration(h) * time.Hour)
			if !start.After(from) {
				continue
			}
			out = append(out, Slot{
				Start: start.UTC().Format(time.RFC3339),
				End:   start.Add(duration).UTC().Format(time.RFC3339),
			})
		}
	}
	return out
}

// Seed 直接写入一条已存在的预约，返回其 URI
func (p *MemoryProvider) Seed(slot Slot, invitee Invitee) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bookLocked(slot, invitee).uri
}

func (p *MemoryProvider) ListAvailableSlots(ctx context.Context, w Window) ([]Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	taken := p.takenLocked()
	out := make([]Slot, 0)
	for _, s := range p.slots {
		if taken[s.Start] {
			continue
		}
		t, err := s.StartTime()
		if err != nil || !w.Contains(t) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (p *MemoryProvider) CreateBooking(ctx context.Context, slot Slot, invitee Invitee) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	if strings.TrimSpace(invitee.Email) == "" {
		return Booking{}, &APIError{Operation: "create booking", Message: "invitee email is required"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	known, ok := p.slots[slot.Start]
	if !ok || p.takenLocked()[slot.Start] {
		return Booking{}, fmt.Errorf("create booking at %s: %w", slot.Start, ErrSlotUnavailable)
	}
	b := p.bookLocked(known, invitee)
	return Booking{URI: b.uri, ConfirmationTime: known.Start}, nil
}

func (p *MemoryProvider) FindBookings(ctx context.Context, email string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Event, 0)
	for _, b := range p.bookings {
		if b.canceled || !strings.EqualFold(b.invitee.Email, email) {
			continue
		}
		out = append(out, Event{
			URI:         b.uri,
			Time:        b.slot.Start,
			Summary:     "Appointment",
			InviteeName: b.invitee.Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (p *MemoryProvider) CancelBooking(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.bookings[uri]
	if !ok || b.canceled {
		return fmt.Errorf("cancel %s: %w", uri, ErrNotFound)
	}
	b.canceled = true
	return nil
}

func (p *MemoryProvider) bookLocked(slot Slot, invitee Invitee) *memoryBooking {
	p.seq++
	uri := fmt.Sprintf("memory://scheduled_events/%04d", p.seq)
	if _, ok := p.slots[slot.Start]; !ok {
		p.slots[slot.Start] = slot
	}
	b := &memoryBooking{uri: uri, slot: slot, invitee: invitee}
	p.bookings[uri] = b
	return b
}

func (p *MemoryProvider) takenLocked() map[string]bool {
	taken := make(map[string]bool, len(p.bookings))
	for _, b := range p.bookings {
		if !b.canceled {
			taken[b.slot.Start] = true
		}
	}
	return taken
}
