package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound 表示预约或资源不存在
	ErrNotFound = errors.New("scheduling: not found")
	// ErrSlotUnavailable 表示时段已被占用或不在可预约范围内
	ErrSlotUnavailable = errors.New("scheduling: slot unavailable")
)

// Provider 是第三方排期服务的抽象。
// 所有方法都是同步请求/响应，超时由实现自己负责并以 error 返回。
type Provider interface {
	ListAvailableSlots(ctx context.Context, w Window) ([]Slot, error)
	CreateBooking(ctx context.Context, slot Slot, invitee Invitee) (Booking, error)
	FindBookings(ctx context.Context, email string) ([]Event, error)
	CancelBooking(ctx context.Context, uri string) error
}

// Slot 为一个可预约时段，Start/End 均为 RFC3339 (UTC)
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func (s Slot) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, s.Start)
}

// Window 为查询可用时段的时间窗口 [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

type Invitee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone,omitempty"`
}

// Booking 是创建预约成功后的回执
type Booking struct {
	URI              string `json:"uri"`
	ConfirmationTime string `json:"confirmation_time"`
}

// Event 是按邮箱查到的已有预约
type Event struct {
	URI         string `json:"uri"`
	Time        string `json:"time"`
	Summary     string `json:"summary,omitempty"`
	InviteeName string `json:"invitee_name,omitempty"`
}

// APIError 描述一次失败的远端调用
type APIError struct {
	Operation string
	Status    int
	Message   string
	Err       error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
