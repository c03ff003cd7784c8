package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/logging"
	"github.com/wwwzy/BookAgent/internal/storage"
	"github.com/wwwzy/BookAgent/internal/trace"
)

const (
	auditTruncateLimit = 2048
)

// AuditedProvider 在每次 Provider 调用前后写审计记录
type AuditedProvider struct {
	impl   Provider
	store  *storage.Storage
	logger *zap.Logger
}

// WithAudit 将 Provider 包装为带审计功能的实现；store 为 nil 时原样返回
func WithAudit(p Provider, store *storage.Storage, logger *zap.Logger) Provider {
	if store == nil {
		return p
	}
	return &AuditedProvider{impl: p, store: store, logger: logging.OrNop(logger)}
}

func (a *AuditedProvider) ListAvailableSlots(ctx context.Context, w Window) ([]Slot, error) {
	params := map[string]string{
		"start": w.Start.UTC().Format(time.RFC3339),
		"end":   w.End.UTC().Format(time.RFC3339),
	}
	var out []Slot
	err := a.run(ctx, "scheduling.list_available_slots", params, func() (any, error) {
		var err error
		out, err = a.impl.ListAvailableSlots(ctx, w)
		return out, err
	})
	return out, err
}

func (a *AuditedProvider) CreateBooking(ctx context.Context, slot Slot, invitee Invitee) (Booking, error) {
	params := map[string]any{"slot": slot, "invitee": invitee}
	var out Booking
	err := a.run(ctx, "scheduling.create_booking", params, func() (any, error) {
		var err error
		out, err = a.impl.CreateBooking(ctx, slot, invitee)
		return out, err
	})
	return out, err
}

func (a *AuditedProvider) FindBookings(ctx context.Context, email string) ([]Event, error) {
	params := map[string]string{"email": email}
	var out []Event
	err := a.run(ctx, "scheduling.find_bookings", params, func() (any, error) {
		var err error
		out, err = a.impl.FindBookings(ctx, email)
		return out, err
	})
	return out, err
}

func (a *AuditedProvider) CancelBooking(ctx context.Context, uri string) error {
	params := map[string]string{"uri": uri}
	return a.run(ctx, "scheduling.cancel_booking", params, func() (any, error) {
		return nil, a.impl.CancelBooking(ctx, uri)
	})
}

func (a *AuditedProvider) run(ctx context.Context, action string, params any, call func() (any, error)) error {
	record := &storage.AuditRecord{
		TraceID:        trace.GetTraceID(ctx),
		ConversationID: trace.GetConversationID(ctx),
		Action:         action,
		ParamsJSON:     truncate(marshal(params), auditTruncateLimit),
		Status:         "running",
		StartedAt:      time.Now().UTC(),
	}

	// 审计写入失败只记日志，不阻断调用
	if err := a.store.InsertAuditRecord(ctx, record); err != nil {
		a.logger.Warn("insert audit record failed", zap.String("action", action), zap.Error(err))
	}

	result, callErr := call()

	finishedAt := time.Now().UTC()
	status := "success"
	var errMsg *string
	var resultJSON *string
	if callErr != nil {
		status = "failed"
		e := truncate(callErr.Error(), auditTruncateLimit)
		errMsg = &e
	} else if result != nil {
		r := truncate(marshal(result), auditTruncateLimit)
		resultJSON = &r
	}

	// 只有在 Insert 成功且有了 ID 后，才能 Update
	if record.ID != 0 {
		update := storage.AuditUpdate{
			Status:       &status,
			ResultJSON:   resultJSON,
			ErrorMessage: errMsg,
			FinishedAt:   &finishedAt,
		}
		// 调用方 ctx 可能已取消，审计更新仍要落库
		if err := a.store.UpdateAuditRecord(context.WithoutCancel(ctx), record.ID, update); err != nil {
			a.logger.Warn("update audit record failed", zap.String("action", action), zap.Error(err))
		}
	}

	return callErr
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
