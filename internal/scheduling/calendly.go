package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// errClientStatus 标记 4xx 响应，不参与重试
var errClientStatus = errors.New("calendly: client error")

type CalendlyConfig struct {
	APIToken     string        `mapstructure:"api_token"`
	BaseURL      string        `mapstructure:"base_url"`
	EventTypeURI string        `mapstructure:"event_type_uri"`
	Timezone     string        `mapstructure:"timezone"`
	SlotDuration time.Duration `mapstructure:"slot_duration"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	// BreakerThreshold 连续失败多少次后熔断
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

func (c CalendlyConfig) withDefaults() CalendlyConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.calendly.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.SlotDuration <= 0 {
		c.SlotDuration = 30 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Calendly 通过 Calendly v2 REST API 实现 Provider。
// 只读请求走重试 + 熔断，写请求只走熔断，避免重复下单。
type Calendly struct {
	cfg     CalendlyConfig
	client  *http.Client
	breaker circuitbreaker.CircuitBreaker[[]byte]
	retrier retry.Retry[[]byte]
	now     func() time.Time

	mu           sync.Mutex
	eventTypeURI string
	orgURI       string
}

func NewCalendly(cfg CalendlyConfig) (*Calendly, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("calendly api token is required")
	}
	cfg = cfg.withDefaults()
	threshold := cfg.BreakerThreshold

	return &Calendly{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New[[]byte](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold > 0
			},
		}),
		retrier: retry.New[[]byte](retry.Config{
			MaxAttempts:        cfg.MaxRetries,
			InitialDelay:       cfg.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{errClientStatus},
		}),
		eventTypeURI: cfg.EventTypeURI,
		now:          time.Now,
	}, nil
}

type calendlyUser struct {
	Resource struct {
		URI                 string `json:"uri"`
		CurrentOrganization string `json:"current_organization"`
	} `json:"resource"`
}

type calendlyCollection[T any] struct {
	Collection []T `json:"collection"`
}

type calendlyEventType struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	Active   bool   `json:"active"`
}

type calendlyAvailableTime struct {
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
}

type calendlyScheduledEvent struct {
	URI       string `json:"uri"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type calendlyInvitee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (c *Calendly) ListAvailableSlots(ctx context.Context, w Window) ([]Slot, error) {
	eventType, err := c.resolveEventType(ctx)
	if err != nil {
		return nil, err
	}

	// Calendly 要求开始时间在未来，且查询跨度不超过 7 天
	start := w.Start.UTC()
	earliest := c.now().UTC().Add(5 * time.Minute)
	if start.Before(earliest) {
		start = earliest
	}
	end := w.End.UTC()
	if end.Sub(start) > 7*24*time.Hour {
		end = start.Add(7 * 24 * time.Hour)
	}
	if !end.After(start) {
		return []Slot{}, nil
	}

	q := url.Values{}
	q.Set("event_type", eventType)
	q.Set("start_time", start.Format(time.RFC3339))
	q.Set("end_time", end.Format(time.RFC3339))

	var resp calendlyCollection[calendlyAvailableTime]
	if err := c.getJSON(ctx, "list available times", "/event_type_available_times?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]Slot, 0, len(resp.Collection))
	for _, at := range resp.Collection {
		if at.Status != "" && at.Status != "available" {
			continue
		}
		t, err := time.Parse(time.RFC3339, at.StartTime)
		if err != nil {
			continue
		}
		out = append(out, Slot{
			Start: t.UTC().Format(time.RFC3339),
			End:   t.Add(c.cfg.SlotDuration).UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (c *Calendly) CreateBooking(ctx context.Context, slot Slot, invitee Invitee) (Booking, error) {
	eventType, err := c.resolveEventType(ctx)
	if err != nil {
		return Booking{}, err
	}

	first, last := splitName(invitee.Name)
	tz := invitee.Timezone
	if tz == "" {
		tz = c.cfg.Timezone
	}
	payload := map[string]any{
		"event_type": eventType,
		"start_time": slot.Start,
		"invitee": map[string]any{
			"name":       invitee.Name,
			"first_name": first,
			"last_name":  last,
			"email":      invitee.Email,
			"timezone":   tz,
		},
	}

	var resp struct {
		Resource struct {
			URI   string `json:"uri"`
			Event string `json:"event"`
		} `json:"resource"`
	}
	if err := c.postJSON(ctx, "create booking", c.cfg.BaseURL+"/invitees", payload, &resp); err != nil {
		return Booking{}, err
	}

	uri := resp.Resource.Event
	if uri == "" {
		uri = resp.Resource.URI
	}
	return Booking{URI: uri, ConfirmationTime: slot.Start}, nil
}

func (c *Calendly) FindBookings(ctx context.Context, email string) ([]Event, error) {
	org, err := c.resolveOrganization(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("organization", org)
	q.Set("status", "active")
	q.Set("count", "100")
	q.Set("invitee_email", email)
	q.Set("min_start_time", c.now().UTC().Format(time.RFC3339))
	q.Set("sort", "start_time:asc")

	var resp calendlyCollection[calendlyScheduledEvent]
	if err := c.getJSON(ctx, "list scheduled events", "/scheduled_events?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(resp.Collection))
	for _, ev := range resp.Collection {
		name, matched, err := c.inviteeFor(ctx, ev.URI, email)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		out = append(out, Event{URI: ev.URI, Time: ev.StartTime, Summary: ev.Name, InviteeName: name})
	}
	return out, nil
}

func (c *Calendly) CancelBooking(ctx context.Context, uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("cancel booking: %w", ErrNotFound)
	}
	payload := map[string]string{"reason": "Canceled by user request"}
	return c.postJSON(ctx, "cancel booking", strings.TrimRight(uri, "/")+"/cancellation", payload, nil)
}

func (c *Calendly) inviteeFor(ctx context.Context, eventURI, email string) (string, bool, error) {
	var resp calendlyCollection[calendlyInvitee]
	if err := c.getJSON(ctx, "list invitees", strings.TrimPrefix(eventURI, c.cfg.BaseURL)+"/invitees", &resp); err != nil {
		return "", false, err
	}
	for _, inv := range resp.Collection {
		if strings.EqualFold(inv.Email, email) {
			return inv.Name, true, nil
		}
	}
	return "", false, nil
}

func (c *Calendly) resolveEventType(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.eventTypeURI
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var user calendlyUser
	if err := c.getJSON(ctx, "get current user", "/users/me", &user); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("user", user.Resource.URI)
	q.Set("active", "true")

	var resp calendlyCollection[calendlyEventType]
	if err := c.getJSON(ctx, "list event types", "/event_types?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	if len(resp.Collection) == 0 {
		return "", &APIError{Operation: "list event types", Message: "no event types configured", Err: ErrNotFound}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventTypeURI = resp.Collection[0].URI
	if c.orgURI == "" {
		c.orgURI = user.Resource.CurrentOrganization
	}
	return c.eventTypeURI, nil
}

func (c *Calendly) resolveOrganization(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.orgURI
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var user calendlyUser
	if err := c.getJSON(ctx, "get current user", "/users/me", &user); err != nil {
		return "", err
	}
	if user.Resource.CurrentOrganization == "" {
		return "", &APIError{Operation: "get current user", Message: "no organization", Err: ErrNotFound}
	}
	c.mu.Lock()
	c.orgURI = user.Resource.CurrentOrganization
	c.mu.Unlock()
	return user.Resource.CurrentOrganization, nil
}

func (c *Calendly) getJSON(ctx context.Context, op, path string, out any) error {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.cfg.BaseURL + path
	}
	body, err := c.breaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		return c.retrier.Do(ctx, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, op, http.MethodGet, target, nil)
		})
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Operation: op, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Calendly) postJSON(ctx context.Context, op, target string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", op, err)
	}
	body, err := c.breaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, op, http.MethodPost, target, raw)
	})
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Operation: op, Message: "decode response", Err: err}
	}
	return nil
}

func (c *Calendly) do(ctx context.Context, op, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &APIError{Operation: op, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &APIError{Operation: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &APIError{Operation: op, Status: resp.StatusCode, Message: "read body", Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &APIError{Operation: op, Status: resp.StatusCode, Message: truncate(string(body), 256), Err: errors.Join(errClientStatus, ErrNotFound)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &APIError{Operation: op, Status: resp.StatusCode, Message: truncate(string(body), 256), Err: errClientStatus}
	default:
		return nil, &APIError{Operation: op, Status: resp.StatusCode, Message: truncate(string(body), 256)}
	}
}

func splitName(name string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	if len(parts) == 0 || parts[0] == "" {
		return name, ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
