package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/classifier"
	"github.com/wwwzy/BookAgent/internal/scheduling"
)

type SignalKind uint8

const (
	SignalContinue SignalKind = iota
	SignalSuspend
	SignalTerminate
)

func (k SignalKind) String() string {
	switch k {
	case SignalSuspend:
		return "suspend"
	case SignalTerminate:
		return "terminate"
	default:
		return "continue"
	}
}

// Signal 是节点执行后的控制信号
type Signal struct {
	Kind SignalKind
	Next NodeID
}

func continueTo(n NodeID) Signal { return Signal{Kind: SignalContinue, Next: n} }
func suspend() Signal            { return Signal{Kind: SignalSuspend} }
func terminate() Signal          { return Signal{Kind: SignalTerminate} }

// Handler 处理一个节点。Suspend/Terminate 前必须通过 Turn.say 给出回复。
type Handler func(ctx context.Context, t *Turn) (Signal, error)

// Turn 是单轮处理中在节点间传递的上下文，只在本轮内有效
type Turn struct {
	State  *AgentState
	Latest string

	Replies []string
	Path    []NodeID

	Hops       int
	Recoveries int

	// Consumed 最新用户消息已被某个解析节点使用过，后续节点不再解析它
	Consumed bool
	// Fresh 候选列表是本轮刚生成的，选择节点应先展示列表
	Fresh bool
	// Broaden 直接查询扩展窗口
	Broaden bool
	// AskEmail 用户否定了当前匹配结果，需要换一个邮箱
	AskEmail bool

	header string
	signal Signal
	err    error
}

func (t *Turn) say(text string) {
	t.Replies = append(t.Replies, text)
	t.State.appendAssistant(text)
}

// fail 记录面向用户的错误并回复
func (t *Turn) fail(text string) {
	t.State.Error = ptr(text)
	t.say(text)
}

type executor struct {
	classifier classifier.Classifier
	provider   scheduling.Provider
	settings   Settings
	logger     *zap.Logger
}

func (e *executor) handlers() map[NodeID]Handler {
	return map[NodeID]Handler{
		NodeClassifyIntent:        e.classifyIntent,
		NodeCollectIdentity:       e.collectIdentity,
		NodeCollectLookupEmail:    e.collectLookupEmail,
		NodeLookupEvents:          e.lookupEvents,
		NodeSelectEvent:           e.selectEvent,
		NodeConfirmCancel:         e.confirmCancel,
		NodeCollectTimePreference: e.collectTimePreference,
		NodeCheckAvailability:     e.checkAvailability,
		NodeSelectSlot:            e.selectSlot,
		NodeCreateBooking:         e.createBooking,
	}
}

func (e *executor) now() time.Time {
	if e.settings.Now != nil {
		return e.settings.Now()
	}
	return time.Now()
}

// countRecovery 记录一次歧义恢复，超过上限时返回 ErrRecoveryLimit。
// 现有的恢复路径在同一轮内都会以 Suspend 结束，上限只防止新增节点形成环。
func (e *executor) countRecovery(t *Turn) error {
	t.Recoveries++
	if t.Recoveries > e.settings.MaxRecoveries {
		return fmt.Errorf("%w: %d recoveries in one turn", ErrRecoveryLimit, t.Recoveries)
	}
	return nil
}

// latestEmail 从最新消息中抽取邮箱；消息已被使用时返回空串
func (e *executor) latestEmail(ctx context.Context, t *Turn) string {
	if t.Consumed || t.Latest == "" {
		return ""
	}
	id := e.classifier.ExtractIdentity(ctx, []*schema.Message{schema.UserMessage(t.Latest)})
	return id.Email
}

func (e *executor) classifyIntent(ctx context.Context, t *Turn) (Signal, error) {
	flow := flowFromLabel(e.classifier.ClassifyIntent(ctx, t.State.Messages))
	if flow == FlowIdle {
		t.State.Intent = FlowIdle
		t.say(msgCapabilities)
		return suspend(), nil
	}
	t.State.switchFlow(flow)
	return continueTo(stageNode(t.State)), nil
}

// collectIdentity 只补齐缺失字段；没有新信息时保持状态不变，重复给出同一个提问
func (e *executor) collectIdentity(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	id := e.classifier.ExtractIdentity(ctx, s.Messages)
	found := false
	if s.UserName == nil && id.Name != "" {
		s.UserName = ptr(id.Name)
		found = true
	}
	if s.UserEmail == nil && id.Email != "" {
		s.UserEmail = ptr(id.Email)
		found = true
	}
	if found {
		t.Consumed = true
	}

	switch {
	case s.HasIdentity():
		return continueTo(stageNode(s)), nil
	case s.UserName == nil && s.UserEmail == nil:
		t.say(msgAskIdentity)
	case s.UserName == nil:
		t.say(msgAskName)
	default:
		t.say(fmt.Sprintf(msgAskEmail, *s.UserName))
	}
	return suspend(), nil
}

func (e *executor) collectLookupEmail(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if email := e.latestEmail(ctx, t); email != "" {
		s.LookupEmail = ptr(email)
		t.Consumed = true
		return continueTo(NodeLookupEvents), nil
	}
	if !t.AskEmail && s.UserEmail != nil {
		s.LookupEmail = ptr(*s.UserEmail)
		return continueTo(NodeLookupEvents), nil
	}
	if t.AskEmail {
		t.say(msgAskOtherEmail)
	} else {
		t.say(msgAskLookupEmail)
	}
	return suspend(), nil
}

func (e *executor) lookupEvents(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	// 最新消息里给出了新邮箱时以它为准
	if email := e.latestEmail(ctx, t); email != "" && email != deref(s.LookupEmail) {
		s.LookupEmail = ptr(email)
	}
	t.Consumed = true
	if s.LookupEmail == nil {
		return Signal{}, invariant("lookup_events without lookup_email")
	}

	events, err := e.provider.FindBookings(ctx, *s.LookupEmail)
	if err != nil {
		e.logger.Warn("find bookings failed", zap.String("email", *s.LookupEmail), zap.Error(err))
		t.fail(msgLookupFailed)
		return suspend(), nil
	}
	if len(events) == 0 {
		s.MatchedEvents = nil
		t.fail(fmt.Sprintf(msgLookupNotFound, *s.LookupEmail))
		t.say(msgLookupHint)
		return suspend(), nil
	}
	if len(events) > e.settings.MaxOffered {
		events = events[:e.settings.MaxOffered]
	}
	s.MatchedEvents = events
	t.Fresh = true
	return continueTo(NodeSelectEvent), nil
}

func (e *executor) selectEvent(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if len(s.MatchedEvents) == 0 {
		s.MatchedEvents = nil
		return continueTo(NodeLookupEvents), nil
	}
	labels := e.eventLabels(s.MatchedEvents)
	if t.Fresh || t.Consumed {
		t.Fresh = false
		e.presentEvents(t, labels)
		return suspend(), nil
	}

	sel := e.classifier.ParseSelection(ctx, s.Messages, labels)
	switch {
	case sel.Kind == classifier.SelectionIndex && sel.Index >= 0 && sel.Index < len(s.MatchedEvents):
		ev := s.MatchedEvents[sel.Index]
		s.SelectedEventURI = ptr(ev.URI)
		if s.Flow == FlowReschedule {
			// 改期时沿用原预约的身份信息
			if s.UserName == nil && ev.InviteeName != "" {
				s.UserName = ptr(ev.InviteeName)
			}
			if s.UserEmail == nil && s.LookupEmail != nil {
				s.UserEmail = ptr(*s.LookupEmail)
			}
		}
		t.Consumed = true
		return continueTo(stageNode(s)), nil
	case sel.Kind == classifier.SelectionNegative:
		s.MatchedEvents = nil
		s.LookupEmail = nil
		t.AskEmail = true
		t.Consumed = true
		return continueTo(NodeCollectLookupEmail), nil
	default:
		s.MatchedEvents = nil
		if err := e.countRecovery(t); err != nil {
			return Signal{}, err
		}
		return continueTo(NodeLookupEvents), nil
	}
}

func (e *executor) presentEvents(t *Turn, labels []string) {
	verb := "cancel"
	if t.State.Flow == FlowReschedule {
		verb = "reschedule"
	}
	if len(labels) == 1 {
		t.say(fmt.Sprintf(msgEventSingle, labels[0], verb))
		return
	}
	t.say(fmt.Sprintf(msgEventList, deref(t.State.LookupEmail)) + "\n" +
		scheduling.FormatList(labels) + "\n\n" + fmt.Sprintf(msgEventPickOne, verb))
}

func (e *executor) confirmCancel(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if s.SelectedEventURI == nil {
		return Signal{}, invariant("confirm_cancel without selected_event_uri")
	}
	label := e.selectedEventLabel(s)
	if t.Consumed {
		t.say(fmt.Sprintf(msgConfirmCancel, label))
		return suspend(), nil
	}

	switch e.classifier.ParseConfirmation(ctx, s.Messages) {
	case classifier.ConfirmYes:
		s.Confirmed = true
		if err := e.provider.CancelBooking(ctx, *s.SelectedEventURI); err != nil {
			e.logger.Warn("cancel booking failed", zap.String("uri", *s.SelectedEventURI), zap.Error(err))
			s.Confirmed = false
			t.fail(msgCancelFailed)
			return suspend(), nil
		}
		t.say(fmt.Sprintf(msgCancelled, label))
		s.complete()
		return terminate(), nil
	case classifier.ConfirmNo:
		t.say(fmt.Sprintf(msgCancelKept, label))
		s.complete()
		return terminate(), nil
	default:
		t.say(fmt.Sprintf(msgConfirmUnclear, label))
		return suspend(), nil
	}
}

func (e *executor) collectTimePreference(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if !t.Consumed {
		if pref, ok := e.classifier.ExtractTimePreference(ctx, s.Messages); ok {
			s.TimePreference = ptr(pref)
			s.AvailableSlots = nil
			t.Consumed = true
			return continueTo(NodeCheckAvailability), nil
		}
	}

	asked := s.AskedForPreference
	s.AskedForPreference = true
	switch {
	case t.Recoveries > 0:
		t.say(msgAskTimeOther)
	case asked && !t.Consumed:
		t.say(msgAskTimeAgain)
	case s.Flow == FlowReschedule:
		t.say(msgAskRescheduleTime)
	default:
		t.say(msgAskTime)
	}
	return suspend(), nil
}

// checkAvailability 按偏好查询可用时段。
// 窄窗口筛选为空时改查扩展窗口，每次进入本节点最多查询一次扩展窗口。
func (e *executor) checkAvailability(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if s.TimePreference == nil {
		return Signal{}, invariant("check_availability without time_preference")
	}
	pref := classifier.ParseTimePreference(*s.TimePreference)
	plan := planAvailability(pref, e.now(), e.settings.Location, e.settings.BroadenDays)

	var (
		offered   []scheduling.Slot
		broadened bool
	)
	if t.Broaden {
		t.Broaden = false
		all, err := e.provider.ListAvailableSlots(ctx, plan.broad)
		if err != nil {
			return e.availabilityFailed(t, err)
		}
		offered, broadened = all, true
	} else {
		found, err := e.provider.ListAvailableSlots(ctx, plan.narrow)
		if err != nil {
			return e.availabilityFailed(t, err)
		}
		offered = plan.filter(found)
		if len(offered) == 0 {
			all := found
			if !plan.narrowIsBroad() {
				all, err = e.provider.ListAvailableSlots(ctx, plan.broad)
				if err != nil {
					return e.availabilityFailed(t, err)
				}
			}
			offered, broadened = all, true
		}
	}

	if len(offered) > e.settings.MaxOffered {
		offered = offered[:e.settings.MaxOffered]
	}
	s.AvailableSlots = make([]scheduling.Slot, len(offered))
	copy(s.AvailableSlots, offered)

	if len(offered) == 0 {
		t.say(fmt.Sprintf(msgNoAvailability, e.settings.BroadenDays))
		return suspend(), nil
	}
	if broadened {
		t.header = fmt.Sprintf(msgSlotsBroadened, e.settings.BroadenDays)
	} else {
		t.header = msgSlotsMatching
	}
	t.Fresh = true
	return continueTo(NodeSelectSlot), nil
}

func (e *executor) availabilityFailed(t *Turn, err error) (Signal, error) {
	e.logger.Warn("list available slots failed", zap.Error(err))
	t.State.AvailableSlots = nil
	t.fail(msgSlotsFailed)
	return suspend(), nil
}

func (e *executor) selectSlot(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if len(s.AvailableSlots) == 0 {
		// 上一轮没有可用时段，重新收集时间偏好
		s.AvailableSlots = nil
		s.TimePreference = nil
		return continueTo(NodeCollectTimePreference), nil
	}
	labels := e.slotLabels(s.AvailableSlots)
	if t.Fresh || t.Consumed {
		t.Fresh = false
		e.presentSlots(t, t.header, labels)
		return suspend(), nil
	}

	sel := e.classifier.ParseSelection(ctx, s.Messages, labels)
	switch {
	case sel.Kind == classifier.SelectionIndex && sel.Index >= 0 && sel.Index < len(s.AvailableSlots):
		s.SelectedSlot = ptr(s.AvailableSlots[sel.Index].Start)
		t.Consumed = true
		return continueTo(stageNode(s)), nil
	case sel.Kind == classifier.SelectionNegative:
		s.AvailableSlots = nil
		t.Broaden = true
		t.Consumed = true
		return continueTo(NodeCheckAvailability), nil
	default:
		// 无法解析时丢弃旧列表和偏好，由最新消息重新推导
		s.AvailableSlots = nil
		s.TimePreference = nil
		if err := e.countRecovery(t); err != nil {
			return Signal{}, err
		}
		return continueTo(NodeCollectTimePreference), nil
	}
}

func (e *executor) presentSlots(t *Turn, header string, labels []string) {
	if header == "" {
		header = msgSlotsMatching
	}
	t.say(header + "\n" + scheduling.FormatList(labels) + "\n\n" + msgSlotsPick)
}

func (e *executor) createBooking(ctx context.Context, t *Turn) (Signal, error) {
	s := t.State
	if s.SelectedSlot == nil {
		return Signal{}, invariant("create_booking without selected_slot")
	}
	if !s.HasIdentity() {
		return Signal{}, invariant("create_booking without identity")
	}
	if s.Flow == FlowReschedule && s.SelectedEventURI == nil {
		return Signal{}, invariant("reschedule without selected_event_uri")
	}

	slot := s.findSlot(*s.SelectedSlot)
	invitee := scheduling.Invitee{Name: *s.UserName, Email: *s.UserEmail, Timezone: e.location().String()}
	when := scheduling.FormatTime(slot.Start, e.location())

	booking, err := e.provider.CreateBooking(ctx, slot, invitee)
	if err != nil {
		e.logger.Warn("create booking failed", zap.String("slot", slot.Start), zap.Error(err))
		s.SelectedSlot = nil
		s.Error = ptr(fmt.Sprintf(msgBookingFailed, when))
		e.presentSlots(t, *s.Error, e.slotLabels(s.AvailableSlots))
		return suspend(), nil
	}
	e.logger.Info("booking created", zap.String("uri", booking.URI), zap.String("slot", slot.Start))

	if s.Flow != FlowReschedule {
		t.say(fmt.Sprintf(msgBooked, *s.UserName, when, *s.UserEmail))
		s.complete()
		return terminate(), nil
	}

	// 新预约成功后才取消旧预约
	reply := fmt.Sprintf(msgRescheduled, when)
	old := e.selectedEventLabel(s)
	s.Confirmed = true
	if err := e.provider.CancelBooking(ctx, *s.SelectedEventURI); err != nil {
		e.logger.Warn("cancel previous booking failed", zap.String("uri", *s.SelectedEventURI), zap.Error(err))
		reply += " " + fmt.Sprintf(msgOldCancelFailed, old)
	}
	t.say(reply)
	s.complete()
	return terminate(), nil
}

func (e *executor) location() *time.Location {
	if e.settings.Location == nil {
		return time.UTC
	}
	return e.settings.Location
}

func (e *executor) slotLabels(slots []scheduling.Slot) []string {
	out := make([]string, len(slots))
	for i, sl := range slots {
		out[i] = scheduling.FormatTime(sl.Start, e.location())
	}
	return out
}

func (e *executor) eventLabels(events []scheduling.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = e.eventLabel(ev)
	}
	return out
}

func (e *executor) eventLabel(ev scheduling.Event) string {
	label := scheduling.FormatTime(ev.Time, e.location())
	if ev.Summary != "" {
		label += " (" + ev.Summary + ")"
	}
	return label
}

func (e *executor) selectedEventLabel(s *AgentState) string {
	ev, ok := s.findEvent(deref(s.SelectedEventURI))
	if !ok {
		return "the selected time"
	}
	return scheduling.FormatTime(ev.Time, e.location())
}

// isInvariant 判断错误是否属于状态机缺陷
func isInvariant(err error) bool {
	return errors.Is(err, ErrInvariant) || errors.Is(err, ErrStepLimit) || errors.Is(err, ErrRecoveryLimit)
}
