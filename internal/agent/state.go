package agent

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/BookAgent/internal/classifier"
	"github.com/wwwzy/BookAgent/internal/scheduling"
)

// Flow 为当前进行中的任务
type Flow uint8

const (
	FlowIdle Flow = iota
	FlowBook
	FlowCancel
	FlowReschedule
)

func (f Flow) String() string {
	switch f {
	case FlowBook:
		return "BOOK"
	case FlowCancel:
		return "CANCEL"
	case FlowReschedule:
		return "RESCHEDULE"
	default:
		return "IDLE"
	}
}

func ParseFlow(s string) (Flow, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IDLE":
		return FlowIdle, nil
	case "BOOK":
		return FlowBook, nil
	case "CANCEL":
		return FlowCancel, nil
	case "RESCHEDULE":
		return FlowReschedule, nil
	default:
		return FlowIdle, fmt.Errorf("unknown flow %q", s)
	}
}

func (f Flow) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Flow) UnmarshalText(b []byte) error {
	v, err := ParseFlow(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// flowFromLabel 把分类结果映射为 Flow，UNKNOWN 映射为 FlowIdle
func flowFromLabel(l classifier.Label) Flow {
	switch l {
	case classifier.LabelBook:
		return FlowBook
	case classifier.LabelCancel:
		return FlowCancel
	case classifier.LabelReschedule:
		return FlowReschedule
	default:
		return FlowIdle
	}
}

// AgentState 是单个会话的全部对话状态，每轮整体读出、修改、写回。
//
// 可选字段用指针表示"是否存在"。AvailableSlots/MatchedEvents 中 nil 表示尚未获取，
// 非 nil 的空切片表示已获取但结果为空，两者在路由上含义不同，因此不能加 omitempty。
type AgentState struct {
	// 历史对话消息，只追加
	Messages []*schema.Message `json:"messages"`

	// Intent 为最近一次分类得到的意图，FlowIdle 表示无
	Intent Flow `json:"intent"`
	Flow   Flow `json:"flow"`

	UserName  *string `json:"user_name"`
	UserEmail *string `json:"user_email"`

	TimePreference     *string           `json:"time_preference"`
	AskedForPreference bool              `json:"asked_for_preference"`
	AvailableSlots     []scheduling.Slot `json:"available_slots"`
	SelectedSlot       *string           `json:"selected_slot"`

	LookupEmail      *string            `json:"lookup_email"`
	MatchedEvents    []scheduling.Event `json:"matched_events"`
	SelectedEventURI *string            `json:"selected_event_uri"`
	Confirmed        bool               `json:"confirmed"`

	// Error 为最近一次对用户可见的错误，下一轮开始时清空
	Error *string `json:"error"`
}

func NewState() *AgentState {
	return &AgentState{
		Messages: make([]*schema.Message, 0),
		Flow:     FlowIdle,
		Intent:   FlowIdle,
	}
}

// HasIdentity 姓名和邮箱都已知
func (s *AgentState) HasIdentity() bool {
	return s.UserName != nil && s.UserEmail != nil
}

// clearTask 清空任务相关字段，保留身份和历史消息
func (s *AgentState) clearTask() {
	s.TimePreference = nil
	s.AskedForPreference = false
	s.AvailableSlots = nil
	s.SelectedSlot = nil
	s.LookupEmail = nil
	s.MatchedEvents = nil
	s.SelectedEventURI = nil
	s.Confirmed = false
}

// switchFlow 切换到新的任务流程
func (s *AgentState) switchFlow(target Flow) {
	s.clearTask()
	s.Intent = target
	s.Flow = target
}

// complete 结束当前流程；SelectedSlot 作为最近一次预约结果保留
func (s *AgentState) complete() {
	s.Flow = FlowIdle
	s.Intent = FlowIdle
	s.TimePreference = nil
	s.AskedForPreference = false
	s.AvailableSlots = nil
	s.LookupEmail = nil
	s.MatchedEvents = nil
	s.SelectedEventURI = nil
	s.Confirmed = false
}

func (s *AgentState) appendUser(text string) {
	s.Messages = append(s.Messages, schema.UserMessage(text))
}

func (s *AgentState) appendAssistant(text string) {
	s.Messages = append(s.Messages, schema.AssistantMessage(text, nil))
}

// userTurns 统计用户消息条数
func (s *AgentState) userTurns() int {
	n := 0
	for _, m := range s.Messages {
		if m != nil && m.Role == schema.User {
			n++
		}
	}
	return n
}

func (s *AgentState) findEvent(uri string) (scheduling.Event, bool) {
	for _, ev := range s.MatchedEvents {
		if ev.URI == uri {
			return ev, true
		}
	}
	return scheduling.Event{}, false
}

func (s *AgentState) findSlot(start string) scheduling.Slot {
	for _, sl := range s.AvailableSlots {
		if sl.Start == start {
			return sl
		}
	}
	return scheduling.Slot{Start: start}
}

func ptr(s string) *string {
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
