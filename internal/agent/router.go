package agent

import (
	"strings"
	"unicode"
)

// NodeID 标识图中的一个处理节点
type NodeID string

const (
	NodeClassifyIntent        NodeID = "classify_intent"
	NodeCollectIdentity       NodeID = "collect_identity"
	NodeCollectLookupEmail    NodeID = "collect_lookup_email"
	NodeLookupEvents          NodeID = "lookup_events"
	NodeSelectEvent           NodeID = "select_event"
	NodeConfirmCancel         NodeID = "confirm_cancel"
	NodeCollectTimePreference NodeID = "collect_time_preference"
	NodeCheckAvailability     NodeID = "check_availability"
	NodeSelectSlot            NodeID = "select_slot"
	NodeCreateBooking         NodeID = "create_booking"
)

// allNodes 为全部处理节点，顺序即注册顺序
var allNodes = []NodeID{
	NodeClassifyIntent,
	NodeCollectIdentity,
	NodeCollectLookupEmail,
	NodeLookupEvents,
	NodeSelectEvent,
	NodeConfirmCancel,
	NodeCollectTimePreference,
	NodeCheckAvailability,
	NodeSelectSlot,
	NodeCreateBooking,
}

// Triggers 为各流程的中断触发短语（小写，按词边界匹配）
type Triggers map[Flow][]string

func DefaultTriggers() Triggers {
	return Triggers{
		FlowCancel:     {"cancel", "cancellation"},
		FlowReschedule: {"reschedule", "move my appointment", "change my appointment", "move the appointment", "change the appointment"},
		FlowBook:       {"book a new", "book another", "new appointment", "make an appointment", "book an appointment"},
	}
}

// triggerPriority 同时命中多个流程时的优先级
var triggerPriority = []Flow{FlowCancel, FlowReschedule, FlowBook}

// Detect 返回消息命中的最高优先级流程
func (t Triggers) Detect(text string) (Flow, bool) {
	normalized := " " + strings.Join(words(text), " ") + " "
	for _, f := range triggerPriority {
		for _, phrase := range t[f] {
			p := strings.Join(words(phrase), " ")
			if p == "" {
				continue
			}
			if strings.Contains(normalized, " "+p+" ") {
				return f, true
			}
		}
	}
	return FlowIdle, false
}

// Decision 是路由结果。Switched 为 true 时调用方需先把状态切换到 Switch 再执行 Node。
type Decision struct {
	Node     NodeID
	Switch   Flow
	Switched bool
}

// Route 根据当前状态和最新用户消息选择入口节点；纯函数，不修改 state
func Route(state *AgentState, latest string, triggers Triggers) Decision {
	if state.Flow != FlowIdle {
		if target, ok := triggers.Detect(latest); ok && target != state.Flow {
			next := *state
			next.switchFlow(target)
			return Decision{Node: stageNode(&next), Switch: target, Switched: true}
		}
	}
	if state.Flow == FlowIdle {
		return Decision{Node: NodeClassifyIntent}
	}
	return Decision{Node: stageNode(state)}
}

// stageNode 按流程的阶段表返回第一个未满足前置条件的节点
func stageNode(s *AgentState) NodeID {
	switch s.Flow {
	case FlowBook:
		return bookStage(s)
	case FlowCancel:
		if node, pending := lookupStage(s); pending {
			return node
		}
		return NodeConfirmCancel
	case FlowReschedule:
		if node, pending := lookupStage(s); pending {
			return node
		}
		return bookStage(s)
	default:
		return NodeClassifyIntent
	}
}

func bookStage(s *AgentState) NodeID {
	switch {
	case !s.HasIdentity():
		return NodeCollectIdentity
	case s.TimePreference == nil:
		return NodeCollectTimePreference
	case s.AvailableSlots == nil:
		return NodeCheckAvailability
	case s.SelectedSlot == nil:
		return NodeSelectSlot
	default:
		return NodeCreateBooking
	}
}

func lookupStage(s *AgentState) (NodeID, bool) {
	switch {
	case s.LookupEmail == nil:
		return NodeCollectLookupEmail, true
	case s.MatchedEvents == nil:
		return NodeLookupEvents, true
	case s.SelectedEventURI == nil:
		return NodeSelectEvent, true
	default:
		return "", false
	}
}

func words(s string) []string {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
