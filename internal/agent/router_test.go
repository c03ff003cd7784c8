package agent

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/BookAgent/internal/scheduling"
)

func TestTriggers_Detect(t *testing.T) {
	triggers := DefaultTriggers()
	tests := []struct {
		text string
		want Flow
		ok   bool
	}{
		{"actually book a new one", FlowBook, true},
		{"Can I make an appointment instead?", FlowBook, true},
		{"please cancel it", FlowCancel, true},
		{"I'd rather reschedule", FlowReschedule, true},
		{"could you move my appointment", FlowReschedule, true},
		{"cancel that and book a new one", FlowCancel, true},
		{"tuesday morning", FlowIdle, false},
		{"cancellations", FlowIdle, false},
		{"bookkeeping", FlowIdle, false},
	}
	for _, tt := range tests {
		got, ok := triggers.Detect(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestRoute_IdleClassifies(t *testing.T) {
	d := Route(NewState(), "cancel my appointment", DefaultTriggers())
	assert.Equal(t, NodeClassifyIntent, d.Node)
	assert.False(t, d.Switched)
}

func TestRoute_BookStages(t *testing.T) {
	s := NewState()
	s.Flow = FlowBook
	triggers := DefaultTriggers()

	assert.Equal(t, NodeCollectIdentity, Route(s, "hi", triggers).Node)

	s.UserName, s.UserEmail = ptr("Jane"), ptr("jane@x.com")
	assert.Equal(t, NodeCollectTimePreference, Route(s, "hi", triggers).Node)

	s.TimePreference = ptr("tuesday|morning")
	assert.Equal(t, NodeCheckAvailability, Route(s, "hi", triggers).Node)

	s.AvailableSlots = []scheduling.Slot{}
	assert.Equal(t, NodeSelectSlot, Route(s, "hi", triggers).Node, "fetched-empty is present")

	s.AvailableSlots = []scheduling.Slot{{Start: "2025-01-07T10:00:00Z"}}
	s.SelectedSlot = ptr("2025-01-07T10:00:00Z")
	assert.Equal(t, NodeCreateBooking, Route(s, "1", triggers).Node)
}

func TestRoute_CancelAndRescheduleStages(t *testing.T) {
	triggers := DefaultTriggers()
	for _, flow := range []Flow{FlowCancel, FlowReschedule} {
		s := NewState()
		s.Flow = flow
		assert.Equal(t, NodeCollectLookupEmail, Route(s, "hi", triggers).Node)

		s.LookupEmail = ptr("jane@x.com")
		assert.Equal(t, NodeLookupEvents, Route(s, "hi", triggers).Node)

		s.MatchedEvents = []scheduling.Event{{URI: "u1", Time: "2025-01-08T09:00:00Z"}}
		assert.Equal(t, NodeSelectEvent, Route(s, "hi", triggers).Node)

		s.SelectedEventURI = ptr("u1")
		if flow == FlowCancel {
			assert.Equal(t, NodeConfirmCancel, Route(s, "yes", triggers).Node)
		} else {
			assert.Equal(t, NodeCollectIdentity, Route(s, "yes", triggers).Node)
			s.UserName, s.UserEmail = ptr("Jane"), ptr("jane@x.com")
			assert.Equal(t, NodeCollectTimePreference, Route(s, "yes", triggers).Node)
		}
	}
}

// 阶段前置条件满足后，路由不会回到更早的阶段
func TestRoute_ForwardProgress(t *testing.T) {
	order := map[NodeID]int{
		NodeCollectLookupEmail:    0,
		NodeLookupEvents:          1,
		NodeSelectEvent:           2,
		NodeConfirmCancel:         3,
		NodeCollectIdentity:       3,
		NodeCollectTimePreference: 4,
		NodeCheckAvailability:     5,
		NodeSelectSlot:            6,
		NodeCreateBooking:         7,
	}
	fill := []func(s *AgentState){
		func(s *AgentState) { s.LookupEmail = ptr("jane@x.com") },
		func(s *AgentState) { s.MatchedEvents = []scheduling.Event{{URI: "u1"}} },
		func(s *AgentState) { s.SelectedEventURI = ptr("u1") },
		func(s *AgentState) { s.UserName, s.UserEmail = ptr("Jane"), ptr("jane@x.com") },
		func(s *AgentState) { s.TimePreference = ptr("any") },
		func(s *AgentState) { s.AvailableSlots = []scheduling.Slot{{Start: "2025-01-07T10:00:00Z"}} },
		func(s *AgentState) { s.SelectedSlot = ptr("2025-01-07T10:00:00Z") },
	}

	for _, flow := range []Flow{FlowBook, FlowCancel, FlowReschedule} {
		s := NewState()
		s.Flow = flow
		last := -1
		for _, f := range fill {
			f(s)
			node := stageNode(s)
			rank, ok := order[node]
			require.True(t, ok, "unexpected node %s", node)
			assert.GreaterOrEqual(t, rank, last, "flow %s went back to %s", flow, node)
			last = rank
		}
	}
}

// 中断覆盖：切换到新流程后清空旧流程的任务字段，保留身份和历史
func TestRoute_InterruptOverride(t *testing.T) {
	phrases := map[Flow]string{
		FlowBook:       "actually book a new one",
		FlowCancel:     "just cancel it",
		FlowReschedule: "can I reschedule instead",
	}
	flows := []Flow{FlowBook, FlowCancel, FlowReschedule}

	for _, from := range flows {
		for _, to := range flows {
			if from == to {
				continue
			}
			s := populatedState(from)
			d := Route(s, phrases[to], DefaultTriggers())
			require.True(t, d.Switched, "%s -> %s", from, to)
			assert.Equal(t, to, d.Switch)
			assert.Equal(t, from, s.Flow, "route must not mutate state")

			s.switchFlow(d.Switch)
			assert.Equal(t, to, s.Flow)
			assert.Equal(t, to, s.Intent)
			assert.Nil(t, s.TimePreference)
			assert.False(t, s.AskedForPreference)
			assert.Nil(t, s.AvailableSlots)
			assert.Nil(t, s.SelectedSlot)
			assert.Nil(t, s.LookupEmail)
			assert.Nil(t, s.MatchedEvents)
			assert.Nil(t, s.SelectedEventURI)
			assert.False(t, s.Confirmed)
			assert.Equal(t, "Jane", deref(s.UserName))
			assert.Equal(t, "jane@x.com", deref(s.UserEmail))
			assert.Len(t, s.Messages, 2)
			assert.Equal(t, stageNode(s), d.Node)
		}
	}
}

func TestRoute_SameFlowTriggerIsNotOverride(t *testing.T) {
	s := populatedState(FlowCancel)
	d := Route(s, "yes please cancel", DefaultTriggers())
	assert.False(t, d.Switched)
	assert.Equal(t, NodeConfirmCancel, d.Node)
}

func populatedState(flow Flow) *AgentState {
	s := NewState()
	s.Flow, s.Intent = flow, flow
	s.Messages = append(s.Messages, schema.UserMessage("hello"), schema.AssistantMessage("hi", nil))
	s.UserName, s.UserEmail = ptr("Jane"), ptr("jane@x.com")
	s.TimePreference = ptr("tuesday|morning")
	s.AskedForPreference = true
	s.AvailableSlots = []scheduling.Slot{{Start: "2025-01-07T10:00:00Z"}}
	s.LookupEmail = ptr("jane@x.com")
	s.MatchedEvents = []scheduling.Event{{URI: "u1", Time: "2025-01-08T09:00:00Z"}}
	s.SelectedEventURI = ptr("u1")
	s.Confirmed = true
	return s
}
