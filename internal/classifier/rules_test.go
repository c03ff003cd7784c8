package classifier

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func userMsgs(texts ...string) []*schema.Message {
	out := make([]*schema.Message, 0, len(texts))
	for _, t := range texts {
		out = append(out, schema.UserMessage(t))
	}
	return out
}

func TestRules_ClassifyIntent(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	cases := map[string]Label{
		"I want to book an appointment":      LabelBook,
		"any availability next week?":        LabelBook,
		"please cancel my appointment":       LabelCancel,
		"can I reschedule?":                  LabelReschedule,
		"I need to move my appointment":      LabelReschedule,
		"cancel, I mean reschedule":          LabelCancel,
		"hello there":                        LabelUnknown,
		"":                                   LabelUnknown,
	}
	for text, want := range cases {
		assert.Equal(t, want, r.ClassifyIntent(ctx, userMsgs(text)), text)
	}
}

func TestRules_ExtractIdentity(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	id := r.ExtractIdentity(ctx, userMsgs("book", "Jane Doe jane@x.com"))
	assert.Equal(t, Identity{Name: "Jane Doe", Email: "jane@x.com"}, id)

	id = r.ExtractIdentity(ctx, userMsgs("hi, I'm Jane Doe, my email is jane@x.com"))
	assert.Equal(t, Identity{Name: "Jane Doe", Email: "jane@x.com"}, id)

	// 只有邮箱时从本地部分推导
	id = r.ExtractIdentity(ctx, userMsgs("book", "jane@x.com"))
	assert.Equal(t, Identity{Name: "Jane", Email: "jane@x.com"}, id)

	id = r.ExtractIdentity(ctx, userMsgs("john.smith+work@corp.io"))
	assert.Equal(t, "John Smith", id.Name)

	id = r.ExtractIdentity(ctx, userMsgs("my name is Ada Lovelace", "ada@math.org"))
	assert.Equal(t, Identity{Name: "Ada Lovelace", Email: "ada@math.org"}, id)

	id = r.ExtractIdentity(ctx, userMsgs("book an appointment"))
	assert.Equal(t, Identity{}, id)

	// 意图词不会被当作姓名
	id = r.ExtractIdentity(ctx, userMsgs("book jane@x.com"))
	assert.Equal(t, "Jane", id.Name)
}

func TestRules_ExtractIdentityAfterNamePrompt(t *testing.T) {
	r := NewRules()
	msgs := []*schema.Message{
		schema.UserMessage("book"),
		schema.AssistantMessage("To complete your booking, I'll need your full name and email address.", nil),
		schema.UserMessage("Grace Hopper"),
	}
	id := r.ExtractIdentity(context.Background(), msgs)
	assert.Equal(t, "Grace Hopper", id.Name)
	assert.Empty(t, id.Email)
}

func TestRules_ParseSelection(t *testing.T) {
	r := NewRules()
	ctx := context.Background()
	offered := []string{"Wednesday, January 08 at 10:00 AM UTC", "Wednesday, January 08 at 11:00 AM UTC"}

	cases := []struct {
		text string
		want Selection
	}{
		{"1", Selection{Kind: SelectionIndex, Index: 0}},
		{"number 2 please", Selection{Kind: SelectionIndex, Index: 1}},
		{"the second one", Selection{Kind: SelectionIndex, Index: 1}},
		{"2nd", Selection{Kind: SelectionIndex, Index: 1}},
		{"last", Selection{Kind: SelectionIndex, Index: 1}},
		{"3", Selection{Kind: SelectionUnparseable}},
		{"none of these", Selection{Kind: SelectionNegative}},
		{"neither works", Selection{Kind: SelectionNegative}},
		{"change time", Selection{Kind: SelectionUnparseable}},
		{"wednesday at 10am", Selection{Kind: SelectionUnparseable}},
		{"11:00 AM", Selection{Kind: SelectionIndex, Index: 1}},
		{"", Selection{Kind: SelectionUnparseable}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, r.ParseSelection(ctx, userMsgs(c.text), offered), c.text)
	}

	single := []string{"Monday, January 06 at 02:00 PM UTC"}
	assert.Equal(t, Selection{Kind: SelectionIndex, Index: 0}, r.ParseSelection(ctx, userMsgs("yes"), single))
	assert.Equal(t, Selection{Kind: SelectionNegative}, r.ParseSelection(ctx, userMsgs("no"), single))
}

func TestRules_ParseConfirmation(t *testing.T) {
	r := NewRules()
	ctx := context.Background()

	assert.Equal(t, ConfirmYes, r.ParseConfirmation(ctx, userMsgs("yes")))
	assert.Equal(t, ConfirmYes, r.ParseConfirmation(ctx, userMsgs("Sure, go ahead")))
	assert.Equal(t, ConfirmNo, r.ParseConfirmation(ctx, userMsgs("no, keep it")))
	assert.Equal(t, ConfirmNo, r.ParseConfirmation(ctx, userMsgs("don't")))
	assert.Equal(t, ConfirmUnclear, r.ParseConfirmation(ctx, userMsgs("what time was it?")))
	assert.Equal(t, ConfirmUnclear, r.ParseConfirmation(ctx, userMsgs("yes no")))
}

func TestPickNumber(t *testing.T) {
	n, ok := pickNumber("option 3")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = pickNumber("10am")
	assert.False(t, ok)
	_, ok = pickNumber("at 10 am")
	assert.False(t, ok)
	_, ok = pickNumber("10:30")
	assert.False(t, ok)
}

func TestParseLabel(t *testing.T) {
	assert.Equal(t, LabelBook, ParseLabel(" book "))
	assert.Equal(t, LabelReschedule, ParseLabel("Reschedule"))
	assert.Equal(t, LabelUnknown, ParseLabel("FAQ"))
}
