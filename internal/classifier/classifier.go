package classifier

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Label 为意图分类结果
type Label string

const (
	LabelBook       Label = "BOOK"
	LabelCancel     Label = "CANCEL"
	LabelReschedule Label = "RESCHEDULE"
	LabelUnknown    Label = "UNKNOWN"
)

// ParseLabel 把任意大小写的字符串解析为 Label，未知值返回 LabelUnknown
func ParseLabel(s string) Label {
	switch Label(upper(s)) {
	case LabelBook:
		return LabelBook
	case LabelCancel:
		return LabelCancel
	case LabelReschedule:
		return LabelReschedule
	default:
		return LabelUnknown
	}
}

// Identity 为从对话中抽取的用户身份，缺失字段为空串
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type SelectionKind uint8

const (
	SelectionUnparseable SelectionKind = iota
	SelectionIndex
	SelectionNegative
)

func (k SelectionKind) String() string {
	switch k {
	case SelectionIndex:
		return "index"
	case SelectionNegative:
		return "negative"
	default:
		return "unparseable"
	}
}

// Selection 为对候选列表的选择结果；Index 从 0 开始，仅在 Kind == SelectionIndex 时有效
type Selection struct {
	Kind  SelectionKind
	Index int
}

type Confirmation uint8

const (
	ConfirmUnclear Confirmation = iota
	ConfirmYes
	ConfirmNo
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmYes:
		return "yes"
	case ConfirmNo:
		return "no"
	default:
		return "unclear"
	}
}

// Classifier 负责意图分类和实体抽取。
// 实现不应修改传入的消息；msgs 为完整对话历史，最后一条为最新用户消息。
type Classifier interface {
	ClassifyIntent(ctx context.Context, msgs []*schema.Message) Label
	ExtractIdentity(ctx context.Context, msgs []*schema.Message) Identity
	// ExtractTimePreference 只看最新用户消息；未识别到时间信息时返回 false
	ExtractTimePreference(ctx context.Context, msgs []*schema.Message) (string, bool)
	ParseSelection(ctx context.Context, msgs []*schema.Message, offered []string) Selection
	ParseConfirmation(ctx context.Context, msgs []*schema.Message) Confirmation
}

// LatestUserMessage 返回最后一条用户消息内容
func LatestUserMessage(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}
