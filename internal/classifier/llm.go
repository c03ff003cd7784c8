package classifier

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/logging"
)

// historyWindow 限制送入模型的历史消息条数
const historyWindow = 12

// LLM 用 ChatModel 做意图分类和身份抽取，失败时回落到规则实现。
// 时间偏好、候选选择和确认解析结构化程度高，直接使用规则。
type LLM struct {
	model    model.BaseChatModel
	fallback *Rules
	intent   prompt.ChatTemplate
	identity prompt.ChatTemplate
	logger   *zap.Logger
	now      func() time.Time
}

func NewLLM(cm model.BaseChatModel, logger *zap.Logger) *LLM {
	return &LLM{
		model:    cm,
		fallback: NewRules(),
		intent:   NewIntentTemplate(),
		identity: NewIdentityTemplate(),
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

func (l *LLM) ClassifyIntent(ctx context.Context, msgs []*schema.Message) Label {
	// 关键词命中时不必调用模型
	if label := l.fallback.ClassifyIntent(ctx, msgs); label != LabelUnknown {
		return label
	}
	latest := LatestUserMessage(msgs)
	if latest == "" {
		return LabelUnknown
	}

	input, err := l.intent.Format(ctx, map[string]any{
		"time":    l.now().Format(time.RFC3339),
		"history": []*schema.Message{schema.UserMessage(latest)},
	})
	if err != nil {
		l.logger.Warn("format intent prompt failed", zap.Error(err))
		return LabelUnknown
	}
	out, err := l.model.Generate(ctx, input)
	if err != nil {
		l.logger.Warn("classify intent failed", zap.Error(err))
		return LabelUnknown
	}
	return ParseLabel(firstWord(out.Content))
}

func (l *LLM) ExtractIdentity(ctx context.Context, msgs []*schema.Message) Identity {
	ruled := l.fallback.ExtractIdentity(ctx, msgs)

	input, err := l.identity.Format(ctx, map[string]any{"history": userOnly(msgs)})
	if err != nil {
		l.logger.Warn("format identity prompt failed", zap.Error(err))
		return ruled
	}
	out, err := l.model.Generate(ctx, input)
	if err != nil {
		l.logger.Warn("extract identity failed", zap.Error(err))
		return ruled
	}

	var data struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
	}
	if err := json.Unmarshal([]byte(jsonObject(out.Content)), &data); err != nil {
		l.logger.Debug("identity response is not json", zap.String("content", out.Content))
		return ruled
	}

	// 模型结果优先，规则结果兜底
	id := ruled
	if data.Name != nil && strings.TrimSpace(*data.Name) != "" {
		id.Name = strings.TrimSpace(*data.Name)
	}
	if data.Email != nil && emailPattern.MatchString(*data.Email) {
		id.Email = strings.TrimSpace(*data.Email)
	}
	return id
}

func (l *LLM) ExtractTimePreference(ctx context.Context, msgs []*schema.Message) (string, bool) {
	return l.fallback.ExtractTimePreference(ctx, msgs)
}

func (l *LLM) ParseSelection(ctx context.Context, msgs []*schema.Message, offered []string) Selection {
	return l.fallback.ParseSelection(ctx, msgs, offered)
}

func (l *LLM) ParseConfirmation(ctx context.Context, msgs []*schema.Message) Confirmation {
	return l.fallback.ParseConfirmation(ctx, msgs)
}

func userOnly(msgs []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil && m.Role == schema.User {
			out = append(out, m)
		}
	}
	if len(out) > historyWindow {
		out = out[len(out)-historyWindow:]
	}
	return out
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// jsonObject 截取回复中的第一个 JSON 对象，模型偶尔会在前后附加说明文字
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
