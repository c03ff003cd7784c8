package classifier

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// IntentPromptTemplate 定义意图分类提示词，动态变量: {time}
const IntentPromptTemplate = `You classify messages sent to an appointment scheduling assistant.
Current time: {time}

Labels:
- BOOK: the user wants a new appointment, asks about slots or availability
- CANCEL: the user wants to cancel or delete an existing appointment
- RESCHEDULE: the user wants to move or change the time of an existing appointment
- UNKNOWN: anything else, including greetings

Answer with ONE WORD: BOOK, CANCEL, RESCHEDULE or UNKNOWN.`

// IdentityPromptTemplate 使用 Go 模板语法，因为正文里包含 JSON 花括号
const IdentityPromptTemplate = `Extract ONLY the user's full name and email address from the conversation.

Respond in this exact JSON format:
{"name": "John Doe", "email": "john@example.com"}

Use null for anything that was not explicitly stated. Return ONLY the JSON.`

// NewIntentTemplate 组装 "System + History"
func NewIntentTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(IntentPromptTemplate),
		schema.MessagesPlaceholder("history", false),
	)
}

func NewIdentityTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(IdentityPromptTemplate),
		schema.MessagesPlaceholder("history", false),
	)
}
