package storage

import "time"

// Conversation 持久化一个会话的对话状态快照。
//
// 状态整体序列化为 JSON 存放在 StateJSON 中；Flow/Turns 冗余出来便于列表展示与清理。
type Conversation struct {
	// ID 为会话标识（由调用方提供，例如 CLI 的 --conversation 或 HTTP 路径参数）。
	ID string `gorm:"primaryKey;size:128"`
	// Flow 为最近一次保存时所处的流程（IDLE/BOOK/CANCEL/RESCHEDULE）。
	Flow string `gorm:"size:32;not null;index"`
	// StateJSON 为完整的会话状态。
	StateJSON string `gorm:"type:text;not null"`
	// Turns 为已处理的用户轮次数。
	Turns     int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	// UpdatedAt 用于按空闲时间清理过期会话。
	UpdatedAt time.Time `gorm:"not null;index"`
}

// AuditRecord 记录一次对排期服务的调用及其结果，用于审计与追溯。
//
// 一条记录对应一次 Provider 调用（查询时段、创建预约、查询预约、取消预约）。
// 入参/输出统一以 JSON 字符串存放。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联同一轮对话内的多次调用。
	TraceID string `gorm:"size:64;index"`
	// ConversationID 为发起调用的会话（可选）。
	ConversationID string `gorm:"size:128;index"`
	// Action 为稳定的动作名，例如 scheduling.create_booking。
	Action string `gorm:"size:128;not null;index"`
	ParamsJSON string `gorm:"type:text"`
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status       string    `gorm:"size:32;not null;index"`
	ErrorMessage string    `gorm:"type:text"`
	StartedAt    time.Time `gorm:"index"`
	FinishedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime;index"`
}
