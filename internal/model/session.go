// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 会话类型标签。
const (
	SessionKindPlain      = "plain"
	SessionKindAIPractice = "ai_practice"
)

// ChatSession 对应于数据库中的 'chat_sessions' 表。
// 会话是单人拥有的聊天容器，通常由首条 AI 对话消息隐式创建。
type ChatSession struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint   `gorm:"index;not null" json:"userId"`
	Title  string `gorm:"type:varchar(64);not null" json:"title"`
	// Kind 区分普通会话与 AI 陪练会话。
	Kind  string  `gorm:"type:varchar(20);not null;default:'plain'" json:"kind"`
	Scene *string `gorm:"type:varchar(64)" json:"scene"`
	// RoomID 可选地把会话关联到一个房间（例如针对某段真实对话的陪练）。
	RoomID     *uint     `gorm:"index" json:"roomId"`
	ScenarioID *uint     `json:"scenarioId"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatSession) TableName() string {
	return "chat_sessions"
}
