// Package model 定义了应用的数据模型。
package model

import "fmt"

// 消息角色标签。房间消息统一使用 user；会话消息区分 user 与 assistant。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 代表消息日志（BadgerDB）中的一条不可变消息。
// CreatedAt 为毫秒级 epoch 时间戳，同时充当日志内的排序键；
// 同一毫秒内写入的多条消息之间没有进一步定义的顺序。
type Message struct {
	ID        string `json:"id"`
	Container string `json:"container"`
	SenderID  uint   `json:"senderId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomKey 返回房间在消息日志与事件主题中使用的容器键。
// 房间与会话的自增 id 各自独立，容器键带上类型前缀以避免冲突。
func RoomKey(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}

// SessionKey 返回会话在消息日志与事件主题中使用的容器键。
func SessionKey(sessionID uint) string {
	return fmt.Sprintf("session:%d", sessionID)
}
