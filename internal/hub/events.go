package hub

import "heartalk-go/internal/model"

// 事件类型常量。客户端根据 type 字段分发处理。
const (
	EventTypeMessage        = "message"
	EventTypeDelete         = "delete"
	EventTypeSessionCreated = "session_created"
	EventTypeSessionDeleted = "session_deleted"
	EventTypeUnreadUpdate   = "unread_update"
	EventTypeError          = "error"
)

// MessageEvent 承载一条已持久化的消息。
type MessageEvent struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message"`
}

// NewMessageEvent 构造消息事件。
func NewMessageEvent(msg *model.Message) MessageEvent {
	return MessageEvent{Type: EventTypeMessage, Message: msg}
}

// DeleteEvent 通知一条消息被删除。
type DeleteEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// NewDeleteEvent 构造删除事件。
func NewDeleteEvent(messageID string) DeleteEvent {
	return DeleteEvent{Type: EventTypeDelete, MessageID: messageID}
}

// SessionCreatedEvent 在首条消息隐式创建会话时发给发送者的个人主题，
// 把生成的会话 id 回传给客户端。
type SessionCreatedEvent struct {
	Type    string             `json:"type"`
	Session *model.ChatSession `json:"session"`
}

// NewSessionCreatedEvent 构造会话创建事件。
func NewSessionCreatedEvent(session *model.ChatSession) SessionCreatedEvent {
	return SessionCreatedEvent{Type: EventTypeSessionCreated, Session: session}
}

// SessionDeletedEvent 通知一个会话已被删除。
type SessionDeletedEvent struct {
	Type      string `json:"type"`
	SessionID uint   `json:"sessionId"`
}

// NewSessionDeletedEvent 构造会话删除事件。
func NewSessionDeletedEvent(sessionID uint) SessionDeletedEvent {
	return SessionDeletedEvent{Type: EventTypeSessionDeleted, SessionID: sessionID}
}

// UnreadEvent 通知某房间的未读计数发生变化。
type UnreadEvent struct {
	Type      string `json:"type"`
	RoomID    uint   `json:"roomId"`
	Increment int    `json:"increment"`
}

// NewUnreadEvent 构造未读变更事件。
func NewUnreadEvent(roomID uint, increment int) UnreadEvent {
	return UnreadEvent{Type: EventTypeUnreadUpdate, RoomID: roomID, Increment: increment}
}

// ErrorEvent 是失败帧的回执。成功路径保持 fire-and-forget，
// 失败时回发一条错误事件，客户端据此区分"已发出"与"被丢弃"。
type ErrorEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// NewErrorEvent 构造错误回执。
func NewErrorEvent(reason string) ErrorEvent {
	return ErrorEvent{Type: EventTypeError, Reason: reason}
}
