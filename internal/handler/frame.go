// Package handler 包含了处理 HTTP 与 WebSocket 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WebSocket 帧的 action 名称。
const (
	ActionChatSend            = "chat.send"
	ActionChatDelete          = "chat.delete"
	ActionAIChatSend          = "aichat.send"
	ActionAIChatResponse      = "aichat.response"
	ActionAIChatDeleteSession = "aichat.deleteSession"
)

// Frame 是 WebSocket 上的统一入站帧：action 选择操作，data 携带载荷。
type Frame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// FlexID 是边界上的宽松数字标识：客户端可能把 id 作为 JSON 数字
// 或数字字符串发送，这里在反序列化时做一次显式的类型收敛，
// 业务逻辑之后只会见到整数。无法收敛的值直接在解析阶段失败。
type FlexID int64

// UnmarshalJSON 实现 json.Unmarshaler 接口。
func (f *FlexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" {
		return errors.New("identifier is empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("identifier %q is not numeric", s)
	}
	if n < 0 {
		return fmt.Errorf("identifier %d is negative", n)
	}
	*f = FlexID(n)
	return nil
}

// Uint 返回内部使用的无符号 id。
func (f FlexID) Uint() uint {
	return uint(f)
}

// chatSendPayload 对应 chat.send 帧。
type chatSendPayload struct {
	SenderID *FlexID `json:"senderId"`
	RoomID   *FlexID `json:"roomId"`
	Content  string  `json:"content"`
}

func (p *chatSendPayload) validate() error {
	if p.SenderID == nil {
		return errors.New("senderId is required")
	}
	if p.RoomID == nil {
		return errors.New("roomId is required")
	}
	if p.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// chatDeletePayload 对应 chat.delete 帧。
type chatDeletePayload struct {
	RoomID    *FlexID `json:"roomId"`
	MessageID string  `json:"messageId"`
}

func (p *chatDeletePayload) validate() error {
	if p.RoomID == nil {
		return errors.New("roomId is required")
	}
	if p.MessageID == "" {
		return errors.New("messageId is required")
	}
	return nil
}

// aiChatSendPayload 对应 aichat.send 帧。sessionId 缺省时会隐式创建会话。
type aiChatSendPayload struct {
	UserID    *FlexID `json:"userId"`
	SessionID *FlexID `json:"sessionId"`
	Content   string  `json:"content"`
	Role      string  `json:"role"`
}

func (p *aiChatSendPayload) validate() error {
	if p.UserID == nil {
		return errors.New("userId is required")
	}
	if p.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// aiChatResponsePayload 对应 aichat.response 帧（回复生成方的异步回调）。
type aiChatResponsePayload struct {
	SessionID *FlexID `json:"sessionId"`
	UserID    *FlexID `json:"userId"`
	Content   string  `json:"content"`
}

func (p *aiChatResponsePayload) validate() error {
	if p.SessionID == nil {
		return errors.New("sessionId is required")
	}
	if p.UserID == nil {
		return errors.New("userId is required")
	}
	if p.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// aiChatDeleteSessionPayload 对应 aichat.deleteSession 帧。
type aiChatDeleteSessionPayload struct {
	SessionID *FlexID `json:"sessionId"`
	UserID    *FlexID `json:"userId"`
}

func (p *aiChatDeleteSessionPayload) validate() error {
	if p.SessionID == nil {
		return errors.New("sessionId is required")
	}
	if p.UserID == nil {
		return errors.New("userId is required")
	}
	return nil
}
