package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlexIDAcceptsNumberAndString(t *testing.T) {
	var p chatSendPayload

	// JSON 数字
	require.NoError(t, json.Unmarshal([]byte(`{"senderId":1,"roomId":10,"content":"Hi"}`), &p))
	require.Equal(t, uint(1), p.SenderID.Uint())
	require.Equal(t, uint(10), p.RoomID.Uint())

	// 数字字符串
	p = chatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"senderId":"1","roomId":"10","content":"Hi"}`), &p))
	require.Equal(t, uint(1), p.SenderID.Uint())
	require.Equal(t, uint(10), p.RoomID.Uint())
}

func TestFlexIDRejectsInvalidValues(t *testing.T) {
	cases := []string{
		`{"senderId":"abc","roomId":10,"content":"Hi"}`,
		`{"senderId":"","roomId":10,"content":"Hi"}`,
		`{"senderId":-1,"roomId":10,"content":"Hi"}`,
		`{"senderId":"1.5","roomId":10,"content":"Hi"}`,
	}
	for _, raw := range cases {
		var p chatSendPayload
		require.Error(t, json.Unmarshal([]byte(raw), &p), "应拒绝: %s", raw)
	}
}

func TestChatSendPayloadValidate(t *testing.T) {
	var p chatSendPayload
	require.NoError(t, json.Unmarshal([]byte(`{"senderId":1,"roomId":10,"content":"Hi"}`), &p))
	require.NoError(t, p.validate())

	// 缺失字段逐一拒绝
	p = chatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"roomId":10,"content":"Hi"}`), &p))
	require.Error(t, p.validate())

	p = chatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"senderId":1,"content":"Hi"}`), &p))
	require.Error(t, p.validate())

	p = chatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"senderId":1,"roomId":10}`), &p))
	require.Error(t, p.validate())
}

func TestAIChatSendPayloadValidate(t *testing.T) {
	// sessionId 缺省合法：隐式创建会话
	var p aiChatSendPayload
	require.NoError(t, json.Unmarshal([]byte(`{"userId":1,"content":"你好"}`), &p))
	require.NoError(t, p.validate())
	require.Nil(t, p.SessionID)

	p = aiChatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":1,"sessionId":"3","content":"你好","role":"user"}`), &p))
	require.NoError(t, p.validate())
	require.NotNil(t, p.SessionID)
	require.Equal(t, uint(3), p.SessionID.Uint())

	p = aiChatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"content":"你好"}`), &p))
	require.Error(t, p.validate())

	p = aiChatSendPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":1}`), &p))
	require.Error(t, p.validate())
}

func TestFrameDispatchShape(t *testing.T) {
	var frame Frame
	raw := `{"action":"chat.send","data":{"senderId":1,"roomId":10,"content":"Hi"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &frame))
	require.Equal(t, ActionChatSend, frame.Action)

	var p chatSendPayload
	require.NoError(t, json.Unmarshal(frame.Data, &p))
	require.NoError(t, p.validate())
}

func TestDeleteSessionPayloadValidate(t *testing.T) {
	var p aiChatDeleteSessionPayload
	require.NoError(t, json.Unmarshal([]byte(`{"sessionId":5,"userId":1}`), &p))
	require.NoError(t, p.validate())

	p = aiChatDeleteSessionPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":1}`), &p))
	require.Error(t, p.validate())
}
