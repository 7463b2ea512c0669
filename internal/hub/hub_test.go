package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// receive 从发送缓冲里取一条事件，超时视为未投递。
func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(time.Second):
		t.Fatal("事件未在预期时间内投递")
		return nil
	}
}

// drained 断言发送缓冲里没有事件。
func drained(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("收到了不该投递的事件: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishToSubscribers(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	subscriber := h.NewClient(nil, 1)
	h.Subscribe(subscriber, RoomTopic(10))
	h.Register(subscriber)

	other := h.NewClient(nil, 2)
	h.Subscribe(other, RoomTopic(99))
	h.Register(other)

	h.Publish(RoomTopic(10), NewUnreadEvent(10, 1))

	data := receive(t, subscriber)
	var event UnreadEvent
	require.NoError(t, json.Unmarshal(data, &event))
	require.Equal(t, EventTypeUnreadUpdate, event.Type)
	require.Equal(t, uint(10), event.RoomID)
	require.Equal(t, 1, event.Increment)

	// 其他主题的订阅者不会收到
	drained(t, other)
}

func TestPublishFanOutToMultipleSubscribers(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	a := h.NewClient(nil, 1)
	b := h.NewClient(nil, 2)
	h.Subscribe(a, RoomTopic(5))
	h.Subscribe(b, RoomTopic(5))
	h.Register(a)
	h.Register(b)

	h.Publish(RoomTopic(5), NewDeleteEvent("m1"))

	for _, c := range []*Client{a, b} {
		var event DeleteEvent
		require.NoError(t, json.Unmarshal(receive(t, c), &event))
		require.Equal(t, "m1", event.MessageID)
	}
}

func TestSubscribeAfterRegister(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := h.NewClient(nil, 1)
	h.Subscribe(client, UserTopic(1))
	h.Register(client)

	// 注册后订阅的新主题立即生效（隐式创建会话的场景）
	h.Subscribe(client, SessionTopic(7))
	h.Publish(SessionTopic(7), NewSessionDeletedEvent(7))

	var event SessionDeletedEvent
	require.NoError(t, json.Unmarshal(receive(t, client), &event))
	require.Equal(t, uint(7), event.SessionID)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := h.NewClient(nil, 1)
	h.Subscribe(client, RoomTopic(3))
	h.Register(client)
	h.Unregister(client)

	// 注销后发布不会投递；发送通道已被 Hub 关闭
	h.Publish(RoomTopic(3), NewDeleteEvent("x"))

	select {
	case data, ok := <-client.Send:
		require.False(t, ok, "通道应已关闭而不是收到事件: %s", data)
	case <-time.After(time.Second):
		t.Fatal("发送通道未被关闭")
	}
}

func TestSendDirect(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := h.NewClient(nil, 1)
	h.Register(client)

	h.SendDirect(client, NewErrorEvent("内容不能为空"))

	var event ErrorEvent
	require.NoError(t, json.Unmarshal(receive(t, client), &event))
	require.Equal(t, EventTypeError, event.Type)
	require.Equal(t, "内容不能为空", event.Reason)
}

func TestTopicNames(t *testing.T) {
	require.Equal(t, "topic.chat.42", RoomTopic(42))
	require.Equal(t, "topic.aichat.session.7", SessionTopic(7))
	require.Equal(t, "topic.user.1", UserTopic(1))
}
