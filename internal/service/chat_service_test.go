package service

import (
	"context"
	"testing"

	"heartalk-go/internal/hub"
	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"

	"github.com/stretchr/testify/require"
)

func newChatFixture(t *testing.T) (ChatService, repository.RoomRepository, repository.MessageRepository, repository.UnreadRepository, *fakePublisher) {
	t.Helper()
	db := newTestDB(t)
	roomRepo := repository.NewRoomRepository(db)
	unreadRepo := repository.NewUnreadRepository(db)
	msgRepo := newTestMessageRepo(t)
	publisher := &fakePublisher{}
	svc := NewChatService(roomRepo, msgRepo, unreadRepo, publisher, "")
	return svc, roomRepo, msgRepo, unreadRepo, publisher
}

func TestSendRoomMessage(t *testing.T) {
	svc, roomRepo, msgRepo, unreadRepo, publisher := newChatFixture(t)

	room, err := roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)

	msg, err := svc.SendRoomMessage(context.Background(), 1, room.ID, "Hi")
	require.NoError(t, err)
	require.Equal(t, "Hi", msg.Content)
	require.Equal(t, uint(1), msg.SenderID)
	require.Equal(t, model.RoomKey(room.ID), msg.Container)

	// 消息落在房间容器的日志里
	stored, err := msgRepo.ListByContainer(model.RoomKey(room.ID))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, msg.ID, stored[0].ID)

	// 房间主题上广播了消息事件
	roomEvents := publisher.byTopic(hub.RoomTopic(room.ID))
	require.Len(t, roomEvents, 1)
	msgEvent, ok := roomEvents[0].(hub.MessageEvent)
	require.True(t, ok)
	require.Equal(t, msg.ID, msgEvent.Message.ID)

	// 对方未读加一并收到个人主题通知，发送者自己没有
	counts, err := unreadRepo.BatchGet(2, []uint{room.ID})
	require.NoError(t, err)
	require.Equal(t, 1, counts[room.ID])
	counts, err = unreadRepo.BatchGet(1, []uint{room.ID})
	require.NoError(t, err)
	require.Zero(t, counts[room.ID])

	require.Len(t, publisher.byTopic(hub.UserTopic(2)), 1)
	require.Empty(t, publisher.byTopic(hub.UserTopic(1)))
}

func TestSendRoomMessageGroupFanout(t *testing.T) {
	svc, roomRepo, _, unreadRepo, publisher := newChatFixture(t)

	room, err := roomRepo.Create([]uint{1, 2, 3})
	require.NoError(t, err)

	_, err = svc.SendRoomMessage(context.Background(), 2, room.ID, "大家好")
	require.NoError(t, err)

	// 除发送者外的每个成员未读加一
	for _, userID := range []uint{1, 3} {
		counts, err := unreadRepo.BatchGet(userID, []uint{room.ID})
		require.NoError(t, err)
		require.Equal(t, 1, counts[room.ID])
		require.Len(t, publisher.byTopic(hub.UserTopic(userID)), 1)
	}
	require.Empty(t, publisher.byTopic(hub.UserTopic(2)))
}

func TestSendRoomMessageNotMember(t *testing.T) {
	svc, roomRepo, msgRepo, _, publisher := newChatFixture(t)

	room, err := roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)

	// 非成员发送与发往不存在的房间表现一致
	_, err = svc.SendRoomMessage(context.Background(), 3, room.ID, "偷看")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SendRoomMessage(context.Background(), 1, 999, "无人区")
	require.ErrorIs(t, err, ErrNotFound)

	// 被拒绝的消息不落日志、不扇出
	stored, err := msgRepo.ListByContainer(model.RoomKey(room.ID))
	require.NoError(t, err)
	require.Empty(t, stored)
	require.Empty(t, publisher.byTopic(hub.RoomTopic(room.ID)))
}

func TestDeleteRoomMessage(t *testing.T) {
	svc, roomRepo, msgRepo, _, publisher := newChatFixture(t)

	room, err := roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)
	msg, err := svc.SendRoomMessage(context.Background(), 1, room.ID, "说错了")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRoomMessage(context.Background(), 1, room.ID, msg.ID))

	stored, err := msgRepo.ListByContainer(model.RoomKey(room.ID))
	require.NoError(t, err)
	require.Empty(t, stored)

	roomEvents := publisher.byTopic(hub.RoomTopic(room.ID))
	require.Len(t, roomEvents, 2)
	delEvent, ok := roomEvents[1].(hub.DeleteEvent)
	require.True(t, ok)
	require.Equal(t, msg.ID, delEvent.MessageID)

	// 非成员不能删除
	require.ErrorIs(t, svc.DeleteRoomMessage(context.Background(), 3, room.ID, msg.ID), ErrNotFound)
}

func TestDeleteRoomCascade(t *testing.T) {
	svc, roomRepo, msgRepo, _, _ := newChatFixture(t)

	room, err := roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)
	_, err = svc.SendRoomMessage(context.Background(), 1, room.ID, "再见")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRoom(room.ID))

	// 注册表行与消息日志都已清空
	ok, err := roomRepo.IsMember(room.ID, 1)
	require.NoError(t, err)
	require.False(t, ok)
	count, err := msgRepo.Count(model.RoomKey(room.ID))
	require.NoError(t, err)
	require.Zero(t, count)

	require.ErrorIs(t, svc.DeleteRoom(room.ID), ErrNotFound)
}
