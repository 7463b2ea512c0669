package service

import (
	"context"
	"testing"
	"time"

	"heartalk-go/internal/hub"
	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"

	"github.com/stretchr/testify/require"
)

type historyFixture struct {
	svc         HistoryService
	roomRepo    repository.RoomRepository
	sessionRepo repository.SessionRepository
	msgRepo     repository.MessageRepository
	unreadRepo  repository.UnreadRepository
}

func newHistoryFixture(t *testing.T) historyFixture {
	t.Helper()
	db := newTestDB(t)
	f := historyFixture{
		roomRepo:    repository.NewRoomRepository(db),
		sessionRepo: repository.NewSessionRepository(db),
		msgRepo:     newTestMessageRepo(t),
		unreadRepo:  repository.NewUnreadRepository(db),
	}
	f.svc = NewHistoryService(f.roomRepo, f.sessionRepo, f.msgRepo, f.unreadRepo, "")
	return f
}

func TestRoomMessagesRequiresMembership(t *testing.T) {
	f := newHistoryFixture(t)

	room, err := f.roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)
	_, err = f.msgRepo.Append(model.RoomKey(room.ID), 1, model.RoleUser, "hello")
	require.NoError(t, err)

	messages, err := f.svc.RoomMessages(1, room.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	_, err = f.svc.RoomMessages(3, room.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionMessagesRequiresOwnership(t *testing.T) {
	f := newHistoryFixture(t)

	session := &model.ChatSession{UserID: 1, Title: "t", Kind: model.SessionKindAIPractice}
	require.NoError(t, f.sessionRepo.Create(session))
	_, err := f.msgRepo.Append(model.SessionKey(session.ID), 1, model.RoleUser, "hi")
	require.NoError(t, err)

	messages, err := f.svc.SessionMessages(1, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	_, err = f.svc.SessionMessages(2, session.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkRoomRead(t *testing.T) {
	f := newHistoryFixture(t)

	room, err := f.roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)
	require.NoError(t, f.unreadRepo.Increment(1, room.ID))
	require.NoError(t, f.unreadRepo.Increment(1, room.ID))

	require.NoError(t, f.svc.MarkRoomRead(1, room.ID))

	counts, err := f.unreadRepo.BatchGet(1, []uint{room.ID})
	require.NoError(t, err)
	require.Zero(t, counts[room.ID])

	// 非成员按 not-found 处理
	require.ErrorIs(t, f.svc.MarkRoomRead(3, room.ID), ErrNotFound)
}

func TestConversations(t *testing.T) {
	f := newHistoryFixture(t)

	room, err := f.roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)
	emptyRoom, err := f.roomRepo.Create([]uint{1, 3})
	require.NoError(t, err)

	_, err = f.msgRepo.Append(model.RoomKey(room.ID), 2, model.RoleUser, "旧")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	latest, err := f.msgRepo.Append(model.RoomKey(room.ID), 2, model.RoleUser, "新")
	require.NoError(t, err)
	require.NoError(t, f.unreadRepo.Increment(1, room.ID))
	require.NoError(t, f.unreadRepo.Increment(1, room.ID))

	session := &model.ChatSession{UserID: 1, Title: "练习", Kind: model.SessionKindAIPractice}
	require.NoError(t, f.sessionRepo.Create(session))
	sessionMsg, err := f.msgRepo.Append(model.SessionKey(session.ID), 1, model.RoleUser, "开始")
	require.NoError(t, err)

	list, err := f.svc.Conversations(1)
	require.NoError(t, err)
	require.Len(t, list.Rooms, 2)
	require.Len(t, list.Sessions, 1)

	byID := make(map[uint]RoomSummary)
	for _, r := range list.Rooms {
		byID[r.RoomID] = r
	}

	withMessages := byID[room.ID]
	require.Equal(t, []uint{1, 2}, withMessages.MemberIDs)
	require.Equal(t, 2, withMessages.UnreadCount)
	require.NotNil(t, withMessages.LastMessage)
	require.Equal(t, latest.ID, withMessages.LastMessage.ID)

	// 没有消息的房间：无最新消息，未读为 0
	empty := byID[emptyRoom.ID]
	require.Nil(t, empty.LastMessage)
	require.Zero(t, empty.UnreadCount)

	require.Equal(t, session.ID, list.Sessions[0].Session.ID)
	require.Equal(t, sessionMsg.ID, list.Sessions[0].LastMessage.ID)
}

func TestTopicsForUser(t *testing.T) {
	f := newHistoryFixture(t)

	room, err := f.roomRepo.Create([]uint{1, 2})
	require.NoError(t, err)
	session := &model.ChatSession{UserID: 1, Title: "t", Kind: model.SessionKindAIPractice}
	require.NoError(t, f.sessionRepo.Create(session))

	topics, err := f.svc.TopicsForUser(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		hub.UserTopic(1),
		hub.RoomTopic(room.ID),
		hub.SessionTopic(session.ID),
	}, topics)

	// 其他用户看不到别人的房间与会话
	topics, err = f.svc.TopicsForUser(9)
	require.NoError(t, err)
	require.Equal(t, []string{hub.UserTopic(9)}, topics)
}

func TestSearchMessagesDisabled(t *testing.T) {
	f := newHistoryFixture(t)
	_, err := f.svc.SearchMessages(context.Background(), 1, "hello", 10)
	require.Error(t, err)
}
