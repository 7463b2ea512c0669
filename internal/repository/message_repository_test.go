package repository

import (
	"testing"
	"time"

	"heartalk-go/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestMessageRepo(t *testing.T) MessageRepository {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMessageRepository(db)
}

func TestMessageRepositoryAppendAndList(t *testing.T) {
	repo := newTestMessageRepo(t)
	container := model.RoomKey(10)

	first, err := repo.Append(container, 1, model.RoleUser, "你好")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, container, first.Container)
	require.Equal(t, uint(1), first.SenderID)
	require.NotZero(t, first.CreatedAt)

	// 键内时间戳是毫秒级的，隔开两毫秒保证时间序
	time.Sleep(2 * time.Millisecond)
	second, err := repo.Append(container, 2, model.RoleUser, "在吗")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	third, err := repo.Append(container, 1, model.RoleUser, "在的")
	require.NoError(t, err)

	messages, err := repo.ListByContainer(container)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, first.ID, messages[0].ID)
	require.Equal(t, second.ID, messages[1].ID)
	require.Equal(t, third.ID, messages[2].ID)
	require.Equal(t, "你好", messages[0].Content)
}

func TestMessageRepositoryContainerIsolation(t *testing.T) {
	repo := newTestMessageRepo(t)

	_, err := repo.Append(model.RoomKey(1), 1, model.RoleUser, "房间消息")
	require.NoError(t, err)
	_, err = repo.Append(model.SessionKey(1), 1, model.RoleUser, "会话消息")
	require.NoError(t, err)

	roomMsgs, err := repo.ListByContainer(model.RoomKey(1))
	require.NoError(t, err)
	require.Len(t, roomMsgs, 1)
	require.Equal(t, "房间消息", roomMsgs[0].Content)

	sessionMsgs, err := repo.ListByContainer(model.SessionKey(1))
	require.NoError(t, err)
	require.Len(t, sessionMsgs, 1)
	require.Equal(t, "会话消息", sessionMsgs[0].Content)
}

func TestMessageRepositoryLatest(t *testing.T) {
	repo := newTestMessageRepo(t)
	container := model.RoomKey(20)

	// 空容器返回 nil 而不是错误
	latest, err := repo.Latest(container)
	require.NoError(t, err)
	require.Nil(t, latest)

	_, err = repo.Append(container, 1, model.RoleUser, "旧消息")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	newest, err := repo.Append(container, 2, model.RoleUser, "新消息")
	require.NoError(t, err)

	latest, err = repo.Latest(container)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, newest.ID, latest.ID)
}

func TestMessageRepositoryLatestForMany(t *testing.T) {
	repo := newTestMessageRepo(t)

	msg, err := repo.Append(model.RoomKey(1), 1, model.RoleUser, "hi")
	require.NoError(t, err)

	// 没有消息的容器不出现在结果里
	result, err := repo.LatestForMany([]string{model.RoomKey(1), model.RoomKey(2)})
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, msg.ID, result[model.RoomKey(1)].ID)
}

func TestMessageRepositoryCount(t *testing.T) {
	repo := newTestMessageRepo(t)
	container := model.SessionKey(5)

	count, err := repo.Count(container)
	require.NoError(t, err)
	require.Zero(t, count)

	for i := 0; i < 3; i++ {
		_, err := repo.Append(container, 1, model.RoleUser, "x")
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	count, err = repo.Count(container)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestMessageRepositoryDeleteAll(t *testing.T) {
	repo := newTestMessageRepo(t)
	container := model.RoomKey(30)
	other := model.RoomKey(31)

	_, err := repo.Append(container, 1, model.RoleUser, "a")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = repo.Append(container, 2, model.RoleUser, "b")
	require.NoError(t, err)
	_, err = repo.Append(other, 1, model.RoleUser, "c")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteAll(container))

	count, err := repo.Count(container)
	require.NoError(t, err)
	require.Zero(t, count)

	// 其他容器不受影响
	count, err = repo.Count(other)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// 对空容器再次清空是 no-op
	require.NoError(t, repo.DeleteAll(container))
}

func TestMessageRepositoryDeleteByID(t *testing.T) {
	repo := newTestMessageRepo(t)
	container := model.RoomKey(40)

	keep, err := repo.Append(container, 1, model.RoleUser, "保留")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	gone, err := repo.Append(container, 1, model.RoleUser, "删除")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(container, gone.ID))

	messages, err := repo.ListByContainer(container)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, keep.ID, messages[0].ID)

	// 不存在的 id 是 no-op
	require.NoError(t, repo.DeleteByID(container, "no-such-id"))
}

func TestMessageRepositoryDeleteByCreatedAt(t *testing.T) {
	repo := newTestMessageRepo(t)
	container := model.RoomKey(50)

	first, err := repo.Append(container, 1, model.RoleUser, "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := repo.Append(container, 1, model.RoleUser, "second")
	require.NoError(t, err)
	require.NotEqual(t, first.CreatedAt, second.CreatedAt)

	require.NoError(t, repo.DeleteByCreatedAt(container, first.CreatedAt))

	messages, err := repo.ListByContainer(container)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, second.ID, messages[0].ID)
}
