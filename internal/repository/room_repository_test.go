package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRoomRepositoryCreateAndMembers(t *testing.T) {
	repo := NewRoomRepository(newTestDB(t))

	room, err := repo.Create([]uint{1, 2})
	require.NoError(t, err)
	require.NotZero(t, room.ID)

	members, err := repo.Members(room.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{1, 2}, members)

	ok, err := repo.IsMember(room.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsMember(room.ID, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRoomRepositoryResolveRecipients(t *testing.T) {
	repo := NewRoomRepository(newTestDB(t))

	room, err := repo.Create([]uint{1, 2})
	require.NoError(t, err)

	// 双人房间里接收者恰好是对方一人
	recipients, err := repo.ResolveRecipients(room.ID, 1)
	require.NoError(t, err)
	require.Equal(t, []uint{2}, recipients)

	recipients, err = repo.ResolveRecipients(room.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []uint{1}, recipients)

	// 成员关系固定，结果与调用次数无关
	again, err := repo.ResolveRecipients(room.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []uint{1}, again)

	group, err := repo.Create([]uint{1, 2, 3})
	require.NoError(t, err)
	recipients, err = repo.ResolveRecipients(group.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []uint{1, 3}, recipients)
}

func TestRoomRepositoryListRoomIDs(t *testing.T) {
	repo := NewRoomRepository(newTestDB(t))

	roomA, err := repo.Create([]uint{1, 2})
	require.NoError(t, err)
	roomB, err := repo.Create([]uint{1, 3})
	require.NoError(t, err)
	_, err = repo.Create([]uint{2, 3})
	require.NoError(t, err)

	ids, err := repo.ListRoomIDs(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{roomA.ID, roomB.ID}, ids)
}

func TestRoomRepositoryDelete(t *testing.T) {
	repo := NewRoomRepository(newTestDB(t))

	room, err := repo.Create([]uint{1, 2})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(room.ID))

	_, err = repo.FindByID(room.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	members, err := repo.Members(room.ID)
	require.NoError(t, err)
	require.Empty(t, members)

	// 重复删除返回 not-found
	require.ErrorIs(t, repo.Delete(room.ID), gorm.ErrRecordNotFound)
}
