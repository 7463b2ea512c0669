// Package repository 提供了数据访问层的实现。
package repository

import (
	"heartalk-go/internal/model"

	"gorm.io/gorm"
)

// RoomRepository 定义了房间注册表的持久化操作。
// 房间的创建/销毁由外部的房间管理服务发起，这里只负责存在性与成员关系。
type RoomRepository interface {
	Create(memberIDs []uint) (*model.Room, error)
	FindByID(roomID uint) (*model.Room, error)
	IsMember(roomID, userID uint) (bool, error)
	Members(roomID uint) ([]uint, error)
	// ResolveRecipients 返回房间内除发送者以外的全部成员。
	// 双人房间的结果恰好是对方一人；成员关系固定，结果与调用时序无关。
	ResolveRecipients(roomID, senderID uint) ([]uint, error)
	ListRoomIDs(userID uint) ([]uint, error)
	Delete(roomID uint) error
}

// roomRepository 是 RoomRepository 接口的 GORM 实现。
type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository 创建一个新的 RoomRepository 实例。
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

// Create 在一个事务内创建房间及其固定成员关系。
func (r *roomRepository) Create(memberIDs []uint) (*model.Room, error) {
	room := &model.Room{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for i, userID := range memberIDs {
			member := &model.RoomMember{RoomID: room.ID, UserID: userID, Position: i}
			if err := tx.Create(member).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// FindByID 根据房间 ID 查找房间。
func (r *roomRepository) FindByID(roomID uint) (*model.Room, error) {
	var room model.Room
	err := r.db.First(&room, roomID).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// IsMember 判断用户是否为房间成员。
func (r *roomRepository) IsMember(roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&model.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Members 按加入顺序返回房间的全部成员 ID。
func (r *roomRepository) Members(roomID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.RoomMember{}).
		Where("room_id = ?", roomID).
		Order("position").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ResolveRecipients 返回房间内除发送者以外的成员 ID。
func (r *roomRepository) ResolveRecipients(roomID, senderID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.RoomMember{}).
		Where("room_id = ? AND user_id <> ?", roomID, senderID).
		Order("position").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListRoomIDs 返回用户所在的全部房间 ID。
func (r *roomRepository) ListRoomIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.RoomMember{}).
		Where("user_id = ?", userID).
		Pluck("room_id", &ids).Error
	return ids, err
}

// Delete 在一个事务内删除房间及其成员关系。
// 对应容器的消息日志清理由上层以尽力而为的方式级联执行。
func (r *roomRepository) Delete(roomID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&model.Room{}, roomID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("room_id = ?", roomID).Delete(&model.RoomMember{}).Error
	})
}
