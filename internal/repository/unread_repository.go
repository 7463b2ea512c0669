// Package repository 提供了数据访问层的实现。
package repository

import (
	"heartalk-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnreadRepository 定义了未读计数器的持久化操作。
type UnreadRepository interface {
	// Increment 对 (user, room) 的计数器加一；行不存在时以 1 创建。
	Increment(userID, roomID uint) error
	// Reset 把已存在的计数器清零；行不存在时不做任何事，绝不为清零而建行。
	Reset(userID, roomID uint) error
	// BatchGet 返回给定房间中存在计数行的稀疏映射；缺失的键语义上等于 0。
	BatchGet(userID uint, roomIDs []uint) (map[uint]int, error)
}

// unreadRepository 是 UnreadRepository 接口的 GORM 实现。
type unreadRepository struct {
	db *gorm.DB
}

// NewUnreadRepository 创建一个新的 UnreadRepository 实例。
func NewUnreadRepository(db *gorm.DB) UnreadRepository {
	return &unreadRepository{db: db}
}

// Increment 以单条原子 upsert 完成自增，并发自增不会丢失更新。
func (r *unreadRepository) Increment(userID, roomID uint) error {
	counter := &model.UnreadCounter{UserID: userID, RoomID: roomID, Count: 1}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("count + 1"),
		}),
	}).Create(counter).Error
}

// Reset 把计数器清零。行不存在时 RowsAffected 为 0，按无事发生处理。
func (r *unreadRepository) Reset(userID, roomID uint) error {
	return r.db.Model(&model.UnreadCounter{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Update("count", 0).Error
}

// BatchGet 查询用户在给定房间的未读计数，只返回存在的行。
// 输入为空时直接短路返回，不发起任何查询。
func (r *unreadRepository) BatchGet(userID uint, roomIDs []uint) (map[uint]int, error) {
	result := make(map[uint]int)
	if len(roomIDs) == 0 {
		return result, nil
	}

	var counters []model.UnreadCounter
	err := r.db.Where("user_id = ? AND room_id IN ?", userID, roomIDs).
		Find(&counters).Error
	if err != nil {
		return nil, err
	}
	for _, c := range counters {
		result[c.RoomID] = c.Count
	}
	return result, nil
}
