// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// UnreadCounter 对应于数据库中的 'unread_counters' 表。
// 以 (user_id, room_id) 为复合主键；没有行即视为 0，首次自增时才惰性创建。
type UnreadCounter struct {
	UserID    uint      `gorm:"primaryKey" json:"userId"`
	RoomID    uint      `gorm:"primaryKey" json:"roomId"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UnreadCounter) TableName() string {
	return "unread_counters"
}
