// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Room 对应于数据库中的 'rooms' 表。
// 房间是固定成员的双人聊天容器，由外部的房间管理服务创建和销毁。
type Room struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Room) TableName() string {
	return "rooms"
}

// RoomMember 对应于数据库中的 'room_members' 表。
// 成员关系在房间创建时写入，之后不再变动。
type RoomMember struct {
	RoomID uint `gorm:"primaryKey" json:"roomId"`
	UserID uint `gorm:"primaryKey" json:"userId"`
	// Position 记录成员的加入顺序，仅用于保持展示顺序稳定。
	Position int `gorm:"not null;default:0" json:"position"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (RoomMember) TableName() string {
	return "room_members"
}
