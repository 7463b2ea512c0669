// Package repository 提供了数据访问层的实现。
package repository

import (
	"heartalk-go/internal/model"

	"gorm.io/gorm"
)

// SessionRepository 定义了会话注册表的持久化操作。
// 会话归属其创建者独有；所有按 id 的查询都同时校验 owner，
// 非拥有者统一得到 not-found，不向外泄露会话是否存在。
type SessionRepository interface {
	Create(session *model.ChatSession) error
	FindByIDAndOwner(sessionID, ownerID uint) (*model.ChatSession, error)
	UpdateTitle(sessionID, ownerID uint, title string) error
	Delete(sessionID, ownerID uint) error
	ListByOwner(ownerID uint) ([]model.ChatSession, error)
}

// sessionRepository 是 SessionRepository 接口的 GORM 实现。
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create 在数据库中创建一条新的会话记录。
func (r *sessionRepository) Create(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

// FindByIDAndOwner 根据会话 ID 与拥有者查找会话。
func (r *sessionRepository) FindByIDAndOwner(sessionID, ownerID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("id = ? AND user_id = ?", sessionID, ownerID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateTitle 更新会话标题。
func (r *sessionRepository) UpdateTitle(sessionID, ownerID uint, title string) error {
	result := r.db.Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", sessionID, ownerID).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete 删除会话记录；会话不存在或不属于该用户时返回 not-found。
func (r *sessionRepository) Delete(sessionID, ownerID uint) error {
	result := r.db.Where("id = ? AND user_id = ?", sessionID, ownerID).
		Delete(&model.ChatSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByOwner 按创建时间倒序返回用户的全部会话。
func (r *sessionRepository) ListByOwner(ownerID uint) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}
