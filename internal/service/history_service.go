// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"

	"heartalk-go/internal/hub"
	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"
	"heartalk-go/pkg/es"

	"gorm.io/gorm"
)

// RoomSummary 是会话列表中一个房间的概要。
type RoomSummary struct {
	RoomID      uint           `json:"roomId"`
	MemberIDs   []uint         `json:"memberIds"`
	LastMessage *model.Message `json:"lastMessage,omitempty"`
	UnreadCount int            `json:"unreadCount"`
}

// SessionSummary 是会话列表中一个 AI 会话的概要。
type SessionSummary struct {
	Session     model.ChatSession `json:"session"`
	LastMessage *model.Message    `json:"lastMessage,omitempty"`
}

// ConversationList 是用户全部聊天容器的概览。
type ConversationList struct {
	Rooms    []RoomSummary    `json:"rooms"`
	Sessions []SessionSummary `json:"sessions"`
}

// HistoryService 提供历史与已读状态的读路径：先经注册表鉴权，再扫描消息日志。
type HistoryService interface {
	RoomMessages(userID, roomID uint) ([]model.Message, error)
	SessionMessages(userID, sessionID uint) ([]model.Message, error)
	// MarkRoomRead 把用户在该房间的未读计数清零。
	MarkRoomRead(userID, roomID uint) error
	// Conversations 返回用户的全部房间与会话，带最新消息和未读计数。
	Conversations(userID uint) (*ConversationList, error)
	// SearchMessages 在用户可见的容器范围内做关键词检索。
	SearchMessages(ctx context.Context, userID uint, query string, limit int) ([]model.Message, error)
	// TopicsForUser 返回连接建立时需要订阅的全部主题：
	// 个人主题，加上用户每个房间与会话的容器主题。
	TopicsForUser(userID uint) ([]string, error)
}

type historyService struct {
	roomRepo    repository.RoomRepository
	sessionRepo repository.SessionRepository
	msgRepo     repository.MessageRepository
	unreadRepo  repository.UnreadRepository
	esIndex     string
}

// NewHistoryService 创建一个新的 HistoryService 实例。
func NewHistoryService(
	roomRepo repository.RoomRepository,
	sessionRepo repository.SessionRepository,
	msgRepo repository.MessageRepository,
	unreadRepo repository.UnreadRepository,
	esIndex string,
) HistoryService {
	return &historyService{
		roomRepo:    roomRepo,
		sessionRepo: sessionRepo,
		msgRepo:     msgRepo,
		unreadRepo:  unreadRepo,
		esIndex:     esIndex,
	}
}

// RoomMessages 返回房间内按时间升序的全部消息。
func (s *historyService) RoomMessages(userID, roomID uint) ([]model.Message, error) {
	ok, err := s.roomRepo.IsMember(roomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.msgRepo.ListByContainer(model.RoomKey(roomID))
}

// SessionMessages 返回会话内按时间升序的全部消息。
func (s *historyService) SessionMessages(userID, sessionID uint) ([]model.Message, error) {
	_, err := s.sessionRepo.FindByIDAndOwner(sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.msgRepo.ListByContainer(model.SessionKey(sessionID))
}

// MarkRoomRead 把用户在该房间的未读计数清零。
func (s *historyService) MarkRoomRead(userID, roomID uint) error {
	ok, err := s.roomRepo.IsMember(roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.unreadRepo.Reset(userID, roomID)
}

// Conversations 汇总用户的房间与会话：逐容器取最新消息，未读计数一次批量读取。
func (s *historyService) Conversations(userID uint) (*ConversationList, error) {
	roomIDs, err := s.roomRepo.ListRoomIDs(userID)
	if err != nil {
		return nil, err
	}

	roomKeys := make([]string, 0, len(roomIDs))
	for _, id := range roomIDs {
		roomKeys = append(roomKeys, model.RoomKey(id))
	}
	roomLatest, err := s.msgRepo.LatestForMany(roomKeys)
	if err != nil {
		return nil, err
	}
	unread, err := s.unreadRepo.BatchGet(userID, roomIDs)
	if err != nil {
		return nil, err
	}

	rooms := make([]RoomSummary, 0, len(roomIDs))
	for _, id := range roomIDs {
		members, err := s.roomRepo.Members(id)
		if err != nil {
			return nil, err
		}
		summary := RoomSummary{
			RoomID:      id,
			MemberIDs:   members,
			UnreadCount: unread[id], // 缺失的键即 0
		}
		if latest, ok := roomLatest[model.RoomKey(id)]; ok {
			m := latest
			summary.LastMessage = &m
		}
		rooms = append(rooms, summary)
	}

	sessions, err := s.sessionRepo.ListByOwner(userID)
	if err != nil {
		return nil, err
	}
	sessionKeys := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		sessionKeys = append(sessionKeys, model.SessionKey(sess.ID))
	}
	sessionLatest, err := s.msgRepo.LatestForMany(sessionKeys)
	if err != nil {
		return nil, err
	}

	sessionSummaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summary := SessionSummary{Session: sess}
		if latest, ok := sessionLatest[model.SessionKey(sess.ID)]; ok {
			m := latest
			summary.LastMessage = &m
		}
		sessionSummaries = append(sessionSummaries, summary)
	}

	return &ConversationList{Rooms: rooms, Sessions: sessionSummaries}, nil
}

// TopicsForUser 返回用户需要订阅的全部主题。
func (s *historyService) TopicsForUser(userID uint) ([]string, error) {
	roomIDs, err := s.roomRepo.ListRoomIDs(userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessionRepo.ListByOwner(userID)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(roomIDs)+len(sessions)+1)
	topics = append(topics, hub.UserTopic(userID))
	for _, id := range roomIDs {
		topics = append(topics, hub.RoomTopic(id))
	}
	for _, sess := range sessions {
		topics = append(topics, hub.SessionTopic(sess.ID))
	}
	return topics, nil
}

// SearchMessages 在用户的全部容器内做关键词检索。
func (s *historyService) SearchMessages(ctx context.Context, userID uint, query string, limit int) ([]model.Message, error) {
	if s.esIndex == "" || es.ESClient == nil {
		return nil, errors.New("message search is not enabled")
	}

	roomIDs, err := s.roomRepo.ListRoomIDs(userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessionRepo.ListByOwner(userID)
	if err != nil {
		return nil, err
	}

	containers := make([]string, 0, len(roomIDs)+len(sessions))
	for _, id := range roomIDs {
		containers = append(containers, model.RoomKey(id))
	}
	for _, sess := range sessions {
		containers = append(containers, model.SessionKey(sess.ID))
	}
	if len(containers) == 0 {
		return []model.Message{}, nil
	}

	return es.SearchMessages(ctx, s.esIndex, containers, query, limit)
}
