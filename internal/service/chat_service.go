// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"

	"heartalk-go/internal/hub"
	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"
	"heartalk-go/pkg/es"
	"heartalk-go/pkg/log"

	"gorm.io/gorm"
)

// ChatService 定义了双人房间聊天的业务操作。
type ChatService interface {
	// SendRoomMessage 持久化一条房间消息并完成扇出与未读自增。
	// 消息写入与计数器自增是两次独立写入，不在同一事务内；
	// 两者之间崩溃会留下"消息可见但计数未加"的窗口，按尽力而为语义接受。
	SendRoomMessage(ctx context.Context, senderID, roomID uint, content string) (*model.Message, error)
	// DeleteRoomMessage 删除一条房间消息并广播删除事件；不回退未读计数。
	DeleteRoomMessage(ctx context.Context, userID, roomID uint, messageID string) error
	// CreateRoom 为外部房间管理服务提供的创建入口。
	CreateRoom(memberIDs []uint) (*model.Room, error)
	// DeleteRoom 删除房间并级联清理其消息日志。
	// 注册表行先删，日志清理失败只记录日志，留待后续清扫。
	DeleteRoom(roomID uint) error
}

type chatService struct {
	roomRepo   repository.RoomRepository
	msgRepo    repository.MessageRepository
	unreadRepo repository.UnreadRepository
	publisher  hub.Publisher
	// esIndex 非空时，消息在持久化后尽力索引到 Elasticsearch
	esIndex string
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	unreadRepo repository.UnreadRepository,
	publisher hub.Publisher,
	esIndex string,
) ChatService {
	return &chatService{
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		unreadRepo: unreadRepo,
		publisher:  publisher,
		esIndex:    esIndex,
	}
}

// SendRoomMessage 处理一条房间消息：鉴权 → 追加 → 扇出 → 未读自增。
func (s *chatService) SendRoomMessage(ctx context.Context, senderID, roomID uint, content string) (*model.Message, error) {
	// 1. 发送者必须是房间成员；否则按 not-found 处理
	ok, err := s.roomRepo.IsMember(roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	// 2. 解析接收者（双人房间即对方一人）
	recipients, err := s.roomRepo.ResolveRecipients(roomID, senderID)
	if err != nil {
		return nil, err
	}

	// 3. 追加到消息日志
	msg, err := s.msgRepo.Append(model.RoomKey(roomID), senderID, model.RoleUser, content)
	if err != nil {
		return nil, err
	}

	// 4. 在房间主题上广播已保存的消息
	s.publisher.Publish(hub.RoomTopic(roomID), hub.NewMessageEvent(msg))

	// 5. 为每个接收者自增未读计数并通知其个人主题。
	//    单个接收者的失败不影响其他人，也不回滚已写入的消息。
	for _, recipient := range recipients {
		if err := s.unreadRepo.Increment(recipient, roomID); err != nil {
			log.Errorw("未读计数自增失败", "userId", recipient, "roomId", roomID, "error", err)
			continue
		}
		s.publisher.Publish(hub.UserTopic(recipient), hub.NewUnreadEvent(roomID, 1))
	}

	s.indexMessage(ctx, msg)
	return msg, nil
}

// DeleteRoomMessage 删除一条消息并广播删除事件。
func (s *chatService) DeleteRoomMessage(ctx context.Context, userID, roomID uint, messageID string) error {
	ok, err := s.roomRepo.IsMember(roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if err := s.msgRepo.DeleteByID(model.RoomKey(roomID), messageID); err != nil {
		return err
	}
	s.publisher.Publish(hub.RoomTopic(roomID), hub.NewDeleteEvent(messageID))

	if s.esIndex != "" && es.ESClient != nil {
		if err := es.DeleteMessage(ctx, s.esIndex, messageID); err != nil {
			log.Warnw("从索引移除消息失败", "messageId", messageID, "error", err)
		}
	}
	return nil
}

// CreateRoom 创建一个固定成员的房间。
func (s *chatService) CreateRoom(memberIDs []uint) (*model.Room, error) {
	return s.roomRepo.Create(memberIDs)
}

// DeleteRoom 删除房间并级联清空其消息日志。
func (s *chatService) DeleteRoom(roomID uint) error {
	if err := s.roomRepo.Delete(roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	// 注册表行已删除；日志清理失败会留下暂时孤立的消息，不影响正确性
	if err := s.msgRepo.DeleteAll(model.RoomKey(roomID)); err != nil {
		log.Errorw("房间消息日志级联清理失败", "roomId", roomID, "error", err)
	}
	return nil
}

func (s *chatService) indexMessage(ctx context.Context, msg *model.Message) {
	if s.esIndex == "" || es.ESClient == nil {
		return
	}
	if err := es.IndexMessage(ctx, s.esIndex, msg); err != nil {
		log.Warnw("消息索引失败", "messageId", msg.ID, "error", err)
	}
}
