// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"heartalk-go/internal/hub"
	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"
	"heartalk-go/pkg/es"
	"heartalk-go/pkg/kafka"
	"heartalk-go/pkg/llm"
	"heartalk-go/pkg/log"

	"gorm.io/gorm"
)

// 会话标题取自首条消息的前 30 个字符，超出部分以省略号截断。
const sessionTitleLimit = 30

const defaultSystemPrompt = "你是一位真诚友善的聊天陪练，帮助用户练习日常对话。回复保持简短自然。"

// SessionService 定义了 AI 陪练会话的业务操作。
type SessionService interface {
	// SendMessage 处理一条会话消息。sessionID 为 nil 时先隐式创建会话
	// （标题取自消息内容），再走与既有会话相同的追加/扇出/回复路径。
	SendMessage(ctx context.Context, userID uint, sessionID *uint, content, role string) (*model.Message, *model.ChatSession, error)
	// AppendAssistantReply 持久化一条 assistant 消息并扇出。
	// 同步生成与异步回调（aichat.response）共用这一条路径。
	AppendAssistantReply(ctx context.Context, sessionID, userID uint, content string) (*model.Message, error)
	// DeleteSession 删除会话（仅拥有者），级联清空消息日志并广播删除事件。
	DeleteSession(ctx context.Context, sessionID, userID uint) error
	// UpdateTitle 重命名会话。
	UpdateTitle(sessionID, userID uint, title string) error

	// ProcessReplyTask 消费一条 Kafka 回复任务（kafka.ReplyProcessor）。
	ProcessReplyTask(ctx context.Context, task kafka.ReplyTask) error
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	msgRepo     repository.MessageRepository
	llmClient   llm.Client
	publisher   hub.Publisher
	// asyncReplies 开启后回复生成经 Kafka 异步执行
	asyncReplies bool
	systemPrompt string
	historyLimit int
	esIndex      string
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(
	sessionRepo repository.SessionRepository,
	msgRepo repository.MessageRepository,
	llmClient llm.Client,
	publisher hub.Publisher,
	asyncReplies bool,
	systemPrompt string,
	historyLimit int,
	esIndex string,
) SessionService {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &sessionService{
		sessionRepo:  sessionRepo,
		msgRepo:      msgRepo,
		llmClient:    llmClient,
		publisher:    publisher,
		asyncReplies: asyncReplies,
		systemPrompt: systemPrompt,
		historyLimit: historyLimit,
		esIndex:      esIndex,
	}
}

// SendMessage 处理一条会话消息：解析/创建会话 → 追加 → 扇出 → 触发回复。
func (s *sessionService) SendMessage(ctx context.Context, userID uint, sessionID *uint, content, role string) (*model.Message, *model.ChatSession, error) {
	var session *model.ChatSession
	var err error

	if sessionID == nil {
		// 首条消息隐式创建会话，并在发送者个人主题上回传生成的会话 id
		session = &model.ChatSession{
			UserID: userID,
			Title:  deriveTitle(content),
			Kind:   model.SessionKindAIPractice,
		}
		if err := s.sessionRepo.Create(session); err != nil {
			return nil, nil, err
		}
		s.publisher.Publish(hub.UserTopic(userID), hub.NewSessionCreatedEvent(session))
	} else {
		session, err = s.sessionRepo.FindByIDAndOwner(*sessionID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, ErrNotFound
			}
			return nil, nil, err
		}
	}

	if role == "" {
		role = model.RoleUser
	}

	msg, err := s.msgRepo.Append(model.SessionKey(session.ID), userID, role, content)
	if err != nil {
		return nil, nil, err
	}
	s.publisher.Publish(hub.SessionTopic(session.ID), hub.NewMessageEvent(msg))
	s.indexMessage(ctx, msg)

	// 只有用户消息才触发 AI 回复
	if role == model.RoleUser {
		if s.asyncReplies {
			task := kafka.ReplyTask{SessionID: session.ID, UserID: userID, Content: content}
			if err := kafka.ProduceReplyTask(task); err != nil {
				return nil, nil, fmt.Errorf("failed to enqueue reply task: %w", err)
			}
		} else {
			if err := s.generateAndAppendReply(ctx, session); err != nil {
				// 用户消息已持久化并扇出；回复失败按下游失败处理
				return nil, nil, err
			}
		}
	}

	return msg, session, nil
}

// AppendAssistantReply 持久化一条 assistant 消息并在会话主题上扇出。
func (s *sessionService) AppendAssistantReply(ctx context.Context, sessionID, userID uint, content string) (*model.Message, error) {
	session, err := s.sessionRepo.FindByIDAndOwner(sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msg, err := s.msgRepo.Append(model.SessionKey(session.ID), userID, model.RoleAssistant, content)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(hub.SessionTopic(session.ID), hub.NewMessageEvent(msg))
	s.indexMessage(ctx, msg)
	return msg, nil
}

// DeleteSession 删除会话并级联清理其消息日志。
// 注册表行先删，日志清理失败只记录日志，留待后续清扫。
func (s *sessionService) DeleteSession(ctx context.Context, sessionID, userID uint) error {
	if err := s.sessionRepo.Delete(sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.msgRepo.DeleteAll(model.SessionKey(sessionID)); err != nil {
		log.Errorw("会话消息日志级联清理失败", "sessionId", sessionID, "error", err)
	}
	s.publisher.Publish(hub.UserTopic(userID), hub.NewSessionDeletedEvent(sessionID))
	return nil
}

// UpdateTitle 重命名会话。
func (s *sessionService) UpdateTitle(sessionID, userID uint, title string) error {
	err := s.sessionRepo.UpdateTitle(sessionID, userID, title)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ProcessReplyTask 处理一条异步回复任务：生成回复文本并走统一的追加路径。
func (s *sessionService) ProcessReplyTask(ctx context.Context, task kafka.ReplyTask) error {
	session, err := s.sessionRepo.FindByIDAndOwner(task.SessionID, task.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 会话在任务处理前被删除，任务作废
			log.Warnw("回复任务对应的会话已不存在", "sessionId", task.SessionID)
			return nil
		}
		return err
	}
	return s.generateAndAppendReply(ctx, session)
}

// generateAndAppendReply 根据会话历史调用回复生成器，并持久化 assistant 消息。
func (s *sessionService) generateAndAppendReply(ctx context.Context, session *model.ChatSession) error {
	history, err := s.msgRepo.ListByContainer(model.SessionKey(session.ID))
	if err != nil {
		return err
	}
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: s.systemPrompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := s.llmClient.Complete(ctx, messages)
	if err != nil {
		return fmt.Errorf("failed to generate reply: %w", err)
	}

	_, err = s.AppendAssistantReply(ctx, session.ID, session.UserID, reply)
	return err
}

// deriveTitle 从首条消息内容派生会话标题：
// 取前 30 个字符（按 rune 计），超长时以省略号结尾。
func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	runes := []rune(title)
	if len(runes) <= sessionTitleLimit {
		return title
	}
	return string(runes[:sessionTitleLimit]) + "…"
}

func (s *sessionService) indexMessage(ctx context.Context, msg *model.Message) {
	if s.esIndex == "" || es.ESClient == nil {
		return
	}
	if err := es.IndexMessage(ctx, s.esIndex, msg); err != nil {
		log.Warnw("消息索引失败", "messageId", msg.ID, "error", err)
	}
}
