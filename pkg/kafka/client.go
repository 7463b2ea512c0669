// Package kafka 提供了与 Kafka 消息队列交互的功能。
// 开启异步模式后，AI 回复的生成任务经由 Kafka 解耦执行。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"heartalk-go/internal/config"
	"heartalk-go/pkg/database"
	"heartalk-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// ReplyTask 是一个待生成 AI 回复的会话消息任务。
type ReplyTask struct {
	SessionID uint   `json:"session_id"`
	UserID    uint   `json:"user_id"`
	Content   string `json:"content"`
}

// ReplyProcessor defines the interface for any service that can process a reply task.
// This decouples the Kafka consumer from the concrete session service implementation.
type ReplyProcessor interface {
	ProcessReplyTask(ctx context.Context, task ReplyTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceReplyTask 发送一个回复生成任务到 Kafka。
func ProduceReplyTask(task ReplyTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理回复生成任务。
func StartConsumer(cfg config.KafkaConfig, processor ReplyProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "heartalk-go-reply-worker",
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break // 退出循环，可能需要重启策略
		}

		var task ReplyTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infow("开始处理回复任务", "sessionId", task.SessionID, "userId", task.UserID)
		if err := processor.ProcessReplyTask(context.Background(), task); err != nil {
			log.Errorw("处理回复任务失败", "sessionId", task.SessionID, "error", err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%d:%d", task.SessionID, m.Offset)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorw("回复任务多次失败(>=3)，提交 offset 终止重试", "sessionId", task.SessionID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			// 任务处理成功后，清理失败计数并手动提交 offset
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%d:%d", task.SessionID, m.Offset)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
