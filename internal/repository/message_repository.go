// Package repository 提供了数据访问层的实现。
package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"heartalk-go/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MessageRepository 定义了追加型消息日志的操作接口。
// 日志按容器键分区，键内携带零填充的毫秒时间戳，天然按时间升序排列。
type MessageRepository interface {
	Append(container string, senderID uint, role, content string) (*model.Message, error)
	ListByContainer(container string) ([]model.Message, error)
	Latest(container string) (*model.Message, error)
	LatestForMany(containers []string) (map[string]model.Message, error)
	Count(container string) (int, error)
	DeleteAll(container string) error
	DeleteByCreatedAt(container string, createdAt int64) error
	DeleteByID(container, messageID string) error
}

type badgerMessageRepository struct {
	db *badger.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *badger.DB) MessageRepository {
	return &badgerMessageRepository{db: db}
}

// 键格式为 "msg:{container}:{毫秒时间戳，13 位零填充}:{uuid}"：
//  1. 零填充保证字典序与时间序一致；
//  2. uuid 作为尾部区分符，同一毫秒内的多条消息不会互相覆盖
//     （它们之间的相对顺序不作保证）。
func messageKey(container string, createdAt int64, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%013d:%s", container, createdAt, id))
}

func containerPrefix(container string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", container))
}

// Append 持久化一条新消息，写入时分配毫秒时间戳与不透明的消息 id。
func (r *badgerMessageRepository) Append(container string, senderID uint, role, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:        uuid.NewString(),
		Container: container,
		SenderID:  senderID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(container, msg.CreatedAt, msg.ID), value)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// ListByContainer 按时间升序返回容器内的全部消息。
func (r *badgerMessageRepository) ListByContainer(container string) ([]model.Message, error) {
	var messages []model.Message
	prefix := containerPrefix(container)
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg model.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Latest 返回容器内最新的一条消息；容器为空时返回 nil。
func (r *badgerMessageRepository) Latest(container string) (*model.Message, error) {
	var msg *model.Message
	prefix := containerPrefix(container)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// 反向迭代时 seek 到该前缀可能的最大键，第一条有效记录即最新消息
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var m model.Message
		err := it.Item().Value(func(value []byte) error {
			return json.Unmarshal(value, &m)
		})
		if err != nil {
			return err
		}
		msg = &m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read latest message: %w", err)
	}
	return msg, nil
}

// LatestForMany 返回每个容器的最新消息；没有消息的容器不会出现在结果中。
func (r *badgerMessageRepository) LatestForMany(containers []string) (map[string]model.Message, error) {
	result := make(map[string]model.Message, len(containers))
	for _, container := range containers {
		msg, err := r.Latest(container)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			result[container] = *msg
		}
	}
	return result, nil
}

// Count 返回容器内的消息条数，只遍历键、不加载消息体。
func (r *badgerMessageRepository) Count(container string) (int, error) {
	count := 0
	prefix := containerPrefix(container)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// DeleteAll 清空容器内的全部消息。
// 容器本来就没有消息时直接返回，不会发起空键集的批量删除。
func (r *badgerMessageRepository) DeleteAll(container string) error {
	keys, err := r.collectKeys(containerPrefix(container), "")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.deleteKeys(keys)
}

// DeleteByCreatedAt 删除容器内指定时间戳的消息。
func (r *badgerMessageRepository) DeleteByCreatedAt(container string, createdAt int64) error {
	prefix := []byte(fmt.Sprintf("msg:%s:%013d:", container, createdAt))
	keys, err := r.collectKeys(prefix, "")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.deleteKeys(keys)
}

// DeleteByID 删除容器内指定消息 id 的消息。
func (r *badgerMessageRepository) DeleteByID(container, messageID string) error {
	keys, err := r.collectKeys(containerPrefix(container), messageID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.deleteKeys(keys)
}

// collectKeys 收集指定前缀下的键；idSuffix 非空时仅收集以该消息 id 结尾的键。
func (r *badgerMessageRepository) collectKeys(prefix []byte, idSuffix string) ([][]byte, error) {
	var keys [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if idSuffix != "" && !strings.HasSuffix(string(key), ":"+idSuffix) {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect message keys: %w", err)
	}
	return keys, nil
}

func (r *badgerMessageRepository) deleteKeys(keys [][]byte) error {
	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("failed to delete message key: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush message deletes: %w", err)
	}
	return nil
}
