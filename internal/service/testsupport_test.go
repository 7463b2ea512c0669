package service

import (
	"context"
	"sync"
	"testing"

	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"
	"heartalk-go/pkg/llm"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// publishedEvent 记录一次扇出调用。
type publishedEvent struct {
	Topic string
	Event interface{}
}

// fakePublisher 把扇出调用记录在内存里，供断言使用。
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(topic string, event interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event})
}

// byTopic 返回发往指定主题的全部事件。
func (p *fakePublisher) byTopic(topic string) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []interface{}
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e.Event)
		}
	}
	return out
}

// fakeLLM 返回固定的回复文本。
type fakeLLM struct {
	reply string
	err   error
	// calls 记录每次调用收到的消息列表
	calls [][]llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Room{},
		&model.RoomMember{},
		&model.ChatSession{},
		&model.UnreadCounter{},
	))
	return db
}

func newTestMessageRepo(t *testing.T) repository.MessageRepository {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewMessageRepository(db)
}
