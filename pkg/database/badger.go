package database

import (
	"heartalk-go/pkg/log"

	"github.com/dgraph-io/badger/v4"
)

var MsgDB *badger.DB

// InitBadger 初始化消息日志使用的 BadgerDB。
// 消息按容器分区、以毫秒时间戳为排序键追加写入，与注册表（MySQL）相互独立。
func InitBadger(path string) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger 自带的日志过于冗长，统一走 zap

	var err error
	MsgDB, err = badger.Open(opts)
	if err != nil {
		log.Fatal("failed to open badger message log", err)
	}

	log.Infof("Badger message log opened at %s", path)
}

// CloseBadger 在进程退出前关闭消息日志，刷新尚未落盘的数据。
func CloseBadger() {
	if MsgDB != nil {
		if err := MsgDB.Close(); err != nil {
			log.Error("failed to close badger message log", err)
		}
	}
}
