// Package storage 持久化评论记录和批次统计
//
// 续抓位置完全由已写入的数据行数推导, 不单独保存检查点。
// 每个批次写入后立即刷盘, 异常退出时最多丢失正在处理的批次。
package storage

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

// 输出格式
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Sink 单个来源的记录写入端
type Sink interface {
	// Append 追加一个批次的记录并刷盘
	Append(records []models.ReviewRecord) error
	Close() error
}

// Store 输出存储
// 同一时间只被一个抓取流程持有
type Store interface {
	// ResumePosition 返回来源已持久化的记录数, 即下一次抽取的起始索引
	ResumePosition(source models.SourceDescriptor) (int, error)
	// Open 打开来源的写入端, 已有数据保留
	Open(source models.SourceDescriptor) (Sink, error)
	// RecordStats 追加一行批次统计
	RecordStats(stats models.BatchStats) error
	Close() error
}

// Options 存储参数
type Options struct {
	Dir              string // 输出目录
	IncludeSourceURL bool   // 追加来源URL列
}

// New 按格式创建存储
func New(format string, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatCSV:
		store, err = NewCSVStore(opts)
	case FormatSQLite:
		store, err = NewSQLiteStore(opts)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s (可选: %s, %s)", format, FormatCSV, FormatSQLite)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
