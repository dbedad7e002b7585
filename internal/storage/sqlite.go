package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"

	_ "modernc.org/sqlite"
)

// DatabaseFile SQLite数据库文件名
const DatabaseFile = "reviews.db"

//go:embed schema.sql
var Schema string

const insertReview = `INSERT INTO reviews (
	source, position, name, username, user_photo, rating, timestamp,
	caption, review_id, visit_time, queue_time, reservation_note, source_url
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteStore 所有来源写入同一个数据库
// position 为记录在来源中的抽取序号, 续抓位置即该来源的记录数
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteStore 打开(或创建) <output>/reviews.db
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	if err := utils.EnsureDir(opts.Dir); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	dsn := filepath.Join(opts.Dir, DatabaseFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return OpenSQLite(dsn, opts)
}

// OpenSQLite 使用指定DSN打开数据库并初始化表结构
func OpenSQLite(dsn string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 单连接, 保证 :memory: 数据库在各调用间共享
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库表失败: %w", err)
	}
	return &SQLiteStore{db: db, opts: opts}, nil
}

// ResumePosition 来源已有的记录数
func (s *SQLiteStore) ResumePosition(source models.SourceDescriptor) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE source = ?`, source.Name).Scan(&n); err != nil {
		return 0, fmt.Errorf("查询已有记录数失败: %w", err)
	}
	return n, nil
}

// Open 打开来源的写入端
func (s *SQLiteStore) Open(source models.SourceDescriptor) (Sink, error) {
	next, err := s.ResumePosition(source)
	if err != nil {
		return nil, err
	}
	sink := &sqliteSink{db: s.db, source: source.Name, next: next}
	if s.opts.IncludeSourceURL {
		sink.sourceURL = source.URL
	}
	return sink, nil
}

// RecordStats 写入一行批次统计
func (s *SQLiteStore) RecordStats(stats models.BatchStats) error {
	_, err := s.db.Exec(
		`INSERT INTO batch_stats (source, batch_start, batch_end, batch_size, elapsed_seconds) VALUES (?, ?, ?, ?, ?)`,
		stats.Source, stats.BatchStart, stats.BatchEnd, stats.BatchSize, stats.ElapsedSeconds,
	)
	if err != nil {
		return fmt.Errorf("写入统计失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteSink 单个来源的写入端, 每个批次一个事务
type sqliteSink struct {
	db        *sql.DB
	source    string
	sourceURL string
	next      int
}

// Append 在一个事务中写入整个批次
func (s *sqliteSink) Append(records []models.ReviewRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertReview)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		var rating sql.NullInt64
		if r.Rating.Valid {
			rating = sql.NullInt64{Int64: int64(r.Rating.Value), Valid: true}
		}
		_, err := stmt.Exec(
			s.source, s.next+i, r.Name, r.Username, r.UserPhotoURL, rating, r.Timestamp,
			r.Caption, r.ReviewID, r.VisitTime, r.QueueTime, r.ReservationNote, s.sourceURL,
		)
		if err != nil {
			return fmt.Errorf("写入记录失败 [序号 %d]: %w", s.next+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	s.next += len(records)
	return nil
}

// Close 写入端不持有独立资源
func (s *sqliteSink) Close() error {
	return nil
}
