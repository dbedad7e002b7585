package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
)

// StatsFile 批次统计表文件名
const StatsFile = "batch_stats.csv"

// CSVStore 每个来源一个CSV文件, 批次统计写入单独的CSV
type CSVStore struct {
	opts Options

	stats   *os.File
	statsW  *csv.Writer
	statsMu sync.Mutex
}

// NewCSVStore 创建CSV存储
func NewCSVStore(opts Options) (*CSVStore, error) {
	if err := utils.EnsureDir(opts.Dir); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	return &CSVStore{opts: opts}, nil
}

// Path 来源的输出文件路径
func (s *CSVStore) Path(source models.SourceDescriptor) string {
	return filepath.Join(s.opts.Dir, source.Slug()+".csv")
}

// ResumePosition 统计已有数据行数(不含表头)
// 按CSV记录计数, 含换行的正文不会被误算为多行
func (s *CSVStore) ResumePosition(source models.SourceDescriptor) (int, error) {
	n, err := CountRecords(s.Path(source))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}

// CountRecords 统计CSV文件中的记录数(含表头), 文件不存在时返回0
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("打开输出文件失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	count := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("读取输出文件失败 [%s] 第%d条记录: %w", path, count+1, err)
		}
		count++
	}
	return count, nil
}

// Open 以追加方式打开来源的输出文件, 新文件先写表头
func (s *CSVStore) Open(source models.SourceDescriptor) (Sink, error) {
	sink, err := openCSVSink(s.Path(source), s.opts.IncludeSourceURL, source.URL, false)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// CreateCSV 新建(覆盖)一个输出文件, 用于离线重解析
func CreateCSV(path string, includeSourceURL bool, sourceURL string) (Sink, error) {
	sink, err := openCSVSink(path, includeSourceURL, sourceURL, true)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// RecordStats 追加一行批次统计
func (s *CSVStore) RecordStats(stats models.BatchStats) error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	if s.statsW == nil {
		path := filepath.Join(s.opts.Dir, StatsFile)
		f, isNew, err := openAppend(path, false)
		if err != nil {
			return fmt.Errorf("打开统计文件失败: %w", err)
		}
		s.stats = f
		s.statsW = csv.NewWriter(f)
		if isNew {
			if err := s.statsW.Write(models.StatsColumns); err != nil {
				return err
			}
		}
	}

	row := []string{
		stats.Source,
		strconv.Itoa(stats.BatchStart),
		strconv.Itoa(stats.BatchEnd),
		strconv.Itoa(stats.BatchSize),
		strconv.FormatFloat(stats.ElapsedSeconds, 'f', 2, 64),
	}
	if err := s.statsW.Write(row); err != nil {
		return fmt.Errorf("写入统计失败: %w", err)
	}
	s.statsW.Flush()
	return s.statsW.Error()
}

// Close 关闭统计文件
func (s *CSVStore) Close() error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats == nil {
		return nil
	}
	s.statsW.Flush()
	err := errors.Join(s.statsW.Error(), s.stats.Close())
	s.stats, s.statsW = nil, nil
	return err
}

// csvSink 单个CSV输出文件
type csvSink struct {
	f         *os.File
	w         *csv.Writer
	sourceURL string
	withURL   bool
}

func openCSVSink(path string, includeSourceURL bool, sourceURL string, truncate bool) (*csvSink, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, isNew, err := openAppend(path, truncate)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	sink := &csvSink{
		f:         f,
		w:         csv.NewWriter(f),
		sourceURL: sourceURL,
		withURL:   includeSourceURL,
	}
	if isNew {
		if err := sink.w.Write(models.Header(includeSourceURL)); err != nil {
			f.Close()
			return nil, err
		}
		sink.w.Flush()
		if err := sink.w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return sink, nil
}

// openAppend 打开文件用于追加, isNew 表示文件为空(需要写表头)
func openAppend(path string, truncate bool) (*os.File, bool, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, false, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}
	return f, info.Size() == 0, nil
}

// Append 写入记录并刷盘
func (s *csvSink) Append(records []models.ReviewRecord) error {
	for _, r := range records {
		row := r.Row()
		if s.withURL {
			row = append(row, s.sourceURL)
		}
		if err := s.w.Write(row); err != nil {
			return fmt.Errorf("写入记录失败: %w", err)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("刷新输出文件失败: %w", err)
	}
	return s.f.Sync()
}

// Close 关闭文件
func (s *csvSink) Close() error {
	s.w.Flush()
	return errors.Join(s.w.Error(), s.f.Close())
}
