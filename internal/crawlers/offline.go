package crawlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/gocolly/colly/v2"
)

// snapshotHost 离线重解析时快照文件对应的虚拟主机
const snapshotHost = "snapshot.local"

// BlockParser 解析单个评论块
type BlockParser interface {
	ParseIndexed(index int, block *goquery.Selection) (models.ReviewRecord, error)
	Selectors() models.Selectors
}

// RecordWriter 重解析结果的写入目标
type RecordWriter interface {
	Append(records []models.ReviewRecord) error
}

// OfflineStats 重解析统计
type OfflineStats struct {
	Snapshots int
	Records   int
	Failures  int
}

// OfflineReparser 使用Colly遍历已归档的快照并重新解析
// 解析规则更新后无需重新访问页面即可重建输出
type OfflineReparser struct {
	parser BlockParser
}

// NewOfflineReparser 创建离线重解析器
func NewOfflineReparser(parser BlockParser) *OfflineReparser {
	return &OfflineReparser{parser: parser}
}

// Reparse 按批次顺序解析目录下的全部快照, 每个快照只取其批次范围内的评论块
func (r *OfflineReparser) Reparse(dir string, w RecordWriter) (OfflineStats, error) {
	var stats OfflineStats

	files, err := ListSnapshots(dir)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("目录中没有快照: %s", dir)
	}

	for _, file := range files {
		result, err := r.reparseFile(dir, file)
		if err != nil {
			return stats, fmt.Errorf("重解析快照失败 [%s]: %w", filepath.Base(file.Path), err)
		}

		stats.Snapshots++
		stats.Failures += len(result.Failures)
		for _, f := range result.Failures {
			utils.Warnf("跳过评论块 [%s #%d]: %v", filepath.Base(file.Path), f.Index, f.Err)
		}
		if len(result.Records) == 0 {
			continue
		}
		if err := w.Append(result.Records); err != nil {
			return stats, err
		}
		stats.Records += len(result.Records)
	}

	utils.Infof("✅ 离线重解析完成: %d 个快照, %d 条记录, 跳过 %d 条", stats.Snapshots, stats.Records, stats.Failures)
	return stats, nil
}

func (r *OfflineReparser) reparseFile(dir string, file SnapshotFile) (models.BatchResult, error) {
	result := models.BatchResult{Start: file.Start, End: file.End}
	indexed := make(map[int]models.ReviewRecord)

	c := colly.NewCollector(
		colly.MaxBodySize(0),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(&snapshotTransport{root: dir})

	c.OnHTML(r.parser.Selectors().Item, func(e *colly.HTMLElement) {
		if e.Index < file.Start || e.Index >= file.End {
			return
		}
		record, err := r.parser.ParseIndexed(e.Index, e.DOM)
		if err != nil {
			result.Failures = append(result.Failures, models.RecordFailure{Index: e.Index, Err: err})
			return
		}
		indexed[e.Index] = record
	})

	var visitErr error
	c.OnError(func(resp *colly.Response, err error) {
		visitErr = err
	})

	target := url.URL{Scheme: "http", Host: snapshotHost, Path: "/" + filepath.Base(file.Path)}
	if err := c.Visit(target.String()); err != nil {
		return result, err
	}
	if visitErr != nil {
		return result, visitErr
	}

	indices := make([]int, 0, len(indexed))
	for i := range indexed {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		result.Records = append(result.Records, indexed[i])
	}
	return result, nil
}

// snapshotTransport 把虚拟主机上的请求映射为快照目录中的文件
type snapshotTransport struct {
	root string
}

// RoundTrip 实现 http.RoundTripper
func (t *snapshotTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	name := path.Base(req.URL.Path)
	if name == "/" || name == "." || strings.Contains(name, "..") {
		return nil, fmt.Errorf("无效的快照路径: %s", req.URL.Path)
	}

	body, err := ReadSnapshot(filepath.Join(t.root, name))
	if err != nil {
		return nil, err
	}

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
