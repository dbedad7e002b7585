package crawlers

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/andybalholm/brotli"
)

// snapshotName 快照文件名: batch_<start>_<end>.html[.br]
var snapshotName = regexp.MustCompile(`^batch_(\d+)_(\d+)\.html(\.br)?$`)

// SnapshotArchive 保存每个批次解析时使用的页面快照
// 快照以brotli压缩存放在 <output>/snapshots/<source>/ 下, 供离线重新解析
type SnapshotArchive struct {
	dir     string
	enabled bool
	quality int
}

// SnapshotFile 一个已归档的快照
type SnapshotFile struct {
	Path  string
	Start int
	End   int
}

// NewSnapshotArchive 创建快照归档
func NewSnapshotArchive(outputDir string, enabled bool) *SnapshotArchive {
	return &SnapshotArchive{
		dir:     filepath.Join(outputDir, "snapshots"),
		enabled: enabled,
		quality: brotli.DefaultCompression,
	}
}

// Enabled 是否启用
func (a *SnapshotArchive) Enabled() bool {
	return a != nil && a.enabled
}

// SourceDir 来源的快照目录
func (a *SnapshotArchive) SourceDir(slug string) string {
	return filepath.Join(a.dir, slug)
}

// Save 压缩并写入一个批次的快照, 未启用时返回空路径
func (a *SnapshotArchive) Save(slug string, start, end int, markup string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}

	dir := a.SourceDir(slug)
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("创建快照目录失败: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("batch_%d_%d.html.br", start, end))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建快照文件失败: %w", err)
	}
	defer f.Close()

	w := brotli.NewWriterLevel(f, a.quality)
	if _, err := io.WriteString(w, markup); err != nil {
		return "", fmt.Errorf("写入快照失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("压缩快照失败: %w", err)
	}
	return path, nil
}

// ListSnapshots 按批次起点升序列出目录下的快照
func ListSnapshots(dir string) ([]SnapshotFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取快照目录失败: %w", err)
	}

	var files []SnapshotFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := snapshotName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		files = append(files, SnapshotFile{
			Path:  filepath.Join(dir, entry.Name()),
			Start: start,
			End:   end,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Start < files[j].Start
	})
	return files, nil
}

// ReadSnapshot 读取快照, .br 后缀的文件自动解压
func ReadSnapshot(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".br") {
		return raw, nil
	}
	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("brotli读取失败: %w", err)
	}
	return decompressed, nil
}
