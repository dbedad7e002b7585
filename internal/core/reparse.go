package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/crawlers"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/storage"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
)

// ReparsedSuffix 离线重解析输出文件的后缀
const ReparsedSuffix = ".reparsed.csv"

// ReparsePath 来源的重解析输出路径
func ReparsePath(outputDir string, src models.SourceDescriptor) string {
	return filepath.Join(outputDir, src.Slug()+ReparsedSuffix)
}

// ReparseSource 用当前的解析规则重新解析来源的归档快照
// 结果写入新的CSV文件, 不影响抓取输出和续抓位置
func ReparseSource(parser crawlers.BlockParser, archive *crawlers.SnapshotArchive, src models.SourceDescriptor, opts storage.Options) (crawlers.OfflineStats, string, error) {
	dir := archive.SourceDir(src.Slug())
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return crawlers.OfflineStats{}, "", fmt.Errorf("来源 [%s] 没有归档快照: %s", src.Name, dir)
	}

	path := ReparsePath(opts.Dir, src)
	sink, err := storage.CreateCSV(path, opts.IncludeSourceURL, src.URL)
	if err != nil {
		return crawlers.OfflineStats{}, "", err
	}

	stats, err := crawlers.NewOfflineReparser(parser).Reparse(dir, sink)
	if closeErr := sink.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		return stats, path, fmt.Errorf("重解析来源 [%s] 失败: %w", src.Name, err)
	}

	utils.Infof("♻️  重解析输出 [%s]: %s", src.Name, path)
	return stats, path, nil
}
