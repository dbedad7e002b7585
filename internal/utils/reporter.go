package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// ReportPath 报告文件路径, 每次运行一个文件
func (r *Reporter) ReportPath(summary *models.RunSummary) string {
	name := fmt.Sprintf("run_%s_%s.json", summary.StartedAt.Format("20060102_150405"), shortID(summary.RunID))
	return filepath.Join(r.outputDir, "reports", name)
}

// GenerateReport 写入JSON报告, 返回报告路径
func (r *Reporter) GenerateReport(summary *models.RunSummary) (string, error) {
	path := r.ReportPath(summary)
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	data, err := summary.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// RenderSummary 以表格形式输出每个来源的结果
func RenderSummary(out io.Writer, summary *models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"来源", "状态", "续抓起点", "新增", "跳过", "批次", "位置", "耗时", "错误"})

	for _, res := range summary.Results {
		t.AppendRow(table.Row{
			res.Source,
			res.State,
			res.ResumedFrom,
			res.Extracted,
			res.Skipped,
			res.Batches,
			res.Position,
			res.Duration.Round(time.Second),
			truncate(res.Error, 60),
		})
	}

	finished, aborted, extracted, skipped := summary.Totals()
	t.AppendFooter(table.Row{
		fmt.Sprintf("完成 %d / 中止 %d", finished, aborted), "", "", extracted, skipped, "", "",
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second), "",
	})
	t.Render()
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("reviews"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
