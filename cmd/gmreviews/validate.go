package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/core"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/crawlers"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "验证配置文件、来源列表和请求头",
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.Info("🔍 验证配置...")

		headerManager, err := core.NewHeaderManager(appConfig.Headers, headers, appConfig.Browser.AcceptLanguage)
		if err != nil {
			return fmt.Errorf("解析请求头失败: %w", err)
		}
		if err := headerManager.Validate(); err != nil {
			return fmt.Errorf("请求头验证失败: %w", err)
		}
		utils.Infof("请求头: %s", headerManager.GetSafeHeaders())

		sources, err := loadSources()
		if err != nil {
			return err
		}
		renderSources(sources)

		if len(sources) == 0 {
			utils.Warnf("⚠️  没有启用的来源: %s", appConfig.Sources)
		}
		utils.Infof("✅ 配置验证通过! 输出: %s (%s)", appConfig.Output.Dir, appConfig.Output.Format)
		return nil
	},
}

// renderSources 以表格列出本次会处理的来源
func renderSources(sources []models.SourceDescriptor) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"顺序", "名称", "目标数", "排序控件", "加载更多控件", "输出"})
	for _, s := range sources {
		t.AppendRow(table.Row{
			s.Order,
			s.Name,
			s.ReviewLimit,
			locatorKind(s.SortLocator),
			locatorKind(s.LoadMoreLocator),
			s.Slug(),
		})
	}
	t.Render()
}

// locatorKind 定位器类型
func locatorKind(locator string) string {
	if crawlers.IsXPath(locator) {
		return "XPath"
	}
	return "CSS"
}
