package models

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// SourceDescriptor 一个待抓取的地点页面
// 启动时从配置加载一次, 之后只读
type SourceDescriptor struct {
	Name            string `mapstructure:"name" json:"name"`                           // 显示名, 同时用作输出文件名
	URL             string `mapstructure:"url" json:"url"`                             // 地点评论页URL
	SortLocator     string `mapstructure:"sort_locator" json:"sort_locator"`           // "最新" 排序控件定位器 (XPath或CSS)
	LoadMoreLocator string `mapstructure:"load_more_locator" json:"load_more_locator"` // "加载更多" 控件定位器
	ReviewLimit     int    `mapstructure:"review_limit" json:"review_limit"`           // 目标评论数
	Enabled         bool   `mapstructure:"enabled" json:"enabled"`                     // 是否参与本次运行
	Order           int    `mapstructure:"order" json:"order"`                         // 执行顺序(升序)
}

// Validate 校验单个来源配置
func (s SourceDescriptor) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("来源名称不能为空")
	}
	if err := ValidateURL(s.URL); err != nil {
		return fmt.Errorf("来源 [%s] URL无效: %w", s.Name, err)
	}
	if strings.TrimSpace(s.SortLocator) == "" {
		return fmt.Errorf("来源 [%s] 缺少排序控件定位器", s.Name)
	}
	if strings.TrimSpace(s.LoadMoreLocator) == "" {
		return fmt.Errorf("来源 [%s] 缺少加载更多控件定位器", s.Name)
	}
	if s.ReviewLimit <= 0 {
		return fmt.Errorf("来源 [%s] 目标评论数必须大于0, 当前值: %d", s.Name, s.ReviewLimit)
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Slug 生成文件系统安全的名称
func (s SourceDescriptor) Slug() string {
	slug := slugPattern.ReplaceAllString(strings.TrimSpace(s.Name), "_")
	slug = strings.Trim(slug, "_.")
	if slug == "" {
		return "source"
	}
	return slug
}

// SelectSources 过滤未启用的来源并按 Order 升序排列 (稳定排序)
func SelectSources(all []SourceDescriptor) []SourceDescriptor {
	selected := make([]SourceDescriptor, 0, len(all))
	for _, s := range all {
		if s.Enabled {
			selected = append(selected, s)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Order < selected[j].Order
	})
	return selected
}

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}
