package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/126.0.0.0 Safari/537.36"

	// DefaultAcceptLanguage 默认界面语言, 决定评论页的文案和元数据标签
	DefaultAcceptLanguage = "id-ID,id;q=0.9"
)

// HeaderManager 管理浏览器页面的附加请求头
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	defaults http.Header // 系统默认头部
	config   http.Header // 配置文件中的 headers 段
	cli      http.Header // 命令行 -H 参数

	merged    http.Header
	validated bool
}

// NewHeaderManager 创建头部管理器
// acceptLanguage 为空时使用 DefaultAcceptLanguage
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string, acceptLanguage string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: defaultHeaders(acceptLanguage),
		config:   make(http.Header),
		cli:      make(http.Header),
	}

	// viper 会把键名转为小写, Set 时恢复规范形式
	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

func defaultHeaders(acceptLanguage string) http.Header {
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept-Language": []string{acceptLanguage},
	}
}

// Validate 按 默认 → 配置 → 命令行 的顺序验证
func (hm *HeaderManager) Validate() error {
	if err := utils.ValidateHeaders(hm.defaults); err != nil {
		return fmt.Errorf("默认头部验证失败: %w", err)
	}
	if err := utils.ValidateHeaders(hm.config); err != nil {
		return fmt.Errorf("配置文件头部验证失败: %w", err)
	}
	if err := utils.ValidateHeaders(hm.cli); err != nil {
		return fmt.Errorf("命令行头部验证失败: %w", err)
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的头部, 用于日志
func (hm *HeaderManager) GetSafeHeaders() string {
	return utils.RedactToString(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口, 第一次调用时验证
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if !hm.validated {
		if err := hm.Validate(); err != nil {
			return nil, err
		}
		hm.merged = hm.GetMergedHeaders()
		hm.validated = true
		utils.Debugf("页面附加请求头: %s", hm.GetSafeHeaders())
	}
	return hm.merged.Clone(), nil
}
