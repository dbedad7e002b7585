package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

// MaxHeaderValueLength 头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)

	// browserManagedHeaders 由浏览器自己维护, 通过 SetExtraHeaders 设置会破坏请求
	browserManagedHeaders = map[string]bool{
		"host":              true,
		"content-length":    true,
		"transfer-encoding": true,
		"connection":        true,
		"upgrade":           true,
	}

	// sensitiveKeywords 头部名称包含这些关键字时日志中脱敏
	sensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}
)

// ValidateHeader 校验单个附加请求头
func ValidateHeader(name, value string) error {
	if browserManagedHeaders[strings.ToLower(name)] {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由浏览器自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	}
	if name == "" || !headerNamePattern.MatchString(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称为空或包含非法字符 (仅允许字母、数字和连字符)",
			Suggestion: "使用如 'User-Agent', 'Accept-Language' 的名称",
		}
	}
	if len(value) > MaxHeaderValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	}
	if !headerValuePattern.MatchString(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
			Suggestion: "移除控制字符和非ASCII字符",
		}
	}
	return nil
}

// ValidateHeaders 校验全部头部, 返回第一个错误
func ValidateHeaders(headers http.Header) error {
	names := sortedNames(headers)
	for _, name := range names {
		for _, value := range headers[name] {
			if err := ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsSensitiveHeader 头部是否需要脱敏
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range sensitiveKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏: 长值保留首尾4位, 短值完全隐藏
func RedactHeaderValue(name, value string) string {
	if !IsSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactToString 脱敏后按名称排序输出, 格式 "Name: value, ..."
func RedactToString(headers http.Header) string {
	parts := make([]string, 0, len(headers))
	for _, name := range sortedNames(headers) {
		if values := headers[name]; len(values) > 0 {
			parts = append(parts, name+": "+RedactHeaderValue(name, values[0]))
		}
	}
	return strings.Join(parts, ", ")
}

func sortedNames(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
