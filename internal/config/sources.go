package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultSourcesFile 默认来源配置文件路径
	DefaultSourcesFile = "configs/sources.yaml"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed sources_template.yaml
var defaultSourcesTemplate string

// SourceDefaults 来源未填写字段时使用的默认值
type SourceDefaults struct {
	SortLocator     string `mapstructure:"sort_locator"`
	LoadMoreLocator string `mapstructure:"load_more_locator"`
	ReviewLimit     int    `mapstructure:"review_limit"`
}

// SourcesFile 来源配置文件结构
type SourcesFile struct {
	Defaults SourceDefaults            `mapstructure:"defaults"`
	Sources  []models.SourceDescriptor `mapstructure:"sources"`
}

// SourceConfigLoader 来源配置加载器
// 负责生成模板、限制文件大小、解析和校验来源列表
type SourceConfigLoader struct {
	configPath string
}

// NewSourceConfigLoader 创建来源配置加载器
func NewSourceConfigLoader(configPath string) *SourceConfigLoader {
	if configPath == "" {
		configPath = DefaultSourcesFile
	}
	return &SourceConfigLoader{configPath: configPath}
}

// Path 配置文件路径
func (l *SourceConfigLoader) Path() string {
	return l.configPath
}

// EnsureConfigExists 配置文件不存在时写入模板
// 返回值 created 表示本次新生成了模板
func (l *SourceConfigLoader) EnsureConfigExists() (created bool, err error) {
	if _, err := os.Stat(l.configPath); !os.IsNotExist(err) {
		return false, nil
	}

	dir := filepath.Dir(l.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}
	if err := os.WriteFile(l.configPath, []byte(defaultSourcesTemplate), 0644); err != nil {
		return false, fmt.Errorf("无法生成配置文件 [%s]: %w", l.configPath, err)
	}
	return true, nil
}

// ValidateFileSize 验证配置文件大小是否在限制内
func (l *SourceConfigLoader) ValidateFileSize() error {
	info, err := os.Stat(l.configPath)
	if err != nil {
		return fmt.Errorf("无法读取配置文件信息 [%s]: %w", l.configPath, err)
	}
	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: l.configPath,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}
	return nil
}

// LoadFile 读取并解析配置文件, 不做校验
func (l *SourceConfigLoader) LoadFile() (*SourcesFile, error) {
	created, err := l.EnsureConfigExists()
	if err != nil {
		return nil, err
	}
	if created {
		utils.Warnf("📝 来源配置不存在, 已生成模板: %s", l.configPath)
	}

	if err := l.ValidateFileSize(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(l.configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, &models.ConfigError{FilePath: l.configPath, Cause: fmt.Errorf("配置文件被锁定: %w", err)}
		}
		return nil, &models.ConfigError{FilePath: l.configPath, Cause: err}
	}

	var file SourcesFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, &models.ConfigError{
			FilePath: l.configPath,
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}
	return &file, nil
}

// Load 加载全部来源, 补全默认值后逐个校验
func (l *SourceConfigLoader) Load() ([]models.SourceDescriptor, error) {
	file, err := l.LoadFile()
	if err != nil {
		return nil, err
	}

	sources := ApplyDefaults(file.Sources, file.Defaults)
	if err := ValidateSources(sources); err != nil {
		return nil, &models.ConfigError{FilePath: l.configPath, Cause: err}
	}
	return sources, nil
}

// LoadSelected 加载本次运行的来源: 过滤未启用的, 按 order 排序
// only 非空时只保留其中列出的名称 (忽略 enabled)
func (l *SourceConfigLoader) LoadSelected(only []string) ([]models.SourceDescriptor, error) {
	sources, err := l.Load()
	if err != nil {
		return nil, err
	}
	selected, err := Select(sources, only)
	if err != nil {
		return nil, &models.ConfigError{FilePath: l.configPath, Cause: err}
	}
	return selected, nil
}

// ApplyDefaults 返回补全默认值后的副本
func ApplyDefaults(sources []models.SourceDescriptor, defaults SourceDefaults) []models.SourceDescriptor {
	out := make([]models.SourceDescriptor, len(sources))
	for i, s := range sources {
		s.Name = strings.TrimSpace(s.Name)
		s.URL = strings.TrimSpace(s.URL)
		if strings.TrimSpace(s.SortLocator) == "" {
			s.SortLocator = defaults.SortLocator
		}
		if strings.TrimSpace(s.LoadMoreLocator) == "" {
			s.LoadMoreLocator = defaults.LoadMoreLocator
		}
		if s.ReviewLimit == 0 {
			s.ReviewLimit = defaults.ReviewLimit
		}
		out[i] = s
	}
	return out
}

// ValidateSources 校验每个来源, 名称不能重复 (名称决定输出文件)
func ValidateSources(sources []models.SourceDescriptor) error {
	var errs []error
	seen := make(map[string]string, len(sources))
	for i, s := range sources {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("第%d个来源: %w", i+1, err))
			continue
		}
		slug := s.Slug()
		if prev, ok := seen[slug]; ok {
			errs = append(errs, fmt.Errorf("第%d个来源: 名称 [%s] 与 [%s] 生成相同的输出文件名 %s", i+1, s.Name, prev, slug))
			continue
		}
		seen[slug] = s.Name
	}
	return errors.Join(errs...)
}

// Select 选出本次运行的来源
func Select(sources []models.SourceDescriptor, only []string) ([]models.SourceDescriptor, error) {
	if len(only) == 0 {
		return models.SelectSources(sources), nil
	}

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[strings.TrimSpace(name)] = false
	}

	filtered := make([]models.SourceDescriptor, 0, len(only))
	for _, s := range sources {
		if _, ok := wanted[s.Name]; ok {
			wanted[s.Name] = true
			s.Enabled = true
			filtered = append(filtered, s)
		}
	}

	var missing []string
	for _, name := range only {
		if !wanted[strings.TrimSpace(name)] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("未找到来源: %s", strings.Join(missing, ", "))
	}
	return models.SelectSources(filtered), nil
}

// SourcesFromURLs 由URL列表生成来源, 定位器和目标数使用默认值
// 名称取自 /maps/place/<名称>/ 路径段, 无法识别时使用序号
func SourcesFromURLs(urls []string, defaults SourceDefaults) []models.SourceDescriptor {
	sources := make([]models.SourceDescriptor, 0, len(urls))
	for i, raw := range urls {
		sources = append(sources, models.SourceDescriptor{
			Name:            placeName(raw, i+1),
			URL:             raw,
			SortLocator:     defaults.SortLocator,
			LoadMoreLocator: defaults.LoadMoreLocator,
			ReviewLimit:     defaults.ReviewLimit,
			Enabled:         true,
			Order:           i + 1,
		})
	}
	return sources
}

func placeName(raw string, n int) string {
	fallback := fmt.Sprintf("source_%d", n)
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "place" {
			name, err := url.PathUnescape(strings.ReplaceAll(segments[i+1], "+", " "))
			if err != nil || strings.TrimSpace(name) == "" {
				return fallback
			}
			return strings.TrimSpace(name)
		}
	}
	return fallback
}

// DefaultsFromFile 只读取配置文件中的 defaults 段, 用于 --url-file 模式
func (l *SourceConfigLoader) DefaultsFromFile() (SourceDefaults, error) {
	file, err := l.LoadFile()
	if err != nil {
		return SourceDefaults{}, err
	}
	return file.Defaults, nil
}
