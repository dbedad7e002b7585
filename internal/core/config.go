package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/config"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/crawlers"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/storage"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Browser         BrowserConfig         `mapstructure:"browser"`
	Scrape          ScrapeConfig          `mapstructure:"scrape"`
	Timing          TimingConfig          `mapstructure:"timing"`
	Selectors       models.Selectors      `mapstructure:"selectors"`
	Labels          models.MetadataLabels `mapstructure:"labels"`
	Output          OutputConfig          `mapstructure:"output"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Resource        ResourceConfig        `mapstructure:"resource"`
	Resume          ResumeConfig          `mapstructure:"resume"`
	Headers         map[string]string     `mapstructure:"headers"`
	Sources         string                `mapstructure:"sources"` // 来源配置文件路径
	ContinueOnError bool                  `mapstructure:"continue_on_error"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless       bool   `mapstructure:"headless"`
	Bin            string `mapstructure:"bin"`
	RemoteURL      string `mapstructure:"remote_url"`
	AcceptLanguage string `mapstructure:"accept_language"`
	WindowSize     string `mapstructure:"window_size"`
}

// ScrapeConfig 抓取参数
type ScrapeConfig struct {
	BatchSize         int      `mapstructure:"batch_size"`
	ReviewsPerLoad    int      `mapstructure:"reviews_per_load"`
	MaxRetry          int      `mapstructure:"max_retry"`
	ScrollStep        int      `mapstructure:"scroll_step"`
	MaxSkipsPerSource int      `mapstructure:"max_skips_per_source"` // 0 表示不限
	Absorb            []string `mapstructure:"absorb"`               // 被吸收(跳过并计数)的错误类别
}

// TimingConfig 等待时间
type TimingConfig struct {
	StartSettle         time.Duration `mapstructure:"start_settle"`
	SortWait            time.Duration `mapstructure:"sort_wait"`
	PreClick            time.Duration `mapstructure:"pre_click"`
	PostClick           time.Duration `mapstructure:"post_click"`
	ReadyDelay          time.Duration `mapstructure:"ready_delay"`
	LoadMoreWait        time.Duration `mapstructure:"load_more_wait"`
	ScrollPause         time.Duration `mapstructure:"scroll_pause"`
	ExpandPause         time.Duration `mapstructure:"expand_pause"`
	ExpandSettle        time.Duration `mapstructure:"expand_settle"`
	LoadJitterMin       time.Duration `mapstructure:"load_jitter_min"`
	LoadJitterMax       time.Duration `mapstructure:"load_jitter_max"`
	BatchJitterMin      time.Duration `mapstructure:"batch_jitter_min"`
	BatchJitterMax      time.Duration `mapstructure:"batch_jitter_max"`
	InteractionInterval time.Duration `mapstructure:"interaction_interval"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir              string `mapstructure:"dir"`
	Format           string `mapstructure:"format"`
	IncludeSourceURL bool   `mapstructure:"include_source_url"`
	Snapshots        bool   `mapstructure:"snapshots"`
	Report           bool   `mapstructure:"report"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	NoColor  bool           `mapstructure:"no_color"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// ResourceConfig 资源监控配置
type ResourceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MinAvailableMB   int64         `mapstructure:"min_available_mb"`
	CPULoadThreshold float64       `mapstructure:"cpu_load_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// ResumeConfig 续抓配置
type ResumeConfig struct {
	Strict bool `mapstructure:"strict"` // 续抓位置超出页面渲染数量时中止来源
}

// LoadConfig 加载配置文件, 文件不存在时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gmreviews"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return &cfg, nil
}

// DefaultConfig 全部使用默认值的配置
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// 默认值类型固定, 不会解析失败
	_ = v.Unmarshal(&cfg)
	cfg.Headers = make(map[string]string)
	return &cfg
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	ctrl := crawlers.DefaultControllerConfig()

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.accept_language", "id-ID")
	v.SetDefault("browser.window_size", "1366,768")

	v.SetDefault("scrape.batch_size", 1000)
	v.SetDefault("scrape.reviews_per_load", ctrl.ReviewsPerLoad)
	v.SetDefault("scrape.max_retry", ctrl.MaxRetry)
	v.SetDefault("scrape.scroll_step", ctrl.ScrollStep)
	v.SetDefault("scrape.max_skips_per_source", 0)
	v.SetDefault("scrape.absorb", DefaultAbsorbKinds)

	v.SetDefault("timing.start_settle", ctrl.StartSettle)
	v.SetDefault("timing.sort_wait", ctrl.SortWait)
	v.SetDefault("timing.pre_click", ctrl.PreClick)
	v.SetDefault("timing.post_click", ctrl.PostClick)
	v.SetDefault("timing.ready_delay", ctrl.ReadyDelay)
	v.SetDefault("timing.load_more_wait", ctrl.LoadMoreWait)
	v.SetDefault("timing.scroll_pause", ctrl.ScrollPause)
	v.SetDefault("timing.expand_pause", 200*time.Millisecond)
	v.SetDefault("timing.expand_settle", 1*time.Second)
	v.SetDefault("timing.load_jitter_min", time.Duration(0))
	v.SetDefault("timing.load_jitter_max", 1*time.Second)
	v.SetDefault("timing.batch_jitter_min", 2*time.Second)
	v.SetDefault("timing.batch_jitter_max", 4*time.Second)
	v.SetDefault("timing.interaction_interval", time.Duration(0))

	sel := models.DefaultSelectors()
	v.SetDefault("selectors.item", sel.Item)
	v.SetDefault("selectors.name", sel.Name)
	v.SetDefault("selectors.profile", sel.Profile)
	v.SetDefault("selectors.photo", sel.Photo)
	v.SetDefault("selectors.rating", sel.Rating)
	v.SetDefault("selectors.star", sel.Star)
	v.SetDefault("selectors.star_fill", sel.StarFill)
	v.SetDefault("selectors.timestamp", sel.Timestamp)
	v.SetDefault("selectors.caption", sel.Caption)
	v.SetDefault("selectors.special", sel.Special)
	v.SetDefault("selectors.label_style", sel.LabelStyle)
	v.SetDefault("selectors.expand_control", sel.ExpandControl)

	labels := models.DefaultMetadataLabels()
	v.SetDefault("labels.visit_time", labels.VisitTime)
	v.SetDefault("labels.queue_time", labels.QueueTime)
	v.SetDefault("labels.reservation", labels.Reservation)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", storage.FormatCSV)
	v.SetDefault("output.include_source_url", false)
	v.SetDefault("output.snapshots", false)
	v.SetDefault("output.report", true)

	logDefaults := utils.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.log_dir", logDefaults.LogDir)
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.rotation.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.rotation.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.rotation.max_age", logDefaults.MaxAge)
	v.SetDefault("logging.rotation.compress", logDefaults.Compress)

	v.SetDefault("resource.enabled", true)
	v.SetDefault("resource.min_available_mb", 500)
	v.SetDefault("resource.cpu_load_threshold", 90.0)
	v.SetDefault("resource.cooldown", 30*time.Second)

	v.SetDefault("resume.strict", false)
	v.SetDefault("sources", config.DefaultSourcesFile)
	v.SetDefault("continue_on_error", true)
}

// Overrides 命令行参数, 零值表示未指定
type Overrides struct {
	LogLevel         string
	OutputDir        string
	Format           string
	Sources          string
	RemoteURL        string
	Headless         *bool
	IncludeSourceURL *bool
	Snapshots        *bool
	StrictResume     *bool
}

// Apply 合并命令行参数到配置, 命令行优先于配置文件
func (c *Config) Apply(o Overrides) {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.OutputDir != "" {
		c.Output.Dir = o.OutputDir
	}
	if o.Format != "" {
		c.Output.Format = o.Format
	}
	if o.Sources != "" {
		c.Sources = o.Sources
	}
	if o.RemoteURL != "" {
		c.Browser.RemoteURL = o.RemoteURL
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
	if o.IncludeSourceURL != nil {
		c.Output.IncludeSourceURL = *o.IncludeSourceURL
	}
	if o.Snapshots != nil {
		c.Output.Snapshots = *o.Snapshots
	}
	if o.StrictResume != nil {
		c.Resume.Strict = *o.StrictResume
	}
}

// Validate 校验配置, 返回所有问题
func (c *Config) Validate() error {
	var errs []error

	if c.Scrape.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("scrape.batch_size 必须大于0, 当前值: %d", c.Scrape.BatchSize))
	}
	if c.Scrape.ReviewsPerLoad <= 0 {
		errs = append(errs, fmt.Errorf("scrape.reviews_per_load 必须大于0, 当前值: %d", c.Scrape.ReviewsPerLoad))
	}
	if c.Scrape.MaxRetry <= 0 {
		errs = append(errs, fmt.Errorf("scrape.max_retry 必须大于0, 当前值: %d", c.Scrape.MaxRetry))
	}
	if c.Scrape.MaxSkipsPerSource < 0 {
		errs = append(errs, fmt.Errorf("scrape.max_skips_per_source 不能为负数"))
	}
	if _, err := NewSkipPolicy(c.Scrape.Absorb, c.Scrape.MaxSkipsPerSource); err != nil {
		errs = append(errs, err)
	}

	if c.Timing.LoadJitterMax < c.Timing.LoadJitterMin {
		errs = append(errs, fmt.Errorf("timing.load_jitter_max 不能小于 load_jitter_min"))
	}
	if c.Timing.BatchJitterMax < c.Timing.BatchJitterMin {
		errs = append(errs, fmt.Errorf("timing.batch_jitter_max 不能小于 batch_jitter_min"))
	}

	switch strings.ToLower(c.Output.Format) {
	case storage.FormatCSV, storage.FormatSQLite:
	default:
		errs = append(errs, fmt.Errorf("output.format 不支持: %q (可选 csv, sqlite)", c.Output.Format))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, fmt.Errorf("output.dir 不能为空"))
	}

	if strings.TrimSpace(c.Selectors.Item) == "" {
		errs = append(errs, fmt.Errorf("selectors.item 不能为空"))
	}
	if strings.TrimSpace(c.Selectors.ExpandControl) == "" {
		errs = append(errs, fmt.Errorf("selectors.expand_control 不能为空"))
	}

	return errors.Join(errs...)
}

// ControllerConfig 页面控制器参数
func (c *Config) ControllerConfig() crawlers.ControllerConfig {
	return crawlers.ControllerConfig{
		MaxRetry:       c.Scrape.MaxRetry,
		StartSettle:    c.Timing.StartSettle,
		SortWait:       c.Timing.SortWait,
		PreClick:       c.Timing.PreClick,
		PostClick:      c.Timing.PostClick,
		ReadyDelay:     c.Timing.ReadyDelay,
		LoadMoreWait:   c.Timing.LoadMoreWait,
		ReviewsPerLoad: c.Scrape.ReviewsPerLoad,
		ScrollStep:     c.Scrape.ScrollStep,
		ScrollPause:    c.Timing.ScrollPause,
	}
}

// BrowserOptions 浏览器启动参数
func (c *Config) BrowserOptions() crawlers.BrowserOptions {
	return crawlers.BrowserOptions{
		Headless:       c.Browser.Headless,
		Bin:            c.Browser.Bin,
		RemoteURL:      c.Browser.RemoteURL,
		AcceptLanguage: c.Browser.AcceptLanguage,
		WindowSize:     c.Browser.WindowSize,
	}
}

// ResourceMonitorConfig 资源监控参数
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	return crawlers.ResourceMonitorConfig{
		Enabled:          c.Resource.Enabled,
		MinAvailableMB:   c.Resource.MinAvailableMB,
		CPULoadThreshold: c.Resource.CPULoadThreshold,
		Cooldown:         c.Resource.Cooldown,
	}
}

// StorageOptions 存储参数
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Dir:              c.Output.Dir,
		IncludeSourceURL: c.Output.IncludeSourceURL,
	}
}

// LogConfig 日志参数
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
		NoColor:    c.Logging.NoColor,
	}
}

// OrchestratorOptions 编排参数
func (c *Config) OrchestratorOptions() Options {
	return Options{
		BatchSize:           c.Scrape.BatchSize,
		Controller:          c.ControllerConfig(),
		ExpandLocator:       c.Selectors.ExpandControl,
		ExpandPause:         c.Timing.ExpandPause,
		ExpandSettle:        c.Timing.ExpandSettle,
		LoadJitterMin:       c.Timing.LoadJitterMin,
		LoadJitterMax:       c.Timing.LoadJitterMax,
		BatchJitterMin:      c.Timing.BatchJitterMin,
		BatchJitterMax:      c.Timing.BatchJitterMax,
		InteractionInterval: c.Timing.InteractionInterval,
		StrictResume:        c.Resume.Strict,
		ContinueOnError:     c.ContinueOnError,
	}
}
