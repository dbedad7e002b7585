package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 1000, cfg.Scrape.BatchSize)
	require.Equal(t, 20, cfg.Scrape.ReviewsPerLoad)
	require.Equal(t, 5, cfg.Scrape.MaxRetry)
	require.Equal(t, 10*time.Second, cfg.Timing.SortWait)
	require.Equal(t, 100*time.Second, cfg.Timing.LoadMoreWait)
	require.Equal(t, 2*time.Second, cfg.Timing.BatchJitterMin)
	require.Equal(t, 4*time.Second, cfg.Timing.BatchJitterMax)
	require.Equal(t, "id-ID", cfg.Browser.AcceptLanguage)
	require.Equal(t, "csv", cfg.Output.Format)
	require.Equal(t, models.DefaultSelectors(), cfg.Selectors)
	require.Equal(t, models.DefaultMetadataLabels(), cfg.Labels)
	require.True(t, cfg.ContinueOnError)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
browser:
  headless: true
  remote_url: "localhost:9222"
scrape:
  batch_size: 200
  absorb: ["record_processing"]
timing:
  sort_wait: 3s
  load_more_wait: 1m30s
selectors:
  item: "div.review"
headers:
  X-Trace: "abc"
output:
  format: sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, cfg.Browser.Headless)
	require.Equal(t, "localhost:9222", cfg.Browser.RemoteURL)
	require.Equal(t, 200, cfg.Scrape.BatchSize)
	require.Equal(t, []string{"record_processing"}, cfg.Scrape.Absorb)
	require.Equal(t, 3*time.Second, cfg.Timing.SortWait)
	require.Equal(t, 90*time.Second, cfg.Timing.LoadMoreWait)
	require.Equal(t, "div.review", cfg.Selectors.Item)
	require.Equal(t, models.DefaultSelectors().Caption, cfg.Selectors.Caption, "未配置的定位器保留默认值")
	require.Equal(t, "abc", cfg.Headers["x-trace"])
	require.NoError(t, cfg.Validate())

	ctrl := cfg.ControllerConfig()
	require.Equal(t, 3*time.Second, ctrl.SortWait)
	require.Equal(t, 20, ctrl.ReviewsPerLoad)
	require.Equal(t, 200, cfg.OrchestratorOptions().BatchSize)
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	// 显式指定的配置文件必须存在
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrape:\n  batch_size: [1,\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConfigApply(t *testing.T) {
	cfg := DefaultConfig()
	headless, withURL := true, true
	cfg.Apply(Overrides{
		LogLevel:         "debug",
		OutputDir:        "data",
		Format:           "sqlite",
		RemoteURL:        "localhost:9222",
		Headless:         &headless,
		IncludeSourceURL: &withURL,
	})

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "data", cfg.Output.Dir)
	require.Equal(t, "sqlite", cfg.Output.Format)
	require.Equal(t, "localhost:9222", cfg.BrowserOptions().RemoteURL)
	require.True(t, cfg.BrowserOptions().Headless)
	require.True(t, cfg.StorageOptions().IncludeSourceURL)
	require.Equal(t, "debug", cfg.LogConfig().Level)

	// 未指定的参数不覆盖
	cfg.Apply(Overrides{})
	require.Equal(t, "data", cfg.Output.Dir)
	require.True(t, cfg.Browser.Headless)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"批次大小为0", func(c *Config) { c.Scrape.BatchSize = 0 }, "batch_size"},
		{"每次加载数为负", func(c *Config) { c.Scrape.ReviewsPerLoad = -1 }, "reviews_per_load"},
		{"未知输出格式", func(c *Config) { c.Output.Format = "xlsx" }, "output.format"},
		{"未知错误类别", func(c *Config) { c.Scrape.Absorb = []string{"oops"} }, "absorb"},
		{"抖动范围颠倒", func(c *Config) { c.Timing.BatchJitterMin = 5 * time.Second }, "batch_jitter_max"},
		{"评论块定位器为空", func(c *Config) { c.Selectors.Item = "" }, "selectors.item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.wantErr), "错误信息: %v", err)
		})
	}
}
