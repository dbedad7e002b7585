package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

const testSources = `defaults:
  sort_locator: "//button[@data-sort='newest']"
  load_more_locator: "button.load-more"
  review_limit: 500

sources:
  - name: "kedua"
    url: "https://www.google.com/maps/place/Kedua/"
    enabled: true
    order: 2
  - name: "pertama"
    url: "https://www.google.com/maps/place/Pertama/"
    load_more_locator: "(//button)[last()]"
    review_limit: 45
    enabled: true
    order: 1
  - name: "mati"
    url: "https://www.google.com/maps/place/Mati/"
    enabled: false
    order: 0
`

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	return path
}

func TestSourceConfigLoader_Load(t *testing.T) {
	t.Run("首次运行自动生成模板", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "configs", "sources.yaml")
		loader := NewSourceConfigLoader(path)

		sources, err := loader.Load()
		if err != nil {
			t.Fatalf("加载模板失败: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("模板应该被生成: %v", err)
		}
		if len(models.SelectSources(sources)) != 0 {
			t.Error("模板中的示例来源不应默认启用")
		}
	})

	t.Run("补全默认值", func(t *testing.T) {
		loader := NewSourceConfigLoader(writeSources(t, testSources))
		sources, err := loader.Load()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if len(sources) != 3 {
			t.Fatalf("期望3个来源, 实际%d个", len(sources))
		}

		kedua := sources[0]
		if kedua.SortLocator != "//button[@data-sort='newest']" || kedua.ReviewLimit != 500 {
			t.Errorf("未补全默认值: %+v", kedua)
		}
		pertama := sources[1]
		if pertama.LoadMoreLocator != "(//button)[last()]" || pertama.ReviewLimit != 45 {
			t.Errorf("来源自身的值不应被覆盖: %+v", pertama)
		}
	})

	t.Run("按order排序并过滤未启用", func(t *testing.T) {
		loader := NewSourceConfigLoader(writeSources(t, testSources))
		selected, err := loader.LoadSelected(nil)
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if len(selected) != 2 || selected[0].Name != "pertama" || selected[1].Name != "kedua" {
			t.Errorf("选择结果错误: %+v", selected)
		}
	})

	t.Run("--only 指定的来源忽略enabled", func(t *testing.T) {
		loader := NewSourceConfigLoader(writeSources(t, testSources))
		selected, err := loader.LoadSelected([]string{"mati"})
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if len(selected) != 1 || selected[0].Name != "mati" {
			t.Errorf("选择结果错误: %+v", selected)
		}
	})

	t.Run("--only 指定不存在的来源", func(t *testing.T) {
		loader := NewSourceConfigLoader(writeSources(t, testSources))
		_, err := loader.LoadSelected([]string{"pertama", "hilang"})
		if err == nil || !strings.Contains(err.Error(), "hilang") {
			t.Fatalf("期望报告缺失的来源, 实际: %v", err)
		}
	})

	t.Run("YAML格式错误", func(t *testing.T) {
		loader := NewSourceConfigLoader(writeSources(t, "sources:\n  - name: \"broken\n"))
		_, err := loader.Load()
		var cfgErr *models.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("期望ConfigError, 实际: %v", err)
		}
	})

	t.Run("配置文件过大", func(t *testing.T) {
		big := "# " + strings.Repeat("x", MaxConfigFileSize) + "\n"
		loader := NewSourceConfigLoader(writeSources(t, big))
		_, err := loader.Load()
		var cfgErr *models.ConfigError
		if !errors.As(err, &cfgErr) || !strings.Contains(err.Error(), "过大") {
			t.Fatalf("期望文件过大错误, 实际: %v", err)
		}
	})
}

func TestValidateSources(t *testing.T) {
	valid := models.SourceDescriptor{
		Name:            "a",
		URL:             "https://www.google.com/maps/place/A/",
		SortLocator:     "//a",
		LoadMoreLocator: "button",
		ReviewLimit:     10,
	}

	tests := []struct {
		name    string
		mutate  func(s *models.SourceDescriptor)
		wantErr string
	}{
		{"合法来源", func(s *models.SourceDescriptor) {}, ""},
		{"URL缺少协议", func(s *models.SourceDescriptor) { s.URL = "www.google.com/maps" }, "URL无效"},
		{"缺少排序定位器", func(s *models.SourceDescriptor) { s.SortLocator = " " }, "排序控件"},
		{"目标数为0", func(s *models.SourceDescriptor) { s.ReviewLimit = 0 }, "目标评论数"},
		{"名称为空", func(s *models.SourceDescriptor) { s.Name = "" }, "名称不能为空"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := ValidateSources([]models.SourceDescriptor{s})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("不应报错: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("期望错误包含 %q, 实际: %v", tt.wantErr, err)
			}
		})
	}

	t.Run("名称生成相同文件名", func(t *testing.T) {
		a, b := valid, valid
		a.Name = "Warung Kopi"
		b.Name = "Warung/Kopi"
		if err := ValidateSources([]models.SourceDescriptor{a, b}); err == nil {
			t.Fatal("重复的输出文件名应报错")
		}
	})
}

func TestSourcesFromURLs(t *testing.T) {
	defaults := SourceDefaults{SortLocator: "//s", LoadMoreLocator: "//m", ReviewLimit: 100}
	sources := SourcesFromURLs([]string{
		"https://www.google.com/maps/place/Warung+Kopi+Senja/@-6.2,106.8,17z",
		"https://www.google.com/maps?cid=123",
	}, defaults)

	if len(sources) != 2 {
		t.Fatalf("期望2个来源, 实际%d个", len(sources))
	}
	if sources[0].Name != "Warung Kopi Senja" {
		t.Errorf("名称应取自place路径段, 实际: %q", sources[0].Name)
	}
	if sources[1].Name != "source_2" {
		t.Errorf("无法识别时使用序号, 实际: %q", sources[1].Name)
	}
	if err := ValidateSources(sources); err != nil {
		t.Errorf("生成的来源应通过校验: %v", err)
	}
	if got := models.SelectSources(sources); len(got) != 2 || got[0].Order != 1 {
		t.Errorf("生成的来源应全部启用且保持顺序: %+v", got)
	}
}
