package main

import (
	"testing"
)

func TestBuildOverrides(t *testing.T) {
	defer func() {
		headless, outputDir, format = false, "", ""
	}()

	if err := rootCmd.ParseFlags([]string{"--headless", "-o", "data", "--format", "sqlite"}); err != nil {
		t.Fatalf("解析参数失败: %v", err)
	}
	o := buildOverrides(rootCmd)

	if o.Headless == nil || !*o.Headless {
		t.Error("显式指定的 --headless 应被合并")
	}
	if o.IncludeSourceURL != nil {
		t.Error("未指定的布尔参数不应覆盖配置文件")
	}
	if o.OutputDir != "data" || o.Format != "sqlite" {
		t.Errorf("输出参数错误: %+v", o)
	}
}

func TestLocatorKind(t *testing.T) {
	tests := []struct {
		locator string
		want    string
	}{
		{`//a[contains(text(), "Terbaru")]`, "XPath"},
		{`(//button)[2]`, "XPath"},
		{"button.load-more", "CSS"},
		{"div[aria-label='Urutkan']", "CSS"},
	}
	for _, tt := range tests {
		if got := locatorKind(tt.locator); got != tt.want {
			t.Errorf("locatorKind(%q) = %s, 期望 %s", tt.locator, got, tt.want)
		}
	}
}
