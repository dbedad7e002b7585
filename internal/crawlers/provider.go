package crawlers

import (
	"context"
	"strings"
	"time"
)

// Session 一个来源独占的浏览器会话
// 页面控制器、展开器和抽取流程都只通过该接口操作页面
type Session interface {
	// Navigate 打开URL并等待页面加载完成
	Navigate(ctx context.Context, url string) error
	// TriggerControl 等待定位器命中的控件可交互后点击
	TriggerControl(ctx context.Context, locator string, opt TriggerOptions) error
	// ClickAllMatching 点击所有命中的元素, 每次点击后暂停 pause, 返回成功点击数
	ClickAllMatching(ctx context.Context, locator string, pause time.Duration) (int, error)
	// ScrollBy 滚动页面
	ScrollBy(ctx context.Context, dx, dy int) error
	// SnapshotMarkup 返回当前渲染后的完整页面标记
	SnapshotMarkup(ctx context.Context) (string, error)
	// Close 释放会话占用的标签页
	Close() error
}

// TriggerOptions 控件触发参数
type TriggerOptions struct {
	Timeout time.Duration // 等待控件可交互的上限
	Settle  time.Duration // 控件可交互后、点击前的等待
}

// SessionFactory 为每个来源创建独立的会话
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
	Close() error
}

// IsXPath 判断定位器是否为XPath表达式, 其它一律按CSS选择器处理
func IsXPath(locator string) bool {
	l := strings.TrimSpace(locator)
	return strings.HasPrefix(l, "/") || strings.HasPrefix(l, "(")
}

// sleep 可被取消的等待, d<=0 时立即返回
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
