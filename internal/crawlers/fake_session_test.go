package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeSession 模拟增量渲染的评论页: 每次点击加载更多新增 perLoad 条评论
type fakeSession struct {
	mu sync.Mutex

	sortLocator     string
	loadMoreLocator string

	rendered   int
	perLoad    int
	maxReviews int // 页面上实际存在的评论总数, 0表示无限

	sortFailures  int // 排序控件前N次点击失败
	loadFailAfter int   // 第N次加载后加载控件不再出现, 0表示不失败
	loadErr       error // 设置后加载控件失败时返回该错误而不是等待超时
	scrollErr     error

	navigated     []string
	sortClicks    int
	loadClicks    int
	scrolls       []int
	expandClicked int
	closed        bool
}

func newFakeSession(perLoad int) *fakeSession {
	return &fakeSession{
		sortLocator:     "//button[@data-sort]",
		loadMoreLocator: "button.load-more",
		perLoad:         perLoad,
	}
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeSession) TriggerControl(_ context.Context, locator string, _ TriggerOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch locator {
	case f.sortLocator:
		f.sortClicks++
		if f.sortClicks <= f.sortFailures {
			return errors.New("element not interactable")
		}
		return nil
	case f.loadMoreLocator:
		if f.loadFailAfter > 0 && f.loadClicks >= f.loadFailAfter {
			if f.loadErr != nil {
				return f.loadErr
			}
			return fmt.Errorf("等待控件 [%s]: %w", locator, context.DeadlineExceeded)
		}
		f.loadClicks++
		f.rendered += f.perLoad
		if f.maxReviews > 0 && f.rendered > f.maxReviews {
			f.rendered = f.maxReviews
		}
		return nil
	}
	return fmt.Errorf("未知控件: %s", locator)
}

func (f *fakeSession) ClickAllMatching(_ context.Context, _ string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expandClicked += f.rendered
	return f.rendered, nil
}

func (f *fakeSession) ScrollBy(_ context.Context, _, dy int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scrollErr != nil {
		return f.scrollErr
	}
	f.scrolls = append(f.scrolls, dy)
	return nil
}

func (f *fakeSession) SnapshotMarkup(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < f.rendered; i++ {
		fmt.Fprintf(&b, `<div class="bwb7ce" data-id="r%d"><div class="Vpc5Fe">user %d</div></div>`, i, i)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// countItems 统计 data-id 出现次数
type countItems struct{}

func (countItems) CountItems(markup string) (int, error) {
	return strings.Count(markup, `class="bwb7ce"`), nil
}
