package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/crawlers"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/parser"
)

const (
	testSortLocator     = "//button[@data-sort='newest']"
	testLoadMoreLocator = "button.load-more"
)

// pageBehavior 单个地点页面的模拟行为
type pageBehavior struct {
	perLoad    int
	maxReviews int  // 页面上实际存在的评论数, 0表示无限; 全部渲染后加载控件不再出现
	sortBroken bool // 排序控件永远不可点击

	clickFailAfter int   // 成功加载N次后加载控件点击失败, 0表示不失败
	clickErr       error // 点击失败时返回的错误

	onLoad func(loads int) // 每次加载成功后调用
}

// fakePage 模拟增量渲染的评论页
type fakePage struct {
	mu       sync.Mutex
	behavior pageBehavior
	url      string
	rendered int
	loads    int
	closed   bool
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *fakePage) TriggerControl(ctx context.Context, locator string, _ crawlers.TriggerOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch locator {
	case testSortLocator:
		if p.behavior.sortBroken {
			return errors.New("element not interactable")
		}
		return nil
	case testLoadMoreLocator:
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.behavior.maxReviews > 0 && p.rendered >= p.behavior.maxReviews {
			return fmt.Errorf("等待控件 [%s]: %w", locator, context.DeadlineExceeded)
		}
		if p.behavior.clickFailAfter > 0 && p.loads >= p.behavior.clickFailAfter {
			return p.behavior.clickErr
		}
		p.loads++
		p.rendered += p.behavior.perLoad
		if p.behavior.maxReviews > 0 && p.rendered > p.behavior.maxReviews {
			p.rendered = p.behavior.maxReviews
		}
		if p.behavior.onLoad != nil {
			p.behavior.onLoad(p.loads)
		}
		return nil
	}
	return fmt.Errorf("未知控件: %s", locator)
}

func (p *fakePage) ClickAllMatching(_ context.Context, _ string, _ time.Duration) (int, error) {
	return 0, nil
}

func (p *fakePage) ScrollBy(_ context.Context, _, _ int) error {
	return nil
}

func (p *fakePage) SnapshotMarkup(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	b.WriteString("<html><body><div class=\"list\">")
	for i := 0; i < p.rendered; i++ {
		fmt.Fprintf(&b, `<div class="bwb7ce" data-id="r%d">`+
			`<div class="Vpc5Fe">user %d</div>`+
			`<div class="dHX2k"><svg class="ePMStd"><path fill="#fabb05"></path></svg></div>`+
			`<div class="OA1nbd">ulasan %d</div></div>`, i, i, i)
	}
	b.WriteString("</div></body></html>")
	return b.String(), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeFactory 按打开顺序为每个来源提供一个页面
type fakeFactory struct {
	behaviors []pageBehavior
	pages     []*fakePage
}

func newFakeFactory(behaviors ...pageBehavior) *fakeFactory {
	return &fakeFactory{behaviors: behaviors}
}

func (f *fakeFactory) Open(ctx context.Context) (crawlers.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.pages) >= len(f.behaviors) {
		return nil, errors.New("没有更多模拟页面")
	}
	page := &fakePage{behavior: f.behaviors[len(f.pages)]}
	f.pages = append(f.pages, page)
	return page, nil
}

func (f *fakeFactory) Close() error {
	return nil
}

// flakyParser 在指定索引上模拟单条记录处理失败
type flakyParser struct {
	*parser.Parser
	failAt map[int]bool
}

func (f flakyParser) ParseRange(markup string, start, end int) (models.BatchResult, error) {
	result, err := f.Parser.ParseRange(markup, start, end)
	if err != nil {
		return result, err
	}
	kept := result.Records[:0]
	for i, record := range result.Records {
		index := start + i
		if f.failAt[index] {
			result.Failures = append(result.Failures, models.RecordFailure{
				Index: index,
				Err:   &models.RecordError{Index: index, Kind: models.KindRecordProcessing, Cause: errors.New("field extraction failed")},
			})
			continue
		}
		kept = append(kept, record)
	}
	result.Records = kept
	return result, nil
}

func testOptions() Options {
	return Options{
		BatchSize: 1000,
		Controller: crawlers.ControllerConfig{
			MaxRetry:       5,
			ReviewsPerLoad: 20,
			ScrollStep:     200,
		},
		ContinueOnError: true,
	}
}

func testSource(name string, limit int) models.SourceDescriptor {
	return models.SourceDescriptor{
		Name:            name,
		URL:             "https://www.google.com/maps/place/" + name + "/",
		SortLocator:     testSortLocator,
		LoadMoreLocator: testLoadMoreLocator,
		ReviewLimit:     limit,
		Enabled:         true,
	}
}
