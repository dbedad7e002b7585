package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions 浏览器启动参数
type BrowserOptions struct {
	Headless       bool
	Bin            string // 浏览器可执行文件, 为空时由launcher自动查找或下载
	RemoteURL      string // 已运行浏览器的调试地址, 例如 localhost:9222
	AcceptLanguage string // 界面语言, 决定评论页的文案
	WindowSize     string // 有界面模式下的窗口大小
}

// RodBrowser 基于go-rod的会话工厂
// 所有来源共享一个浏览器进程, 每个来源独占一个标签页
type RodBrowser struct {
	opts           BrowserOptions
	headerProvider models.HeaderProvider

	browser  *rod.Browser
	launcher *launcher.Launcher
	mu       sync.Mutex
}

// NewRodBrowser 创建会话工厂, 浏览器在第一次 Open 时启动
func NewRodBrowser(opts BrowserOptions, headerProvider models.HeaderProvider) *RodBrowser {
	if opts.WindowSize == "" {
		opts.WindowSize = "1366,768"
	}
	return &RodBrowser{
		opts:           opts,
		headerProvider: headerProvider,
	}
}

// Open 创建一个新的标签页会话
// 浏览器连接丢失时重新启动一次
func (rb *RodBrowser) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.browser == nil {
		if err := rb.launch(); err != nil {
			return nil, err
		}
	}

	page, err := rb.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		utils.Warnf("创建标签页失败, 浏览器可能已崩溃, 准备重启: %v", err)
		_ = rb.closeLocked()
		if err := rb.launch(); err != nil {
			return nil, err
		}
		if page, err = rb.browser.Page(proto.TargetCreateTarget{}); err != nil {
			return nil, fmt.Errorf("重启后创建标签页失败: %w", err)
		}
	}

	if err := rb.applyHeaders(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	return &rodSession{page: page}, nil
}

// launch 启动或连接浏览器
func (rb *RodBrowser) launch() error {
	var controlURL string
	var err error

	if rb.opts.RemoteURL != "" {
		controlURL, err = launcher.ResolveURL(rb.opts.RemoteURL)
		if err != nil {
			return fmt.Errorf("解析远程浏览器地址失败 [%s]: %w", rb.opts.RemoteURL, err)
		}
		utils.Infof("🔗 连接已运行的浏览器: %s", rb.opts.RemoteURL)
	} else {
		l := launcher.New().Headless(rb.opts.Headless)
		if rb.opts.Bin != "" {
			l = l.Bin(rb.opts.Bin)
		}
		if rb.opts.AcceptLanguage != "" {
			l = l.Set(flags.Flag("accept-lang"), rb.opts.AcceptLanguage)
		}
		if !rb.opts.Headless {
			l = l.Set(flags.Flag("window-size"), rb.opts.WindowSize)
		}

		controlURL, err = l.Launch()
		if err != nil {
			return fmt.Errorf("启动浏览器失败: %w", err)
		}
		rb.launcher = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}
	rb.browser = browser

	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// applyHeaders 为标签页设置额外请求头
func (rb *RodBrowser) applyHeaders(page *rod.Page) error {
	if rb.headerProvider == nil {
		return nil
	}
	headers, err := rb.headerProvider.GetHeaders()
	if err != nil {
		return fmt.Errorf("获取HTTP头部失败: %w", err)
	}

	dict := make([]string, 0, len(headers)*2)
	for name, values := range headers {
		if len(values) > 0 {
			dict = append(dict, name, values[0])
		}
	}
	if len(dict) == 0 {
		return nil
	}
	if _, err := page.SetExtraHeaders(dict); err != nil {
		return fmt.Errorf("设置HTTP头部失败: %w", err)
	}
	return nil
}

// Close 关闭浏览器
// 连接远程浏览器时只断开连接, 不结束对方进程
func (rb *RodBrowser) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.closeLocked()
}

func (rb *RodBrowser) closeLocked() error {
	if rb.browser == nil {
		return nil
	}
	var err error
	if rb.launcher != nil {
		err = rb.browser.Close()
		rb.launcher.Cleanup()
		rb.launcher = nil
	}
	rb.browser = nil
	return err
}

// rodSession 单个标签页上的会话
type rodSession struct {
	page   *rod.Page
	closed bool
	mu     sync.Mutex
}

func (s *rodSession) live() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, models.ErrSessionClosed
	}
	return s.page, nil
}

// Navigate 导航并等待load事件
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}
	return nil
}

// TriggerControl 在超时内等待控件出现并可交互, 然后点击
func (s *rodSession) TriggerControl(ctx context.Context, locator string, opt TriggerOptions) error {
	page, err := s.live()
	if err != nil {
		return err
	}

	p := page.Context(ctx)
	if opt.Timeout > 0 {
		p = p.Timeout(opt.Timeout)
		defer p.CancelTimeout()
	}

	var el *rod.Element
	if IsXPath(locator) {
		el, err = p.ElementX(locator)
	} else {
		el, err = p.Element(locator)
	}
	if err != nil {
		return wrapWaitErr(locator, err)
	}
	if _, err := el.WaitInteractable(); err != nil {
		return wrapWaitErr(locator, err)
	}

	if err := sleep(ctx, opt.Settle); err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击控件失败 [%s]: %w", locator, err)
	}
	return nil
}

func wrapWaitErr(locator string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("等待控件 [%s]: %w", locator, models.ErrLoadTimeout)
	}
	return fmt.Errorf("等待控件失败 [%s]: %w", locator, err)
}

// ClickAllMatching 用脚本点击所有命中元素, 单个元素点击失败不影响其它元素
func (s *rodSession) ClickAllMatching(ctx context.Context, locator string, pause time.Duration) (int, error) {
	page, err := s.live()
	if err != nil {
		return 0, err
	}

	p := page.Context(ctx)
	var elements rod.Elements
	if IsXPath(locator) {
		elements, err = p.ElementsX(locator)
	} else {
		elements, err = p.Elements(locator)
	}
	if err != nil {
		return 0, fmt.Errorf("查找元素失败 [%s]: %w", locator, err)
	}

	clicked := 0
	for _, el := range elements {
		if _, err := el.Eval(`() => this.click()`); err != nil {
			utils.Debugf("点击元素失败(已忽略): %v", err)
			continue
		}
		clicked++
		if err := sleep(ctx, pause); err != nil {
			return clicked, err
		}
	}
	return clicked, nil
}

// ScrollBy 执行 window.scrollBy
func (s *rodSession) ScrollBy(ctx context.Context, dx, dy int) error {
	page, err := s.live()
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy); err != nil {
		return fmt.Errorf("滚动页面失败: %w", err)
	}
	return nil
}

// SnapshotMarkup 获取当前DOM序列化后的HTML
func (s *rodSession) SnapshotMarkup(ctx context.Context) (string, error) {
	page, err := s.live()
	if err != nil {
		return "", err
	}
	markup, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("获取页面快照失败: %w", err)
	}
	return markup, nil
}

// Close 关闭标签页, 可重复调用
func (s *rodSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.page.Close(); err != nil {
		return fmt.Errorf("关闭标签页失败: %w", err)
	}
	return nil
}
