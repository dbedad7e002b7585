package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/rs/zerolog/log"
)

// ControllerState 页面控制器状态
type ControllerState string

const (
	ControllerNotStarted ControllerState = "not_started"
	ControllerReady      ControllerState = "ready"
	ControllerFailed     ControllerState = "failed"
)

// ControllerConfig 页面控制器的等待与重试参数
type ControllerConfig struct {
	MaxRetry       int           // 排序控件最大尝试次数
	StartSettle    time.Duration // 导航完成后的等待
	SortWait       time.Duration // 每次等待排序控件可点击的上限
	PreClick       time.Duration // 控件可点击后、点击前的等待
	PostClick      time.Duration // 点击排序后的等待
	ReadyDelay     time.Duration // 就绪前的最后等待
	LoadMoreWait   time.Duration // 等待加载更多控件可点击的上限
	ReviewsPerLoad int           // 每次加载更多新增的评论数
	ScrollStep     int           // 保活滚动的像素
	ScrollPause    time.Duration // 两次滚动之间的停顿
}

// DefaultControllerConfig 默认参数
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxRetry:       5,
		StartSettle:    5 * time.Second,
		SortWait:       10 * time.Second,
		PreClick:       1 * time.Second,
		PostClick:      3 * time.Second,
		ReadyDelay:     5 * time.Second,
		LoadMoreWait:   100 * time.Second,
		ReviewsPerLoad: 20,
		ScrollStep:     200,
		ScrollPause:    200 * time.Millisecond,
	}
}

// ItemCounter 统计快照中的评论块数量
type ItemCounter interface {
	CountItems(markup string) (int, error)
}

// LoadResult 一次 LoadUntilCount 的结果
// Err 非空表示循环提前结束, 已完成的加载仍然有效
type LoadResult struct {
	Target    int
	Initial   int // 开始时已渲染的评论数
	Planned   int // 计划的加载次数
	Performed int // 实际完成的加载次数
	Rendered  int // 结束时已渲染的评论数, 统计失败时为-1
	Err       error
}

// Partial 是否提前结束
func (r LoadResult) Partial() bool {
	return r.Err != nil
}

// PageController 驱动单个来源的评论页: 启动排序和增量加载
// 每个来源使用一个新实例, 状态不会回到 NotStarted
type PageController struct {
	session Session
	source  models.SourceDescriptor
	counter ItemCounter
	cfg     ControllerConfig
	jitter  *Pacer

	state ControllerState
	mu    sync.Mutex
}

// NewPageController 创建页面控制器
func NewPageController(session Session, source models.SourceDescriptor, counter ItemCounter, cfg ControllerConfig, jitter *Pacer) *PageController {
	if cfg.ReviewsPerLoad <= 0 {
		cfg.ReviewsPerLoad = DefaultControllerConfig().ReviewsPerLoad
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 1
	}
	if jitter == nil {
		jitter = NewPacer(0, 0, 0)
	}
	return &PageController{
		session: session,
		source:  source,
		counter: counter,
		cfg:     cfg,
		jitter:  jitter,
		state:   ControllerNotStarted,
	}
}

// State 当前状态
func (pc *PageController) State() ControllerState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

func (pc *PageController) setState(s ControllerState) {
	pc.mu.Lock()
	pc.state = s
	pc.mu.Unlock()
}

// Start 打开来源页面并切换到"最新"排序
// 失败时返回 *models.StartFailure, 调用方应放弃该来源
func (pc *PageController) Start(ctx context.Context) error {
	if st := pc.State(); st != ControllerNotStarted {
		return fmt.Errorf("%w: Start 只能调用一次, 当前状态 %s", models.ErrControllerState, st)
	}

	url := pc.source.URL
	fail := func(attempts int, cause error) error {
		pc.setState(ControllerFailed)
		return &models.StartFailure{URL: url, Attempts: attempts, Cause: cause}
	}

	if err := pc.session.Navigate(ctx, url); err != nil {
		return fail(0, err)
	}
	if err := sleep(ctx, pc.cfg.StartSettle); err != nil {
		return fail(0, err)
	}

	var lastErr error
	attempts := 0
	for attempts < pc.cfg.MaxRetry {
		attempts++
		lastErr = pc.session.TriggerControl(ctx, pc.source.SortLocator, TriggerOptions{
			Timeout: pc.cfg.SortWait,
			Settle:  pc.cfg.PreClick,
		})
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return fail(attempts, ctx.Err())
		}
		utils.Warnf("排序控件不可点击, 重试 %d/%d [%s]: %v", attempts, pc.cfg.MaxRetry, pc.source.Name, lastErr)
	}
	if lastErr != nil {
		return fail(attempts, lastErr)
	}

	if err := sleep(ctx, pc.cfg.PostClick); err != nil {
		return fail(attempts, err)
	}
	if err := sleep(ctx, pc.cfg.ReadyDelay); err != nil {
		return fail(attempts, err)
	}

	pc.setState(ControllerReady)
	log.Debug().Str("source", pc.source.Name).Int("attempts", attempts).Msg("评论页已按最新排序")
	return nil
}

// LoadIterations 计算从 current 加载到 target 需要触发的次数
func LoadIterations(current, target, step int) int {
	if step <= 0 || target <= current {
		return 0
	}
	return (target - current + step - 1) / step
}

// LoadUntilCount 反复触发加载更多, 直到渲染数量预计达到 target
// 任何一次失败都会提前结束循环但不返回错误, 部分加载是可接受的结果
func (pc *PageController) LoadUntilCount(ctx context.Context, target int) LoadResult {
	result := LoadResult{Target: target, Rendered: -1}
	if st := pc.State(); st != ControllerReady {
		result.Err = fmt.Errorf("%w: 控制器未就绪, 当前状态 %s", models.ErrControllerState, st)
		return result
	}

	initial, err := pc.RenderedCount(ctx)
	if err != nil {
		result.Err = err
		return result
	}
	result.Initial = initial
	result.Rendered = initial
	result.Planned = LoadIterations(initial, target, pc.cfg.ReviewsPerLoad)

	for i := 0; i < result.Planned; i++ {
		clickStart := time.Now()
		if err := pc.loadOnce(ctx); err != nil {
			result.Err = err
			break
		}
		result.Performed++
		log.Debug().
			Str("source", pc.source.Name).
			Int("iteration", i+1).
			Int("planned", result.Planned).
			Dur("elapsed", time.Since(clickStart)).
			Msg("加载更多完成")
	}

	if result.Planned > 0 {
		if rendered, err := pc.RenderedCount(ctx); err == nil {
			result.Rendered = rendered
		} else {
			result.Rendered = -1
		}
	}

	event := log.Debug()
	if result.Err != nil {
		event = log.Warn().Err(result.Err)
	}
	event.Str("source", pc.source.Name).
		Int("target", target).
		Int("planned", result.Planned).
		Int("performed", result.Performed).
		Int("rendered", result.Rendered).
		Msg("加载更多评论")
	return result
}

// loadOnce 触发一次加载更多, 然后上下滚动保持列表活跃
func (pc *PageController) loadOnce(ctx context.Context) error {
	err := pc.session.TriggerControl(ctx, pc.source.LoadMoreLocator, TriggerOptions{Timeout: pc.cfg.LoadMoreWait})
	if err != nil {
		return classifyLoadErr(ctx, err)
	}

	if err := pc.session.ScrollBy(ctx, 0, pc.cfg.ScrollStep); err != nil {
		return classifyLoadErr(ctx, err)
	}
	if err := sleep(ctx, pc.cfg.ScrollPause); err != nil {
		return err
	}
	if err := pc.session.ScrollBy(ctx, 0, -pc.cfg.ScrollStep); err != nil {
		return classifyLoadErr(ctx, err)
	}
	if err := sleep(ctx, pc.cfg.ScrollPause); err != nil {
		return err
	}
	return pc.jitter.Wait(ctx)
}

// classifyLoadErr 为一次加载中的失败分类
// 上下文取消和会话关闭原样返回, 其余归为加载超时或加载失败
func classifyLoadErr(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return err
	case errors.Is(err, models.ErrSessionClosed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", models.ErrLoadTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrLoadFailure, err)
}

// RenderedCount 当前已渲染的评论块数量
func (pc *PageController) RenderedCount(ctx context.Context) (int, error) {
	markup, err := pc.session.SnapshotMarkup(ctx)
	if err != nil {
		return 0, err
	}
	return pc.counter.CountItems(markup)
}
