package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/crawlers"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/storage"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// finalSnapshotTimeout 运行被中断后获取快照的时间上限
const finalSnapshotTimeout = 30 * time.Second

// RecordParser 统计并解析快照中的评论块
type RecordParser interface {
	crawlers.ItemCounter
	ParseRange(markup string, start, end int) (models.BatchResult, error)
}

// Options 编排参数
type Options struct {
	BatchSize  int
	Controller crawlers.ControllerConfig

	ExpandLocator string
	ExpandPause   time.Duration
	ExpandSettle  time.Duration

	LoadJitterMin       time.Duration // 每次加载更多之后的随机等待
	LoadJitterMax       time.Duration
	BatchJitterMin      time.Duration // 批次之间的随机等待
	BatchJitterMax      time.Duration
	InteractionInterval time.Duration // 两次加载更多之间的最小间隔

	StrictResume    bool
	ContinueOnError bool
	ShowProgress    bool
}

// Orchestrator 依次处理每个来源: 启动页面、续抓对齐、分批加载解析并持久化
// 来源之间串行执行, 每个来源独占一个浏览器会话
type Orchestrator struct {
	factory crawlers.SessionFactory
	parser  RecordParser
	store   storage.Store
	opts    Options

	policy   SkipPolicy
	expander *crawlers.Expander
	archive  *crawlers.SnapshotArchive
	monitor  *crawlers.ResourceMonitor
	reporter *utils.Reporter
	out      io.Writer
}

// NewOrchestrator 创建编排器
func NewOrchestrator(factory crawlers.SessionFactory, parser RecordParser, store storage.Store, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.ExpandLocator == "" {
		opts.ExpandLocator = models.DefaultSelectors().ExpandControl
	}
	return &Orchestrator{
		factory:  factory,
		parser:   parser,
		store:    store,
		opts:     opts,
		policy:   DefaultSkipPolicy(),
		expander: crawlers.NewExpander(opts.ExpandLocator, opts.ExpandPause, opts.ExpandSettle),
	}
}

// WithPolicy 设置跳过策略
func (o *Orchestrator) WithPolicy(policy SkipPolicy) *Orchestrator {
	o.policy = policy
	return o
}

// WithArchive 设置快照归档
func (o *Orchestrator) WithArchive(archive *crawlers.SnapshotArchive) *Orchestrator {
	o.archive = archive
	return o
}

// WithMonitor 设置资源监控
func (o *Orchestrator) WithMonitor(monitor *crawlers.ResourceMonitor) *Orchestrator {
	o.monitor = monitor
	return o
}

// WithReporter 设置报告输出, out 为空时不打印摘要表格
func (o *Orchestrator) WithReporter(reporter *utils.Reporter, out io.Writer) *Orchestrator {
	o.reporter = reporter
	o.out = out
	return o
}

// Run 按顺序处理全部来源
// 单个来源中止不影响其他来源 (除非关闭 ContinueOnError); ctx 取消时返回已完成部分的摘要和 ctx 错误
func (o *Orchestrator) Run(ctx context.Context, sources []models.SourceDescriptor) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]models.SourceResult, 0, len(sources)),
	}
	utils.Infof("🚀 开始抓取: %d个来源 (run %s)", len(sources), summary.RunID)

	var runErr error
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		utils.Infof("==================== [%d/%d] %s ====================", i+1, len(sources), src.Name)
		result := o.runSource(ctx, src)
		summary.Results = append(summary.Results, result)

		if result.State != models.StateAborted {
			utils.Infof("✅ 来源完成 [%s]: 新增 %d 条, 跳过 %d 条, 位置 %d", src.Name, result.Extracted, result.Skipped, result.Position)
			continue
		}

		utils.Errorf("❌ 来源中止 [%s]: %s", src.Name, result.Error)
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if !o.opts.ContinueOnError {
			utils.Warn("运行中止 (continue_on_error=false)")
			break
		}
	}

	summary.FinishedAt = time.Now()
	o.report(summary)
	return summary, runErr
}

func (o *Orchestrator) report(summary *models.RunSummary) {
	if o.reporter != nil {
		path, err := o.reporter.GenerateReport(summary)
		if err != nil {
			utils.Warnf("生成报告失败: %v", err)
		} else {
			utils.Infof("📄 运行报告: %s", path)
		}
	}
	if o.out != nil {
		utils.RenderSummary(o.out, summary)
	}
}

// runSource 单个来源的状态机
// NotStarted → Started → Resuming → Extracting → Finished | Aborted
func (o *Orchestrator) runSource(ctx context.Context, src models.SourceDescriptor) (result models.SourceResult) {
	began := time.Now()
	result = models.SourceResult{Source: src.Name, URL: src.URL, State: models.StateNotStarted}
	defer func() {
		result.Duration = time.Since(began)
		if !result.State.Terminal() {
			log.Error().Str("source", src.Name).Str("state", string(result.State)).Msg("来源未到达终止状态")
			o.abort(&result, fmt.Errorf("来源在 %s 状态退出", result.State))
		}
	}()

	session, err := o.factory.Open(ctx)
	if err != nil {
		o.abort(&result, fmt.Errorf("打开浏览器会话失败: %w", err))
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Debug().Err(err).Str("source", src.Name).Msg("关闭浏览器会话失败")
		}
	}()

	loadPacer := crawlers.NewPacer(o.opts.InteractionInterval, o.opts.LoadJitterMin, o.opts.LoadJitterMax)
	controller := crawlers.NewPageController(session, src, o.parser, o.opts.Controller, loadPacer)
	if err := controller.Start(ctx); err != nil {
		o.abort(&result, err)
		return
	}
	result.State = models.StateStarted

	current, err := o.store.ResumePosition(src)
	if err != nil {
		o.abort(&result, fmt.Errorf("读取续抓位置失败: %w", err))
		return
	}
	result.ResumedFrom = current
	result.Position = current

	if current > 0 {
		result.State = models.StateResuming
		utils.Infof("🔁 续抓 [%s]: 已有 %d 条记录", src.Name, current)
		if err := o.resync(ctx, controller, src, current); err != nil {
			o.abort(&result, err)
			return
		}
	}

	if current >= src.ReviewLimit {
		utils.Infof("来源 [%s] 已达到目标评论数 %d, 跳过", src.Name, src.ReviewLimit)
		result.State = models.StateFinished
		return
	}

	sink, err := o.store.Open(src)
	if err != nil {
		o.abort(&result, fmt.Errorf("打开输出失败: %w", err))
		return
	}
	defer func() {
		if err := sink.Close(); err != nil {
			utils.Warnf("关闭输出失败 [%s]: %v", src.Name, err)
		}
	}()

	var bar *progressbar.ProgressBar
	if o.opts.ShowProgress {
		bar = utils.NewProgressBar(src.ReviewLimit, src.Name)
		_ = bar.Set(current)
		defer func() { _ = bar.Exit() }()
	}

	batchPacer := crawlers.NewPacer(0, o.opts.BatchJitterMin, o.opts.BatchJitterMax)
	result.State = models.StateExtracting

	for current < src.ReviewLimit {
		if err := ctx.Err(); err != nil {
			o.abort(&result, fmt.Errorf("运行被中断: %w", err))
			return
		}

		target := min(current+o.opts.BatchSize, src.ReviewLimit)
		outcome, err := o.runBatch(ctx, session, controller, src, sink, current, target)

		current += outcome.processed
		result.Position = current
		result.Extracted += outcome.extracted
		result.Skipped += outcome.skipped
		if !outcome.empty {
			result.Batches++
		}
		if bar != nil {
			_ = bar.Set(current)
		}

		if err != nil {
			o.abort(&result, err)
			return
		}
		if outcome.empty {
			log.Info().Str("source", src.Name).Int("position", current).Msg("没有更多评论")
			break
		}
		if o.policy.Exceeded(result.Skipped) {
			o.abort(&result, fmt.Errorf("跳过记录数 %d 超过上限 %d", result.Skipped, o.policy.MaxSkips()))
			return
		}
		if current >= src.ReviewLimit {
			break
		}

		if _, err := o.monitor.CheckAndCool(ctx); err != nil {
			o.abort(&result, fmt.Errorf("运行被中断: %w", err))
			return
		}
		if err := batchPacer.Wait(ctx); err != nil {
			o.abort(&result, fmt.Errorf("运行被中断: %w", err))
			return
		}
	}

	result.State = models.StateFinished
	return
}

// resync 续抓时先把页面加载到已持久化的位置, 再检查渲染数量是否足够
// 不足时解析索引会与已写入的记录错位: 默认记录警告继续, 严格模式下中止来源
func (o *Orchestrator) resync(ctx context.Context, controller *crawlers.PageController, src models.SourceDescriptor, position int) error {
	load := controller.LoadUntilCount(ctx, position)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("运行被中断: %w", err)
	}
	if load.Rendered >= position {
		log.Debug().Str("source", src.Name).Int("position", position).Int("rendered", load.Rendered).Msg("续抓位置已对齐")
		return nil
	}

	err := fmt.Errorf("%w: 已持久化 %d 条, 页面渲染 %d 条", models.ErrResumeMisaligned, position, load.Rendered)
	if load.Err != nil {
		err = fmt.Errorf("%w (加载中断: %v)", err, load.Err)
	}
	if o.opts.StrictResume {
		return err
	}
	log.Warn().Err(err).Str("source", src.Name).Str("kind", string(models.KindResumeMisalignment)).Msg("⚠️ 续抓位置未对齐, 按已持久化位置继续")
	return nil
}

// batchOutcome 一个批次对来源进度的贡献
type batchOutcome struct {
	processed int // 推进的索引数 (成功 + 跳过)
	extracted int
	skipped   int
	empty     bool
}

// runBatch 加载、展开、快照、解析并持久化 [start, end)
// 返回错误时 outcome 仍反映已经写入的部分
func (o *Orchestrator) runBatch(ctx context.Context, session crawlers.Session, controller *crawlers.PageController,
	src models.SourceDescriptor, sink storage.Sink, start, end int) (batchOutcome, error) {
	var outcome batchOutcome
	began := time.Now()

	load := controller.LoadUntilCount(ctx, end)
	o.expander.Expand(ctx, session)

	// 运行被中断时仍取一次快照, 已渲染的评论照常写入
	snapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSnapshotTimeout)
	markup, err := session.SnapshotMarkup(snapCtx)
	cancel()
	if err != nil {
		return outcome, fmt.Errorf("获取页面快照失败: %w", err)
	}
	batch, err := o.parser.ParseRange(markup, start, end)
	if err != nil {
		return outcome, fmt.Errorf("解析页面快照失败: %w", err)
	}

	if batch.Empty() {
		outcome.empty = true
		if load.Err != nil && !o.policy.Absorbs(load.Err) {
			return outcome, fmt.Errorf("加载更多失败: %w", load.Err)
		}
		return outcome, nil
	}

	var escalated error
	for _, failure := range batch.Failures {
		if o.policy.Absorbs(failure.Err) {
			outcome.skipped++
			log.Warn().Err(failure.Err).Str("source", src.Name).Int("index", failure.Index).Msg("跳过无法处理的评论")
			continue
		}
		if escalated == nil {
			escalated = fmt.Errorf("处理评论失败 [索引 %d]: %w", failure.Index, failure.Err)
		}
	}

	if err := sink.Append(batch.Records); err != nil {
		return outcome, fmt.Errorf("写入记录失败: %w", err)
	}
	outcome.extracted = len(batch.Records)
	outcome.processed = batch.Processed()

	elapsed := time.Since(began)
	stats := models.BatchStats{
		Source:         src.Name,
		BatchStart:     start,
		BatchEnd:       end,
		BatchSize:      len(batch.Records),
		ElapsedSeconds: elapsed.Seconds(),
	}
	if err := o.store.RecordStats(stats); err != nil {
		utils.Warnf("写入批次统计失败 [%s]: %v", src.Name, err)
	}

	if o.archive.Enabled() {
		if path, err := o.archive.Save(src.Slug(), start, end, markup); err != nil {
			utils.Warnf("归档快照失败 [%s]: %v", src.Name, err)
		} else {
			log.Debug().Str("path", path).Msg("已归档快照")
		}
	}

	log.Info().
		Str("source", src.Name).
		Int("start", start).
		Int("end", end).
		Int("records", outcome.extracted).
		Int("skipped", outcome.skipped).
		Dur("elapsed", elapsed).
		Msg("📦 批次完成")

	if escalated != nil {
		return outcome, escalated
	}
	if load.Err != nil {
		if !o.policy.Absorbs(load.Err) {
			return outcome, fmt.Errorf("加载更多失败: %w", load.Err)
		}
		log.Warn().Err(load.Err).Str("source", src.Name).Int("rendered", load.Rendered).Int("target", end).Msg("批次加载不完整, 接受部分结果")
	}
	return outcome, nil
}

func (o *Orchestrator) abort(result *models.SourceResult, err error) {
	result.State = models.StateAborted
	result.Error = err.Error()

	kind := models.KindOf(err)
	if kind == "" && errors.Is(err, context.Canceled) {
		kind = "interrupted"
	}
	log.Error().Err(err).Str("source", result.Source).Str("kind", string(kind)).Int("position", result.Position).Msg("来源中止")
}
