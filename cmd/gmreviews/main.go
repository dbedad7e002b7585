package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/config"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/core"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/crawlers"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/parser"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/storage"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	headers    []string

	// 来源与输出
	sourcesFile      string
	urlFile          string
	only             []string
	outputDir        string
	format           string
	includeSourceURL bool
	snapshots        bool

	// 浏览器
	headless     bool
	remoteURL    string
	strictResume bool

	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "gmreviews",
	Short: "Google Maps 评论抓取工具",
	Long: `gmreviews - Google Maps 地点评论抓取工具

按"最新"排序逐批加载评论页, 解析评论者、评分、正文和访问元数据, 写入CSV或SQLite:
  • 分批加载与持久化, 每批写入后刷盘
  • 中断后按已写入的记录数续抓, 不重复
  • 单条评论解析失败只跳过该条
  • 可归档批次快照, 之后离线重解析

示例:
  # 按 configs/sources.yaml 中启用的来源抓取
  gmreviews

  # 只抓取指定来源, 连接已运行的浏览器 (--remote-debugging-port=9222)
  gmreviews --only "Warung Kopi" --remote localhost:9222

  # 从URL列表抓取, 定位器使用 sources.yaml 中的 defaults
  gmreviews --url-file urls.txt --include-source-url

  # 检查配置
  gmreviews validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runScrape,
}

// setup 加载配置、合并命令行参数并初始化日志
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	cfg.Apply(buildOverrides(cmd))
	if verbose && logLevel == "" {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	if err := utils.InitLogger(cfg.LogConfig()); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	appConfig = cfg
	return nil
}

// buildOverrides 收集用户显式指定的参数
func buildOverrides(cmd *cobra.Command) core.Overrides {
	flags := cmd.Flags()
	o := core.Overrides{
		LogLevel:  logLevel,
		OutputDir: outputDir,
		Format:    format,
		Sources:   sourcesFile,
		RemoteURL: remoteURL,
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("include-source-url") {
		o.IncludeSourceURL = &includeSourceURL
	}
	if flags.Changed("snapshots") {
		o.Snapshots = &snapshots
	}
	if flags.Changed("strict-resume") {
		o.StrictResume = &strictResume
	}
	return o
}

// loadSources 本次运行的来源: --url-file 优先, 否则读取来源配置
func loadSources() ([]models.SourceDescriptor, error) {
	loader := config.NewSourceConfigLoader(appConfig.Sources)
	if urlFile == "" {
		return loader.LoadSelected(only)
	}

	urls, err := utils.ReadURLsFromFile(urlFile)
	if err != nil {
		return nil, err
	}
	defaults, err := loader.DefaultsFromFile()
	if err != nil {
		return nil, err
	}
	sources := config.SourcesFromURLs(urls, defaults)
	if err := config.ValidateSources(sources); err != nil {
		return nil, fmt.Errorf("URL文件生成的来源无效: %w", err)
	}
	return config.Select(sources, only)
}

func runScrape(cmd *cobra.Command, args []string) error {
	// Ctrl+C 取消运行, 当前批次写完后退出
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := loadSources()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("没有启用的来源, 请检查 %s 中的 enabled", appConfig.Sources)
	}

	headerManager, err := core.NewHeaderManager(appConfig.Headers, headers, appConfig.Browser.AcceptLanguage)
	if err != nil {
		return fmt.Errorf("解析请求头失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return err
	}

	policy, err := core.NewSkipPolicy(appConfig.Scrape.Absorb, appConfig.Scrape.MaxSkipsPerSource)
	if err != nil {
		return err
	}

	store, err := storage.New(appConfig.Output.Format, appConfig.StorageOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			utils.Warnf("关闭输出失败: %v", err)
		}
	}()

	browser := crawlers.NewRodBrowser(appConfig.BrowserOptions(), headerManager)
	defer func() {
		if err := browser.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}()

	opts := appConfig.OrchestratorOptions()
	opts.ShowProgress = true

	var reporter *utils.Reporter
	if appConfig.Output.Report {
		reporter = utils.NewReporter(appConfig.Output.Dir)
	}

	orchestrator := core.NewOrchestrator(browser, parser.New(appConfig.Selectors, appConfig.Labels), store, opts).
		WithPolicy(policy).
		WithArchive(crawlers.NewSnapshotArchive(appConfig.Output.Dir, appConfig.Output.Snapshots)).
		WithMonitor(crawlers.NewResourceMonitor(appConfig.ResourceMonitorConfig())).
		WithReporter(reporter, os.Stdout)

	summary, err := orchestrator.Run(ctx, sources)
	if errors.Is(err, context.Canceled) {
		utils.Warn("⚠️  运行被中断, 已写入的批次会在下次运行时续抓")
		return nil
	}
	if err != nil {
		return err
	}

	if _, aborted, _, _ := summary.Totals(); aborted > 0 {
		return fmt.Errorf("%d 个来源中止, 详见日志", aborted)
	}
	utils.Info("✨ 抓取任务完成!")
	return nil
}

var reparseCmd = &cobra.Command{
	Use:   "reparse",
	Short: "用当前解析规则重新解析归档快照",
	Long: `重新解析 <output>/snapshots/<来源>/ 下的批次快照, 结果写入 <output>/<来源>.reparsed.csv

快照需要在抓取时开启 --snapshots (或 output.snapshots: true)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewSourceConfigLoader(appConfig.Sources)
		all, err := loader.Load()
		if err != nil {
			return err
		}
		sources, err := config.Select(all, only)
		if err != nil {
			return err
		}

		p := parser.New(appConfig.Selectors, appConfig.Labels)
		archive := crawlers.NewSnapshotArchive(appConfig.Output.Dir, true)

		var errs []error
		for _, src := range sources {
			if _, _, err := core.ReparseSource(p, archive, src, appConfig.StorageOptions()); err != nil {
				utils.Errorf("❌ %v", err)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gmreviews %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "配置文件路径 (默认搜索 ./configs/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "详细输出模式 (等同 --log-level debug)")
	pf.StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	pf.StringSliceVarP(&headers, "header", "H", []string{}, "附加请求头, 格式: 'Name: Value', 可多次指定")
	pf.StringVar(&sourcesFile, "sources", "", "来源配置文件路径 (默认 configs/sources.yaml)")
	pf.StringSliceVar(&only, "only", []string{}, "只处理指定名称的来源, 可多次指定")
	pf.StringVarP(&outputDir, "output", "o", "", "输出目录")
	pf.StringVar(&format, "format", "", "输出格式 (csv|sqlite)")
	pf.BoolVar(&includeSourceURL, "include-source-url", false, "在输出中附加来源URL列")
	pf.BoolVar(&snapshots, "snapshots", false, "归档每个批次的页面快照")

	// 抓取参数
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含地点URL列表的文件, 每行一个")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "无头浏览器模式")
	rootCmd.Flags().StringVar(&remoteURL, "remote", "", "连接已运行浏览器的调试地址, 例如 localhost:9222")
	rootCmd.Flags().BoolVar(&strictResume, "strict-resume", false, "续抓位置无法对齐时中止该来源")

	rootCmd.AddCommand(reparseCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
