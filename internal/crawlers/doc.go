// Package crawlers 驱动浏览器中的评论页, 并为离线重解析提供快照归档
//
// # 概述
//
// 评论列表只能通过反复点击"加载更多"逐步渲染。本包把浏览器操作收敛为 Session 接口
// 的五个动作 (导航、等待后点击、脚本点击全部、滚动、获取快照), 页面控制逻辑只依赖该接口,
// 测试中使用内存实现即可覆盖全部流程。
//
// # 核心组件
//
// ## Session / SessionFactory
//
// 一个来源独占一个 Session, 来源结束 (无论成功或中止) 后必须 Close。
// RodBrowser 是基于go-rod的实现: 所有来源共享一个浏览器进程, 每个 Session 是一个新标签页;
// 也可以通过调试地址连接已运行的浏览器。
//
//	browser := NewRodBrowser(BrowserOptions{RemoteURL: "localhost:9222"}, headerProvider)
//	defer browser.Close()
//
//	session, err := browser.Open(ctx)
//	if err != nil { /* 处理错误 */ }
//	defer session.Close()
//
// 定位器以 "/" 或 "(" 开头时按XPath处理, 否则按CSS选择器处理。
//
// ## PageController
//
// 每个来源一个实例, 状态 NotStarted → Ready | Failed, 不能重复启动。
//
//	pc := NewPageController(session, source, parser, DefaultControllerConfig(), pacer)
//	if err := pc.Start(ctx); err != nil { /* *models.StartFailure, 放弃该来源 */ }
//
//	result := pc.LoadUntilCount(ctx, 1000)
//	if result.Partial() { /* 接受部分结果 */ }
//
// 加载次数为 ceil((target - 已渲染数) / 每次加载数), 任何一次失败都提前结束循环, 不返回错误。
//
// ## Expander
//
// 解析快照之前用脚本点击所有"展开"按钮, 否则正文被截断。单个按钮失败只记录日志。
//
// ## Pacer
//
// 固定最小间隔 (x/time/rate) 加均匀随机等待, 用于加载更多之间和批次之间。
//
// ## ResourceMonitor
//
// 批次之间检查可用内存和CPU负载 (gopsutil), 资源紧张时冷却一次再继续:
//   - 可用内存 < min_available_mb: 警告并冷却
//   - 可用内存 < min_available_mb 的一半: 错误日志并冷却
//   - CPU使用率超过阈值: 警告并冷却
//
// ## SnapshotArchive / OfflineReparser
//
// 开启归档后每个批次的快照以brotli压缩保存为 snapshots/<来源>/batch_<start>_<end>.html.br。
// OfflineReparser 通过Colly遍历这些快照, 按批次范围重新解析, 解析规则更新后无需重新访问页面。
package crawlers
