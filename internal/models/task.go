package models

import (
	"encoding/json"
	"time"
)

// SourceState 单个来源的抓取状态
type SourceState string

const (
	StateNotStarted SourceState = "not_started" // 未开始
	StateStarted    SourceState = "started"     // 页面已就绪并按最新排序
	StateResuming   SourceState = "resuming"    // 正在同步到续抓位置
	StateExtracting SourceState = "extracting"  // 批量抽取中
	StateFinished   SourceState = "finished"    // 完成
	StateAborted    SourceState = "aborted"     // 中止
)

// Terminal 是否为终止状态
func (s SourceState) Terminal() bool {
	return s == StateFinished || s == StateAborted
}

// BatchStats 单批次统计, 每批一行写入统计表
type BatchStats struct {
	Source         string  `json:"source"`
	BatchStart     int     `json:"batch_start"`
	BatchEnd       int     `json:"batch_end"`
	BatchSize      int     `json:"batch_size"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// StatsColumns 统计表列顺序
var StatsColumns = []string{"source", "batch_start", "batch_end", "batch_size", "elapsed_seconds"}

// SourceResult 单个来源的运行结果
type SourceResult struct {
	Source      string        `json:"source"`
	URL         string        `json:"url"`
	State       SourceState   `json:"state"`
	ResumedFrom int           `json:"resumed_from"` // 续抓起点
	Extracted   int           `json:"extracted"`    // 本次新写入的记录数
	Skipped     int           `json:"skipped"`      // 被跳过的索引数
	Batches     int           `json:"batches"`
	Position    int           `json:"position"` // 结束时的索引位置
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// RunSummary 一次运行的摘要
type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SourceResult `json:"results"`
}

// Totals 汇总成功/中止来源与记录数
func (s *RunSummary) Totals() (finished, aborted, extracted, skipped int) {
	for _, r := range s.Results {
		switch r.State {
		case StateFinished:
			finished++
		case StateAborted:
			aborted++
		}
		extracted += r.Extracted
		skipped += r.Skipped
	}
	return
}

// ToJSON 序列化为JSON
func (s *RunSummary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
