package core

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

// SkipPolicy 决定哪些错误被吸收(跳过并计数), 哪些升级为来源中止
type SkipPolicy struct {
	absorb   map[models.ErrorKind]bool
	maxSkips int
}

var knownKinds = map[models.ErrorKind]bool{
	models.KindStartFailure:       true,
	models.KindLoadTimeout:        true,
	models.KindLoadFailure:        true,
	models.KindParseDefault:       true,
	models.KindRecordProcessing:   true,
	models.KindResumeMisalignment: true,
}

// DefaultAbsorbKinds 默认吸收的错误类别
var DefaultAbsorbKinds = []string{
	string(models.KindRecordProcessing),
	string(models.KindLoadTimeout),
	string(models.KindLoadFailure),
}

// DefaultSkipPolicy 吸收单条记录失败和加载失败, 不限跳过次数
func DefaultSkipPolicy() SkipPolicy {
	p, _ := NewSkipPolicy(DefaultAbsorbKinds, 0)
	return p
}

// NewSkipPolicy 由错误类别名称创建策略
// 启动失败属于来源级错误, 不能被吸收
func NewSkipPolicy(kinds []string, maxSkips int) (SkipPolicy, error) {
	p := SkipPolicy{absorb: make(map[models.ErrorKind]bool, len(kinds)), maxSkips: maxSkips}
	for _, k := range kinds {
		kind := models.ErrorKind(strings.ToLower(strings.TrimSpace(k)))
		if !knownKinds[kind] {
			return SkipPolicy{}, fmt.Errorf("scrape.absorb 包含未知的错误类别: %q", k)
		}
		if kind == models.KindStartFailure {
			return SkipPolicy{}, fmt.Errorf("scrape.absorb 不能包含 %s", kind)
		}
		p.absorb[kind] = true
	}
	return p, nil
}

// Absorbs 错误是否被吸收; 未分类的错误一律升级
func (p SkipPolicy) Absorbs(err error) bool {
	kind := models.KindOf(err)
	return kind != "" && p.absorb[kind]
}

// Exceeded 跳过次数是否超过上限
func (p SkipPolicy) Exceeded(skips int) bool {
	return p.maxSkips > 0 && skips > p.maxSkips
}

// MaxSkips 每个来源的跳过上限, 0 表示不限
func (p SkipPolicy) MaxSkips() int {
	return p.maxSkips
}
