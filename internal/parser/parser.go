// Package parser 将评论列表的页面快照解析为结构化评论记录
//
// 解析是纯函数: 对同一评论块总是产生同一记录, 字段缺失时使用空值而不是报错。
// 唯一的异常路径是单个评论块处理时发生panic, 会被转换为 models.RecordError,
// 由调用方的跳过策略决定如何处理。
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
	"github.com/rs/zerolog/log"
)

// photoURLPattern 提取 style="background-image: url('...')" 中的URL
var photoURLPattern = regexp.MustCompile(`url\(['"]?([^'")]+)`)

// Parser 评论记录解析器
type Parser struct {
	sel    models.Selectors
	labels models.MetadataLabels

	// extract 单个评论块的抽取函数, 默认为 ParseOne
	extract func(index int, block *goquery.Selection) models.ReviewRecord
}

// New 创建解析器
func New(sel models.Selectors, labels models.MetadataLabels) *Parser {
	p := &Parser{
		sel:    sel,
		labels: normalizeLabels(labels),
	}
	p.extract = func(_ int, block *goquery.Selection) models.ReviewRecord {
		return p.ParseOne(block)
	}
	return p
}

// NewDefault 使用默认定位器和标签创建解析器
func NewDefault() *Parser {
	return New(models.DefaultSelectors(), models.DefaultMetadataLabels())
}

// Selectors 返回解析器使用的定位器
func (p *Parser) Selectors() models.Selectors {
	return p.sel
}

// CountItems 统计快照中的评论块数量
func (p *Parser) CountItems(markup string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 0, fmt.Errorf("解析页面快照失败: %w", err)
	}
	return doc.Find(p.sel.Item).Length(), nil
}

// ParseRange 按文档顺序解析索引在 [start, end) 内的评论块
func (p *Parser) ParseRange(markup string, start, end int) (models.BatchResult, error) {
	result := models.BatchResult{Start: start, End: end}
	if start < 0 {
		start = 0
	}
	if end <= start {
		return result, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return result, fmt.Errorf("解析页面快照失败: %w", err)
	}

	p.parseBlocks(doc.Find(p.sel.Item), start, end, &result)
	return result, nil
}

// ParseSelection 解析已定位的评论块集合中 [start, end) 范围
func (p *Parser) ParseSelection(blocks *goquery.Selection, start, end int) models.BatchResult {
	result := models.BatchResult{Start: start, End: end}
	p.parseBlocks(blocks, start, end, &result)
	return result
}

func (p *Parser) parseBlocks(blocks *goquery.Selection, start, end int, result *models.BatchResult) {
	blocks.EachWithBreak(func(i int, block *goquery.Selection) bool {
		if i >= end {
			return false
		}
		if i < start {
			return true
		}

		record, err := p.ParseIndexed(i, block)
		if err != nil {
			result.Failures = append(result.Failures, models.RecordFailure{Index: i, Err: err})
			return true
		}
		result.Records = append(result.Records, record)
		return true
	})
}

// ParseIndexed 解析单个评论块, panic 转换为 RecordError
func (p *Parser) ParseIndexed(index int, block *goquery.Selection) (record models.ReviewRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Int("index", index).Msgf("评论块解析panic: %v", r)
			err = &models.RecordError{
				Index: index,
				Kind:  models.KindRecordProcessing,
				Cause: fmt.Errorf("%v", r),
			}
		}
	}()
	return p.extract(index, block), nil
}

// ParseOne 将一个评论块转换为评论记录
// 缺失的字段返回空值; 没有评分组件时 Rating.Valid 为 false
func (p *Parser) ParseOne(block *goquery.Selection) models.ReviewRecord {
	record := models.ReviewRecord{
		Name:         Text(block.Find(p.sel.Name).First()),
		Username:     attr(block.Find(p.sel.Profile).First(), "href"),
		UserPhotoURL: photoURL(block.Find(p.sel.Photo).First()),
		Rating:       p.rating(block),
		Timestamp:    Text(block.Find(p.sel.Timestamp).First()),
		ReviewID:     attr(block, "data-id"),
	}

	p.caption(block.Find(p.sel.Caption).First(), &record)
	return record
}

// rating 统计fill颜色等于实心色的星形图标, 其它颜色的图标不计入
func (p *Parser) rating(block *goquery.Selection) models.Rating {
	container := block.Find(p.sel.Rating).First()
	if container.Length() == 0 {
		return models.Rating{}
	}

	stars := 0
	container.Find(p.sel.Star).Each(func(_ int, star *goquery.Selection) {
		fill, ok := star.Find("path").First().Attr("fill")
		if ok && strings.EqualFold(strings.TrimSpace(fill), p.sel.StarFill) {
			stars++
		}
	})
	return models.NewRating(stars)
}

// caption 提取正文; 存在元数据段时先抽取元数据, 再在副本上移除该段计算正文
func (p *Parser) caption(container *goquery.Selection, record *models.ReviewRecord) {
	if container.Length() == 0 {
		return
	}

	special := container.Find(p.sel.Special).First()
	if special.Length() == 0 {
		record.Caption = Text(container)
		return
	}

	p.metadata(special, record)

	stripped := container.Clone()
	stripped.Find(p.sel.Special).Remove()
	record.Caption = Text(stripped)
}

func attr(sel *goquery.Selection, name string) string {
	if sel.Length() == 0 {
		return ""
	}
	value, _ := sel.Attr(name)
	return strings.TrimSpace(value)
}

func photoURL(sel *goquery.Selection) string {
	style := attr(sel, "style")
	if style == "" {
		return ""
	}
	m := photoURLPattern.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return m[1]
}
