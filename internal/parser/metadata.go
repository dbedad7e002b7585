package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

// metadata 单次遍历元数据段的直接子div:
// 加粗样式且无 aria-label 的片段是标签, 紧随其后的第一个非标签片段是它的值。
// 没有前置标签的值片段被忽略, 连续两个标签时前一个没有值。
func (p *Parser) metadata(special *goquery.Selection, record *models.ReviewRecord) {
	pending := ""
	hasPending := false

	special.ChildrenFiltered("div").Each(func(_ int, frag *goquery.Selection) {
		aria, hasAria := frag.Attr("aria-label")
		if !hasAria && p.isLabel(frag) {
			pending = strings.ToLower(Text(frag))
			hasPending = true
			return
		}
		if !hasPending {
			return
		}

		value := Text(frag)
		if hasAria {
			value = strings.TrimSpace(aria)
		}
		p.assign(pending, value, record)
		hasPending = false
	})
}

func (p *Parser) isLabel(frag *goquery.Selection) bool {
	style, ok := frag.Attr("style")
	if !ok {
		return false
	}
	return normalizeStyle(style) == normalizeStyle(p.sel.LabelStyle)
}

// assign 按 到访时间 > 排队时间 > 预订 的顺序匹配标签, 只赋值第一个命中的字段
func (p *Parser) assign(label, value string, record *models.ReviewRecord) {
	switch {
	case containsAny(label, p.labels.VisitTime):
		record.VisitTime = value
	case containsAny(label, p.labels.QueueTime):
		record.QueueTime = value
	case containsAny(label, p.labels.Reservation):
		record.ReservationNote = value
	}
}

func containsAny(label string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(label, k) {
			return true
		}
	}
	return false
}

func normalizeStyle(style string) string {
	s := strings.ToLower(style)
	s = strings.ReplaceAll(s, " ", "")
	return strings.TrimRight(s, ";")
}

func normalizeLabels(labels models.MetadataLabels) models.MetadataLabels {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return models.MetadataLabels{
		VisitTime:   lower(labels.VisitTime),
		QueueTime:   lower(labels.QueueTime),
		Reservation: lower(labels.Reservation),
	}
}
