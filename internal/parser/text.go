package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

// Text 返回选中节点的文本: 各文本节点去除首尾空白后以单个空格连接, 内部连续空白折叠
func Text(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		text := innerWhitespace.ReplaceAllString(strings.TrimSpace(n.Data), " ")
		if text != "" {
			*parts = append(*parts, text)
		}
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
