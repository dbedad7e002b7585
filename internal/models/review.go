package models

import "strconv"

// Rating 星级评分
// Valid=false 表示评论块中没有评分组件, 与 0 颗星(Value=0, Valid=true) 区分
type Rating struct {
	Value int  // 实心星数量 (0-5)
	Valid bool // 是否存在评分组件
}

// NewRating 创建有效评分
func NewRating(stars int) Rating {
	return Rating{Value: stars, Valid: true}
}

// String 输出到表格时使用, 无评分组件时为空字符串
func (r Rating) String() string {
	if !r.Valid {
		return ""
	}
	return strconv.Itoa(r.Value)
}

// ReviewRecord 单条评论记录
// 由解析器一次性生成, 写入输出后不再修改
type ReviewRecord struct {
	Name            string `json:"name"`             // 评论者显示名
	Username        string `json:"username"`         // 个人主页链接, 匿名时为空
	UserPhotoURL    string `json:"user_photo"`       // 头像URL (来自background-image样式)
	Rating          Rating `json:"-"`                // 显示的星级
	Timestamp       string `json:"timestamp"`        // 相对时间文本, 如 "2 minggu lalu"
	Caption         string `json:"caption"`          // 去除元数据段后的正文
	ReviewID        string `json:"review_id"`        // data-id 属性, 可能为空
	VisitTime       string `json:"visit_time"`       // 元数据: 到访时间
	QueueTime       string `json:"queue_time"`       // 元数据: 排队时间
	ReservationNote string `json:"reservation_note"` // 元数据: 预订说明
}

// ReviewColumns 输出表格的固定列顺序
var ReviewColumns = []string{
	"name",
	"username",
	"user_photo",
	"rating",
	"timestamp",
	"caption",
	"review_id",
	"visit_time",
	"queue_time",
	"reservation_note",
}

// SourceURLColumn 可选的来源URL列
const SourceURLColumn = "source_url"

// Row 按 ReviewColumns 顺序输出字段
func (r ReviewRecord) Row() []string {
	return []string{
		r.Name,
		r.Username,
		r.UserPhotoURL,
		r.Rating.String(),
		r.Timestamp,
		r.Caption,
		r.ReviewID,
		r.VisitTime,
		r.QueueTime,
		r.ReservationNote,
	}
}

// Header 返回表头, includeSourceURL 为 true 时追加来源列
func Header(includeSourceURL bool) []string {
	header := append([]string{}, ReviewColumns...)
	if includeSourceURL {
		header = append(header, SourceURLColumn)
	}
	return header
}

// RecordFailure 批次中单条记录处理失败
type RecordFailure struct {
	Index int
	Err   error
}

// BatchResult 一个批次的解析结果
type BatchResult struct {
	Start    int
	End      int
	Records  []ReviewRecord
	Failures []RecordFailure
}

// Processed 已处理(成功+失败)的索引数
func (b BatchResult) Processed() int {
	return len(b.Records) + len(b.Failures)
}

// Empty 批次中没有任何评论块
func (b BatchResult) Empty() bool {
	return b.Processed() == 0
}
